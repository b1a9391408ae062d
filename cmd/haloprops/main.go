// haloprops computes per-halo summary properties from a sharded particle
// snapshot and a halo catalogue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	root := &cobra.Command{
		Use:           "haloprops",
		Short:         "aggregate per-halo properties from particle snapshots",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newMkshardsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "haloprops: %s\n", err)
		os.Exit(1)
	}
}
