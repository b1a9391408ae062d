package main

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/phil-mansfield/haloprops/config"
	"github.com/phil-mansfield/haloprops/io/catalogue"
	"github.com/phil-mansfield/haloprops/io/membership"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// mkshards converts whitespace-separated text tables into the binary
// formats the pipeline reads. It exists for building test fixtures and
// small debugging runs, not for production conversion.
func newMkshardsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkshards",
		Short: "convert text tables into pipeline input files",
	}
	cmd.AddCommand(newMkSnapshotCommand())
	cmd.AddCommand(newMkCatalogueCommand())
	cmd.AddCommand(newMkMembershipCommand())
	return cmd
}

// readRows reads a text table, skipping blank lines and # comments. Every
// row must have nCols fields.
func readRows(fname string, nCols int) ([][]float64, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", fname)
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != nCols {
			return nil, errors.Errorf(
				"%s:%d: %d columns, expected %d",
				fname, line, len(fields), nCols,
			)
		}

		row := make([]float64, nCols)
		for i := range fields {
			if row[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				return nil, errors.Wrapf(err, "%s:%d", fname, line)
			}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not read %s", fname)
	}
	return rows, nil
}

func newMkSnapshotCommand() *cobra.Command {
	var (
		nFiles               int
		boxSize, scale       float64
		omegaM, omegaL, h100 float64
	)

	cmd := &cobra.Command{
		Use:   "snapshot <particles.txt> <out-template>",
		Short: "write snapshot shards from a particle table",
		Long: `Writes snapshot shards from a text table with one particle per
row: species id x y z vx vy vz mass. Species is 0 (gas), 1 (dark matter),
2 (star) or 3 (black hole). Particles are split into shards in row order.
The output template must contain %(file_nr).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := config.PathTemplate(args[1])
			if !tmpl.Sharded() {
				return errors.Errorf(
					"output template %q does not contain %%(file_nr)", args[1],
				)
			}

			rows, err := readRows(args[0], 9)
			if err != nil {
				return err
			}
			if nFiles <= 0 || nFiles > len(rows) {
				return errors.Errorf(
					"cannot split %d particles into %d shards",
					len(rows), nFiles,
				)
			}

			total := int64(len(rows))
			for f := 0; f < nFiles; f++ {
				start := f * len(rows) / nFiles
				end := (f + 1) * len(rows) / nFiles

				hd := &snapshot.Header{
					Z: 1/scale - 1, Scale: scale,
					OmegaM: omegaM, OmegaL: omegaL, H100: h100, L: boxSize,
					FileNr: int64(f), NFiles: int64(nFiles),
					NPart: int64(end - start), NPartTotal: total,
				}
				if err := writeSnapshotShard(
					tmpl.Path(0, f), hd, rows[start:end],
				); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&nFiles, "files", 1, "number of shards to write")
	cmd.Flags().Float64Var(&boxSize, "box-size", 0, "periodic box size")
	cmd.Flags().Float64Var(&scale, "scale", 1, "scale factor")
	cmd.Flags().Float64Var(&omegaM, "omega-m", 0.3, "matter density")
	cmd.Flags().Float64Var(&omegaL, "omega-l", 0.7, "dark energy density")
	cmd.Flags().Float64Var(&h100, "h100", 0.7, "Hubble parameter")
	cmd.MarkFlagRequired("box-size")

	return cmd
}

func writeSnapshotShard(
	fname string, hd *snapshot.Header, rows [][]float64,
) error {
	bySpecies := map[snapshot.Species]*snapshot.Particles{}
	for _, row := range rows {
		s := snapshot.Species(row[0])
		if s < 0 || s >= snapshot.NSpecies {
			return errors.Errorf("unknown species %g", row[0])
		}

		p, ok := bySpecies[s]
		if !ok {
			p = &snapshot.Particles{Species: s}
			bySpecies[s] = p
		}
		p.ID = append(p.ID, int64(row[1]))
		p.X = append(p.X, [3]float32{
			float32(row[2]), float32(row[3]), float32(row[4]),
		})
		p.V = append(p.V, [3]float32{
			float32(row[5]), float32(row[6]), float32(row[7]),
		})
		p.Mp = append(p.Mp, float32(row[8]))
	}

	w := snapshot.NewWriter(fname, hd)
	for s := snapshot.Species(0); s < snapshot.NSpecies; s++ {
		if p, ok := bySpecies[s]; ok {
			if err := w.Write(p); err != nil {
				return err
			}
		}
	}
	return w.Close()
}

func newMkCatalogueCommand() *cobra.Command {
	var boxSize float64

	cmd := &cobra.Command{
		Use:   "catalogue <halos.txt> <out-file>",
		Short: "write a halo catalogue from a halo table",
		Long: `Writes a halo catalogue from a text table with one halo per
row: id host_id cp_x cp_y cp_z cm_x cm_y cm_z r_size. host_id is -1 for
central halos.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(args[0], 9)
			if err != nil {
				return err
			}

			n := len(rows)
			id, hostID := make([]int64, n), make([]int64, n)
			cofP, cofM := make([][3]float64, n), make([][3]float64, n)
			rSize := make([]float64, n)
			for i, row := range rows {
				id[i], hostID[i] = int64(row[0]), int64(row[1])
				cofP[i] = [3]float64{row[2], row[3], row[4]}
				cofM[i] = [3]float64{row[5], row[6], row[7]}
				rSize[i] = row[8]
			}

			c, err := catalogue.New(boxSize, id, hostID, cofP, cofM, rSize, 0)
			if err != nil {
				return err
			}
			return catalogue.Write(args[1], c)
		},
	}

	cmd.Flags().Float64Var(&boxSize, "box-size", 0, "periodic box size")
	cmd.MarkFlagRequired("box-size")

	return cmd
}

func newMkMembershipCommand() *cobra.Command {
	var (
		fileNr   int
		hasExtra bool
	)

	cmd := &cobra.Command{
		Use:   "membership <members.txt> <out-file>",
		Short: "write one membership shard from an assignment table",
		Long: `Writes one membership shard from a text table with one
particle per row: id halo_id, or id halo_id extra with --extra. halo_id
is -1 for unbound particles. The shard must list the same particles as
the snapshot shard with the same file number.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nCols := 2
			if hasExtra {
				nCols = 3
			}
			rows, err := readRows(args[0], nCols)
			if err != nil {
				return err
			}

			id, haloID := make([]int64, len(rows)), make([]int64, len(rows))
			var extra []float32
			if hasExtra {
				extra = make([]float32, len(rows))
			}
			for i, row := range rows {
				id[i], haloID[i] = int64(row[0]), int64(row[1])
				if hasExtra {
					extra[i] = float32(row[2])
				}
			}

			return membership.Write(args[1], int64(fileNr), id, haloID, extra)
		},
	}

	cmd.Flags().IntVar(&fileNr, "file-nr", 0, "file number of the shard")
	cmd.Flags().BoolVar(&hasExtra, "extra", false,
		"rows carry a third extra-scalar column")

	return cmd
}
