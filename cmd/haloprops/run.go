package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phil-mansfield/haloprops/chunk"
	"github.com/phil-mansfield/haloprops/config"
	"github.com/phil-mansfield/haloprops/coord"
	"github.com/phil-mansfield/haloprops/halo"
	"github.com/phil-mansfield/haloprops/io/catalogue"
	"github.com/phil-mansfield/haloprops/io/output"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// retryInterval is the initial backoff before a failed chunk is
// reassigned. Transient filesystem hiccups on shared storage usually
// clear within a few seconds.
const retryInterval = 5 * time.Second

func newRunCommand() *cobra.Command {
	var (
		extraInput string
		verbose    bool

		chunksFlag, workersFlag, maxReadingFlag, maxRetriesFlag int
	)

	cmd := &cobra.Command{
		Use:   "run <parameter-file>",
		Short: "run the property pipeline for one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(args[0])
			if err != nil {
				return err
			}

			// Command line flags win over the parameter file.
			if cmd.Flags().Changed("chunks") {
				cfg.Chunks = chunksFlag
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workersFlag
			}
			if cmd.Flags().Changed("max-ranks-reading") {
				cfg.MaxRanksReading = maxReadingFlag
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.MaxRetries = maxRetriesFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, config.PathTemplate(extraInput), log)
		},
	}

	cmd.Flags().IntVar(&chunksFlag, "chunks", 0,
		"number of chunks to split the snapshot into")
	cmd.Flags().IntVar(&workersFlag, "workers", 0,
		"number of concurrent chunk processors")
	cmd.Flags().IntVar(&maxReadingFlag, "max-ranks-reading", 0,
		"max workers reading the filesystem at once")
	cmd.Flags().IntVar(&maxRetriesFlag, "max-retries", 0,
		"times a failed chunk is reassigned before giving up")
	cmd.Flags().StringVar(&extraInput, "extra-input", "",
		"template of optional per-particle scalar shards")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(
	ctx context.Context, cfg *config.Config,
	extraInput config.PathTemplate, log *zap.Logger,
) error {
	start := time.Now()

	snap, err := snapshot.OpenSet(func(i int) string {
		return cfg.Snapshot.Path(cfg.SnapNr, i)
	})
	if err != nil {
		return err
	}
	hd := snap.Header(0)
	log.Info("opened snapshot",
		zap.Int("snap_nr", cfg.SnapNr),
		zap.Int("files", snap.Files()),
		zap.Int64("particles", hd.NPartTotal),
		zap.Float64("box_size", hd.L))

	cat, err := catalogue.Read(
		cfg.Catalogue.Path(cfg.SnapNr, 0), cfg.MinReadRadius)
	if err != nil {
		return err
	}
	log.Info("read catalogue", zap.Int("halos", cat.NHalos()))

	memPath := probeShards(cfg.Membership, cfg.SnapNr, "membership", log)
	extraPath := probeShards(extraInput, cfg.SnapNr, "extra scalar", log)

	chunks, err := chunk.Plan(snap.NPart(), cfg.Chunks)
	if err != nil {
		return err
	}

	agg := halo.NewAggregator(cat, log)
	pipe := coord.NewPipeline(snap, agg, memPath, extraPath,
		cfg.MaxRanksReading, log)
	c := coord.New(coord.Config{
		Workers:       cfg.Workers,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: retryInterval,
	}, pipe, log)

	set, err := c.Run(ctx, chunks)
	if err != nil {
		return err
	}

	recs := halo.Finalize(cat, set)
	outPath := cfg.Output.Path(cfg.SnapNr, 0)
	if err := output.Write(outPath, halo.Table(recs)); err != nil {
		return err
	}

	log.Info("wrote property table",
		zap.String("path", outPath),
		zap.Int("halos", len(recs)),
		zap.Int64("skipped_particles", set.Skipped),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// probeShards decides whether an optional sharded input is present for
// this run. An empty template means not configured; a configured template
// whose first shard is missing is treated as absent, with a warning, so
// that a run set up before the halo finder finishes still completes.
func probeShards(
	t config.PathTemplate, snapNr int, what string, log *zap.Logger,
) func(int) string {
	if t == "" {
		return nil
	}
	first := t.Path(snapNr, 0)
	if _, err := os.Stat(first); err != nil {
		log.Warn("configured input not found, continuing without it",
			zap.String("input", what), zap.String("path", first))
		return nil
	}
	return func(i int) string { return t.Path(snapNr, i) }
}
