package coord

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/phil-mansfield/haloprops/chunk"
	"github.com/phil-mansfield/haloprops/halo"
	"github.com/phil-mansfield/haloprops/io/membership"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// Pipeline is the production Processor: it reads a chunk's shard files,
// joins membership data, and reduces the particles with the aggregator.
// All filesystem reads are gated by a weighted semaphore shared across
// every worker, which caps concurrent readers independently of the worker
// pool size. Without the cap, large worker counts turn into I/O storms on
// the shared filesystem.
type Pipeline struct {
	snap *snapshot.Set
	agg  *halo.Aggregator
	log  *zap.Logger

	// memPath and extraPath locate the optional auxiliary shards for a
	// file number; nil means the input is not present for this run.
	memPath   func(fileNr int) string
	extraPath func(fileNr int) string

	readSem *semaphore.Weighted

	// Test seams, called while the read semaphore is held.
	beforeRead func()
	afterRead  func()
}

// NewPipeline creates the production processor. maxReading is the
// max-ranks-reading cap; memPath and extraPath may be nil.
func NewPipeline(
	snap *snapshot.Set, agg *halo.Aggregator,
	memPath, extraPath func(fileNr int) string,
	maxReading int, log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		snap: snap, agg: agg, log: log,
		memPath: memPath, extraPath: extraPath,
		readSem: semaphore.NewWeighted(int64(maxReading)),
	}
}

// NewSet returns an empty accumulator set sized to the catalogue.
func (p *Pipeline) NewSet() *halo.AccumulatorSet { return p.agg.NewSet() }

// Process reduces one chunk. Reading is finite and side-effect-free, so
// the coordinator may call this again for the same chunk after a failure.
func (p *Pipeline) Process(
	ctx context.Context, c chunk.Chunk, transition func(State),
) (*halo.AccumulatorSet, error) {
	set := p.agg.NewSet()

	for i := c.FirstFile; i < c.LastFile; i++ {
		transition(Reading)
		parts, mem, extra, err := p.readFile(ctx, i)
		if err != nil {
			return nil, err
		}

		transition(Aggregating)
		if mem != nil {
			p.agg.AddMembership(set, parts, mem, extra)
		} else {
			p.agg.AddSpatial(set, parts, extra, p.snap.Header(i))
		}
	}

	if err := p.agg.CheckAssignments(set); err != nil {
		return nil, err
	}
	return set, nil
}

// readFile reads one shard and its auxiliary files under the reader cap.
func (p *Pipeline) readFile(ctx context.Context, i int) (
	parts []*snapshot.Particles, mem, extra *membership.File, err error,
) {
	if err := p.readSem.Acquire(ctx, 1); err != nil {
		return nil, nil, nil, err
	}
	defer p.readSem.Release(1)

	if p.beforeRead != nil {
		p.beforeRead()
	}
	if p.afterRead != nil {
		defer p.afterRead()
	}

	f, err := p.snap.OpenFile(i)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	if parts, err = f.ReadAll(); err != nil {
		return nil, nil, nil, err
	}

	if p.memPath != nil {
		if mem, err = membership.Open(p.memPath(i)); err != nil {
			return nil, nil, nil, err
		}
	}
	if p.extraPath != nil {
		if extra, err = membership.Open(p.extraPath(i)); err != nil {
			return nil, nil, nil, err
		}
	}

	return parts, mem, extra, nil
}
