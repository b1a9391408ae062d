/*package coord schedules chunks across a pool of workers and merges their
partial results into the global per-halo accumulator. Workers communicate
only through task and result channels; the global accumulator is touched
by a single merge loop, which is the one place in the pipeline requiring
mutual exclusion. Chunks are side-effect-free to process, so a failed
chunk is simply reassigned, up to a retry limit.*/
package coord

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/haloprops/chunk"
	"github.com/phil-mansfield/haloprops/halo"
)

// State is the scheduling state of one worker.
type State int32

const (
	Idle State = iota
	Assigned
	Reading
	Aggregating
	Reporting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Assigned:
		return "assigned"
	case Reading:
		return "reading"
	case Aggregating:
		return "aggregating"
	case Reporting:
		return "reporting"
	}
	return "unknown"
}

// WorkerFailure is one failed attempt at one chunk. Failures are
// recoverable until the chunk runs out of retries.
type WorkerFailure struct {
	Worker, Chunk, Attempt int
	Err                    error
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d failed chunk %d (attempt %d): %s",
		e.Worker, e.Chunk, e.Attempt, e.Err)
}

func (e *WorkerFailure) Unwrap() error { return e.Err }

// Processor turns one chunk into a partial accumulator set. Process must
// be safe to call from multiple goroutines and free of side effects, so
// that a chunk can be reprocessed after a failure. transition reports the
// worker's progress through its Reading and Aggregating phases.
type Processor interface {
	NewSet() *halo.AccumulatorSet
	Process(
		ctx context.Context, c chunk.Chunk, transition func(State),
	) (*halo.AccumulatorSet, error)
}

// Config bounds the coordinator's concurrency and retry behaviour.
type Config struct {
	// Workers is the size of the worker pool.
	Workers int
	// MaxRetries is how many times a chunk may be reassigned after a
	// failure before the job aborts.
	MaxRetries int
	// RetryInterval is the initial backoff before a chunk is reassigned.
	// Zero means retry immediately (useful in tests).
	RetryInterval time.Duration
}

// Coordinator runs chunks through a Processor and merges the results.
type Coordinator struct {
	cfg  Config
	proc Processor
	log  *zap.Logger

	states []atomic.Int32
}

// New creates a coordinator. cfg.Workers must be positive.
func New(cfg Config, proc Processor, log *zap.Logger) *Coordinator {
	if cfg.Workers <= 0 {
		panic(fmt.Sprintf("coordinator created with %d workers", cfg.Workers))
	}
	return &Coordinator{
		cfg: cfg, proc: proc, log: log,
		states: make([]atomic.Int32, cfg.Workers),
	}
}

// WorkerState returns the current state of worker i.
func (c *Coordinator) WorkerState(i int) State {
	return State(c.states[i].Load())
}

func (c *Coordinator) setState(worker int, s State) {
	c.states[worker].Store(int32(s))
	c.log.Debug("worker state change",
		zap.Int("worker", worker), zap.Stringer("state", s))
}

type task struct {
	chunk   chunk.Chunk
	attempt int
}

type report struct {
	worker int
	task   task
	set    *halo.AccumulatorSet
	err    error
}

// Run processes every chunk and returns the fully merged accumulator set.
// If the context is cancelled, or a chunk fails more than MaxRetries
// times, Run returns an error and no partial result: callers must not
// write any output in that case.
func (c *Coordinator) Run(
	ctx context.Context, chunks []chunk.Chunk,
) (*halo.AccumulatorSet, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to process")
	}

	// Each chunk has at most one live task, so the buffer can never fill.
	tasks := make(chan task, len(chunks))
	results := make(chan report, c.cfg.Workers)
	for i := range chunks {
		tasks <- task{chunk: chunks[i]}
	}

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(gctx)
	for w := 0; w < c.cfg.Workers; w++ {
		w := w
		g.Go(func() error { return c.worker(gctx, w, tasks, results) })
	}

	global := c.proc.NewSet()
	var failures *multierror.Error
	done := 0

merge:
	for done < len(chunks) {
		select {
		case <-gctx.Done():
			break merge
		case rep := <-results:
			if rep.err != nil {
				fail := &WorkerFailure{
					Worker: rep.worker, Chunk: rep.task.chunk.ID,
					Attempt: rep.task.attempt, Err: rep.err,
				}
				failures = multierror.Append(failures, fail)

				if rep.task.attempt >= c.cfg.MaxRetries {
					c.log.Error("chunk out of retries",
						zap.Int("chunk", rep.task.chunk.ID),
						zap.Error(rep.err))
					break merge
				}

				c.log.Warn("reassigning failed chunk",
					zap.Int("chunk", rep.task.chunk.ID),
					zap.Int("attempt", rep.task.attempt),
					zap.Error(rep.err))
				c.requeue(gctx, tasks, task{
					chunk: rep.task.chunk, attempt: rep.task.attempt + 1,
				})
				continue
			}

			// The single merge loop is the synchronization point for the
			// global accumulator: one merge at a time, by construction.
			global.Merge(rep.set)
			done++
			c.log.Info("chunk merged",
				zap.Int("chunk", rep.task.chunk.ID),
				zap.Int("done", done), zap.Int("total", len(chunks)))
		}
	}

	if done == len(chunks) {
		close(tasks)
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return global, nil
	}

	// Abandon in-flight chunks and report why.
	cancel()
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "job cancelled")
	}
	return nil, failures.ErrorOrNil()
}

// requeue schedules a retry after the configured backoff without stalling
// the merge loop.
func (c *Coordinator) requeue(ctx context.Context, tasks chan<- task, t task) {
	if c.cfg.RetryInterval <= 0 {
		tasks <- t
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	d := bo.InitialInterval
	for i := 0; i < t.attempt-1; i++ {
		d = bo.NextBackOff()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(d):
			tasks <- t
		}
	}()
}

func (c *Coordinator) worker(
	ctx context.Context, id int,
	tasks <-chan task, results chan<- report,
) error {
	c.setState(id, Idle)
	transition := func(s State) { c.setState(id, s) }

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-tasks:
			if !ok {
				return nil
			}

			c.setState(id, Assigned)
			set, err := c.proc.Process(ctx, t.chunk, transition)

			c.setState(id, Reporting)
			select {
			case results <- report{worker: id, task: t, set: set, err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
			c.setState(id, Idle)
		}
	}
}
