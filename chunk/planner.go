/*package chunk partitions the snapshot's shard files into work chunks.
Chunks are contiguous in the snapshot's native file ordering, so a chunk
reads a consecutive run of shards and never seeks across the whole
volume. The union of all chunks covers every shard exactly once; that
exactness is the correctness invariant the rest of the pipeline leans on.*/
package chunk

import (
	"fmt"

	"github.com/phil-mansfield/haloprops/config"
)

// Chunk is one unit of work: the shard files in [FirstFile, LastFile).
type Chunk struct {
	ID                  int
	FirstFile, LastFile int
	NPart               int64 // estimated particle count, for balancing
}

// Files returns the number of shard files in the chunk.
func (c *Chunk) Files() int { return c.LastFile - c.FirstFile }

// Plan splits the shards described by nPart (per-shard particle counts)
// into nrChunks contiguous chunks with roughly equal particle counts.
// Every chunk holds at least one shard: asking for more chunks than shards
// would manufacture empty work units, which is a configuration error, not
// a degenerate plan.
func Plan(nPart []int64, nrChunks int) ([]Chunk, error) {
	if nrChunks <= 0 {
		return nil, &config.ConfigurationError{
			Field:  "chunks",
			Reason: fmt.Sprintf("chunk count %d is not positive", nrChunks),
		}
	}
	if nrChunks > len(nPart) {
		return nil, &config.ConfigurationError{
			Field: "chunks",
			Reason: fmt.Sprintf(
				"%d chunks over %d snapshot files would leave chunks empty",
				nrChunks, len(nPart),
			),
		}
	}

	total := int64(0)
	for i := range nPart {
		total += nPart[i]
	}

	out := make([]Chunk, 0, nrChunks)
	file := 0
	assigned := int64(0)
	for i := 0; i < nrChunks; i++ {
		chunksLeft := nrChunks - i
		filesLeft := len(nPart) - file

		// Aim each chunk at an equal share of the remaining particles,
		// but never eat so many files that a later chunk goes empty.
		target := (total - assigned) / int64(chunksLeft)

		c := Chunk{ID: i, FirstFile: file}
		for file < len(nPart) {
			if filesLeft <= chunksLeft-1 {
				break
			}
			if chunksLeft > 1 && c.NPart >= target && c.Files() > 0 {
				break
			}
			c.NPart += nPart[file]
			file++
			filesLeft--
			c.LastFile = file
		}

		assigned += c.NPart
		out = append(out, c)
	}

	// The loop structure guarantees full coverage, but this is the
	// pipeline's core invariant, so check it anyway.
	if out[len(out)-1].LastFile != len(nPart) {
		panic(fmt.Sprintf(
			"chunk plan dropped files: covered %d of %d",
			out[len(out)-1].LastFile, len(nPart),
		))
	}

	return out, nil
}
