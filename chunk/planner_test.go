package chunk

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/haloprops/config"
)

// requireCovers checks the core invariant: every file in exactly one chunk,
// in order, with no gaps.
func requireCovers(t *testing.T, chunks []Chunk, nFiles int) {
	t.Helper()
	require.NotEmpty(t, chunks)
	require.Equal(t, 0, chunks[0].FirstFile)
	for i := range chunks {
		require.Equal(t, i, chunks[i].ID)
		require.Greater(t, chunks[i].Files(), 0,
			"chunk %d is empty", i)
		if i > 0 {
			require.Equal(t, chunks[i-1].LastFile, chunks[i].FirstFile)
		}
	}
	require.Equal(t, nFiles, chunks[len(chunks)-1].LastFile)
}

func TestPlanCoverage(t *testing.T) {
	rand.Seed(7)

	for _, nFiles := range []int{1, 2, 5, 16, 100} {
		nPart := make([]int64, nFiles)
		for i := range nPart {
			nPart[i] = int64(rand.Intn(10000))
		}

		for nrChunks := 1; nrChunks <= nFiles; nrChunks++ {
			chunks, err := Plan(nPart, nrChunks)
			require.NoError(t, err)
			require.Len(t, chunks, nrChunks)
			requireCovers(t, chunks, nFiles)

			total := int64(0)
			planned := int64(0)
			for i := range nPart {
				total += nPart[i]
			}
			for i := range chunks {
				planned += chunks[i].NPart
			}
			require.Equal(t, total, planned,
				"nFiles=%d nrChunks=%d", nFiles, nrChunks)
		}
	}
}

func TestPlanBalances(t *testing.T) {
	// Uniform shards should split almost perfectly.
	nPart := make([]int64, 100)
	for i := range nPart {
		nPart[i] = 1000
	}

	chunks, err := Plan(nPart, 4)
	require.NoError(t, err)
	for i := range chunks {
		require.Equal(t, int64(25000), chunks[i].NPart)
	}
}

func TestPlanEmptyTrailingShards(t *testing.T) {
	nPart := []int64{1000, 1000, 0, 0, 0}
	chunks, err := Plan(nPart, 2)
	require.NoError(t, err)
	requireCovers(t, chunks, 5)
}

func TestPlanErrors(t *testing.T) {
	nPart := []int64{10, 10}

	for _, nrChunks := range []int{0, -1, 3} {
		_, err := Plan(nPart, nrChunks)
		require.Error(t, err, "nrChunks = %d", nrChunks)

		confErr := &config.ConfigurationError{}
		require.True(t, errors.As(err, &confErr))
		require.Equal(t, "chunks", confErr.Field)
	}
}
