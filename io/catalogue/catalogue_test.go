package catalogue

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testCatalogue() *Catalogue {
	return &Catalogue{
		BoxSize: 100.0,
		ID:      []int64{10, 20, 30},
		HostID:  []int64{-1, -1, 10},
		CofP: [][3]float64{
			{50, 50, 50},
			{99, 1, 50}, // near the periodic wrap
			{10, 10, 10},
		},
		CofM: [][3]float64{
			{50, 50, 50},
			{1, 99, 50}, // 2 away from CofP in x and y, through the wrap
			{10, 10, 11},
		},
		RSize: []float64{2.0, 1.0, 0.5},
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "halo.cat")

	in := testCatalogue()
	require.NoError(t, Write(fname, in))

	c, err := Read(fname, 0.0)
	require.NoError(t, err)

	require.Equal(t, in.ID, c.ID)
	require.Equal(t, in.HostID, c.HostID)
	require.Equal(t, in.CofP, c.CofP)
	require.Equal(t, in.CofM, c.CofM)
	require.Equal(t, in.RSize, c.RSize)
	require.Equal(t, 100.0, c.BoxSize)

	row, ok := c.Row(20)
	require.True(t, ok)
	require.Equal(t, 1, row)
	_, ok = c.Row(999)
	require.False(t, ok)
}

func TestSearchRadii(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "halo.cat")
	require.NoError(t, Write(fname, testCatalogue()))

	c, err := Read(fname, 0.0)
	require.NoError(t, err)

	// Halo 0: centres coincide, so the search radius is just the padded
	// characteristic radius.
	require.InDelta(t, 1.01*2.0, c.SearchRadius[0], 1e-12)

	// Halo 1: centres are offset by sqrt(8) through the periodic wrap.
	require.InDelta(t, 1.01*1.0+math.Sqrt(8), c.SearchRadius[1], 1e-12)

	// Halo 2: plain offset of 1.
	require.InDelta(t, 1.01*0.5+1.0, c.SearchRadius[2], 1e-12)
}

func TestReadRadiusFloor(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "halo.cat")
	require.NoError(t, Write(fname, testCatalogue()))

	c, err := Read(fname, 5.0)
	require.NoError(t, err)

	for i := range c.ReadRadius {
		require.GreaterOrEqual(t, c.ReadRadius[i], 5.0)
		require.GreaterOrEqual(t, c.ReadRadius[i], c.SearchRadius[i])
	}
	// The floor never shrinks the search radius itself.
	require.InDelta(t, 1.01*2.0, c.SearchRadius[0], 1e-12)
}

func TestMissingCatalogue(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "no_such.cat"), 0.0)
	require.Error(t, err)

	missing := &MissingCatalogueError{}
	require.True(t, errors.As(err, &missing))
	require.Contains(t, missing.Path, "no_such.cat")
}

func TestDuplicateIDsRejected(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "halo.cat")

	c := testCatalogue()
	c.ID[2] = c.ID[0]
	require.NoError(t, Write(fname, c))

	_, err := Read(fname, 0.0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "twice")
}
