package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJunk(fname string) error {
	junk := make([]byte, 256)
	for i := range junk {
		junk[i] = byte(i)
	}
	return os.WriteFile(fname, junk, 0666)
}

func testHeader(fileNr, nFiles, nPart, nTot int64) *Header {
	return &Header{
		Scale: 1.0, OmegaM: 0.3, OmegaL: 0.7, H100: 0.7, L: 100.0,
		FileNr: fileNr, NFiles: nFiles, NPart: nPart, NPartTotal: nTot,
	}
}

func testParticles(s Species, firstID int64, n int) *Particles {
	p := &Particles{
		Species: s,
		ID:      make([]int64, n),
		X:       make([][3]float32, n),
		V:       make([][3]float32, n),
		Mp:      make([]float32, n),
	}
	for i := 0; i < n; i++ {
		p.ID[i] = firstID + int64(i)
		p.X[i] = [3]float32{float32(i), float32(2 * i), float32(3 * i)}
		p.V[i] = [3]float32{-float32(i), 0, float32(i)}
		p.Mp[i] = 1.5
	}
	return p
}

func writeShard(
	t *testing.T, fname string, hd *Header, parts ...*Particles,
) {
	w := NewWriter(fname, hd)
	for _, p := range parts {
		require.NoError(t, w.Write(p))
	}
	require.NoError(t, w.Close())
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "shard.0.snap")

	dm := testParticles(DarkMatter, 0, 25)
	stars := testParticles(Star, 1000, 4)
	writeShard(t, fname, testHeader(0, 1, 29, 29), dm, stars)

	f, err := Open(fname)
	require.NoError(t, err)
	defer f.Close()

	hd := f.Header()
	require.Equal(t, int64(29), hd.NPart)
	require.Equal(t, 100.0, hd.L)
	require.Equal(t, 0.0, hd.Z)

	require.Equal(t, []Species{DarkMatter, Star}, f.Species())

	got, err := f.Read(DarkMatter)
	require.NoError(t, err)
	require.Equal(t, dm.ID, got.ID)
	require.Equal(t, dm.X, got.X)
	require.Equal(t, dm.V, got.V)
	require.Equal(t, dm.Mp, got.Mp)

	all, err := f.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, stars.ID, all[1].ID)
}

func TestOpenRejectsWrongMagic(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "not_a_shard")
	require.NoError(t, writeJunk(fname))

	_, err := Open(fname)
	require.Error(t, err)
}

func TestMissingSpecies(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "shard.0.snap")
	writeShard(t, fname, testHeader(0, 1, 5, 5), testParticles(DarkMatter, 0, 5))

	f, err := Open(fname)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Read(Gas)
	require.Error(t, err)
}

func TestOpenSet(t *testing.T) {
	dir := t.TempDir()
	pathFor := func(i int) string {
		return filepath.Join(dir, fmt.Sprintf("shard.%d.snap", i))
	}

	counts := []int{10, 7, 3}
	total := int64(20)
	first := int64(0)
	for i, n := range counts {
		hd := testHeader(int64(i), int64(len(counts)), int64(n), total)
		writeShard(t, pathFor(i), hd, testParticles(DarkMatter, first, n))
		first += int64(n)
	}

	set, err := OpenSet(pathFor)
	require.NoError(t, err)
	require.Equal(t, 3, set.Files())
	require.Equal(t, []int64{10, 7, 3}, set.NPart())

	f, err := set.OpenFile(1)
	require.NoError(t, err)
	defer f.Close()
	p, err := f.Read(DarkMatter)
	require.NoError(t, err)
	require.Equal(t, int64(10), p.ID[0])
}

func TestOpenSetInconsistentShards(t *testing.T) {
	dir := t.TempDir()
	pathFor := func(i int) string {
		return filepath.Join(dir, fmt.Sprintf("shard.%d.snap", i))
	}

	writeShard(t, pathFor(0), testHeader(0, 2, 5, 10),
		testParticles(DarkMatter, 0, 5))
	// Wrong file number in the second shard.
	writeShard(t, pathFor(1), testHeader(0, 2, 5, 10),
		testParticles(DarkMatter, 5, 5))

	_, err := OpenSet(pathFor)
	require.Error(t, err)
}
