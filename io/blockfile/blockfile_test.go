package blockfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeReadRoundTrip(t *testing.T) {
	ids := []int64{5, -1, 1 << 40, 0}
	comp, e, err := Encode(1, 2, ids)
	require.NoError(t, err)
	require.Equal(t, int32(1), e.Species)
	require.Equal(t, int32(2), e.Kind)
	require.Equal(t, int64(len(comp)), e.CompressedLen)
	require.Equal(t, int64(8*len(ids)), e.RawLen)

	e.Offset = 0
	out := make([]int64, len(ids))
	require.NoError(t, Read(bytes.NewReader(comp), e, out))
	require.Equal(t, ids, out)
}

func TestReadVectors(t *testing.T) {
	x := [][3]float32{{1, 2, 3}, {-4, 5, -6}}
	comp, e, err := Encode(0, 0, x)
	require.NoError(t, err)

	e.Offset = 0
	out := make([][3]float32, len(x))
	require.NoError(t, Read(bytes.NewReader(comp), e, out))
	require.Equal(t, x, out)
}

func TestReadDetectsCorruption(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	comp, e, err := Encode(0, 0, ids)
	require.NoError(t, err)

	comp[len(comp)-1] ^= 0xff

	e.Offset = 0
	out := make([]int64, len(ids))
	err = Read(bytes.NewReader(comp), e, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum")
}

func TestReadDetectsTruncation(t *testing.T) {
	ids := []int64{1, 2, 3, 4}
	comp, e, err := Encode(0, 0, ids)
	require.NoError(t, err)

	e.Offset = 0
	e.CompressedLen += 10
	out := make([]int64, len(ids))
	require.Error(t, Read(bytes.NewReader(comp), e, out))
}
