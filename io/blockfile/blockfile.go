/*package blockfile implements the compressed data blocks shared by the
snapshot and membership shard formats: little-endian arrays, snappy
compressed, with an xxhash checksum over the compressed bytes so corrupt
reads fail loudly instead of producing garbage physics.*/
package blockfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

var (
	// Order is the byte order of every on-disk structure.
	Order = binary.LittleEndian
)

// Entry locates and describes one block within a shard file. Entries are
// written as a fixed-width table directly after the file header.
type Entry struct {
	Species       int32
	Kind          int32
	Offset        int64
	CompressedLen int64
	RawLen        int64
	Checksum      uint64
}

// EntrySize is the on-disk size of an Entry in bytes.
const EntrySize = 40

// Encode serializes data (a fixed-width slice, e.g. []int64 or
// [][3]float32), compresses it, and returns the compressed bytes along with
// a partially filled Entry. The caller sets Offset once it knows where the
// block lands.
func Encode(species, kind int32, data interface{}) ([]byte, Entry, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, Order, data); err != nil {
		return nil, Entry{}, errors.Wrap(err, "could not encode block")
	}

	comp := snappy.Encode(nil, buf.Bytes())
	e := Entry{
		Species:       species,
		Kind:          kind,
		CompressedLen: int64(len(comp)),
		RawLen:        int64(buf.Len()),
		Checksum:      xxhash.Sum64(comp),
	}
	return comp, e, nil
}

// Read reads the block described by e from r, verifies its checksum and
// length, and decodes it into out, which must be a fixed-width slice of the
// same type and length the block was written with.
func Read(r io.ReadSeeker, e Entry, out interface{}) error {
	if _, err := r.Seek(e.Offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "could not seek to block")
	}

	comp := make([]byte, e.CompressedLen)
	if _, err := io.ReadFull(r, comp); err != nil {
		return errors.Wrap(err, "could not read block")
	}

	if sum := xxhash.Sum64(comp); sum != e.Checksum {
		return errors.Errorf(
			"block checksum mismatch: file has %x, data hashes to %x",
			e.Checksum, sum,
		)
	}

	raw, err := snappy.Decode(nil, comp)
	if err != nil {
		return errors.Wrap(err, "could not decompress block")
	}
	if int64(len(raw)) != e.RawLen {
		return errors.Errorf(
			"block length mismatch: header says %d bytes, block has %d",
			e.RawLen, len(raw),
		)
	}

	if err := binary.Read(bytes.NewReader(raw), Order, out); err != nil {
		return errors.Wrap(err, "could not decode block")
	}
	return nil
}
