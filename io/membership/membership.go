/*package membership reads and writes the auxiliary group membership
shards: per-particle halo assignments produced by the halo finder, sharded
the same way as the snapshot. Membership files are optional collaborators;
when they are absent, halo membership falls back to the catalogue's search
spheres. Shards may also carry one extra per-particle scalar (e.g. a
temperature), joined to snapshot particles by global particle index.*/
package membership

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/phil-mansfield/haloprops/io/blockfile"
)

const (
	// Magic is the first word of a membership shard ("HMEM").
	Magic   = 0x4d454d48
	Version = 1
)

// Unbound marks a particle that belongs to no halo.
const Unbound int64 = -1

// Block kinds within a membership shard.
const (
	KindID int32 = iota
	KindHaloID
	KindExtra
)

type fileHeader struct {
	Magic, Version uint32
	FileNr         int64
	NPart          int64
	NBlocks        int64
}

// File is one loaded membership shard. Extra is nil when the shard carries
// no extra scalar.
type File struct {
	FileNr int64
	ID     []int64
	HaloID []int64
	Extra  []float32

	rows map[int64]int
}

// Lookup returns the halo id of the particle with the given global index,
// or Unbound if the shard does not list it.
func (mf *File) Lookup(id int64) int64 {
	i, ok := mf.rows[id]
	if !ok {
		return Unbound
	}
	return mf.HaloID[i]
}

// LookupExtra returns the extra scalar of the given particle. ok is false
// if the shard has no extra block or does not list the particle.
func (mf *File) LookupExtra(id int64) (float32, bool) {
	if mf.Extra == nil {
		return 0, false
	}
	i, ok := mf.rows[id]
	if !ok {
		return 0, false
	}
	return mf.Extra[i], true
}

// New assembles a membership shard's contents in memory. Used by
// conversion tooling and tests; pipeline runs load shards with Open.
func New(fileNr int64, id, haloID []int64, extra []float32) (*File, error) {
	if len(id) != len(haloID) {
		return nil, errors.Errorf(
			"%d particle ids but %d halo ids", len(id), len(haloID),
		)
	}
	if extra != nil && len(extra) != len(id) {
		return nil, errors.Errorf(
			"%d particle ids but %d extra values", len(id), len(extra),
		)
	}

	mf := &File{FileNr: fileNr, ID: id, HaloID: haloID, Extra: extra}
	mf.rows = make(map[int64]int, len(id))
	for i := range id {
		mf.rows[id[i]] = i
	}
	return mf, nil
}

// Open loads one membership shard in full. Membership shards are small
// relative to the snapshot (two ints per particle), so there is no lazy
// path here.
func Open(fname string) (*File, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open membership shard %s",
			fname)
	}
	defer f.Close()

	fh := &fileHeader{}
	if err := binary.Read(f, blockfile.Order, fh); err != nil {
		return nil, errors.Wrapf(err, "could not read header of %s", fname)
	}
	if fh.Magic != Magic {
		return nil, errors.Errorf("%s is not a membership shard", fname)
	}
	if fh.Version != Version {
		return nil, errors.Errorf(
			"%s has format version %d, but this reader is version %d",
			fname, fh.Version, Version,
		)
	}

	entries := make([]blockfile.Entry, fh.NBlocks)
	if err := binary.Read(f, blockfile.Order, entries); err != nil {
		return nil, errors.Wrapf(err, "could not read block table of %s", fname)
	}

	mf := &File{FileNr: fh.FileNr}
	for _, e := range entries {
		switch e.Kind {
		case KindID:
			mf.ID = make([]int64, e.RawLen/8)
			err = blockfile.Read(f, e, mf.ID)
		case KindHaloID:
			mf.HaloID = make([]int64, e.RawLen/8)
			err = blockfile.Read(f, e, mf.HaloID)
		case KindExtra:
			mf.Extra = make([]float32, e.RawLen/4)
			err = blockfile.Read(f, e, mf.Extra)
		default:
			err = errors.Errorf("unknown block kind %d", e.Kind)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s", fname)
		}
	}

	out, err := New(fh.FileNr, mf.ID, mf.HaloID, mf.Extra)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", fname)
	}
	return out, nil
}

// Write serializes one membership shard. extra may be nil.
func Write(fname string, fileNr int64, id, haloID []int64, extra []float32) error {
	if len(id) != len(haloID) {
		return errors.Errorf(
			"%d particle ids but %d halo ids", len(id), len(haloID),
		)
	}
	if extra != nil && len(extra) != len(id) {
		return errors.Errorf(
			"%d particle ids but %d extra values", len(id), len(extra),
		)
	}

	type block struct {
		kind int32
		data interface{}
	}
	blocks := []block{{KindID, id}, {KindHaloID, haloID}}
	if extra != nil {
		blocks = append(blocks, block{KindExtra, extra})
	}

	comp := make([][]byte, len(blocks))
	entries := make([]blockfile.Entry, len(blocks))
	offset := int64(binary.Size(fileHeader{})) +
		blockfile.EntrySize*int64(len(blocks))
	for i := range blocks {
		var err error
		var e blockfile.Entry
		comp[i], e, err = blockfile.Encode(0, blocks[i].kind, blocks[i].data)
		if err != nil {
			return err
		}
		e.Offset = offset
		offset += e.CompressedLen
		entries[i] = e
	}

	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrapf(err, "could not create membership shard %s", fname)
	}
	defer f.Close()

	fh := &fileHeader{
		Magic: Magic, Version: Version,
		FileNr: fileNr, NPart: int64(len(id)), NBlocks: int64(len(blocks)),
	}
	if err := binary.Write(f, blockfile.Order, fh); err != nil {
		return errors.Wrapf(err, "could not write header of %s", fname)
	}
	if err := binary.Write(f, blockfile.Order, entries); err != nil {
		return errors.Wrapf(err, "could not write block table of %s", fname)
	}
	for i := range comp {
		if _, err := f.Write(comp[i]); err != nil {
			return errors.Wrapf(err, "could not write block to %s", fname)
		}
	}

	return f.Sync()
}
