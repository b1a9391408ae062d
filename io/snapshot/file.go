package snapshot

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/phil-mansfield/haloprops/io/blockfile"
)

const (
	// Magic is the first word of every snapshot shard ("HPSN").
	Magic   = 0x4e535048
	Version = 1
)

// fileHeader is the fixed-width on-disk header of a shard file.
type fileHeader struct {
	Magic, Version uint32
	FileNr, NFiles int64
	NPart          int64
	NPartTotal     int64
	NBlocks        int64
	BoxSize        float64
	ScaleFactor    float64
	OmegaM         float64
	OmegaL         float64
	H100           float64
}

func (fh *fileHeader) convert() *Header {
	hd := &Header{}
	hd.Scale = fh.ScaleFactor
	if fh.ScaleFactor > 0 {
		hd.Z = 1/fh.ScaleFactor - 1
	}
	hd.OmegaM, hd.OmegaL, hd.H100 = fh.OmegaM, fh.OmegaL, fh.H100
	hd.L = fh.BoxSize
	hd.FileNr, hd.NFiles = fh.FileNr, fh.NFiles
	hd.NPart, hd.NPartTotal = fh.NPart, fh.NPartTotal
	return hd
}

// File is an open shard file. Reads are lazy: Open only parses the header
// and block table, particle blocks are read on demand.
type File struct {
	fname   string
	f       *os.File
	hd      Header
	entries []blockfile.Entry
}

// Open opens a single shard file and parses its header and block table.
func Open(fname string) (*File, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open shard %s", fname)
	}

	fh := &fileHeader{}
	if err := binary.Read(f, blockfile.Order, fh); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not read header of %s", fname)
	}
	if fh.Magic != Magic {
		f.Close()
		return nil, errors.Errorf("%s is not a snapshot shard", fname)
	}
	if fh.Version != Version {
		f.Close()
		return nil, errors.Errorf(
			"%s has format version %d, but this reader is version %d",
			fname, fh.Version, Version,
		)
	}

	entries := make([]blockfile.Entry, fh.NBlocks)
	if err := binary.Read(f, blockfile.Order, entries); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not read block table of %s", fname)
	}

	return &File{fname: fname, f: f, hd: *fh.convert(), entries: entries}, nil
}

// Close closes the underlying file handle.
func (file *File) Close() error { return file.f.Close() }

// Header returns the shard's header.
func (file *File) Header() *Header { return &file.hd }

// Species returns the species that have at least one block in this shard.
// Species with no particles are not written, matching simulation outputs
// where e.g. DMO runs carry no gas.
func (file *File) Species() []Species {
	seen := [NSpecies]bool{}
	out := []Species{}
	for i := range file.entries {
		s := Species(file.entries[i].Species)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (file *File) entry(s Species, kind int32) (blockfile.Entry, bool) {
	for i := range file.entries {
		e := file.entries[i]
		if Species(e.Species) == s && e.Kind == kind {
			return e, true
		}
	}
	return blockfile.Entry{}, false
}

func (file *File) blockLen(e blockfile.Entry, elemSize int64) int {
	return int(e.RawLen / elemSize)
}

// ReadID reads the particle IDs of species s.
func (file *File) ReadID(s Species) ([]int64, error) {
	e, ok := file.entry(s, KindID)
	if !ok {
		return nil, errors.Errorf("%s has no %s id block", file.fname, s)
	}
	out := make([]int64, file.blockLen(e, 8))
	if err := blockfile.Read(file.f, e, out); err != nil {
		return nil, errors.Wrapf(err, "%s, %s ids", file.fname, s)
	}
	return out, nil
}

// ReadX reads the positions of species s.
func (file *File) ReadX(s Species) ([][3]float32, error) {
	e, ok := file.entry(s, KindX)
	if !ok {
		return nil, errors.Errorf("%s has no %s position block", file.fname, s)
	}
	out := make([][3]float32, file.blockLen(e, 12))
	if err := blockfile.Read(file.f, e, out); err != nil {
		return nil, errors.Wrapf(err, "%s, %s positions", file.fname, s)
	}
	return out, nil
}

// ReadV reads the velocities of species s.
func (file *File) ReadV(s Species) ([][3]float32, error) {
	e, ok := file.entry(s, KindV)
	if !ok {
		return nil, errors.Errorf("%s has no %s velocity block", file.fname, s)
	}
	out := make([][3]float32, file.blockLen(e, 12))
	if err := blockfile.Read(file.f, e, out); err != nil {
		return nil, errors.Wrapf(err, "%s, %s velocities", file.fname, s)
	}
	return out, nil
}

// ReadMp reads the particle masses of species s.
func (file *File) ReadMp(s Species) ([]float32, error) {
	e, ok := file.entry(s, KindMp)
	if !ok {
		return nil, errors.Errorf("%s has no %s mass block", file.fname, s)
	}
	out := make([]float32, file.blockLen(e, 4))
	if err := blockfile.Read(file.f, e, out); err != nil {
		return nil, errors.Wrapf(err, "%s, %s masses", file.fname, s)
	}
	return out, nil
}

// Read reads every array of species s.
func (file *File) Read(s Species) (*Particles, error) {
	p := &Particles{Species: s}
	var err error
	if p.ID, err = file.ReadID(s); err != nil {
		return nil, err
	}
	if p.X, err = file.ReadX(s); err != nil {
		return nil, err
	}
	if p.V, err = file.ReadV(s); err != nil {
		return nil, err
	}
	if p.Mp, err = file.ReadMp(s); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadAll reads every species present in the shard.
func (file *File) ReadAll() ([]*Particles, error) {
	species := file.Species()
	out := make([]*Particles, 0, len(species))
	for _, s := range species {
		p, err := file.Read(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
