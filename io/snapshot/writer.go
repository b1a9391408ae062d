package snapshot

import (
	"encoding/binary"
	"os"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/phil-mansfield/haloprops/io/blockfile"
)

// Writer creates a single shard file. Blocks are buffered in memory and the
// file is laid out on Close, once the block count is known.
type Writer struct {
	fname   string
	fh      fileHeader
	entries []blockfile.Entry
	blocks  [][]byte
}

// NewWriter creates a writer for shard hd.FileNr of a snapshot described by
// hd. Nothing touches the filesystem until Close.
func NewWriter(fname string, hd *Header) *Writer {
	return &Writer{
		fname: fname,
		fh: fileHeader{
			Magic: Magic, Version: Version,
			FileNr: hd.FileNr, NFiles: hd.NFiles,
			NPart: hd.NPart, NPartTotal: hd.NPartTotal,
			BoxSize: hd.L, ScaleFactor: hd.Scale,
			OmegaM: hd.OmegaM, OmegaL: hd.OmegaL, H100: hd.H100,
		},
	}
}

func (w *Writer) add(species Species, kind int32, data interface{}) error {
	comp, e, err := blockfile.Encode(int32(species), kind, data)
	if err != nil {
		return err
	}
	w.blocks = append(w.blocks, comp)
	w.entries = append(w.entries, e)
	return nil
}

// Write adds the arrays of one species to the shard. Species with zero
// particles should simply not be written.
func (w *Writer) Write(p *Particles) error {
	n := p.N()
	if len(p.X) != n || len(p.V) != n || len(p.Mp) != n {
		return errors.Errorf(
			"%s arrays have mismatched lengths: %d ids, %d x, %d v, %d mp",
			p.Species, n, len(p.X), len(p.V), len(p.Mp),
		)
	}

	if err := w.add(p.Species, KindID, p.ID); err != nil {
		return err
	}
	if err := w.add(p.Species, KindX, p.X); err != nil {
		return err
	}
	if err := w.add(p.Species, KindV, p.V); err != nil {
		return err
	}
	return w.add(p.Species, KindMp, p.Mp)
}

// Close assigns block offsets and writes the shard to disk.
func (w *Writer) Close() error {
	w.fh.NBlocks = int64(len(w.entries))

	offset := int64(unsafe.Sizeof(fileHeader{})) +
		blockfile.EntrySize*int64(len(w.entries))
	for i := range w.entries {
		w.entries[i].Offset = offset
		offset += w.entries[i].CompressedLen
	}

	f, err := os.Create(w.fname)
	if err != nil {
		return errors.Wrapf(err, "could not create shard %s", w.fname)
	}
	defer f.Close()

	if err := binary.Write(f, blockfile.Order, &w.fh); err != nil {
		return errors.Wrapf(err, "could not write header of %s", w.fname)
	}
	if err := binary.Write(f, blockfile.Order, w.entries); err != nil {
		return errors.Wrapf(err, "could not write block table of %s", w.fname)
	}
	for i := range w.blocks {
		if _, err := f.Write(w.blocks[i]); err != nil {
			return errors.Wrapf(err, "could not write block to %s", w.fname)
		}
	}

	return f.Sync()
}
