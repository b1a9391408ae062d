/*package catalogue reads and writes the halo catalogue: one record per
halo with its centre of potential, centre of mass, characteristic radius
and host linkage. The catalogue fixes the row order of the final property
table, so downstream consumers can join by position.*/
package catalogue

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/phil-mansfield/haloprops/box"
	"github.com/phil-mansfield/haloprops/io/blockfile"
)

const (
	// Magic is the first word of a catalogue file ("HCAT").
	Magic   = 0x54414348
	Version = 1
)

// searchRadiusPad is the fractional padding applied to each halo's
// characteristic radius. The characteristic radius is measured about the
// centre of mass, but aggregation happens about the centre of potential,
// so the sphere must grow by the offset between the two plus a little
// slack for particles right at the edge.
const searchRadiusPad = 1.01

// MissingCatalogueError means the catalogue could not be opened at all.
// There is no fallback: without a catalogue there are no halos to
// aggregate into.
type MissingCatalogueError struct {
	Path string
	Err  error
}

func (e *MissingCatalogueError) Error() string {
	return fmt.Sprintf("could not open halo catalogue %s: %s", e.Path, e.Err)
}

func (e *MissingCatalogueError) Unwrap() error { return e.Err }

// fileHeader is the fixed-width on-disk header.
type fileHeader struct {
	Magic, Version uint32
	NHalos         int64
	BoxSize        float64
}

// Catalogue holds every halo of one snapshot. All slices have one element
// per halo, in file order. Catalogues are immutable inputs: nothing in the
// pipeline writes to these arrays after Read returns.
type Catalogue struct {
	BoxSize float64

	ID     []int64
	HostID []int64 // -1 for central halos
	CofP   [][3]float64
	CofM   [][3]float64
	RSize  []float64

	// SearchRadius is the radius about CofP that bounds each halo's
	// particle assignment; derived, not stored on disk.
	SearchRadius []float64
	// ReadRadius is SearchRadius with the configured floor applied; it is
	// the radius worth reading particles within.
	ReadRadius []float64

	rows map[int64]int
}

// NHalos returns the number of halos in the catalogue.
func (c *Catalogue) NHalos() int { return len(c.ID) }

// Row returns the row of the halo with the given id.
func (c *Catalogue) Row(id int64) (int, bool) {
	i, ok := c.rows[id]
	return i, ok
}

// New assembles a catalogue from in-memory columns, derives its radii and
// builds the id index. Used by conversion tooling and tests; pipeline runs
// load catalogues with Read.
func New(
	boxSize float64, id, hostID []int64, cofP, cofM [][3]float64,
	rSize []float64, minReadRadius float64,
) (*Catalogue, error) {
	c := &Catalogue{
		BoxSize: boxSize,
		ID: id, HostID: hostID, CofP: cofP, CofM: cofM, RSize: rSize,
	}

	n := len(id)
	if len(hostID) != n || len(cofP) != n || len(cofM) != n ||
		len(rSize) != n {
		return nil, errors.Errorf(
			"catalogue columns have mismatched lengths: %d, %d, %d, %d, %d",
			n, len(hostID), len(cofP), len(cofM), len(rSize),
		)
	}

	c.rows = make(map[int64]int, n)
	for i := range c.ID {
		if _, ok := c.rows[c.ID[i]]; ok {
			return nil, errors.Errorf("halo id %d appears twice", c.ID[i])
		}
		c.rows[c.ID[i]] = i
	}

	c.deriveRadii(minReadRadius)
	return c, nil
}

// Read loads a catalogue and derives per-halo search radii. minReadRadius
// is the floor on the read radius, in the same length units as the file.
func Read(fname string, minReadRadius float64) (*Catalogue, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, &MissingCatalogueError{Path: fname, Err: err}
	}
	defer f.Close()

	fh := &fileHeader{}
	if err := binary.Read(f, blockfile.Order, fh); err != nil {
		return nil, errors.Wrapf(err, "could not read header of %s", fname)
	}
	if fh.Magic != Magic {
		return nil, errors.Errorf("%s is not a halo catalogue", fname)
	}
	if fh.Version != Version {
		return nil, errors.Errorf(
			"%s has format version %d, but this reader is version %d",
			fname, fh.Version, Version,
		)
	}

	n := fh.NHalos
	c := &Catalogue{
		BoxSize: fh.BoxSize,
		ID:      make([]int64, n),
		HostID:  make([]int64, n),
		CofP:    make([][3]float64, n),
		CofM:    make([][3]float64, n),
		RSize:   make([]float64, n),
	}

	cols := []interface{}{c.ID, c.HostID, c.CofP, c.CofM, c.RSize}
	for i := range cols {
		if err := binary.Read(f, blockfile.Order, cols[i]); err != nil {
			return nil, errors.Wrapf(err, "could not read column %d of %s",
				i, fname)
		}
	}

	out, err := New(fh.BoxSize, c.ID, c.HostID, c.CofP, c.CofM, c.RSize,
		minReadRadius)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", fname)
	}
	return out, nil
}

// deriveRadii computes each halo's search and read radius. The search
// sphere about the centre of potential must contain everything within
// RSize of the centre of mass, so it is padded by the periodic distance
// between the two centres.
func (c *Catalogue) deriveRadii(minReadRadius float64) {
	c.SearchRadius = make([]float64, c.NHalos())
	c.ReadRadius = make([]float64, c.NHalos())

	for i := range c.SearchRadius {
		dist := box.Distance(c.CofP[i], c.CofM[i], c.BoxSize)
		c.SearchRadius[i] = searchRadiusPad*c.RSize[i] + dist

		c.ReadRadius[i] = c.SearchRadius[i]
		if c.ReadRadius[i] < minReadRadius {
			c.ReadRadius[i] = minReadRadius
		}
	}
}

// Write serializes a catalogue. Only used by conversion tooling and tests;
// production catalogues come from the halo finder.
func Write(fname string, c *Catalogue) error {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrapf(err, "could not create catalogue %s", fname)
	}
	defer f.Close()

	fh := &fileHeader{
		Magic: Magic, Version: Version,
		NHalos: int64(c.NHalos()), BoxSize: c.BoxSize,
	}
	if err := binary.Write(f, blockfile.Order, fh); err != nil {
		return errors.Wrapf(err, "could not write header of %s", fname)
	}

	cols := []interface{}{c.ID, c.HostID, c.CofP, c.CofM, c.RSize}
	for i := range cols {
		if err := binary.Write(f, blockfile.Order, cols[i]); err != nil {
			return errors.Wrapf(err, "could not write column %d of %s",
				i, fname)
		}
	}

	return f.Sync()
}
