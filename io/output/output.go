/*package output serializes the final per-halo property table. The table is
column-major (all int64 columns, then all float64 columns) with rows in
catalogue order, so downstream consumers can join against the catalogue by
position. The file is written to a temporary path and renamed into place,
so a crashed or cancelled job never leaves a half-written table behind.*/
package output

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/phil-mansfield/haloprops/io/blockfile"
)

const (
	// Magic is the first word of a property table file ("HPRP").
	Magic   = 0x50525048
	Version = 1
)

// WriteError means the destination could not be created or written. The
// caller prepares the output directory; this package does not create
// directories.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("could not write property table %s: %s", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type fileHeader struct {
	Magic, Version             uint32
	NHalos                     int64
	NIntCols, NFloatCols       int64
	IntNamesLen, FloatNamesLen int64
}

// Table is the full property table. Column i of Ints has name IntNames[i];
// likewise for floats. Every column has NHalos elements.
type Table struct {
	IntNames   []string
	FloatNames []string
	Ints       [][]int64
	Floats     [][]float64
}

// NHalos returns the number of rows.
func (t *Table) NHalos() int {
	if len(t.Ints) > 0 {
		return len(t.Ints[0])
	}
	if len(t.Floats) > 0 {
		return len(t.Floats[0])
	}
	return 0
}

func (t *Table) check() error {
	if len(t.IntNames) != len(t.Ints) {
		return errors.Errorf("%d int names for %d int columns",
			len(t.IntNames), len(t.Ints))
	}
	if len(t.FloatNames) != len(t.Floats) {
		return errors.Errorf("%d float names for %d float columns",
			len(t.FloatNames), len(t.Floats))
	}
	n := t.NHalos()
	for i := range t.Ints {
		if len(t.Ints[i]) != n {
			return errors.Errorf("column %s has %d rows, expected %d",
				t.IntNames[i], len(t.Ints[i]), n)
		}
	}
	for i := range t.Floats {
		if len(t.Floats[i]) != n {
			return errors.Errorf("column %s has %d rows, expected %d",
				t.FloatNames[i], len(t.Floats[i]), n)
		}
	}
	return nil
}

// Write serializes the table to fname atomically.
func Write(fname string, t *Table) error {
	if err := t.check(); err != nil {
		return &WriteError{Path: fname, Err: err}
	}

	tmp := fname + ".tmp"
	if err := writeFile(tmp, t); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: fname, Err: err}
	}
	if err := os.Rename(tmp, fname); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: fname, Err: err}
	}
	return nil
}

func writeFile(fname string, t *Table) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	intNames := []byte(strings.Join(t.IntNames, "\n"))
	floatNames := []byte(strings.Join(t.FloatNames, "\n"))

	fh := &fileHeader{
		Magic: Magic, Version: Version,
		NHalos:   int64(t.NHalos()),
		NIntCols: int64(len(t.Ints)), NFloatCols: int64(len(t.Floats)),
		IntNamesLen: int64(len(intNames)), FloatNamesLen: int64(len(floatNames)),
	}

	if err := binary.Write(f, blockfile.Order, fh); err != nil {
		return err
	}
	if _, err := f.Write(intNames); err != nil {
		return err
	}
	if _, err := f.Write(floatNames); err != nil {
		return err
	}
	for i := range t.Ints {
		if err := binary.Write(f, blockfile.Order, t.Ints[i]); err != nil {
			return err
		}
	}
	for i := range t.Floats {
		if err := binary.Write(f, blockfile.Order, t.Floats[i]); err != nil {
			return err
		}
	}

	return f.Sync()
}

// Read loads a property table back into memory. Used by tests and by
// downstream tooling that post-processes the table.
func Read(fname string) (*Table, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open property table %s", fname)
	}
	defer f.Close()

	fh := &fileHeader{}
	if err := binary.Read(f, blockfile.Order, fh); err != nil {
		return nil, errors.Wrapf(err, "could not read header of %s", fname)
	}
	if fh.Magic != Magic {
		return nil, errors.Errorf("%s is not a property table", fname)
	}
	if fh.Version != Version {
		return nil, errors.Errorf(
			"%s has format version %d, but this reader is version %d",
			fname, fh.Version, Version,
		)
	}

	intNames := make([]byte, fh.IntNamesLen)
	floatNames := make([]byte, fh.FloatNamesLen)
	if err := binary.Read(f, blockfile.Order, intNames); err != nil {
		return nil, errors.Wrapf(err, "could not read column names of %s", fname)
	}
	if err := binary.Read(f, blockfile.Order, floatNames); err != nil {
		return nil, errors.Wrapf(err, "could not read column names of %s", fname)
	}

	t := &Table{
		IntNames:   splitNames(string(intNames)),
		FloatNames: splitNames(string(floatNames)),
		Ints:       make([][]int64, fh.NIntCols),
		Floats:     make([][]float64, fh.NFloatCols),
	}

	for i := range t.Ints {
		t.Ints[i] = make([]int64, fh.NHalos)
		if err := binary.Read(f, blockfile.Order, t.Ints[i]); err != nil {
			return nil, errors.Wrapf(err, "could not read column %s of %s",
				t.IntNames[i], fname)
		}
	}
	for i := range t.Floats {
		t.Floats[i] = make([]float64, fh.NHalos)
		if err := binary.Read(f, blockfile.Order, t.Floats[i]); err != nil {
			return nil, errors.Wrapf(err, "could not read column %s of %s",
				t.FloatNames[i], fname)
		}
	}

	return t, nil
}

func splitNames(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// Float returns the float column with the given name.
func (t *Table) Float(name string) ([]float64, bool) {
	for i := range t.FloatNames {
		if t.FloatNames[i] == name {
			return t.Floats[i], true
		}
	}
	return nil, false
}

// Int returns the int column with the given name.
func (t *Table) Int(name string) ([]int64, bool) {
	for i := range t.IntNames {
		if t.IntNames[i] == name {
			return t.Ints[i], true
		}
	}
	return nil, false
}
