package halo

import (
	"github.com/phil-mansfield/haloprops/box"
	"github.com/phil-mansfield/haloprops/io/catalogue"
	"github.com/phil-mansfield/haloprops/io/output"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// Record is one finalized row of the property table. A halo with no
// assigned particles gets the sentinel record: zero masses and counts,
// zero centre of mass and velocity, and the catalogue's search radius.
type Record struct {
	ID, HostID int64

	NPart   int64
	NPartS  [snapshot.NSpecies]int64
	NWithin int64

	M       float64
	MS      [snapshot.NSpecies]float64
	MWithin float64

	RSearch float64

	// CofM is the mass-weighted centre of the assigned particles, as an
	// absolute position wrapped into the box. VCofM is the mass-weighted
	// mean velocity.
	CofM  [3]float64
	VCofM [3]float64

	// ExtraMean is the mass-weighted mean of the optional extra scalar
	// over the particles that carried one; zero when none did.
	ExtraMean float64
}

// Finalize converts the fully merged accumulator set into records, one per
// catalogue row, in catalogue order. Each accumulator is finalized exactly
// once.
func Finalize(cat *catalogue.Catalogue, set *AccumulatorSet) []Record {
	out := make([]Record, cat.NHalos())

	for i := range out {
		acc := &set.Acc[i]
		r := &out[i]

		r.ID, r.HostID = cat.ID[i], cat.HostID[i]
		r.RSearch = cat.SearchRadius[i]

		r.NPart, r.NWithin = acc.NPart, acc.NWithin
		r.M, r.MWithin = acc.M.Sum, acc.MWithin.Sum
		for s := range r.NPartS {
			r.NPartS[s] = acc.NPartS[s]
			r.MS[s] = acc.MS[s].Sum
		}

		if acc.NPart == 0 || acc.M.Sum == 0 {
			// Sentinel record: zero value everywhere else.
			continue
		}

		d := acc.XM.Vec()
		v := acc.VM.Vec()
		for dim := 0; dim < 3; dim++ {
			r.CofM[dim] = box.Wrap(cat.CofP[i][dim]+d[dim]/acc.M.Sum,
				cat.BoxSize)
			r.VCofM[dim] = v[dim] / acc.M.Sum
		}

		if acc.MExtra.Sum > 0 {
			r.ExtraMean = acc.ExtraM.Sum / acc.MExtra.Sum
		}
	}

	return out
}

// Column names of the property table, in the order Table emits them.
var (
	IntColumns = []string{
		"id", "host_id",
		"n_part", "n_gas", "n_dm", "n_star", "n_bh",
		"n_within_r",
	}
	FloatColumns = []string{
		"m_total", "m_gas", "m_dm", "m_star", "m_bh",
		"m_within_r", "r_search",
		"cofm_x", "cofm_y", "cofm_z",
		"vcom_x", "vcom_y", "vcom_z",
		"extra_mean",
	}
)

// Table lays the records out as an output table with a stable column
// order. Row order matches the record order, which matches the catalogue.
func Table(records []Record) *output.Table {
	n := len(records)
	t := &output.Table{
		IntNames:   IntColumns,
		FloatNames: FloatColumns,
		Ints:       make([][]int64, len(IntColumns)),
		Floats:     make([][]float64, len(FloatColumns)),
	}
	for i := range t.Ints {
		t.Ints[i] = make([]int64, n)
	}
	for i := range t.Floats {
		t.Floats[i] = make([]float64, n)
	}

	for i := range records {
		r := &records[i]

		ints := []int64{
			r.ID, r.HostID,
			r.NPart,
			r.NPartS[snapshot.Gas], r.NPartS[snapshot.DarkMatter],
			r.NPartS[snapshot.Star], r.NPartS[snapshot.BlackHole],
			r.NWithin,
		}
		floats := []float64{
			r.M,
			r.MS[snapshot.Gas], r.MS[snapshot.DarkMatter],
			r.MS[snapshot.Star], r.MS[snapshot.BlackHole],
			r.MWithin, r.RSearch,
			r.CofM[0], r.CofM[1], r.CofM[2],
			r.VCofM[0], r.VCofM[1], r.VCofM[2],
			r.ExtraMean,
		}

		for j := range ints {
			t.Ints[j][i] = ints[j]
		}
		for j := range floats {
			t.Floats[j][i] = floats[j]
		}
	}

	return t
}
