package halo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/phil-mansfield/haloprops/box"
	"github.com/phil-mansfield/haloprops/io/catalogue"
	"github.com/phil-mansfield/haloprops/io/membership"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// InconsistentAssignmentError means membership data pointed particles at
// more than one halo missing from the catalogue within a single chunk.
// A single unknown halo is treated as an isolated glitch: its particles
// are skipped with a warning. Two or more mean catalogue and membership
// files disagree structurally, and the chunk is not salvageable.
type InconsistentAssignmentError struct {
	HaloIDs []int64
}

func (e *InconsistentAssignmentError) Error() string {
	return fmt.Sprintf(
		"particles claim membership in %d halos missing from the catalogue: %v",
		len(e.HaloIDs), e.HaloIDs,
	)
}

// Aggregator reduces the particles of one chunk into an AccumulatorSet.
// It is stateless between chunks and safe to share across workers.
type Aggregator struct {
	cat *catalogue.Catalogue
	log *zap.Logger
}

// NewAggregator creates an aggregator against a fixed catalogue.
func NewAggregator(cat *catalogue.Catalogue, log *zap.Logger) *Aggregator {
	return &Aggregator{cat: cat, log: log}
}

// NewSet creates an empty accumulator set sized to the catalogue.
func (ag *Aggregator) NewSet() *AccumulatorSet {
	return NewAccumulatorSet(ag.cat.NHalos())
}

// AddMembership accumulates one shard's particles using the halo finder's
// membership data. Particles whose halo is missing from the catalogue are
// skipped with a warning and counted into set.Skipped; the unknown halo
// ids are remembered on the set and checked by CheckAssignments once the
// chunk is complete.
func (ag *Aggregator) AddMembership(
	set *AccumulatorSet,
	parts []*snapshot.Particles, mem *membership.File, extra *membership.File,
) {
	for _, p := range parts {
		for i := 0; i < p.N(); i++ {
			hid := mem.Lookup(p.ID[i])
			if hid == membership.Unbound {
				continue
			}

			row, ok := ag.cat.Row(hid)
			if !ok {
				if set.noteUnknown(hid) {
					ag.log.Warn("particle assigned to unknown halo",
						zap.Int64("halo_id", hid),
						zap.Int64("particle_id", p.ID[i]),
					)
				}
				set.Skipped++
				continue
			}

			ag.accumulate(set, row, p, i, extra)
		}
	}
}

// CheckAssignments returns an error if the chunk's unknown halos are not
// isolated to a single id. One unknown halo is a skippable glitch, more
// than one means the membership files do not match the catalogue.
func (ag *Aggregator) CheckAssignments(set *AccumulatorSet) error {
	if len(set.unknown) > 1 {
		return &InconsistentAssignmentError{HaloIDs: set.unknown}
	}
	return nil
}

// AddSpatial accumulates one shard's particles by geometry alone: a
// particle is assigned to every halo whose search sphere contains it.
// This is the fallback when no membership files exist.
func (ag *Aggregator) AddSpatial(
	set *AccumulatorSet, parts []*snapshot.Particles, extra *membership.File,
	hd *snapshot.Header,
) {
	for _, p := range parts {
		if p.N() == 0 {
			continue
		}

		x := make([][3]float64, p.N())
		for i := range x {
			for d := 0; d < 3; d++ {
				x[i][d] = box.Wrap(float64(p.X[i][d]), hd.L)
			}
		}

		finder := box.NewFinder(hd.L, x)
		for row := 0; row < ag.cat.NHalos(); row++ {
			idx := finder.Find(ag.cat.CofP[row], ag.cat.SearchRadius[row])
			for _, i := range idx {
				ag.accumulate(set, row, p, i, extra)
			}
		}
	}
}

// accumulate adds particle i of p to the accumulator at row.
func (ag *Aggregator) accumulate(
	set *AccumulatorSet, row int, p *snapshot.Particles, i int,
	extra *membership.File,
) {
	acc := &set.Acc[row]
	m := float64(p.Mp[i])

	x := [3]float64{
		float64(p.X[i][0]), float64(p.X[i][1]), float64(p.X[i][2]),
	}
	d := box.Displacement(x, ag.cat.CofP[row], ag.cat.BoxSize)
	r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]

	acc.NPart++
	acc.NPartS[p.Species]++
	acc.M.Add(m)
	acc.MS[p.Species].Add(m)

	rs := ag.cat.SearchRadius[row]
	if r2 <= rs*rs {
		acc.NWithin++
		acc.MWithin.Add(m)
	}

	acc.XM.Add([3]float64{m * d[0], m * d[1], m * d[2]})
	acc.VM.Add([3]float64{
		m * float64(p.V[i][0]), m * float64(p.V[i][1]), m * float64(p.V[i][2]),
	})

	if extra != nil {
		if val, ok := extra.LookupExtra(p.ID[i]); ok {
			acc.ExtraM.Add(m * float64(val))
			acc.MExtra.Add(m)
		}
	} else if p.Extra != nil {
		acc.ExtraM.Add(m * float64(p.Extra[i]))
		acc.MExtra.Add(m)
	}
}
