/*package halo computes per-halo physical properties by reducing particle
data into mergeable accumulators. Each chunk of the snapshot produces one
AccumulatorSet; the coordinator merges them in whatever order chunks
finish, which is safe because the merge is commutative and associative up
to floating point tolerance.*/
package halo

import (
	"fmt"

	"github.com/phil-mansfield/haloprops/array"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

// Accumulator is the in-progress reduction state for one halo. All sums
// are compensated: halo particle counts can be large enough that naive
// summation visibly loses mass.
type Accumulator struct {
	NPart   int64
	NPartS  [snapshot.NSpecies]int64
	NWithin int64 // particles within the search radius

	M       array.KahanSum // total assigned mass
	MS      [snapshot.NSpecies]array.KahanSum
	MWithin array.KahanSum // mass within the search radius

	// Mass-weighted displacement from the centre of potential and
	// mass-weighted velocity. Divided by M at finalization.
	XM array.KahanVec
	VM array.KahanVec

	// Mass-weighted sum of the optional extra scalar, and the mass of the
	// particles that carried it.
	ExtraM array.KahanSum
	MExtra array.KahanSum
}

// Merge folds another halo's partial reduction into a. Both must describe
// the same halo.
func (a *Accumulator) Merge(b *Accumulator) {
	a.NPart += b.NPart
	for s := range a.NPartS {
		a.NPartS[s] += b.NPartS[s]
		a.MS[s].AddSum(&b.MS[s])
	}
	a.NWithin += b.NWithin

	a.M.AddSum(&b.M)
	a.MWithin.AddSum(&b.MWithin)
	a.XM.AddVec(&b.XM)
	a.VM.AddVec(&b.VM)
	a.ExtraM.AddSum(&b.ExtraM)
	a.MExtra.AddSum(&b.MExtra)
}

// AccumulatorSet holds one accumulator per catalogue row, plus the chunk's
// bookkeeping about particles that could not be assigned.
type AccumulatorSet struct {
	Acc []Accumulator

	// Skipped counts particles whose membership pointed at a halo the
	// catalogue does not contain. See Aggregator for the policy.
	Skipped int64

	// unknown lists the distinct missing halo ids seen while filling this
	// set. Chunk scoped: it is inspected by CheckAssignments before the
	// set is reported, and deliberately not merged.
	unknown []int64
}

// noteUnknown records a missing halo id, returning true the first time the
// id is seen.
func (s *AccumulatorSet) noteUnknown(id int64) bool {
	for i := range s.unknown {
		if s.unknown[i] == id {
			return false
		}
	}
	s.unknown = append(s.unknown, id)
	return true
}

// NewAccumulatorSet creates an empty set for a catalogue with nHalos rows.
func NewAccumulatorSet(nHalos int) *AccumulatorSet {
	return &AccumulatorSet{Acc: make([]Accumulator, nHalos)}
}

// Merge folds another set into s row by row. This is the only operation
// the coordinator uses to combine chunk results.
func (s *AccumulatorSet) Merge(o *AccumulatorSet) {
	if len(s.Acc) != len(o.Acc) {
		panic(fmt.Sprintf(
			"merging accumulator sets of different sizes: %d and %d",
			len(s.Acc), len(o.Acc),
		))
	}
	for i := range s.Acc {
		s.Acc[i].Merge(&o.Acc[i])
	}
	s.Skipped += o.Skipped
}
