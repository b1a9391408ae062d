package halo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phil-mansfield/haloprops/io/catalogue"
	"github.com/phil-mansfield/haloprops/io/membership"
	"github.com/phil-mansfield/haloprops/io/snapshot"
)

const testBoxSize = 100.0

// twoHaloCatalogue has a halo at the box centre and a halo across the
// periodic wrap, far enough apart that their spheres never overlap.
func twoHaloCatalogue(t *testing.T) *catalogue.Catalogue {
	cat, err := catalogue.New(
		testBoxSize,
		[]int64{10, 20},
		[]int64{-1, -1},
		[][3]float64{{50, 50, 50}, {1, 1, 1}},
		[][3]float64{{50, 50, 50}, {1, 1, 1}},
		[]float64{5.0 / 1.01, 5.0 / 1.01}, // search radius exactly 5
		0.0,
	)
	require.NoError(t, err)
	return cat
}

// clusterParticles puts n particles of species s in a tight ball around
// centre, each with the given mass and velocity.
func clusterParticles(
	s snapshot.Species, firstID int64, n int, centre [3]float64,
	mass float64, v [3]float32,
) *snapshot.Particles {
	p := &snapshot.Particles{
		Species: s,
		ID:      make([]int64, n),
		X:       make([][3]float32, n),
		V:       make([][3]float32, n),
		Mp:      make([]float32, n),
	}
	for i := 0; i < n; i++ {
		p.ID[i] = firstID + int64(i)
		// Offsets stay well inside the search radius, and wrap if the
		// centre is near the box edge.
		off := float64(i%5)*0.1 - 0.2
		p.X[i] = [3]float32{
			float32(math.Mod(centre[0]+off+testBoxSize, testBoxSize)),
			float32(centre[1]),
			float32(centre[2]),
		}
		p.V[i] = v
		p.Mp[i] = float32(mass)
	}
	return p
}

func testHeader() *snapshot.Header {
	return &snapshot.Header{Scale: 1, L: testBoxSize}
}

func memFile(t *testing.T, id, haloID []int64) *membership.File {
	mf, err := membership.New(0, id, haloID, nil)
	require.NoError(t, err)
	return mf
}

func memFileExtra(
	t *testing.T, id, haloID []int64, extra []float32,
) *membership.File {
	mf, err := membership.New(0, id, haloID, extra)
	require.NoError(t, err)
	return mf
}

func TestSpatialAggregation(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	dm := clusterParticles(snapshot.DarkMatter, 0, 20, [3]float64{50, 50, 50},
		2.0, [3]float32{10, 0, 0})
	gas := clusterParticles(snapshot.Gas, 100, 10, [3]float64{1, 1, 1},
		0.5, [3]float32{0, -4, 0})

	set := ag.NewSet()
	ag.AddSpatial(set, []*snapshot.Particles{dm, gas}, nil, testHeader())

	recs := Finalize(cat, set)
	require.Len(t, recs, 2)

	r0 := recs[0]
	require.Equal(t, int64(10), r0.ID)
	require.Equal(t, int64(20), r0.NPart)
	require.Equal(t, int64(20), r0.NPartS[snapshot.DarkMatter])
	require.Equal(t, int64(0), r0.NPartS[snapshot.Gas])
	require.InDelta(t, 40.0, r0.M, 1e-10)
	require.InDelta(t, 40.0, r0.MS[snapshot.DarkMatter], 1e-10)
	// In spatial mode every assigned particle is inside the sphere.
	require.Equal(t, r0.NPart, r0.NWithin)
	require.InDelta(t, r0.M, r0.MWithin, 1e-10)
	require.InDelta(t, 10.0, r0.VCofM[0], 1e-6)
	require.InDelta(t, 0.0, r0.VCofM[1], 1e-6)

	r1 := recs[1]
	require.Equal(t, int64(20), r1.ID)
	require.Equal(t, int64(10), r1.NPart)
	require.InDelta(t, 5.0, r1.M, 1e-10)
	require.InDelta(t, -4.0, r1.VCofM[1], 1e-6)
	// The centre of mass must come out near the halo centre even though
	// the particles straddle the periodic wrap.
	require.InDelta(t, 1.0, r1.CofM[0], 0.3)
}

func TestMembershipAggregation(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	dm := clusterParticles(snapshot.DarkMatter, 0, 6, [3]float64{50, 50, 50},
		1.0, [3]float32{0, 0, 0})

	mem := memFile(t, dm.ID, []int64{10, 10, 10, 20, 20, membership.Unbound})

	set := ag.NewSet()
	ag.AddMembership(set, []*snapshot.Particles{dm}, mem, nil)
	require.NoError(t, ag.CheckAssignments(set))

	recs := Finalize(cat, set)
	require.Equal(t, int64(3), recs[0].NPart)
	require.Equal(t, int64(2), recs[1].NPart)
	require.InDelta(t, 3.0, recs[0].M, 1e-12)
	require.InDelta(t, 2.0, recs[1].M, 1e-12)

	// Halo 20's particles sit ~49 units from its centre, far outside its
	// search radius: membership still assigns them, but m_within_r drops
	// them.
	require.Equal(t, int64(0), recs[1].NWithin)
	require.InDelta(t, 0.0, recs[1].MWithin, 1e-12)
	require.Equal(t, int64(3), recs[0].NWithin)
}

func TestUnknownHaloSkipPolicy(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	dm := clusterParticles(snapshot.DarkMatter, 0, 4, [3]float64{50, 50, 50},
		1.0, [3]float32{0, 0, 0})

	// One unknown halo id: the offending particles are skipped with a
	// warning and the chunk succeeds.
	set := ag.NewSet()
	ag.AddMembership(set, []*snapshot.Particles{dm},
		memFile(t, dm.ID, []int64{10, 999, 999, 10}), nil)
	require.NoError(t, ag.CheckAssignments(set))
	require.Equal(t, int64(2), set.Skipped)

	recs := Finalize(cat, set)
	require.Equal(t, int64(2), recs[0].NPart)

	// Two distinct unknown halo ids: the chunk is inconsistent.
	set = ag.NewSet()
	ag.AddMembership(set, []*snapshot.Particles{dm},
		memFile(t, dm.ID, []int64{10, 999, 998, 10}), nil)
	err := ag.CheckAssignments(set)
	require.Error(t, err)

	incErr := &InconsistentAssignmentError{}
	require.True(t, errors.As(err, &incErr))
	require.Len(t, incErr.HaloIDs, 2)
}

func TestZeroParticleHaloSentinel(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	// Particles only near halo 10; halo 20 gets nothing.
	dm := clusterParticles(snapshot.DarkMatter, 0, 5, [3]float64{50, 50, 50},
		1.0, [3]float32{0, 0, 0})

	set := ag.NewSet()
	ag.AddSpatial(set, []*snapshot.Particles{dm}, nil, testHeader())

	recs := Finalize(cat, set)
	r := recs[1]
	require.Equal(t, int64(20), r.ID)
	require.Equal(t, int64(0), r.NPart)
	require.Equal(t, 0.0, r.M)
	require.Equal(t, [3]float64{0, 0, 0}, r.CofM)
	require.Equal(t, [3]float64{0, 0, 0}, r.VCofM)
	require.Equal(t, 0.0, r.ExtraMean)
	// The search radius is still reported for empty halos.
	require.InDelta(t, 5.0, r.RSearch, 1e-10)
}

func TestExtraScalarMean(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	gas := clusterParticles(snapshot.Gas, 0, 2, [3]float64{50, 50, 50},
		1.0, [3]float32{0, 0, 0})
	gas.Mp = []float32{1.0, 3.0}

	extra := memFileExtra(t, gas.ID,
		[]int64{membership.Unbound, membership.Unbound},
		[]float32{100, 200})

	set := ag.NewSet()
	ag.AddSpatial(set, []*snapshot.Particles{gas}, extra, testHeader())

	recs := Finalize(cat, set)
	// Mass-weighted: (1*100 + 3*200) / 4 = 175.
	require.InDelta(t, 175.0, recs[0].ExtraMean, 1e-10)
}

func TestMergeOrderIndependence(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	rand.Seed(3)
	nSets := 6
	sets := make([]*AccumulatorSet, nSets)
	for k := 0; k < nSets; k++ {
		p := clusterParticles(snapshot.DarkMatter, int64(k*1000), 50,
			[3]float64{50, 50, 50}, rand.Float64()*1e8, [3]float32{1, 2, 3})
		sets[k] = ag.NewSet()
		ag.AddSpatial(sets[k], []*snapshot.Particles{p}, nil, testHeader())
	}

	merge := func(order []int) []Record {
		total := ag.NewSet()
		for _, k := range order {
			total.Merge(sets[k])
		}
		return Finalize(cat, total)
	}

	base := merge([]int{0, 1, 2, 3, 4, 5})
	perms := [][]int{
		{5, 4, 3, 2, 1, 0},
		{2, 0, 4, 1, 5, 3},
		{3, 5, 1, 0, 2, 4},
	}

	for _, perm := range perms {
		got := merge(perm)
		for i := range base {
			tol := 1e-10 * (1 + math.Abs(base[i].M))
			require.InDelta(t, base[i].M, got[i].M, tol)
			require.InDelta(t, base[i].MWithin, got[i].MWithin, tol)
			require.Equal(t, base[i].NPart, got[i].NPart)
			for d := 0; d < 3; d++ {
				require.InDelta(t, base[i].CofM[d], got[i].CofM[d], 1e-8)
				require.InDelta(t, base[i].VCofM[d], got[i].VCofM[d], 1e-8)
			}
		}
	}
}

func TestTableLayout(t *testing.T) {
	cat := twoHaloCatalogue(t)
	ag := NewAggregator(cat, zap.NewNop())

	dm := clusterParticles(snapshot.DarkMatter, 0, 5, [3]float64{50, 50, 50},
		2.0, [3]float32{0, 0, 0})
	set := ag.NewSet()
	ag.AddSpatial(set, []*snapshot.Particles{dm}, nil, testHeader())

	tab := Table(Finalize(cat, set))
	require.Equal(t, IntColumns, tab.IntNames)
	require.Equal(t, FloatColumns, tab.FloatNames)
	require.Equal(t, 2, tab.NHalos())

	ids, ok := tab.Int("id")
	require.True(t, ok)
	require.Equal(t, []int64{10, 20}, ids)

	m, ok := tab.Float("m_total")
	require.True(t, ok)
	require.InDelta(t, 10.0, m[0], 1e-10)
	require.Equal(t, 0.0, m[1])
}
