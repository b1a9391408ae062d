package array

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestKahanSumLargeSmall(t *testing.T) {
	// 1e16 + 1 repeated: naive float64 summation drops every +1.
	s := KahanSum{}
	s.Add(1e16)
	for i := 0; i < 1000; i++ {
		s.Add(1.0)
	}
	if s.Sum != 1e16+1000 {
		t.Errorf("Expected %g, got %g", 1e16+1000, s.Sum)
	}
}

func TestKahanMergeOrderIndependent(t *testing.T) {
	rand.Seed(42)
	xs := make([]float64, 10000)
	for i := range xs {
		xs[i] = rand.Float64() * math.Pow(10, float64(rand.Intn(12)))
	}

	whole := KahanSum{}
	for i := range xs {
		whole.Add(xs[i])
	}

	// Split into four partial sums and merge them in two different orders.
	parts := make([]KahanSum, 4)
	for i := range xs {
		parts[i%4].Add(xs[i])
	}

	a := KahanSum{}
	for i := 0; i < 4; i++ {
		a.AddSum(&parts[i])
	}
	b := KahanSum{}
	for i := 3; i >= 0; i-- {
		b.AddSum(&parts[i])
	}

	eps := 1e-10 * math.Abs(whole.Sum)
	if math.Abs(a.Sum-b.Sum) > eps {
		t.Errorf("Merge order changed sum: %g vs %g", a.Sum, b.Sum)
	}
	if math.Abs(a.Sum-whole.Sum) > eps {
		t.Errorf("Merged sum %g differs from direct sum %g", a.Sum, whole.Sum)
	}
}

func TestKahanVec(t *testing.T) {
	v := KahanVec{}
	v.Add([3]float64{1, 2, 3})
	v.Add([3]float64{4, 5, 6})

	got := v.Vec()
	want := [3]float64{5, 7, 9}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}

	o := KahanVec{}
	o.Add([3]float64{-5, -7, -9})
	v.AddVec(&o)
	if v.Vec() != ([3]float64{0, 0, 0}) {
		t.Errorf("Expected zero vector, got %v", v.Vec())
	}
}

func TestReverse(t *testing.T) {
	if !sliceEq([]float64{1, 2, 3, 4, 5}, Reverse([]float64{5, 4, 3, 2, 1})) ||
		!sliceEq([]float64{2, 3, 4, 5}, Reverse([]float64{5, 4, 3, 2})) {
		t.Errorf("Welp, I hope you're proud of yourself.")
	}
}

func TestShellSortIndex(t *testing.T) {
	rand.Seed(17)
	for _, n := range []int{1, 2, 10, 1000} {
		xs := randSlice(n)
		orig := make([]float64, n)
		copy(orig, xs)

		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}

		ShellSortIndex(xs, idx)

		if !sort.Float64sAreSorted(xs) {
			t.Errorf("n = %d: output not sorted", n)
		}
		for i := range idx {
			if orig[idx[i]] != xs[i] {
				t.Errorf("n = %d: idx[%d] = %d does not map to sorted value",
					n, i, idx[i])
			}
		}
	}
}

func sliceEq(xs, ys []float64) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i := range xs {
		if xs[i] != ys[i] {
			return false
		}
	}
	return true
}

func randSlice(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = rand.Float64()
	}
	return xs
}
