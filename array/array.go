/*package array provides numerically stable accumulation and small
array-manipulation utilities used by the halo property reductions. The
summation routines exist because per-halo particle counts can reach many
millions, where naive float64 summation visibly loses precision.*/
package array

// KahanSum is a compensated running sum. The zero value is an empty sum.
type KahanSum struct {
	Sum float64
	c   float64
}

// Add adds x to the running sum, carrying the compensation term.
func (s *KahanSum) Add(x float64) {
	y := x - s.c
	t := s.Sum + y
	s.c = (t - s.Sum) - y
	s.Sum = t
}

// AddSum merges another compensated sum into s. Merging is commutative and
// associative up to floating point tolerance, which is what lets chunk
// results combine in any completion order.
func (s *KahanSum) AddSum(o *KahanSum) {
	s.Add(o.Sum)
	s.Add(-o.c)
}

// KahanVec is a compensated running sum over 3-vectors.
type KahanVec [3]KahanSum

// Add adds the vector x to the running sum.
func (v *KahanVec) Add(x [3]float64) {
	for i := 0; i < 3; i++ {
		v[i].Add(x[i])
	}
}

// AddVec merges another vector sum into v.
func (v *KahanVec) AddVec(o *KahanVec) {
	for i := 0; i < 3; i++ {
		v[i].AddSum(&o[i])
	}
}

// Vec returns the current value of the vector sum.
func (v *KahanVec) Vec() [3]float64 {
	return [3]float64{v[0].Sum, v[1].Sum, v[2].Sum}
}

// Sum returns the compensated sum of xs.
func Sum(xs []float64) float64 {
	s := KahanSum{}
	for i := range xs {
		s.Add(xs[i])
	}
	return s.Sum
}

// Reverse reverses a slice in place (and returns it for convenience).
func Reverse(xs []float64) []float64 {
	n1, n2 := len(xs)-1, len(xs)/2
	for i := 0; i < n2; i++ {
		xs[i], xs[n1-i] = xs[n1-i], xs[i]
	}
	return xs
}
