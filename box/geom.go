/*package box contains routines for dealing with the periodic geometry of
cosmological simulation boxes.*/
package box

import (
	"math"
)

// Bounds is a cell-aligned bounding box.
type Bounds struct {
	Origin, Span [3]int
}

// SphereBounds creates a cell-aligned bounding box around a non-aligned
// sphere within a box with periodic boundary conditions.
func (b *Bounds) SphereBounds(pos [3]float64, r, cw, width float64) {
	for i := 0; i < 3; i++ {
		min, max := pos[i]-r, pos[i]+r
		if min < 0 {
			min += width
			max += width
		}

		minCell, maxCell := int(min/cw), int(max/cw)
		b.Origin[i] = minCell
		b.Span[i] = maxCell - minCell + 1
	}
}

// Inside returns true if the given value is within the bounding box along the
// given dimension. The periodic box width is given by width.
func (b *Bounds) Inside(val int, width int, dim int) bool {
	lo, hi := b.Origin[dim], b.Origin[dim]+b.Span[dim]
	if val >= hi {
		val -= width
	} else if val < lo {
		val += width
	}
	return val < hi && val >= lo
}

// Wrap maps x into [0, L).
func Wrap(x, L float64) float64 {
	if x < 0 {
		x += L
	} else if x >= L {
		x -= L
	}
	return x
}

// Displacement returns the periodic displacement x - c, with each component
// wrapped into [-L/2, +L/2].
func Displacement(x, c [3]float64, L float64) [3]float64 {
	var d [3]float64
	for i := 0; i < 3; i++ {
		dx := x[i] - c[i]
		if dx > +L/2 {
			dx -= L
		}
		if dx < -L/2 {
			dx += L
		}
		d[i] = dx
	}
	return d
}

// Distance returns the periodic distance between x and c.
func Distance(x, c [3]float64, L float64) float64 {
	d := Displacement(x, c, L)
	return math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
}
