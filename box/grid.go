package box

// Grid is a linked-list cell grid over a set of points in a periodic box.
// Cell c stores the indices of its points as a chain: Heads[c] is the first
// index and Next[i] walks the rest, with -1 terminating the chain.
type Grid struct {
	Cells int // cells on one side
	Width float64
	cw    float64 // cell width

	Heads []int
	Next  []int

	lengths []int
}

// NewGrid creates a grid with cells^3 cells spanning a periodic box of width
// L, sized to hold n points.
func NewGrid(cells int, L float64, n int) *Grid {
	g := &Grid{
		Cells: cells, Width: L, cw: L / float64(cells),
		Heads:   make([]int, cells*cells*cells),
		Next:    make([]int, n),
		lengths: make([]int, cells*cells*cells),
	}
	for i := range g.Heads {
		g.Heads[i] = -1
	}
	return g
}

// Insert adds every point in x to the grid. Points outside [0, L) are
// wrapped. Insert may only be called once per grid.
func (g *Grid) Insert(x [][3]float64) {
	if len(x) != len(g.Next) {
		panic("Grid created with a different point count than given to Insert.")
	}

	for i := range x {
		c := g.cellIndex(x[i])
		g.Next[i] = g.Heads[c]
		g.Heads[c] = i
		g.lengths[c]++
	}
}

func (g *Grid) cellIndex(x [3]float64) int {
	var idx [3]int
	for d := 0; d < 3; d++ {
		i := int(Wrap(x[d], g.Width) / g.cw)
		// Points exactly at the upper box edge land one cell too far.
		if i >= g.Cells {
			i = g.Cells - 1
		}
		idx[d] = i
	}
	return idx[0] + idx[1]*g.Cells + idx[2]*g.Cells*g.Cells
}

// ReadIndexes appends the point indices in cell idx to buf[:0] and returns
// the result.
func (g *Grid) ReadIndexes(idx int, buf []int) []int {
	buf = buf[:0]
	for i := g.Heads[idx]; i != -1; i = g.Next[i] {
		buf = append(buf, i)
	}
	return buf
}

// MaxLength returns the largest number of points in any single cell.
func (g *Grid) MaxLength() int {
	max := 0
	for _, n := range g.lengths {
		if n > max {
			max = n
		}
	}
	return max
}
