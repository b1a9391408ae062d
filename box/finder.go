package box

const (
	maxFinderCells = 250
)

// Finder links points (particles) to the spheres (halo search radii) that
// contain them. It is optimized for the case where the point set is large
// and the same point set is queried for many spheres.
type Finder struct {
	g      *Grid
	gBuf   []int
	idxBuf []int
	dr2Buf []float64
	x      [][3]float64
	bufi   int
}

// NewFinder creates a Finder over the points x in a periodic box of width L.
func NewFinder(L float64, x [][3]float64) *Finder {
	cells := finderCells(len(x))
	g := NewGrid(cells, L, len(x))
	g.Insert(x)

	f := &Finder{
		g:      g,
		gBuf:   make([]int, 0, g.MaxLength()),
		idxBuf: make([]int, len(g.Next)),
		dr2Buf: make([]float64, len(g.Next)),
		x:      x,
	}

	return f
}

// finderCells picks a cell count that keeps the grid allocation proportional
// to the point count. Small point sets would otherwise drown in empty cells.
func finderCells(n int) int {
	cells := 1
	for cells < maxFinderCells && cells*cells*cells < n {
		cells++
	}
	return cells
}

// Find returns the indices of every point within r0 of pos. The returned
// slice is an internal buffer, so please treat it kindly.
func (sf *Finder) Find(pos [3]float64, r0 float64) []int {
	sf.bufi = 0
	sf.idxBuf = sf.idxBuf[:cap(sf.idxBuf)]
	sf.dr2Buf = sf.dr2Buf[:cap(sf.dr2Buf)]

	b := &Bounds{}
	c := sf.g.Cells

	if 2*r0 >= sf.g.Width {
		// Sphere covers the whole box: scan every cell once.
		b.Origin = [3]int{0, 0, 0}
		b.Span = [3]int{c, c, c}
	} else {
		b.SphereBounds(pos, r0, sf.g.cw, sf.g.Width)
		for d := 0; d < 3; d++ {
			if b.Span[d] > c {
				b.Span[d] = c
			}
		}
	}

	for dz := 0; dz < b.Span[2]; dz++ {
		z := b.Origin[2] + dz
		if z >= c {
			z -= c
		}
		zOff := z * c * c
		for dy := 0; dy < b.Span[1]; dy++ {
			y := b.Origin[1] + dy
			if y >= c {
				y -= c
			}
			yOff := y * c
			for dx := 0; dx < b.Span[0]; dx++ {
				x := b.Origin[0] + dx
				if x >= c {
					x -= c
				}
				idx := zOff + yOff + x

				sf.gBuf = sf.g.ReadIndexes(idx, sf.gBuf)
				sf.addPoints(sf.gBuf, pos[0], pos[1], pos[2], r0, sf.g.Width)
			}
		}
	}

	return sf.idxBuf[:sf.bufi]
}

// R2 returns the squared distances corresponding to the indices returned by
// the last Find call.
func (sf *Finder) R2() []float64 {
	return sf.dr2Buf[:sf.bufi]
}

func (sf *Finder) addPoints(
	idxs []int, xh, yh, zh, rh float64, L float64,
) {
	for _, j := range idxs {
		sx, sy, sz := sf.x[j][0], sf.x[j][1], sf.x[j][2]
		dx, dy, dz, dr := xh-sx, yh-sy, zh-sz, rh

		if dx > +L/2 { dx -= L }
		if dx < -L/2 { dx += L }
		if dy > +L/2 { dy -= L }
		if dy < -L/2 { dy += L }
		if dz > +L/2 { dz -= L }
		if dz < -L/2 { dz += L }

		dr2 := dx*dx + dy*dy + dz*dz

		if dr*dr >= dr2 {
			sf.idxBuf[sf.bufi] = j
			sf.dr2Buf[sf.bufi] = dr2
			sf.bufi++
		}
	}
}
