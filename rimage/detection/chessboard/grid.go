package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// GridConfiguration stores the parameters of the lattice growth that assembles corner candidates
// into a chessboard grid.
type GridConfiguration struct {
	// NeighborTolerance is how far, as a fraction of the local step, a candidate may lie from its
	// predicted lattice position.
	NeighborTolerance float64 `json:"neighbor_tolerance"`
	// MaxSeeds is the number of seed candidates tried before giving up.
	MaxSeeds int `json:"max_seeds"`
}

// DefaultGridConf stores the default parameters of the lattice growth.
var DefaultGridConf = GridConfiguration{
	NeighborTolerance: 0.35,
	MaxSeeds:          8,
}

type cell struct{ i, j int }

// lattice maps integer grid coordinates to candidate indices.
type lattice struct {
	pts   []r2.Point
	cells map[cell]int
	used  []bool
	u, v  r2.Point
}

func (l *lattice) at(c cell) (r2.Point, bool) {
	idx, ok := l.cells[c]
	if !ok {
		return r2.Point{}, false
	}
	return l.pts[idx], true
}

// step predicts the displacement from c to its neighbor c+d. It prefers continuing the line
// through c, then the same step in an adjacent row or column, then the seed axes.
func (l *lattice) step(c cell, d cell) r2.Point {
	p, _ := l.at(c)
	if prev, ok := l.at(cell{c.i - d.i, c.j - d.j}); ok {
		return p.Sub(prev)
	}
	perp := cell{d.j, d.i}
	for _, k := range []int{1, -1} {
		a := cell{c.i + k*perp.i, c.j + k*perp.j}
		pa, okA := l.at(a)
		pb, okB := l.at(cell{a.i + d.i, a.j + d.j})
		if okA && okB {
			return pb.Sub(pa)
		}
	}
	if d.i != 0 {
		return l.u.Mul(float64(d.i))
	}
	return l.v.Mul(float64(d.j))
}

// getMinSaddleDistance returns the index of the unused candidate closest to pt, and its distance.
func getMinSaddleDistance(saddlePoints []r2.Point, used []bool, pt r2.Point) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, saddlePt := range saddlePoints {
		if used != nil && used[i] {
			continue
		}
		if dist := pt.Sub(saddlePt).Norm(); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, bestDist
}

// seedAxes picks the two lattice directions at a seed: its nearest neighbor, and the nearest
// neighbor that is not roughly collinear with the first.
func seedAxes(pts []r2.Point, seed int) (r2.Point, r2.Point, bool) {
	type neighbor struct {
		d    r2.Point
		dist float64
	}
	var ns []neighbor
	for i, p := range pts {
		if i != seed {
			d := p.Sub(pts[seed])
			ns = append(ns, neighbor{d, d.Norm()})
		}
	}
	if len(ns) < 2 {
		return r2.Point{}, r2.Point{}, false
	}
	sort.Slice(ns, func(a, b int) bool { return ns[a].dist < ns[b].dist })
	u := ns[0].d
	for _, n := range ns[1:min(len(ns), 8)] {
		cos := math.Abs(u.Dot(n.d)) / (u.Norm() * n.dist)
		if cos < 0.5 && n.dist < 2*u.Norm() {
			return u, n.d, true
		}
	}
	return r2.Point{}, r2.Point{}, false
}

// growLattice grows a lattice breadth first from a seed candidate.
func growLattice(pts []r2.Point, seed int, tolerance float64) *lattice {
	u, v, ok := seedAxes(pts, seed)
	if !ok {
		return nil
	}
	l := &lattice{pts: pts, cells: map[cell]int{{0, 0}: seed}, used: make([]bool, len(pts)), u: u, v: v}
	l.used[seed] = true
	queue := []cell{{0, 0}}
	dirs := []cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		p, _ := l.at(c)
		for _, d := range dirs {
			next := cell{c.i + d.i, c.j + d.j}
			if _, known := l.cells[next]; known {
				continue
			}
			s := l.step(c, d)
			idx, dist := getMinSaddleDistance(pts, l.used, p.Add(s))
			if idx < 0 || dist > tolerance*s.Norm() {
				continue
			}
			l.cells[next] = idx
			l.used[idx] = true
			queue = append(queue, next)
		}
	}
	return l
}

// bounds returns the grid coordinate extent of the lattice.
func (l *lattice) bounds() (minI, minJ, maxI, maxJ int) {
	minI, minJ, maxI, maxJ = math.MaxInt, math.MaxInt, math.MinInt, math.MinInt
	for c := range l.cells {
		minI, maxI = min(minI, c.i), max(maxI, c.i)
		minJ, maxJ = min(minJ, c.j), max(maxJ, c.j)
	}
	return
}

// orderedCorners returns the lattice as cols x rows corners in row-major order with the first row
// running along +x and rows advancing along +y, or false when the lattice is not a full
// cols x rows (or rows x cols) grid.
func (l *lattice) orderedCorners(cols, rows int) ([]r2.Point, bool) {
	if len(l.cells) != cols*rows {
		return nil, false
	}
	minI, minJ, maxI, maxJ := l.bounds()
	ni, nj := maxI-minI+1, maxJ-minJ+1
	if ni*nj != cols*rows {
		return nil, false
	}
	grid := func(a, b int) r2.Point {
		p, _ := l.at(cell{minI + a, minJ + b})
		return p
	}
	// for square boards the more horizontal axis becomes the row direction
	var get func(row, col int) r2.Point
	switch {
	case ni == cols && nj == rows && (ni != nj || math.Abs(l.u.X) >= math.Abs(l.v.X)):
		get = func(row, col int) r2.Point { return grid(col, row) }
	case ni == rows && nj == cols:
		get = func(row, col int) r2.Point { return grid(row, col) }
	default:
		return nil, false
	}

	flipCols := get(0, cols-1).X < get(0, 0).X
	flipRows := get(rows-1, 0).Y < get(0, 0).Y
	out := make([]r2.Point, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			r, c := row, col
			if flipRows {
				r = rows - 1 - row
			}
			if flipCols {
				c = cols - 1 - col
			}
			out = append(out, get(r, c))
		}
	}
	return out, true
}

// assembleGrid tries seeds in order of distance to the candidates' centroid until one grows
// into a full cols x rows lattice.
func assembleGrid(pts []r2.Point, cols, rows int, conf *GridConfiguration) ([]r2.Point, bool) {
	if len(pts) < cols*rows {
		return nil, false
	}
	var centroid r2.Point
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))
	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pts[order[a]].Sub(centroid).Norm() < pts[order[b]].Sub(centroid).Norm()
	})
	for _, seed := range order[:min(len(order), conf.MaxSeeds)] {
		l := growLattice(pts, seed, conf.NeighborTolerance)
		if l == nil {
			continue
		}
		if corners, ok := l.orderedCorners(cols, rows); ok {
			return corners, true
		}
	}
	return nil, false
}
