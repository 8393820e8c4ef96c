package chessboard

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// TermCriteria stops an iterative refinement after MaxIter iterations or once a step moves
// the estimate by less than Epsilon pixels.
type TermCriteria struct {
	MaxIter int     `json:"max_iter"`
	Epsilon float64 `json:"epsilon"`
}

// DefaultTermCriteria are the sub-pixel refinement defaults.
var DefaultTermCriteria = TermCriteria{MaxIter: 30, Epsilon: 0.001}

// DefaultSubPixWindow is the half size of the 11x11 refinement window.
const DefaultSubPixWindow = 5

// RefineCorners moves every corner to the point q that best satisfies g(p)·(q - p) = 0 for the
// image gradients g at the pixels p of a (2*halfWin+1)² window around it: at a chessboard
// corner every gradient is orthogonal to the vector from the corner. Gradients are weighted
// by a gaussian centered on the window. Corners that drift out of their window keep their
// input position.
func RefineCorners(gray *mat.Dense, corners []r2.Point, halfWin int, criteria TermCriteria) []r2.Point {
	if halfWin <= 0 {
		halfWin = DefaultSubPixWindow
	}
	if criteria.MaxIter <= 0 {
		criteria.MaxIter = DefaultTermCriteria.MaxIter
	}
	h, w := gray.Dims()
	sigma := float64(halfWin)
	weights := make([]float64, 2*halfWin+1)
	for i := range weights {
		d := float64(i - halfWin)
		weights[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	out := make([]r2.Point, len(corners))
	for k, start := range corners {
		q := start
		for it := 0; it < criteria.MaxIter; it++ {
			cx, cy := int(math.Round(q.X)), int(math.Round(q.Y))
			if cx-halfWin-1 < 0 || cy-halfWin-1 < 0 || cx+halfWin+1 >= w || cy+halfWin+1 >= h {
				break
			}
			var a11, a12, a22, b1, b2 float64
			for dy := -halfWin; dy <= halfWin; dy++ {
				y := cy + dy
				for dx := -halfWin; dx <= halfWin; dx++ {
					x := cx + dx
					gx := (gray.At(y, x+1) - gray.At(y, x-1)) / 2
					gy := (gray.At(y+1, x) - gray.At(y-1, x)) / 2
					wt := weights[dx+halfWin] * weights[dy+halfWin]
					gxx, gxy, gyy := wt*gx*gx, wt*gx*gy, wt*gy*gy
					a11 += gxx
					a12 += gxy
					a22 += gyy
					b1 += gxx*float64(x) + gxy*float64(y)
					b2 += gxy*float64(x) + gyy*float64(y)
				}
			}
			det := a11*a22 - a12*a12
			if math.Abs(det) < 1e-12 {
				break
			}
			next := r2.Point{X: (a22*b1 - a12*b2) / det, Y: (a11*b2 - a12*b1) / det}
			moved := next.Sub(q).Norm()
			q = next
			if moved <= criteria.Epsilon {
				break
			}
		}
		if d := q.Sub(start); math.Abs(d.X) > float64(halfWin) || math.Abs(d.Y) > float64(halfWin) {
			q = start
		}
		out[k] = q
	}
	return out
}
