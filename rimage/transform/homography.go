package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EstimateHomography computes the 3x3 homography H with dst ~ H * src from at least four
// correspondences, using the normalized direct linear transform. H is scaled so H[2][2] = 1.
func EstimateHomography(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.New("sets of points must have at least 4 elements")
	}
	srcN, tSrc := normalizePoints(src)
	dstN, tDst := normalizePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		s, d := srcN[i], dstN[i]
		a.SetRow(2*i, []float64{
			-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y,
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil, errors.New("homography SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.NewDense(3, 3, mat.Col(nil, 8, &v))

	// denormalize: H = T_dst^-1 * Hn * T_src
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, errors.Wrap(err, "degenerate point normalization")
	}
	h.Mul(&tDstInv, h)
	h.Mul(h, tSrc)

	if math.Abs(h.At(2, 2)) < 1e-15 {
		return nil, errors.New("degenerate homography")
	}
	h.Scale(1/h.At(2, 2), h)
	return h, nil
}

// ApplyHomography maps a point through h.
func ApplyHomography(h mat.Matrix, pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	w := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}
