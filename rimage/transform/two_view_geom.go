package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SkewSymmetric returns the cross product matrix [v]x, such that [v]x * w = v x w.
func SkewSymmetric(v r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -v.Z)
	cross.Set(0, 2, v.Y)
	cross.Set(1, 0, v.Z)
	cross.Set(1, 2, -v.X)
	cross.Set(2, 0, -v.Y)
	cross.Set(2, 1, v.X)
	return cross
}

// EssentialFromPose returns E = [t]x * R for the relative pose x2 = R*x1 + t.
func EssentialFromPose(rot mat.Matrix, t r3.Vector) *mat.Dense {
	var e mat.Dense
	e.Mul(SkewSymmetric(t), rot)
	return &e
}

// FundamentalFromEssential returns F = K2^-T * E * K1^-1, scaled so that F[2][2] = 1 when it is not zero.
func FundamentalFromEssential(k1, k2, e mat.Matrix) (*mat.Dense, error) {
	var k1Inv, k2Inv mat.Dense
	if err := k1Inv.Inverse(k1); err != nil {
		return nil, errors.Wrap(err, "first camera matrix is singular")
	}
	if err := k2Inv.Inverse(k2); err != nil {
		return nil, errors.Wrap(err, "second camera matrix is singular")
	}
	var f mat.Dense
	f.Mul(k2Inv.T(), e)
	f.Mul(&f, &k1Inv)
	if s := f.At(2, 2); math.Abs(s) > 1e-12 {
		f.Scale(1/s, &f)
	}
	return &f, nil
}

// ComputeFundamentalMatrixAllPoints computes the fundamental matrix from all point pairs with
// the normalized eight point algorithm, so that pts2^T * F * pts1 = 0.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < 8 {
		return nil, errors.New("sets of points must have at least 8 elements")
	}
	points1, t1 := normalizePoints(pts1)
	points2, t2 := normalizePoints(pts2)

	m := mat.NewDense(len(points1), 9, nil)
	for i := range points1 {
		v1, v2 := points1[i], points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}
	mats1 := performSVD(m)
	if mats1 == nil {
		return nil, errors.New("fundamental matrix SVD did not converge")
	}
	f := mat.NewDense(3, 3, mat.Col(nil, 8, mats1.V))

	// enforce rank 2
	mats2 := performSVD(f)
	if mats2 == nil {
		return nil, errors.New("fundamental matrix SVD did not converge")
	}
	mats2.S.Set(2, 2, 0)
	f.Mul(mats2.U, mats2.S)
	f.Mul(f, mats2.VT)

	// T2^T * F * T1
	f.Mul(t2.T(), f)
	f.Mul(f, t1)
	if s := f.At(2, 2); math.Abs(s) > 1e-12 {
		f.Scale(1/s, f)
	}
	return f, nil
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at
// the origin, mean distance sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := float64(len(pts))
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / nPoints)
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / nPoints
	}
	scale := 1.0
	if d > 0 {
		scale = math.Sqrt(2) / d
	}
	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt.Sub(mu).Mul(scale)
	}
	return out, t
}

// eye creates an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}
	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())
	values := svd.Values(nil)
	r, c := inputMatrix.Dims()
	sigma := mat.NewDense(min(r, c), min(r, c), nil)
	for i, s := range values {
		sigma.Set(i, i, s)
	}
	return &matsSVD{u, v, vt, sigma}
}
