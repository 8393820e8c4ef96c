package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// viewHomographies estimates, for every view, the homography from the board plane to the image.
func viewHomographies(corr Correspondences) ([]*mat.Dense, error) {
	hs := make([]*mat.Dense, len(corr))
	for i, v := range corr {
		board := make([]r2.Point, len(v.ObjectPoints))
		for j, p := range v.ObjectPoints {
			board[j] = r2.Point{X: p.X, Y: p.Y}
		}
		h, err := transform.EstimateHomography(board, v.ImagePoints)
		if err != nil {
			return nil, newError(ConvergenceFailure, "view %d: %v", i, err)
		}
		hs[i] = h
	}
	return hs, nil
}

// pixelNormalizer maps pixels to roughly [-1, 1] so that the closed form systems are well conditioned.
func pixelNormalizer(size image.Point) (*mat.Dense, *mat.Dense) {
	s := float64(max(size.X, size.Y)) / 2
	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	n := mat.NewDense(3, 3, []float64{
		1 / s, 0, -cx / s,
		0, 1 / s, -cy / s,
		0, 0, 1,
	})
	nInv := mat.NewDense(3, 3, []float64{
		s, 0, cx,
		0, s, cy,
		0, 0, 1,
	})
	return n, nInv
}

// zhangVector is v_ij from Zhang's paper, for columns i and j of h.
func zhangVector(h mat.Matrix, i, j int) []float64 {
	return []float64{
		h.At(0, i) * h.At(0, j),
		h.At(0, i)*h.At(1, j) + h.At(1, i)*h.At(0, j),
		h.At(1, i) * h.At(1, j),
		h.At(2, i)*h.At(0, j) + h.At(0, i)*h.At(2, j),
		h.At(2, i)*h.At(1, j) + h.At(1, i)*h.At(2, j),
		h.At(2, i) * h.At(2, j),
	}
}

// zhangIntrinsics is the closed form solution of Zhang's method for the image of the absolute
// conic B = K^-T K^-1, with the skew constrained to zero. It needs at least three views and
// reports false when the system is degenerate.
func zhangIntrinsics(hs []*mat.Dense, size image.Point) (*transform.PinholeCameraIntrinsics, bool) {
	if len(hs) < 3 {
		return nil, false
	}
	norm, normInv := pixelNormalizer(size)
	v := mat.NewDense(2*len(hs)+1, 6, nil)
	for k, h := range hs {
		var hn mat.Dense
		hn.Mul(norm, h)
		v12 := zhangVector(&hn, 0, 1)
		v11 := zhangVector(&hn, 0, 0)
		v22 := zhangVector(&hn, 1, 1)
		v.SetRow(2*k, v12)
		diff := make([]float64, 6)
		for i := range diff {
			diff[i] = v11[i] - v22[i]
		}
		v.SetRow(2*k+1, diff)
	}
	// zero skew: B12 = 0
	v.SetRow(2*len(hs), []float64{0, 1, 0, 0, 0, 0})

	var svd mat.SVD
	if ok := svd.Factorize(v, mat.SVDFullV); !ok {
		return nil, false
	}
	var vv mat.Dense
	svd.VTo(&vv)
	b := mat.Col(nil, 5, &vv)
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]

	den := b11*b22 - b12*b12
	if den == 0 || b11 == 0 {
		return nil, false
	}
	v0 := (b12*b13 - b11*b23) / den
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	alpha2 := lambda / b11
	beta2 := lambda * b11 / den
	if alpha2 <= 0 || beta2 <= 0 {
		return nil, false
	}
	alpha := math.Sqrt(alpha2)
	beta := math.Sqrt(beta2)
	u0 := -b13 * alpha2 / lambda

	var k mat.Dense
	k.Mul(normInv, mat.NewDense(3, 3, []float64{
		alpha, 0, u0,
		0, beta, v0,
		0, 0, 1,
	}))
	params := &transform.PinholeCameraIntrinsics{
		Width: size.X, Height: size.Y,
		Fx: k.At(0, 0), Fy: k.At(1, 1), Ppx: k.At(0, 2), Ppy: k.At(1, 2),
	}
	if params.CheckValid() != nil ||
		params.Ppx < 0 || params.Ppx > float64(size.X) || params.Ppy < 0 || params.Ppy > float64(size.Y) {
		return nil, false
	}
	return params, true
}

// centeredIntrinsics fixes the principal point at the image center and solves the two
// orthogonality constraints of every homography for 1/fx² and 1/fy² in the least squares
// sense. It works from a single view as long as the board is not fronto-parallel.
func centeredIntrinsics(hs []*mat.Dense, size image.Point) *transform.PinholeCameraIntrinsics {
	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	shift := mat.NewDense(3, 3, []float64{1, 0, -cx, 0, 1, -cy, 0, 0, 1})
	a := mat.NewDense(2*len(hs), 2, nil)
	rhs := mat.NewVecDense(2*len(hs), nil)
	for k, h := range hs {
		var hc mat.Dense
		hc.Mul(shift, h)
		h11, h12 := hc.At(0, 0), hc.At(0, 1)
		h21, h22 := hc.At(1, 0), hc.At(1, 1)
		h31, h32 := hc.At(2, 0), hc.At(2, 1)
		a.SetRow(2*k, []float64{h11 * h12, h21 * h22})
		rhs.SetVec(2*k, -h31*h32)
		a.SetRow(2*k+1, []float64{h11*h11 - h12*h12, h21*h21 - h22*h22})
		rhs.SetVec(2*k+1, -(h31*h31 - h32*h32))
	}

	fallback := float64(max(size.X, size.Y))
	fx, fy := fallback, fallback
	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err == nil {
		if ix, iy := sol.AtVec(0), sol.AtVec(1); ix > 0 && iy > 0 {
			fx, fy = 1/math.Sqrt(ix), 1/math.Sqrt(iy)
		}
	}
	return &transform.PinholeCameraIntrinsics{Width: size.X, Height: size.Y, Fx: fx, Fy: fy, Ppx: cx, Ppy: cy}
}

// poseFromHomography decomposes H = K [r1 r2 t] into a board pose.
func poseFromHomography(k *mat.Dense, h mat.Matrix) transform.Pose {
	var kInv, m mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return transform.Pose{Translation: r3.Vector{Z: 1}}
	}
	m.Mul(&kInv, h)
	h1 := r3.Vector{X: m.At(0, 0), Y: m.At(1, 0), Z: m.At(2, 0)}
	h2 := r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	h3 := r3.Vector{X: m.At(0, 2), Y: m.At(1, 2), Z: m.At(2, 2)}
	scale := 2 / (h1.Norm() + h2.Norm())
	if h3.Z < 0 {
		// the board is in front of the camera
		scale = -scale
	}
	r1 := h1.Mul(scale)
	r2 := h2.Mul(scale)
	r3v := r1.Cross(r2)
	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	return transform.Pose{
		Rotation:    transform.RodriguesFromMatrix(transform.NearestRotation(rot)),
		Translation: h3.Mul(scale),
	}
}
