package transform

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func epipolarResidual(f mat.Matrix, p1, p2 r2.Point) float64 {
	x1 := mat.NewVecDense(3, []float64{p1.X, p1.Y, 1})
	x2 := mat.NewVecDense(3, []float64{p2.X, p2.Y, 1})
	var fx1 mat.VecDense
	fx1.MulVec(f, x1)
	return mat.Dot(x2, &fx1)
}

func TestEssentialAndFundamental(t *testing.T) {
	k, err := NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(3, 3, []float64{
		500, 0, 320,
		0, 510, 240,
		0, 0, 1,
	}), image.Pt(640, 480))
	test.That(t, err, test.ShouldBeNil)
	model := &PinholeCameraModel{PinholeCameraIntrinsics: k}

	rot := Rodrigues(r3.Vector{X: 0.01, Y: -0.03, Z: 0.005})
	tr := r3.Vector{X: -0.12, Y: 0.002, Z: 0.001}
	e := EssentialFromPose(rot, tr)

	var expected mat.Dense
	expected.Mul(SkewSymmetric(tr), rot)
	test.That(t, mat.EqualApprox(e, &expected, 1e-12), test.ShouldBeTrue)

	var svd mat.SVD
	test.That(t, svd.Factorize(e, mat.SVDNone), test.ShouldBeTrue)
	test.That(t, svd.Values(nil)[2], test.ShouldAlmostEqual, 0, 1e-12)

	f, err := FundamentalFromEssential(k.CameraMatrix(), k.CameraMatrix(), e)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.At(2, 2), test.ShouldAlmostEqual, 1, 1e-12)

	var pts1, pts2 []r2.Point
	for i := 0; i < 30; i++ {
		p := r3.Vector{X: float64(i%6)*0.2 - 0.5, Y: float64(i/6)*0.15 - 0.3, Z: 2 + 0.1*float64(i%4)}
		pts1 = append(pts1, ProjectCameraPoint(model, p))
		pts2 = append(pts2, ProjectCameraPoint(model, RotateVector(rot, p).Add(tr)))
	}
	for i := range pts1 {
		test.That(t, epipolarResidual(f, pts1[i], pts2[i]), test.ShouldAlmostEqual, 0, 1e-6)
	}

	estimated, err := ComputeFundamentalMatrixAllPoints(pts1, pts2)
	test.That(t, err, test.ShouldBeNil)
	for i := range pts1 {
		test.That(t, epipolarResidual(estimated, pts1[i], pts2[i]), test.ShouldAlmostEqual, 0, 1e-4)
	}

	_, err = ComputeFundamentalMatrixAllPoints(pts1[:5], pts2[:5])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateHomography(t *testing.T) {
	h := mat.NewDense(3, 3, []float64{
		1.2, 0.1, 30,
		-0.05, 0.9, 12,
		0.0004, -0.0002, 1,
	})
	var src, dst []r2.Point
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			p := r2.Point{X: float64(x) * 40, Y: float64(y) * 35}
			src = append(src, p)
			dst = append(dst, ApplyHomography(h, p))
		}
	}
	est, err := EstimateHomography(src, dst)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(est, h, 1e-6), test.ShouldBeTrue)

	_, err = EstimateHomography(src[:3], dst[:3])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilParams *PinholeCameraIntrinsics
	test.That(t, nilParams.CheckValid(), test.ShouldNotBeNil)
	params := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 0, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, params.CheckValid().Error(), test.ShouldContainSubstring, "Fx")
	params.Fx = 500
	test.That(t, params.CheckValid(), test.ShouldBeNil)
	x, y := params.PixelToNormalized(params.NormalizedToPixel(0.1, -0.2))
	test.That(t, x, test.ShouldAlmostEqual, 0.1, 1e-12)
	test.That(t, y, test.ShouldAlmostEqual, -0.2, 1e-12)
}
