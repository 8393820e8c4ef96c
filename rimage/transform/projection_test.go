package transform

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testModel(t *testing.T, coeffs []float64) *PinholeCameraModel {
	t.Helper()
	d, err := NewDistorterFromCoefficients(coeffs)
	test.That(t, err, test.ShouldBeNil)
	return &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 520, Fy: 515, Ppx: 322, Ppy: 238},
		Distortion:              d,
	}
}

func TestProjectAndUndistortPixel(t *testing.T) {
	model := testModel(t, []float64{-0.2, 0.05, 0.001, -0.002, 0})
	pose := Pose{Rotation: r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}, Translation: r3.Vector{X: -50, Y: 20, Z: 600}}
	pts := []r3.Vector{{}, {X: 100}, {Y: 80}, {X: 150, Y: 120}}
	projected := ProjectPoints(model, pose, pts)
	for i, p := range projected {
		pc := pose.Apply(pts[i])
		got := model.UndistortPixel(p)
		test.That(t, got.X, test.ShouldAlmostEqual, pc.X/pc.Z, 1e-9)
		test.That(t, got.Y, test.ShouldAlmostEqual, pc.Y/pc.Z, 1e-9)
	}
}

func TestProjectWithMatrix(t *testing.T) {
	model := &PinholeCameraModel{PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
		Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
	}}
	pose := Pose{Rotation: r3.Vector{Y: 0.3}, Translation: r3.Vector{X: 10, Z: 400}}
	rt := mat.NewDense(3, 4, nil)
	rt.Slice(0, 3, 0, 3).(*mat.Dense).Copy(pose.RotationMatrix())
	rt.Set(0, 3, pose.Translation.X)
	rt.Set(1, 3, pose.Translation.Y)
	rt.Set(2, 3, pose.Translation.Z)
	var p mat.Dense
	p.Mul(model.CameraMatrix(), rt)

	pt := r3.Vector{X: 30, Y: -20, Z: 5}
	want := ProjectPoints(model, pose, []r3.Vector{pt})[0]
	got := ProjectWithMatrix(&p, pt)
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
}
