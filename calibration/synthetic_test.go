package calibration

import (
	"image"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/stereocalib/rimage/transform"
)

var testSize = image.Pt(640, 480)

func testPattern() *Pattern {
	return &Pattern{Cols: 9, Rows: 6, SquareSize: 25}
}

func testModel(distortion []float64) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: testSize.X, Height: testSize.Y,
			Fx: 520, Fy: 515, Ppx: 322, Ppy: 238,
		},
		Distortion: distorterFor(distortion),
	}
}

var testRotations = []r3.Vector{
	{X: 0.2, Y: 0.1},
	{X: -0.2, Y: 0.15, Z: 0.1},
	{X: 0.1, Y: -0.25, Z: -0.05},
	{X: 0.3, Z: 0.2},
	{X: -0.1, Y: -0.3},
	{X: 0.25, Y: 0.25, Z: 0.1},
	{X: -0.3, Y: 0.1, Z: -0.1},
	{Y: 0.35, Z: 0.05},
	{X: 0.15, Y: -0.15, Z: 0.3},
	{X: -0.25, Y: -0.2, Z: -0.2},
}

// testOffsets move the pattern center off the optical axis so that the views reach every
// image border, as a careful capture session does.
var testOffsets = []r3.Vector{
	{X: -130, Y: -90}, {X: 130, Y: 90}, {X: 130, Y: -90}, {X: -130, Y: 90}, {},
	{X: -150}, {X: 150}, {Y: -100}, {Y: 100}, {X: 60, Y: 40},
}

// boardPoses places the pattern at varying depths, tilts and offsets from the optical axis.
func boardPoses(p *Pattern, n int) []transform.Pose {
	center := r3.Vector{X: float64(p.Cols-1) * p.SquareSize / 2, Y: float64(p.Rows-1) * p.SquareSize / 2}
	poses := make([]transform.Pose, n)
	for i := range poses {
		rvec := testRotations[i%len(testRotations)]
		rot := transform.Rodrigues(rvec)
		depth := 550 + 20*float64(i%5)
		offset := testOffsets[i%len(testOffsets)].Add(r3.Vector{Z: depth})
		poses[i] = transform.Pose{
			Rotation:    rvec,
			Translation: transform.RotateVector(rot, center).Mul(-1).Add(offset),
		}
	}
	return poses
}

func jitter(pts []r2.Point, rng *rand.Rand, sigma float64) []r2.Point {
	if sigma == 0 {
		return pts
	}
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: p.X + rng.NormFloat64()*sigma, Y: p.Y + rng.NormFloat64()*sigma}
	}
	return out
}

func syntheticMono(model *transform.PinholeCameraModel, n int, sigma float64) Correspondences {
	p := testPattern()
	rng := rand.New(rand.NewSource(1))
	corr := make(Correspondences, n)
	for i, pose := range boardPoses(p, n) {
		obj := p.ObjectPoints()
		corr[i] = View{ObjectPoints: obj, ImagePoints: jitter(transform.ProjectPoints(model, pose, obj), rng, sigma)}
	}
	return corr
}

// testRig is x_right = R x_left + T with the right camera 60 units to the right.
var testRig = transform.Pose{
	Rotation:    r3.Vector{X: 0.01, Y: -0.02, Z: 0.005},
	Translation: r3.Vector{X: -60, Y: 0.5, Z: 1},
}

func syntheticStereo(left, right *transform.PinholeCameraModel, n int, sigma float64) StereoCorrespondences {
	p := testPattern()
	rng := rand.New(rand.NewSource(2))
	corr := make(StereoCorrespondences, n)
	for i, pose := range boardPoses(p, n) {
		obj := p.ObjectPoints()
		corr[i] = StereoView{
			ObjectPoints: obj,
			Left:         jitter(transform.ProjectPoints(left, pose, obj), rng, sigma),
			Right:        jitter(transform.ProjectPoints(right, composePose(testRig, pose), obj), rng, sigma),
		}
	}
	return corr
}
