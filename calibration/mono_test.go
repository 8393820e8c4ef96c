package calibration

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereocalib/logging"
	"go.viam.com/stereocalib/rimage/transform"
)

func TestCalibrateMonoRecoversCamera(t *testing.T) {
	truth := testModel([]float64{-0.12, 0.05, 0.001, -0.0005, 0})
	corr := syntheticMono(truth, 10, 0)

	rec, err := CalibrateMono(corr, testSize, WithLogger(logging.NewTestLogger(t)))
	test.That(t, err, test.ShouldBeNil)

	model := rec.Model()
	test.That(t, model.Fx, test.ShouldAlmostEqual, truth.Fx, 0.5)
	test.That(t, model.Fy, test.ShouldAlmostEqual, truth.Fy, 0.5)
	test.That(t, model.Ppx, test.ShouldAlmostEqual, truth.Ppx, 0.5)
	test.That(t, model.Ppy, test.ShouldAlmostEqual, truth.Ppy, 0.5)
	test.That(t, rec.Distortion, test.ShouldHaveLength, 5)
	test.That(t, rec.Distortion[0], test.ShouldAlmostEqual, -0.12, 1e-3)
	test.That(t, rec.Extrinsics, test.ShouldHaveLength, 10)
	test.That(t, rec.Alpha, test.ShouldEqual, DefaultMonoAlpha)
	test.That(t, rec.RMS, test.ShouldBeLessThan, 1e-3)

	score, err := rec.ReprojectionError()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, score, test.ShouldBeLessThan, 1e-3)

	test.That(t, rec.MapX.Size(), test.ShouldResemble, testSize)
	test.That(t, rec.MapY.Size(), test.ShouldResemble, testSize)
	test.That(t, rec.ROI.In(image.Rect(0, 0, testSize.X, testSize.Y)), test.ShouldBeTrue)
	test.That(t, rec.ROI.Empty(), test.ShouldBeFalse)
}

func TestCalibrateMonoNoise(t *testing.T) {
	truth := testModel(nil)

	clean, err := CalibrateMono(syntheticMono(truth, 10, 0), testSize)
	test.That(t, err, test.ShouldBeNil)
	noisy, err := CalibrateMono(syntheticMono(truth, 10, 0.5), testSize)
	test.That(t, err, test.ShouldBeNil)

	cleanScore, err := clean.ReprojectionError()
	test.That(t, err, test.ShouldBeNil)
	noisyScore, err := noisy.ReprojectionError()
	test.That(t, err, test.ShouldBeNil)

	test.That(t, noisyScore, test.ShouldBeGreaterThan, cleanScore)
	test.That(t, noisyScore, test.ShouldBeLessThan, 0.5)
	test.That(t, noisy.Model().Ppx, test.ShouldAlmostEqual, truth.Ppx, 5)
	test.That(t, noisy.Model().Ppy, test.ShouldAlmostEqual, truth.Ppy, 5)
}

func TestCalibrateMonoK3(t *testing.T) {
	truth := testModel([]float64{-0.1, 0.03, 0, 0, 0.02})
	corr := syntheticMono(truth, 10, 0)

	fixed, err := CalibrateMono(corr, testSize)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fixed.Distortion[4], test.ShouldEqual, 0)

	free, err := CalibrateMono(corr, testSize, WithK3())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, free.Distortion[4], test.ShouldAlmostEqual, 0.02, 5e-3)
	test.That(t, free.RMS, test.ShouldBeLessThan, fixed.RMS)
	test.That(t, free.Model().Fx, test.ShouldAlmostEqual, truth.Fx, 0.5)
}

func TestCalibrateMonoRational(t *testing.T) {
	truth := testModel(nil)
	rec, err := CalibrateMono(syntheticMono(truth, 10, 0), testSize, WithRationalModel(), WithAlpha(0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Distortion, test.ShouldHaveLength, 8)
	test.That(t, rec.Alpha, test.ShouldEqual, 0)
	test.That(t, rec.Model().Fx, test.ShouldAlmostEqual, truth.Fx, 1)
}

func TestCalibrateMonoFewViews(t *testing.T) {
	truth := testModel(nil)
	truth.Ppx, truth.Ppy = float64(testSize.X-1)/2, float64(testSize.Y-1)/2
	corr := syntheticMono(truth, 2, 0)

	rec, err := CalibrateMono(corr, testSize)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Model().Ppx, test.ShouldEqual, truth.Ppx)
	test.That(t, rec.Model().Fx, test.ShouldAlmostEqual, truth.Fx, 1)
}

func TestCalibrateMonoErrors(t *testing.T) {
	truth := testModel(nil)
	corr := syntheticMono(truth, 4, 0)

	t.Run("no views", func(t *testing.T) {
		_, err := CalibrateMono(nil, testSize)
		test.That(t, err, test.ShouldBeError)
		test.That(t, KindOf(err), test.ShouldEqual, InsufficientData)
	})

	t.Run("mismatched points", func(t *testing.T) {
		bad := append(Correspondences(nil), corr...)
		bad[1] = View{ObjectPoints: bad[1].ObjectPoints, ImagePoints: bad[1].ImagePoints[:10]}
		_, err := CalibrateMono(bad, testSize)
		test.That(t, KindOf(err), test.ShouldEqual, ShapeMismatch)
	})

	t.Run("too few points", func(t *testing.T) {
		small := Correspondences{{
			ObjectPoints: []r3.Vector{{}, {X: 1}, {Y: 1}},
			ImagePoints:  []r2.Point{{}, {X: 1}, {Y: 1}},
		}}
		_, err := CalibrateMono(small, testSize)
		test.That(t, KindOf(err), test.ShouldEqual, InsufficientData)
	})

	t.Run("zero size", func(t *testing.T) {
		_, err := CalibrateMono(corr, image.Pt(0, 480))
		test.That(t, KindOf(err), test.ShouldEqual, InvalidInput)
	})

	t.Run("alpha out of range", func(t *testing.T) {
		_, err := CalibrateMono(corr, testSize, WithAlpha(1.5))
		test.That(t, KindOf(err), test.ShouldEqual, InvalidInput)
	})

	t.Run("identical fronto-parallel views", func(t *testing.T) {
		p := testPattern()
		obj := p.ObjectPoints()
		pose := transform.Pose{Translation: r3.Vector{X: -100, Y: -62.5, Z: 600}}
		img := transform.ProjectPoints(truth, pose, obj)
		degenerate := Correspondences{}
		for i := 0; i < 5; i++ {
			degenerate = append(degenerate, View{ObjectPoints: obj, ImagePoints: img})
		}
		rec, err := CalibrateMono(degenerate, testSize)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, rec, test.ShouldBeNil)
	})
}

func TestEstimateViewPose(t *testing.T) {
	truth := testModel([]float64{-0.1, 0.02, 0, 0, 0})
	p := testPattern()
	pose := boardPoses(p, 3)[2]
	v, err := p.View(transform.ProjectPoints(truth, pose, p.ObjectPoints()))
	test.That(t, err, test.ShouldBeNil)

	got, err := estimateViewPose(truth, v, newOptions(nil, DefaultMonoAlpha))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Rotation.Sub(pose.Rotation).Norm(), test.ShouldBeLessThan, 1e-6)
	test.That(t, got.Translation.Sub(pose.Translation).Norm(), test.ShouldBeLessThan, 1e-3)
}
