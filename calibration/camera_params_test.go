package calibration

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCameraLayoutK3(t *testing.T) {
	init := testModel([]float64{-0.1, 0.02, 0.001, -0.002, 0.03})

	t.Run("fixed by default", func(t *testing.T) {
		l := newCameraLayout(testSize, 10, init, newOptions(nil, DefaultMonoAlpha))
		test.That(t, l.len(), test.ShouldEqual, 8)
		params := l.pack(init)
		test.That(t, params, test.ShouldResemble, []float64{520, 515, 322, 238, -0.1, 0.02, 0.001, -0.002})

		params[4] = -0.2
		got := l.unpack(params).Distortion.Parameters()
		test.That(t, got, test.ShouldResemble, []float64{-0.2, 0.02, 0.001, -0.002, 0.03})
	})

	t.Run("freed", func(t *testing.T) {
		l := newCameraLayout(testSize, 10, init, newOptions([]Option{WithK3()}, DefaultMonoAlpha))
		test.That(t, l.len(), test.ShouldEqual, 9)
		params := l.pack(init)
		test.That(t, params[8], test.ShouldEqual, 0.03)
		params[8] = 0.05
		test.That(t, l.unpack(params).Distortion.Parameters()[4], test.ShouldEqual, 0.05)
	})

	t.Run("fixed principal point", func(t *testing.T) {
		l := newCameraLayout(testSize, 2, init, newOptions(nil, DefaultMonoAlpha))
		test.That(t, l.len(), test.ShouldEqual, 6)
		got := l.unpack(l.pack(init))
		test.That(t, got.Ppx, test.ShouldEqual, init.Ppx)
		test.That(t, got.Distortion.Parameters(), test.ShouldResemble, init.Distortion.Parameters())
	})

	t.Run("collinear terms", func(t *testing.T) {
		brown := newCameraLayout(testSize, 10, init, newOptions([]Option{WithK3()}, DefaultMonoAlpha))
		for i := 0; i < brown.len(); i++ {
			test.That(t, brown.collinear(i), test.ShouldBeFalse)
		}
		rational := newCameraLayout(testSize, 10, testModel(nil), newOptions([]Option{WithRationalModel()}, DefaultMonoAlpha))
		test.That(t, rational.len(), test.ShouldEqual, 12)
		for i := 0; i < rational.len(); i++ {
			test.That(t, rational.collinear(i), test.ShouldEqual, i >= 8)
		}
	})
}

func TestCheckConditioningIncludesDistortion(t *testing.T) {
	// parameter 2 duplicates parameter 1, as a k1 that the views do not constrain would
	res := &leastSquaresResult{
		params: make([]float64, 3),
		normal: mat.NewSymDense(3, []float64{
			1, 0, 0,
			0, 1, 1,
			0, 1, 1,
		}),
	}
	err := checkConditioning(res, "test solve", nil)
	test.That(t, err, test.ShouldBeError)
	test.That(t, KindOf(err), test.ShouldEqual, ConvergenceFailure)

	err = checkConditioning(res, "test solve", func(i int) bool { return i == 2 })
	test.That(t, err, test.ShouldBeNil)
}

func TestValidateModelRejectsFold(t *testing.T) {
	test.That(t, validateModel(testModel([]float64{-0.12, 0.05, 0, 0, 0}), "good"), test.ShouldBeNil)

	// barrel distortion this strong turns back on itself before the image corners
	err := validateModel(testModel([]float64{-0.5, 0, 0, 0, 0}), "folded")
	test.That(t, KindOf(err), test.ShouldEqual, ConvergenceFailure)
	test.That(t, err.Error(), test.ShouldContainSubstring, "image corners")

	// a fourth order term fit on views that stay near the center
	err = validateModel(testModel([]float64{0.035, -1.486, 0, 0, 0}), "runaway")
	test.That(t, KindOf(err), test.ShouldEqual, ConvergenceFailure)
}
