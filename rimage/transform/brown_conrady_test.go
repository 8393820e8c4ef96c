package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestBrownConradyParameterOrder(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, -0.05, 0.001, 0.002})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.001)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0.)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.05, 0.001, 0.002, 0})

	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)

	x, y := bc.Transform(0, 0)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)
}

func TestNewDistorterFromCoefficients(t *testing.T) {
	d, err := NewDistorterFromCoefficients([]float64{0.1, 0, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	d, err = NewDistorterFromCoefficients(make([]float64, 8))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, RationalPolynomialDistortionType)
	test.That(t, len(d.Parameters()), test.ShouldEqual, 8)

	_, err = NewDistorterFromCoefficients(make([]float64, 7))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDistorter("fisheye", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRationalMatchesBrownConradyWithoutDenominator(t *testing.T) {
	bc, err := NewBrownConrady([]float64{-0.2, 0.05, 0.001, -0.002, 0.01})
	test.That(t, err, test.ShouldBeNil)
	rp, err := NewRationalPolynomial([]float64{-0.2, 0.05, 0.001, -0.002, 0.01, 0, 0, 0})
	test.That(t, err, test.ShouldBeNil)
	x1, y1 := bc.Transform(0.3, -0.2)
	x2, y2 := rp.Transform(0.3, -0.2)
	test.That(t, x2, test.ShouldAlmostEqual, x1, 1e-15)
	test.That(t, y2, test.ShouldAlmostEqual, y1, 1e-15)
}

func TestUndistortNormalizedInverts(t *testing.T) {
	for _, coeffs := range [][]float64{
		{-0.25, 0.08, 0.001, -0.0015, -0.01},
		{0.1, -0.02, 0, 0, 0, 0.05, 0.01, 0},
	} {
		d, err := NewDistorterFromCoefficients(coeffs)
		test.That(t, err, test.ShouldBeNil)
		for _, pt := range [][2]float64{{0, 0}, {0.2, 0.1}, {-0.4, 0.3}, {0.5, -0.35}} {
			xd, yd := d.Transform(pt[0], pt[1])
			xu, yu, ok := UndistortNormalized(d, xd, yd)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, xu, test.ShouldAlmostEqual, pt[0], 1e-8)
			test.That(t, yu, test.ShouldAlmostEqual, pt[1], 1e-8)
		}
	}
}

func TestUndistortNormalizedPastFold(t *testing.T) {
	// r(1 - 0.5r²) peaks at r = 0.816 with distorted radius 0.544
	d, err := NewBrownConrady([]float64{-0.5})
	test.That(t, err, test.ShouldBeNil)
	_, _, ok := UndistortNormalized(d, 0.6, 0)
	test.That(t, ok, test.ShouldBeFalse)
	_, _, ok = UndistortNormalized(d, 0.4, 0)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestCheckRadialMonotonic(t *testing.T) {
	for _, tc := range []struct {
		name      string
		coeffs    []float64
		maxRadius float64
		ok        bool
	}{
		{"none", nil, 0.8, true},
		{"mild barrel", []float64{-0.12, 0.05, 0, 0, 0}, 0.8, true},
		{"barrel past its peak", []float64{-0.5}, 0.6, false},
		{"barrel inside its peak", []float64{-0.5}, 0.5, true},
		{"fourth order fold", []float64{0.035, -1.486}, 0.77, false},
		{"rational", []float64{0.1, -0.02, 0, 0, 0, 0.05, 0.01, 0}, 0.8, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewDistorterFromCoefficients(tc.coeffs)
			test.That(t, err, test.ShouldBeNil)
			err = CheckRadialMonotonic(d, tc.maxRadius)
			if tc.ok {
				test.That(t, err, test.ShouldBeNil)
			} else {
				test.That(t, err, test.ShouldNotBeNil)
			}
		})
	}
}
