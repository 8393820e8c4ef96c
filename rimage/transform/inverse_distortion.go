package transform

import (
	"math"

	"github.com/pkg/errors"
)

const (
	undistortMaxIterations = 20
	undistortTolerance     = 1e-12
	// a point whose residual ends above this did not converge
	undistortAccept = 1e-9
	undistortStep   = 1e-7

	// radialSteps is the number of samples per unit of distorted radius in CheckRadialMonotonic.
	radialSteps = 512
	// radialSearchLimit bounds the undistorted radius searched by CheckRadialMonotonic.
	radialSearchLimit = 10.0
)

// UndistortNormalized inverts a Distorter: given a distorted normalized point it finds the
// undistorted point that Transform maps onto it. Newton-Raphson with a finite difference
// Jacobian, starting from the distorted point. ok is false when the iteration did not reach the
// point, which happens outside the region where the model is invertible.
func UndistortNormalized(d Distorter, xd, yd float64) (xu, yu float64, ok bool) {
	if d == nil {
		return xd, yd, true
	}
	xu, yu = xd, yd
	residual := func() float64 {
		fx, fy := d.Transform(xu, yu)
		return math.Hypot(fx-xd, fy-yd)
	}
	for i := 0; i < undistortMaxIterations; i++ {
		fx, fy := d.Transform(xu, yu)
		ex, ey := fx-xd, fy-yd
		if ex*ex+ey*ey < undistortTolerance*undistortTolerance {
			break
		}

		x1, y1 := d.Transform(xu+undistortStep, yu)
		x2, y2 := d.Transform(xu, yu+undistortStep)
		j00 := (x1 - fx) / undistortStep
		j10 := (y1 - fy) / undistortStep
		j01 := (x2 - fx) / undistortStep
		j11 := (y2 - fy) / undistortStep

		det := j00*j11 - j01*j10
		if math.Abs(det) < 1e-15 {
			break
		}
		xu -= (j11*ex - j01*ey) / det
		yu -= (-j10*ex + j00*ey) / det
		if math.IsNaN(xu) || math.IsNaN(yu) || math.IsInf(xu, 0) || math.IsInf(yu, 0) {
			return xd, yd, false
		}
	}
	return xu, yu, residual() < undistortAccept
}

// RadialFactor is the radial scale 1 + k1 r² + k2 r⁴ + k3 r⁶ at squared radius r2.
func (bc *BrownConrady) RadialFactor(r2 float64) float64 {
	if bc == nil {
		return 1
	}
	return 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
}

// RadialFactor is the rational radial scale at squared radius r2.
func (rp *RationalPolynomial) RadialFactor(r2 float64) float64 {
	if rp == nil {
		return 1
	}
	r4 := r2 * r2
	r6 := r4 * r2
	return (1 + rp.RadialK1*r2 + rp.RadialK2*r4 + rp.RadialK3*r6) /
		(1 + rp.RadialK4*r2 + rp.RadialK5*r4 + rp.RadialK6*r6)
}

// CheckRadialMonotonic checks that the distorted radius r·f(r²) grows strictly with the
// undistorted radius r until it covers maxRadius, the largest distorted radius of the image.
// Past a turning point two scene directions land on the same pixel and the model can not be
// inverted. Models without a RadialFactor are not checked.
func CheckRadialMonotonic(d Distorter, maxRadius float64) error {
	radial, ok := d.(interface{ RadialFactor(r2 float64) float64 })
	if !ok || maxRadius <= 0 {
		return nil
	}
	step := maxRadius / radialSteps
	prev := 0.0
	for r := step; r <= radialSearchLimit*math.Max(1, maxRadius); r += step {
		g := r * radial.RadialFactor(r*r)
		if math.IsNaN(g) || g <= prev {
			return errors.Errorf("distortion folds over at distorted radius %.4g before reaching the image corner radius %.4g",
				prev, maxRadius)
		}
		if g >= maxRadius {
			return nil
		}
		prev = g
	}
	return errors.Errorf("distortion never reaches the image corner radius %.4g", maxRadius)
}
