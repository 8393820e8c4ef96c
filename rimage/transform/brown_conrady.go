package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConrady is the radial (k1, k2, k3) plus tangential (p1, p2) lens model.
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + p1*(r² + 2*y²) + 2*p2*x*y
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
}

// NewBrownConrady takes coefficients in (k1, k2, p1, p2, k3) order. Missing trailing values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	padded := make([]float64, 5)
	copy(padded, inp)
	bc := &BrownConrady{padded[0], padded[1], padded[2], padded[3], padded[4]}
	return bc, bc.CheckValid()
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady coefficients must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns (k1, k2, p1, p2, k3).
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// Transform distorts a normalized point.
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	return tangential(x, y, r2, radial, bc.TangentialP1, bc.TangentialP2)
}

// RationalPolynomial divides the Brown-Conrady radial term by a second polynomial in r².
type RationalPolynomial struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RadialK4     float64 `json:"rk4"`
	RadialK5     float64 `json:"rk5"`
	RadialK6     float64 `json:"rk6"`
}

// NewRationalPolynomial takes coefficients in (k1, k2, p1, p2, k3, k4, k5, k6) order.
func NewRationalPolynomial(inp []float64) (*RationalPolynomial, error) {
	if len(inp) > 8 {
		return nil, errors.Errorf("list of parameters too long, expected max 8, got %d", len(inp))
	}
	p := make([]float64, 8)
	copy(p, inp)
	rp := &RationalPolynomial{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7]}
	return rp, rp.CheckValid()
}

// CheckValid checks if the fields for RationalPolynomial have valid inputs.
func (rp *RationalPolynomial) CheckValid() error {
	if rp == nil {
		return InvalidDistortionError("RationalPolynomial shaped distortion_parameters not provided")
	}
	for _, p := range rp.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("RationalPolynomial coefficients must be finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (rp *RationalPolynomial) ModelType() DistortionType {
	return RationalPolynomialDistortionType
}

// Parameters returns (k1, k2, p1, p2, k3, k4, k5, k6).
func (rp *RationalPolynomial) Parameters() []float64 {
	if rp == nil {
		return []float64{}
	}
	return []float64{
		rp.RadialK1, rp.RadialK2, rp.TangentialP1, rp.TangentialP2,
		rp.RadialK3, rp.RadialK4, rp.RadialK5, rp.RadialK6,
	}
}

// Transform distorts a normalized point.
func (rp *RationalPolynomial) Transform(x, y float64) (float64, float64) {
	if rp == nil {
		return x, y
	}
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	num := 1 + rp.RadialK1*r2 + rp.RadialK2*r4 + rp.RadialK3*r6
	den := 1 + rp.RadialK4*r2 + rp.RadialK5*r4 + rp.RadialK6*r6
	if den == 0 {
		return x, y
	}
	return tangential(x, y, r2, num/den, rp.TangentialP1, rp.TangentialP2)
}

func tangential(x, y, r2, radial, p1, p2 float64) (float64, float64) {
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}
