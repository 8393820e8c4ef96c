package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is the five coefficient radial/tangential model.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// RationalPolynomialDistortionType adds a rational radial term, for wider lenses.
	RationalPolynomialDistortionType = DistortionType("rational_polynomial")
)

// Distorter defines a Transform that takes an undistorted normalized point and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	// Parameters returns the coefficients in (k1, k2, p1, p2, k3[, k4, k5, k6]) order.
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case RationalPolynomialDistortionType:
		return NewRationalPolynomial(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// NewDistorterFromCoefficients picks the model from the coefficient count: up to five
// coefficients is Brown-Conrady, eight is the rational model.
func NewDistorterFromCoefficients(coefficients []float64) (Distorter, error) {
	switch {
	case len(coefficients) <= 5:
		return NewBrownConrady(coefficients)
	case len(coefficients) == 8:
		return NewRationalPolynomial(coefficients)
	default:
		return nil, InvalidDistortionError(
			errors.Errorf("expected 5 or 8 coefficients, got %d", len(coefficients)).Error())
	}
}
