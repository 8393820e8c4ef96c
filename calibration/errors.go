package calibration

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a calibration step refused to produce a record.
type ErrorKind int

const (
	// InsufficientData is returned when there are fewer usable views or points than the solver needs.
	InsufficientData ErrorKind = iota + 1
	// ConvergenceFailure is returned when the nonlinear solve does not converge or converges to
	// an invalid or ill-conditioned model.
	ConvergenceFailure
	// ShapeMismatch is returned when point lists, views or image sizes disagree.
	ShapeMismatch
	// InvalidInput is returned for zero-sized images, degenerate patterns or out of range parameters.
	InvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case InsufficientData:
		return "insufficient data"
	case ConvergenceFailure:
		return "convergence failure"
	case ShapeMismatch:
		return "shape mismatch"
	case InvalidInput:
		return "invalid input"
	}
	return fmt.Sprintf("unknown calibration error (%d)", int(k))
}

// CalibrationError is the typed failure returned by every calibration entry point.
type CalibrationError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CalibrationError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is reports whether target is a CalibrationError of the same kind, so that
// errors.Is(err, ErrShapeMismatch) matches any shape mismatch.
func (e *CalibrationError) Is(target error) bool {
	var other *CalibrationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels to compare against with errors.Is.
var (
	ErrInsufficientData   = &CalibrationError{Kind: InsufficientData}
	ErrConvergenceFailure = &CalibrationError{Kind: ConvergenceFailure}
	ErrShapeMismatch      = &CalibrationError{Kind: ShapeMismatch}
	ErrInvalidInput       = &CalibrationError{Kind: InvalidInput}
)

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return &CalibrationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a calibration error anywhere in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var calErr *CalibrationError
	if errors.As(err, &calErr) {
		return calErr.Kind
	}
	return 0
}
