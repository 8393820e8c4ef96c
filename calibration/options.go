package calibration

import (
	"go.viam.com/stereocalib/logging"
)

const (
	// DefaultMonoAlpha keeps every source pixel in the undistorted image.
	DefaultMonoAlpha = 1.0
	// DefaultStereoAlpha crops the rectified images to valid pixels only.
	DefaultStereoAlpha = 0.0
)

type options struct {
	alpha            *float64
	rational         bool
	k3               bool
	refineIntrinsics bool
	zeroDisparity    bool
	settings         SolverSettings
	logger           logging.Logger
}

// Option configures CalibrateMono and CalibrateStereo.
type Option func(*options)

// WithAlpha sets the crop tradeoff of the undistorted or rectified images, from 0 (only valid
// pixels) to 1 (all source pixels kept).
func WithAlpha(alpha float64) Option {
	return func(o *options) {
		o.alpha = &alpha
	}
}

// WithRationalModel solves for the eight coefficient rational distortion model instead of the
// five coefficient one.
func WithRationalModel() Option {
	return func(o *options) {
		o.rational = true
	}
}

// WithK3 frees the sixth order radial coefficient of the five coefficient model, which is
// otherwise held at zero (or at the guess's value). Only boards that reach the image corners
// constrain it.
func WithK3() Option {
	return func(o *options) {
		o.k3 = true
	}
}

// WithRefineIntrinsics lets the stereo solve refine the intrinsics of an initial guess instead
// of holding them fixed.
func WithRefineIntrinsics() Option {
	return func(o *options) {
		o.refineIntrinsics = true
	}
}

// WithZeroDisparity controls whether rectification makes the principal points of both cameras
// coincide, so that points at infinity have zero disparity. On by default.
func WithZeroDisparity(enabled bool) Option {
	return func(o *options) {
		o.zeroDisparity = enabled
	}
}

// WithSolverSettings overrides the Levenberg-Marquardt termination policy.
func WithSolverSettings(settings SolverSettings) Option {
	return func(o *options) {
		o.settings = settings
	}
}

// WithLogger sets the logger the solvers report progress to.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option, defaultAlpha float64) *options {
	o := &options{
		zeroDisparity: true,
		settings:      DefaultSolverSettings,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.alpha == nil {
		o.alpha = &defaultAlpha
	}
	if o.logger == nil {
		o.logger = logging.NewBlankLogger("calibration")
	}
	return o
}

func (o *options) numDistortion() int {
	if o.rational {
		return 8
	}
	return 5
}

// fixK3 reports whether k3 stays out of the solve. The rational model always solves it.
func (o *options) fixK3() bool {
	return !o.k3 && !o.rational
}

func validateAlpha(alpha float64) error {
	if !(alpha >= 0 && alpha <= 1) {
		return newError(InvalidInput, "alpha must be within [0, 1], got %v", alpha)
	}
	return nil
}
