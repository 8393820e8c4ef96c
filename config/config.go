// Package config defines the JSON document that describes a calibration run.
package config

import (
	"fmt"
	"image"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/stereocalib/calibration"
	"go.viam.com/stereocalib/capture"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

// Mode selects what a run calibrates.
type Mode string

// The calibration modes.
const (
	ModeMono   Mode = "mono"
	ModeStereo Mode = "stereo"
)

// Detector backends.
const (
	DetectorSaddle = "saddle"
	DetectorOpenCV = "opencv"
)

// Config describes a calibration run.
type Config struct {
	Mode    Mode                `json:"mode" jsonschema:"enum=mono,enum=stereo"`
	Pattern calibration.Pattern `json:"pattern"`
	// Resolution names a preset (vga, hd720, fhd1080) for the per eye image size. It is
	// overridden by ImageWidth and ImageHeight.
	Resolution  string `json:"resolution,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	// Alpha defaults to 1 for mono and 0 for stereo runs.
	Alpha            *float64       `json:"alpha,omitempty" jsonschema:"minimum=0,maximum=1"`
	RationalModel    bool           `json:"rational_model,omitempty"`
	K3               bool           `json:"k3,omitempty"`
	RefineIntrinsics bool           `json:"refine_intrinsics,omitempty"`
	ZeroDisparity    *bool          `json:"zero_disparity,omitempty"`
	Detector         DetectorConfig `json:"detector"`
	Solver           SolverConfig   `json:"solver"`
	Input            InputConfig    `json:"input"`
	Output           OutputConfig   `json:"output"`
}

// DetectorConfig selects and tunes the corner detector.
type DetectorConfig struct {
	Backend       string  `json:"backend,omitempty" jsonschema:"enum=saddle,enum=opencv"`
	SubPixWindow  int     `json:"subpix_window,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty"`
	Epsilon       float64 `json:"epsilon,omitempty"`
}

// SolverConfig tunes the nonlinear solver.
type SolverConfig struct {
	MaxIterations int     `json:"max_iterations,omitempty"`
	Tolerance     float64 `json:"tolerance,omitempty"`
}

// InputConfig says where frames come from. Stereo runs read either side by side frames or a
// pair of directories; mono runs read a directory.
type InputConfig struct {
	SideBySide []string `json:"side_by_side,omitempty"`
	Left       string   `json:"left,omitempty"`
	Right      string   `json:"right,omitempty"`
	Images     string   `json:"images,omitempty"`
	MaxViews   int      `json:"max_views,omitempty"`
	// GuessLeft and GuessRight are mono records whose intrinsics seed a stereo run.
	GuessLeft  string `json:"guess_left,omitempty"`
	GuessRight string `json:"guess_right,omitempty"`
}

// OutputConfig says where results are written.
type OutputConfig struct {
	Record string `json:"record"`
	// Overlays is a directory that receives a corner overlay per frame.
	Overlays string `json:"overlays,omitempty"`
	// Plot is an image file that receives the per view error chart.
	Plot string `json:"plot,omitempty"`
}

// Validate ensures all parts of the config are valid. Every problem is reported, not only the
// first one.
func (cfg *Config) Validate(path string) error {
	var errs error
	switch cfg.Mode {
	case ModeMono, ModeStereo:
	case "":
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "mode"))
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", cfg.Mode)))
	}
	if err := cfg.Pattern.Validate(); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(fmt.Sprintf("%s.pattern", path), err))
	}
	if cfg.Resolution != "" {
		if _, ok := capture.ResolutionByName(cfg.Resolution); !ok {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("unknown resolution %q", cfg.Resolution)))
		}
	}
	if cfg.ImageWidth < 0 || cfg.ImageHeight < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("image size can not be negative")))
	}
	if cfg.Alpha != nil && !(*cfg.Alpha >= 0 && *cfg.Alpha <= 1) {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("alpha must be within [0, 1], got %v", *cfg.Alpha)))
	}
	errs = multierr.Append(errs, cfg.Detector.Validate(fmt.Sprintf("%s.detector", path)))
	errs = multierr.Append(errs, cfg.Solver.Validate(fmt.Sprintf("%s.solver", path)))
	errs = multierr.Append(errs, cfg.Input.Validate(fmt.Sprintf("%s.input", path), cfg.Mode))
	if cfg.Output.Record == "" {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.output", path), "record"))
	}
	return errs
}

// Validate checks the detector settings.
func (cfg *DetectorConfig) Validate(path string) error {
	var errs error
	switch cfg.Backend {
	case "", DetectorSaddle, DetectorOpenCV:
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Errorf("unknown backend %q", cfg.Backend)))
	}
	if cfg.SubPixWindow < 0 || cfg.MaxIterations < 0 || cfg.Epsilon < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.New("settings can not be negative")))
	}
	return errs
}

// Validate checks the solver settings.
func (cfg *SolverConfig) Validate(path string) error {
	if cfg.MaxIterations < 0 || cfg.Tolerance < 0 || math.IsNaN(cfg.Tolerance) {
		return goutils.NewConfigValidationError(path, errors.New("settings can not be negative"))
	}
	return nil
}

// Validate checks that the input matches the mode.
func (cfg *InputConfig) Validate(path string, mode Mode) error {
	if cfg.MaxViews < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_views can not be negative"))
	}
	switch mode {
	case ModeMono:
		if cfg.Images == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "images")
		}
	case ModeStereo:
		dirs := cfg.Left != "" || cfg.Right != ""
		if len(cfg.SideBySide) > 0 && dirs {
			return goutils.NewConfigValidationError(path, errors.New("side_by_side and left/right are exclusive"))
		}
		if len(cfg.SideBySide) == 0 && !dirs {
			return goutils.NewConfigValidationFieldRequiredError(path, "side_by_side")
		}
		if dirs && (cfg.Left == "" || cfg.Right == "") {
			return goutils.NewConfigValidationError(path, errors.New("left and right must be given together"))
		}
		if (cfg.GuessLeft == "") != (cfg.GuessRight == "") {
			return goutils.NewConfigValidationError(path, errors.New("guess_left and guess_right must be given together"))
		}
	}
	return nil
}

// applyDefaults fills in what the document left out.
func (cfg *Config) applyDefaults() {
	if cfg.Alpha == nil {
		alpha := calibration.DefaultStereoAlpha
		if cfg.Mode == ModeMono {
			alpha = calibration.DefaultMonoAlpha
		}
		cfg.Alpha = &alpha
	}
	if cfg.ZeroDisparity == nil {
		enabled := true
		cfg.ZeroDisparity = &enabled
	}
	if cfg.Detector.Backend == "" {
		cfg.Detector.Backend = DetectorSaddle
	}
	if cfg.Detector.SubPixWindow == 0 {
		cfg.Detector.SubPixWindow = chessboard.DefaultSubPixWindow
	}
	if cfg.Detector.MaxIterations == 0 {
		cfg.Detector.MaxIterations = chessboard.DefaultTermCriteria.MaxIter
	}
	if cfg.Detector.Epsilon == 0 {
		cfg.Detector.Epsilon = chessboard.DefaultTermCriteria.Epsilon
	}
	if cfg.Solver.MaxIterations == 0 {
		cfg.Solver.MaxIterations = calibration.DefaultSolverSettings.MaxIterations
	}
	if cfg.Solver.Tolerance == 0 {
		cfg.Solver.Tolerance = calibration.DefaultSolverSettings.Epsilon
	}
	if cfg.ImageWidth == 0 && cfg.ImageHeight == 0 && cfg.Resolution != "" {
		if res, ok := capture.ResolutionByName(cfg.Resolution); ok {
			cfg.ImageWidth, cfg.ImageHeight = res.Width, res.Height
		}
	}
}

// ImageSize is the configured per eye size, or the zero point when it is left to the input.
func (cfg *Config) ImageSize() image.Point {
	return image.Pt(cfg.ImageWidth, cfg.ImageHeight)
}

// DetectionConfiguration turns the detector settings into chessboard parameters.
func (cfg *Config) DetectionConfiguration() *chessboard.DetectionConfiguration {
	det := chessboard.DefaultDetectionConfiguration()
	det.SubPix.HalfWindow = cfg.Detector.SubPixWindow
	det.SubPix.Criteria = chessboard.TermCriteria{MaxIter: cfg.Detector.MaxIterations, Epsilon: cfg.Detector.Epsilon}
	return det
}

// CalibrationOptions turns the config into calibration options.
func (cfg *Config) CalibrationOptions() []calibration.Option {
	opts := []calibration.Option{
		calibration.WithAlpha(*cfg.Alpha),
		calibration.WithZeroDisparity(*cfg.ZeroDisparity),
		calibration.WithSolverSettings(calibration.SolverSettings{
			MaxIterations: cfg.Solver.MaxIterations,
			Epsilon:       cfg.Solver.Tolerance,
		}),
	}
	if cfg.RationalModel {
		opts = append(opts, calibration.WithRationalModel())
	}
	if cfg.K3 {
		opts = append(opts, calibration.WithK3())
	}
	if cfg.RefineIntrinsics {
		opts = append(opts, calibration.WithRefineIntrinsics())
	}
	return opts
}
