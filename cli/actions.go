package cli

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/stereocalib/calibration"
	"go.viam.com/stereocalib/calibration/report"
	"go.viam.com/stereocalib/capture"
	"go.viam.com/stereocalib/config"
	"go.viam.com/stereocalib/logging"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	_, _ = fmt.Fprintf(w, format+"\n", a...)
}

func loggerFor(name string) logging.Logger {
	return logging.Global().Sublogger(name)
}

func readConfig(c *cli.Context, mode config.Mode) (*config.Config, error) {
	cfg, err := config.Read(c.Path(configFlag))
	if err != nil {
		return nil, err
	}
	if cfg.Mode != mode {
		return nil, errors.Errorf("%s describes a %s run, not a %s run", c.Path(configFlag), cfg.Mode, mode)
	}
	return cfg, nil
}

func checkSize(cfg *config.Config, size image.Point) error {
	if want := cfg.ImageSize(); want != (image.Point{}) && want != size {
		return errors.Errorf("configured image size %v does not match the input images %v", want, size)
	}
	return nil
}

// MonoAction calibrates one camera from a directory of images.
func MonoAction(c *cli.Context) error {
	cfg, err := readConfig(c, config.ModeMono)
	if err != nil {
		return err
	}
	logger := loggerFor("mono")
	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	seq, err := capture.NewDirectorySequence(cfg.Input.Images)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(seq.Close)

	views, size, err := capture.CollectMono(c.Context, seq, &cfg.Pattern, detector, logger)
	if err != nil {
		return err
	}
	if err := checkSize(cfg, size); err != nil {
		return err
	}
	if cfg.Input.MaxViews > 0 && len(views) > cfg.Input.MaxViews {
		views = views[:cfg.Input.MaxViews]
	}
	printf(c.App.Writer, "found the pattern in %d of %d images", len(views), seq.Len())

	opts := append(cfg.CalibrationOptions(), calibration.WithLogger(logger))
	rec, err := calibration.CalibrateMono(views, size, opts...)
	if err != nil {
		return err
	}
	if err := calibration.SaveMonoRecord(cfg.Output.Record, rec); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s (rms %.4f px)", cfg.Output.Record, rec.RMS)
	summaries, err := report.Mono(rec)
	if err != nil {
		return err
	}
	return writeReport(c.App.Writer, summaries, cfg.Output.Plot, false)
}

func stereoSource(cfg *config.Config) (capture.FrameSource, error) {
	if len(cfg.Input.SideBySide) > 0 {
		eye := cfg.ImageSize()
		if eye.X == 0 || eye.Y == 0 {
			return nil, errors.New("side by side input needs a resolution or image_width and image_height")
		}
		return capture.NewSideBySideSource(capture.NewImageSequence(cfg.Input.SideBySide), eye), nil
	}
	src, err := capture.NewDirectorySource(cfg.Input.Left, cfg.Input.Right)
	if err != nil {
		return nil, err
	}
	if err := checkSize(cfg, src.Size()); err != nil {
		return nil, err
	}
	return src, nil
}

func stereoGuess(cfg *config.Config) (*calibration.StereoGuess, error) {
	if cfg.Input.GuessLeft == "" {
		return nil, nil
	}
	left, err := calibration.LoadMonoRecord(cfg.Input.GuessLeft)
	if err != nil {
		return nil, err
	}
	right, err := calibration.LoadMonoRecord(cfg.Input.GuessRight)
	if err != nil {
		return nil, err
	}
	return calibration.NewStereoGuess(left, right), nil
}

func saveOverlays(dir string, cols int) func(*capture.Frame) error {
	return func(f *capture.Frame) error {
		for _, side := range []struct {
			name    string
			img     image.Image
			corners []r2.Point
			found   bool
		}{
			{"left", f.Left, f.LeftCorners, f.LeftFound},
			{"right", f.Right, f.RightCorners, f.RightFound},
		} {
			path := filepath.Join(dir, fmt.Sprintf("%03d_%s.png", f.Index, side.name))
			if err := chessboard.SaveCornerOverlay(path, side.img, side.corners, cols, side.found); err != nil {
				return errors.Wrapf(err, "writing overlay %s", path)
			}
		}
		return nil
	}
}

// StereoAction collects stereo views, calibrates and rectifies the pair.
func StereoAction(c *cli.Context) error {
	cfg, err := readConfig(c, config.ModeStereo)
	if err != nil {
		return err
	}
	logger := loggerFor("stereo")
	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	guess, err := stereoGuess(cfg)
	if err != nil {
		return err
	}
	src, err := stereoSource(cfg)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(src.Close)

	collector := capture.NewCollector(src, &cfg.Pattern, logger.Sublogger("capture"))
	collector.Detector = detector
	collector.MaxViews = cfg.Input.MaxViews
	if cfg.Output.Overlays != "" {
		if err := os.MkdirAll(cfg.Output.Overlays, 0o750); err != nil {
			return errors.Wrap(err, "creating overlay directory")
		}
		collector.OnFrame = saveOverlays(cfg.Output.Overlays, cfg.Pattern.Cols)
	}
	views, err := collector.Collect(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "found the pattern in both images of %d pairs", len(views))

	opts := append(cfg.CalibrationOptions(), calibration.WithLogger(logger))
	rec, err := calibration.CalibrateStereo(views, src.Size(), guess, opts...)
	if err != nil {
		return err
	}
	if err := calibration.SaveStereoRecord(cfg.Output.Record, rec); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s (rms %.4f px, baseline %.4f)", cfg.Output.Record, rec.RMS, rec.Baseline())
	summaries, err := report.Stereo(rec)
	if err != nil {
		return err
	}
	return writeReport(c.App.Writer, summaries, cfg.Output.Plot, false)
}

func writeReport(w io.Writer, summaries []*report.Summary, plotPath string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return err
		}
	} else {
		printf(w, "%s", report.Table(summaries))
	}
	if plotPath != "" {
		return report.SavePlot(plotPath, summaries)
	}
	return nil
}

// ScoreAction prints the reprojection report of a stored record.
func ScoreAction(c *cli.Context) error {
	var (
		summaries []*report.Summary
		err       error
	)
	if c.Bool(stereoFlag) {
		var rec *calibration.StereoCalibrationRecord
		if rec, err = calibration.LoadStereoRecord(c.Path(recordFlag)); err != nil {
			return err
		}
		summaries, err = report.Stereo(rec)
	} else {
		var rec *calibration.MonoCalibrationRecord
		if rec, err = calibration.LoadMonoRecord(c.Path(recordFlag)); err != nil {
			return err
		}
		summaries, err = report.Mono(rec)
	}
	if err != nil {
		return err
	}
	return writeReport(c.App.Writer, summaries, c.Path(plotFlag), c.Bool(outputJSONFlag))
}

// RectifyAction rectifies one stereo pair with a stored record.
func RectifyAction(c *cli.Context) error {
	rec, err := calibration.LoadStereoRecord(c.Path(recordFlag))
	if err != nil {
		return err
	}
	if alpha := c.Float64(alphaFlag); alpha >= 0 {
		if rec, err = rec.Rerectify(alpha); err != nil {
			return err
		}
	}
	left, err := imaging.Open(c.Path(leftFlag))
	if err != nil {
		return errors.Wrap(err, "opening left image")
	}
	right, err := imaging.Open(c.Path(rightFlag))
	if err != nil {
		return errors.Wrap(err, "opening right image")
	}
	outLeft, outRight, err := rec.RectifyPair(left, right)
	if err != nil {
		return err
	}
	if err := imaging.Save(outLeft, c.Path(outLeftFlag)); err != nil {
		return errors.Wrap(err, "saving left image")
	}
	if err := imaging.Save(outRight, c.Path(outRightFlag)); err != nil {
		return errors.Wrap(err, "saving right image")
	}
	printf(c.App.Writer, "rectified pair is %v", outLeft.Bounds().Size())
	return nil
}

// UndistortAction undistorts one image with a stored mono record.
func UndistortAction(c *cli.Context) error {
	rec, err := calibration.LoadMonoRecord(c.Path(recordFlag))
	if err != nil {
		return err
	}
	img, err := imaging.Open(c.Path(imageFlag))
	if err != nil {
		return errors.Wrap(err, "opening image")
	}
	roi := rec.ROI
	if c.Bool(noCropFlag) {
		roi = image.Rectangle{Max: rec.ImageSize}
	}
	out, err := calibration.Rectify(img, rec.MapX, rec.MapY, roi)
	if err != nil {
		return err
	}
	return errors.Wrap(imaging.Save(out, c.Path(outFlag)), "saving image")
}

// SchemaAction prints the JSON schema of the config document.
func SchemaAction(c *cli.Context) error {
	out, err := config.SchemaJSON()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// PatternAction renders a printable chessboard.
func PatternAction(c *cli.Context) error {
	cols, rows, square := c.Int(colsFlag), c.Int(rowsFlag), c.Int(squarePxFlag)
	if _, err := calibration.NewPattern(cols, rows, float64(square)); err != nil {
		return err
	}
	img := chessboard.RenderPrintable(cols, rows, square)
	if err := imaging.Save(img, c.Path(outFlag)); err != nil {
		return errors.Wrap(err, "saving pattern")
	}
	printf(c.App.Writer, "wrote a %dx%d inner corner board to %s", cols, rows, c.Path(outFlag))
	return nil
}

// VersionAction prints the module version.
func VersionAction(c *cli.Context) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("error reading build info")
	}
	if c.Bool(debugFlag) {
		printf(c.App.Writer, "%s", info.String())
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	version := "?"
	if rev, ok := settings["vcs.revision"]; ok && len(rev) >= 8 {
		version = rev[:8]
		if settings["vcs.modified"] == "true" {
			version += "+"
		}
	}
	printf(c.App.Writer, "%s Git=%s Go=%s", info.Main.Path, version, info.GoVersion)
	return nil
}
