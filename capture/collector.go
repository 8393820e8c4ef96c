package capture

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/stereocalib/calibration"
	"go.viam.com/stereocalib/logging"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
)

// DefaultMaxFailures is how many reads in a row may fail before collection gives up.
const DefaultMaxFailures = 10

// Frame is one captured pair and what the detector made of it.
type Frame struct {
	Index        int
	Left, Right  image.Image
	LeftCorners  []r2.Point
	RightCorners []r2.Point
	LeftFound    bool
	RightFound   bool
}

// Usable reports whether the pattern was found in both images.
func (f *Frame) Usable() bool {
	return f.LeftFound && f.RightFound
}

// Collector reads frame pairs from a source and keeps the ones where the pattern is found in
// both images.
type Collector struct {
	Source   FrameSource
	Pattern  *calibration.Pattern
	Detector chessboard.Detector
	// Interval paces reads from live cameras so the board can be moved between views. Zero
	// reads as fast as the source delivers.
	Interval time.Duration
	// MaxViews stops collection once that many usable views are kept. Zero means no limit.
	MaxViews    int
	MaxFailures int
	Clock       clock.Clock
	Logger      logging.Logger
	// OnFrame, when set, is called with every frame read, usable or not.
	OnFrame func(*Frame) error
}

// NewCollector returns a collector using the pure Go detector for pattern.
func NewCollector(source FrameSource, pattern *calibration.Pattern, logger logging.Logger) *Collector {
	return &Collector{
		Source:      source,
		Pattern:     pattern,
		Detector:    chessboard.NewDetector(pattern.Cols, pattern.Rows, nil),
		MaxFailures: DefaultMaxFailures,
		Clock:       clock.New(),
		Logger:      logger,
	}
}

// Collect reads until the source runs out, MaxViews usable views are kept, or ctx is done.
// Invalid frames and frames where the pattern is missed are skipped.
func (c *Collector) Collect(ctx context.Context) (calibration.StereoCorrespondences, error) {
	if err := c.Pattern.Validate(); err != nil {
		return nil, err
	}
	logger := c.logger()
	var ticker *clock.Ticker
	if c.Interval > 0 {
		ticker = c.clock().Ticker(c.Interval)
		defer ticker.Stop()
	}

	var views calibration.StereoCorrespondences
	failures := 0
	for index := 0; c.MaxViews <= 0 || len(views) < c.MaxViews; index++ {
		if ticker != nil && index > 0 && !goutils.SelectContextOrWaitChan(ctx, ticker.C) {
			return nil, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		left, right, err := c.Source.NextStereoFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, ErrSourceClosed):
				logger.Debugw("frame source finished", "frames", index, "views", len(views))
				return views, nil
			case errors.Is(err, ErrInvalidFrame):
				logger.Warnw("skipping invalid frame", "index", index, "error", err)
				continue
			}
			failures++
			if failures >= c.maxFailures() {
				return nil, errors.Wrapf(err, "%d reads failed in a row", failures)
			}
			logger.Warnw("frame read failed", "index", index, "error", err)
			continue
		}
		failures = 0

		frame, err := c.detect(ctx, index, left, right)
		if err != nil {
			return nil, err
		}
		if c.OnFrame != nil {
			if err := c.OnFrame(frame); err != nil {
				return nil, err
			}
		}
		if !frame.Usable() {
			logger.Debugw("pattern not found", "index", index, "left", frame.LeftFound, "right", frame.RightFound)
			continue
		}
		view, err := c.Pattern.StereoView(frame.LeftCorners, frame.RightCorners)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
		logger.Infow("kept view", "index", index, "views", len(views))
	}
	return views, nil
}

// detect runs the detector on both images concurrently.
func (c *Collector) detect(ctx context.Context, index int, left, right image.Image) (*Frame, error) {
	frame := &Frame{Index: index, Left: left, Right: right}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frame.LeftCorners, frame.LeftFound = c.Detector.FindCorners(left)
		return gctx.Err()
	})
	g.Go(func() error {
		frame.RightCorners, frame.RightFound = c.Detector.FindCorners(right)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *Collector) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NewBlankLogger("capture")
	}
	return c.Logger
}

func (c *Collector) clock() clock.Clock {
	if c.Clock == nil {
		return clock.New()
	}
	return c.Clock
}

func (c *Collector) maxFailures() int {
	if c.MaxFailures <= 0 {
		return DefaultMaxFailures
	}
	return c.MaxFailures
}

// CollectMono detects the pattern in every frame of grabber until it runs out and returns the
// views with the shared frame size. Frames of another size than the first one are skipped.
func CollectMono(
	ctx context.Context,
	grabber FrameGrabber,
	pattern *calibration.Pattern,
	detector chessboard.Detector,
	logger logging.Logger,
) (calibration.Correspondences, image.Point, error) {
	if err := pattern.Validate(); err != nil {
		return nil, image.Point{}, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("capture")
	}
	var (
		views calibration.Correspondences
		size  image.Point
	)
	for index := 0; ; index++ {
		img, err := grabber.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, image.Point{}, ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrSourceClosed) {
				break
			}
			if errors.Is(err, ErrInvalidFrame) {
				logger.Warnw("skipping invalid frame", "index", index, "error", err)
				continue
			}
			return nil, image.Point{}, err
		}
		if size == (image.Point{}) {
			size = img.Bounds().Size()
		} else if img.Bounds().Size() != size {
			logger.Warnw("skipping frame of another size", "index", index, "size", img.Bounds().Size(), "expected", size)
			continue
		}
		corners, found := detector.FindCorners(img)
		if !found {
			logger.Debugw("pattern not found", "index", index)
			continue
		}
		view, err := pattern.View(corners)
		if err != nil {
			return nil, image.Point{}, err
		}
		views = append(views, view)
	}
	logger.Infow("collected mono views", "views", len(views))
	return views, size, nil
}
