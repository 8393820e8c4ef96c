package capture

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// FrameSource delivers time aligned left/right frame pairs.
type FrameSource interface {
	// NextStereoFrame blocks until the next pair is available or ctx is done.
	NextStereoFrame(ctx context.Context) (left, right image.Image, err error)
	// Size is the size of each frame of a pair.
	Size() image.Point
	Close() error
}

// FrameGrabber delivers single frames, from a device or from disk.
type FrameGrabber interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// SideBySideSource splits the frames of a camera that delivers both eyes in one image: the
// left eye is columns [0, w/2) and the right eye columns [w/2, w).
type SideBySideSource struct {
	mu      sync.Mutex
	grabber FrameGrabber
	size    image.Point
	closed  bool
}

// NewSideBySideSource wraps grabber, whose frames must be twice as wide as eye.
func NewSideBySideSource(grabber FrameGrabber, eye image.Point) *SideBySideSource {
	return &SideBySideSource{grabber: grabber, size: eye}
}

// NextStereoFrame implements FrameSource.
func (s *SideBySideSource) NextStereoFrame(ctx context.Context) (image.Image, image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, newError(SourceClosed, nil, "side by side source")
	}
	frame, err := s.grabber.Read(ctx)
	if err != nil {
		return nil, nil, asCaptureError(err)
	}
	if frame == nil {
		return nil, nil, newError(FrameUnavailable, nil, "grabber returned no frame")
	}
	b := frame.Bounds()
	if b.Dx() != 2*s.size.X || b.Dy() != s.size.Y {
		return nil, nil, newError(InvalidFrame, nil, "expected a %dx%d side by side frame, got %dx%d",
			2*s.size.X, s.size.Y, b.Dx(), b.Dy())
	}
	half := b.Dx() / 2
	left := imaging.Crop(frame, image.Rect(b.Min.X, b.Min.Y, b.Min.X+half, b.Max.Y))
	right := imaging.Crop(frame, image.Rect(b.Min.X+half, b.Min.Y, b.Max.X, b.Max.Y))
	return left, right, nil
}

// Size implements FrameSource.
func (s *SideBySideSource) Size() image.Point {
	return s.size
}

// Close closes the underlying grabber. Closing twice is a no-op.
func (s *SideBySideSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.grabber.Close()
}

// asCaptureError keeps typed errors and classifies everything else as an unavailable frame.
func asCaptureError(err error) error {
	if err == nil {
		return nil
	}
	var capErr *CaptureError
	if errors.As(err, &capErr) {
		return err
	}
	return newError(FrameUnavailable, err, "reading frame")
}
