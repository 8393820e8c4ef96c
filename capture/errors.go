// Package capture delivers stereo frame pairs to the calibration pipeline and turns them into
// corner correspondences.
package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a frame source failure.
type ErrorKind int

const (
	// FrameUnavailable means no frame could be read, for example because the device stalled
	// or a sequence ran out of images.
	FrameUnavailable ErrorKind = iota + 1
	// SourceClosed means the source was used after Close.
	SourceClosed
	// InvalidFrame means a frame was read but can not be used, for example because its size
	// does not match the source.
	InvalidFrame
)

func (k ErrorKind) String() string {
	switch k {
	case FrameUnavailable:
		return "frame unavailable"
	case SourceClosed:
		return "source closed"
	case InvalidFrame:
		return "invalid frame"
	}
	return fmt.Sprintf("unknown capture error (%d)", int(k))
}

// CaptureError is the typed failure of a FrameSource. It is distinct from an empty but valid
// frame, which is returned without error.
type CaptureError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *CaptureError) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is matches any CaptureError of the same kind.
func (e *CaptureError) Is(target error) bool {
	var other *CaptureError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinels to compare against with errors.Is.
var (
	ErrFrameUnavailable = &CaptureError{Kind: FrameUnavailable}
	ErrSourceClosed     = &CaptureError{Kind: SourceClosed}
	ErrInvalidFrame     = &CaptureError{Kind: InvalidFrame}
)

func newError(kind ErrorKind, err error, format string, args ...interface{}) error {
	return &CaptureError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
