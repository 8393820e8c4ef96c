package capture

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	// register decoders beyond the ones imaging pulls in.
	_ "github.com/lmittmann/ppm"
	_ "github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".qoi", ".ppm", ".gif"}

// ListImages returns the image files of dir in lexical order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		return filepath.Join(dir, e.Name()), !e.IsDir() && lo.Contains(imageExtensions, ext)
	})
	sort.Strings(files)
	return files, nil
}

// ImageSequence is a FrameGrabber over image files. Once every file has been read it returns
// a FrameUnavailable error wrapping io.EOF.
type ImageSequence struct {
	mu     sync.Mutex
	paths  []string
	next   int
	closed bool
}

// NewImageSequence reads paths in order.
func NewImageSequence(paths []string) *ImageSequence {
	return &ImageSequence{paths: append([]string(nil), paths...)}
}

// NewDirectorySequence reads the images of dir in lexical order.
func NewDirectorySequence(dir string) (*ImageSequence, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return NewImageSequence(paths), nil
}

// Read implements FrameGrabber.
func (s *ImageSequence) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, newError(SourceClosed, nil, "image sequence")
	}
	if s.next >= len(s.paths) {
		return nil, newError(FrameUnavailable, io.EOF, "image sequence exhausted")
	}
	path := s.paths[s.next]
	s.next++
	img, err := decodeFile(path)
	if err != nil {
		return nil, newError(InvalidFrame, err, "%s", path)
	}
	return img, nil
}

// Paths returns the files of the sequence.
func (s *ImageSequence) Paths() []string {
	return s.paths
}

// Len is the number of files of the sequence.
func (s *ImageSequence) Len() int {
	return len(s.paths)
}

// Close implements FrameGrabber.
func (s *ImageSequence) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func decodeFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return imaging.Decode(f, imaging.AutoOrientation(true))
}

// DirectorySource pairs the images of a left and a right sequence by position. Every frame
// must have the size of the first left frame.
type DirectorySource struct {
	left, right *ImageSequence
	size        image.Point
}

// NewDirectorySource pairs the images of leftDir and rightDir, which must hold the same
// number of images.
func NewDirectorySource(leftDir, rightDir string) (*DirectorySource, error) {
	left, err := NewDirectorySequence(leftDir)
	if err != nil {
		return nil, err
	}
	right, err := NewDirectorySequence(rightDir)
	if err != nil {
		return nil, err
	}
	if left.Len() != right.Len() {
		return nil, errors.Errorf("%s has %d images but %s has %d", leftDir, left.Len(), rightDir, right.Len())
	}
	first, err := decodeFile(left.paths[0])
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", left.paths[0])
	}
	return &DirectorySource{left: left, right: right, size: first.Bounds().Size()}, nil
}

// NextStereoFrame implements FrameSource.
func (s *DirectorySource) NextStereoFrame(ctx context.Context) (image.Image, image.Image, error) {
	left, err := s.left.Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	right, err := s.right.Read(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, img := range []image.Image{left, right} {
		if img.Bounds().Size() != s.size {
			return nil, nil, newError(InvalidFrame, nil, "expected %v frames, got %v", s.size, img.Bounds().Size())
		}
	}
	return left, right, nil
}

// Size implements FrameSource.
func (s *DirectorySource) Size() image.Point {
	return s.size
}

// Close implements FrameSource.
func (s *DirectorySource) Close() error {
	return errors.Wrap(multierr.Combine(s.left.Close(), s.right.Close()), "closing directory source")
}
