package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// minPointsPerView is what a planar homography needs.
const minPointsPerView = 4

// View is one image's worth of board points and the pixels they were detected at.
type View struct {
	ObjectPoints []r3.Vector `json:"object_points"`
	ImagePoints  []r2.Point  `json:"image_points"`
}

// Correspondences is the ordered list of views of one calibration run.
type Correspondences []View

// Validate checks the shape invariants: at least one view, equal 3D and 2D lengths in every
// view, and the same point count across views.
func (c Correspondences) Validate() error {
	if len(c) == 0 {
		return newError(InsufficientData, "no views")
	}
	n := len(c[0].ObjectPoints)
	for i, v := range c {
		if len(v.ObjectPoints) != len(v.ImagePoints) {
			return newError(ShapeMismatch, "view %d has %d object points and %d image points",
				i, len(v.ObjectPoints), len(v.ImagePoints))
		}
		if len(v.ObjectPoints) != n {
			return newError(ShapeMismatch, "view %d has %d points, view 0 has %d", i, len(v.ObjectPoints), n)
		}
	}
	if n < minPointsPerView {
		return newError(InsufficientData, "views need at least %d points, got %d", minPointsPerView, n)
	}
	for i, v := range c {
		for _, pt := range v.ObjectPoints {
			if pt.Z != 0 {
				return newError(InvalidInput, "view %d: object points must lie on the z=0 board plane", i)
			}
		}
	}
	return nil
}

// NumPoints is the total number of points over all views.
func (c Correspondences) NumPoints() int {
	total := 0
	for _, v := range c {
		total += len(v.ImagePoints)
	}
	return total
}

// StereoView is one stereo exposure: the board points and their detections in both images.
type StereoView struct {
	ObjectPoints []r3.Vector `json:"object_points"`
	Left         []r2.Point  `json:"left"`
	Right        []r2.Point  `json:"right"`
}

// StereoCorrespondences is the ordered list of stereo views of one calibration run.
type StereoCorrespondences []StereoView

// Validate checks the mono invariants on each side and that left and right agree pairwise.
func (c StereoCorrespondences) Validate() error {
	if len(c) == 0 {
		return newError(InsufficientData, "no stereo views")
	}
	for i, v := range c {
		if len(v.Left) != len(v.Right) {
			return newError(ShapeMismatch, "stereo view %d has %d left and %d right points", i, len(v.Left), len(v.Right))
		}
	}
	if err := c.Left().Validate(); err != nil {
		return err
	}
	return c.Right().Validate()
}

// Left returns the left camera's correspondences.
func (c StereoCorrespondences) Left() Correspondences {
	out := make(Correspondences, len(c))
	for i, v := range c {
		out[i] = View{ObjectPoints: v.ObjectPoints, ImagePoints: v.Left}
	}
	return out
}

// Right returns the right camera's correspondences.
func (c StereoCorrespondences) Right() Correspondences {
	out := make(Correspondences, len(c))
	for i, v := range c {
		out[i] = View{ObjectPoints: v.ObjectPoints, ImagePoints: v.Right}
	}
	return out
}

func validateSize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return newError(InvalidInput, "image size must be positive, got %dx%d", size.X, size.Y)
	}
	return nil
}
