package calibration

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// MapSentinel marks destination pixels whose source coordinate falls outside the source image.
const MapSentinel = -1

// slack in pixels allowed past the source border before a sample counts as outside.
const borderSlack = 1e-3

// RemapField is an image sized table of source sampling coordinates along one axis.
type RemapField struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// Data is row-major, Data[y*Width+x] is for destination pixel (x, y).
	Data []float32 `json:"data"`
}

// NewRemapField returns a zeroed field.
func NewRemapField(width, height int) *RemapField {
	return &RemapField{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the sampling coordinate for destination pixel (x, y).
func (f *RemapField) At(x, y int) float32 {
	return f.Data[y*f.Width+x]
}

// Set stores the sampling coordinate for destination pixel (x, y).
func (f *RemapField) Set(x, y int, v float32) {
	f.Data[y*f.Width+x] = v
}

// Size returns the dimensions of the field.
func (f *RemapField) Size() image.Point {
	return image.Pt(f.Width, f.Height)
}

// BuildUndistortMaps builds the x and y sampling maps that undistort (and, given rect and proj,
// rectify) images of one camera, and the ROI of destination pixels fully covered by source data.
//
// rect is the 3x3 rectification rotation and proj the 3x3 or 3x4 projection of the corrected
// image. With proj nil the maps undistort only (mono mode), projecting with the optimal new
// camera matrix for alpha; alpha is ignored otherwise. Pixels that sample outside the source
// image hold MapSentinel in both maps.
func BuildUndistortMaps(
	model *transform.PinholeCameraModel,
	rect, proj mat.Matrix,
	size image.Point,
	alpha float64,
) (*RemapField, *RemapField, image.Rectangle, error) {
	if err := validateSize(size); err != nil {
		return nil, nil, image.Rectangle{}, err
	}
	if err := model.CheckValid(); err != nil {
		return nil, nil, image.Rectangle{}, newError(InvalidInput, "%v", err)
	}
	if rect != nil {
		if r, c := rect.Dims(); r != 3 || c != 3 {
			return nil, nil, image.Rectangle{}, newError(ShapeMismatch, "rectification must be 3x3, got %dx%d", r, c)
		}
	}

	var roi image.Rectangle
	if proj == nil {
		if err := validateAlpha(alpha); err != nil {
			return nil, nil, image.Rectangle{}, err
		}
		var err error
		if proj, roi, err = OptimalNewCameraMatrix(model, size, alpha); err != nil {
			return nil, nil, image.Rectangle{}, err
		}
	} else {
		if r, c := proj.Dims(); r != 3 || (c != 3 && c != 4) {
			return nil, nil, image.Rectangle{}, newError(ShapeMismatch, "projection must be 3x3 or 3x4, got %dx%d", r, c)
		}
		inner, _, err := correctedExtents(model, rect, proj, size)
		if err != nil {
			return nil, nil, image.Rectangle{}, err
		}
		roi = roiFromExtent(inner, size)
	}

	// destination pixel -> ray in the original camera frame: (P * R)^-1
	var pr, inv mat.Dense
	if rect != nil {
		pr.Mul(leftSquare(proj), rect)
	} else {
		pr.CloneFrom(leftSquare(proj))
	}
	if err := inv.Inverse(&pr); err != nil {
		return nil, nil, image.Rectangle{}, newError(InvalidInput, "projection is singular: %v", err)
	}

	mapX := NewRemapField(size.X, size.Y)
	mapY := NewRemapField(size.X, size.Y)
	maxX, maxY := float64(size.X-1), float64(size.Y-1)
	ir := inv.RawMatrix().Data
	for v := 0; v < size.Y; v++ {
		fv := float64(v)
		for u := 0; u < size.X; u++ {
			fu := float64(u)
			x := ir[0]*fu + ir[1]*fv + ir[2]
			y := ir[3]*fu + ir[4]*fv + ir[5]
			w := ir[6]*fu + ir[7]*fv + ir[8]
			sx, sy := float64(MapSentinel), float64(MapSentinel)
			if w > 0 {
				xd, yd := model.Distort(x/w, y/w)
				px, py := model.NormalizedToPixel(xd, yd)
				if px >= -borderSlack && px <= maxX+borderSlack && py >= -borderSlack && py <= maxY+borderSlack {
					sx = math.Min(math.Max(px, 0), maxX)
					sy = math.Min(math.Max(py, 0), maxY)
				}
			}
			mapX.Set(u, v, float32(sx))
			mapY.Set(u, v, float32(sy))
		}
	}
	return mapX, mapY, roi, nil
}
