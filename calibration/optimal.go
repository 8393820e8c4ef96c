package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// borderSamples is the side of the grid of source pixels pushed through the model to find the
// valid and full extents of the corrected image.
const borderSamples = 9

// extent is an axis aligned rectangle with float corners.
type extent struct {
	x0, y0, x1, y1 float64
}

func (e extent) width() float64  { return e.x1 - e.x0 }
func (e extent) height() float64 { return e.y1 - e.y0 }

// correctedExtents undistorts a grid of source pixels, rotates them by rect and projects them
// with the 3x3 part of proj (both optional). outer contains every sample; inner is bounded by
// the innermost sample of each image side, so everything inside it maps back into the source.
// A sample the distortion model can not invert is a ConvergenceFailure.
func correctedExtents(model *transform.PinholeCameraModel, rect, proj mat.Matrix, size image.Point) (inner, outer extent, err error) {
	inner = extent{math.Inf(-1), math.Inf(-1), math.Inf(1), math.Inf(1)}
	outer = extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	n := borderSamples
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			src := r2.Point{
				X: float64(j) * float64(size.X-1) / float64(n-1),
				Y: float64(i) * float64(size.Y-1) / float64(n-1),
			}
			p, ok := correctPointChecked(model, rect, proj, src)
			if !ok {
				return inner, outer, newError(ConvergenceFailure,
					"lens model can not be inverted at pixel (%.0f, %.0f)", src.X, src.Y)
			}

			outer.x0 = math.Min(outer.x0, p.X)
			outer.y0 = math.Min(outer.y0, p.Y)
			outer.x1 = math.Max(outer.x1, p.X)
			outer.y1 = math.Max(outer.y1, p.Y)
			if j == 0 {
				inner.x0 = math.Max(inner.x0, p.X)
			}
			if j == n-1 {
				inner.x1 = math.Min(inner.x1, p.X)
			}
			if i == 0 {
				inner.y0 = math.Max(inner.y0, p.Y)
			}
			if i == n-1 {
				inner.y1 = math.Min(inner.y1, p.Y)
			}
		}
	}
	if inner.width() <= 0 || inner.height() <= 0 {
		return inner, outer, newError(ConvergenceFailure, "lens model leaves no valid corrected region")
	}
	return inner, outer, nil
}

// correctPoint maps a distorted source pixel to its corrected position: normalized undistorted
// coordinates, optionally rotated by rect and projected with proj.
func correctPoint(model *transform.PinholeCameraModel, rect, proj mat.Matrix, src r2.Point) r2.Point {
	p, _ := correctPointChecked(model, rect, proj, src)
	return p
}

func correctPointChecked(model *transform.PinholeCameraModel, rect, proj mat.Matrix, src r2.Point) (r2.Point, bool) {
	p, ok := model.UndistortPixelChecked(src)
	if rect != nil {
		v := transform.RotateVector(rect, r3.Vector{X: p.X, Y: p.Y, Z: 1})
		if v.Z <= 0 {
			return p, false
		}
		p = r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}
	}
	if proj != nil {
		p = transform.ApplyHomography(leftSquare(proj), p)
	}
	return p, ok
}

// roiFromExtent rounds an extent inwards to whole pixels and clips it to the image.
func roiFromExtent(e extent, size image.Point) image.Rectangle {
	const slack = 1e-6
	x0 := int(math.Ceil(e.x0 - slack))
	y0 := int(math.Ceil(e.y0 - slack))
	w := int(math.Floor(e.width() + slack))
	h := int(math.Floor(e.height() + slack))
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(x0, y0, x0+w, y0+h).Intersect(image.Rect(0, 0, size.X, size.Y))
}

// OptimalNewCameraMatrix returns the camera matrix of the undistorted image for the given
// alpha: 0 scales the image so that only valid pixels are visible, 1 keeps every source
// pixel, values between interpolate. It also returns the valid pixel ROI of that image, which
// is never empty on success.
func OptimalNewCameraMatrix(
	model *transform.PinholeCameraModel,
	size image.Point,
	alpha float64,
) (*mat.Dense, image.Rectangle, error) {
	inner, outer, err := correctedExtents(model, nil, nil, size)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	w, h := float64(size.X-1), float64(size.Y-1)

	fx0, fy0 := w/inner.width(), h/inner.height()
	cx0, cy0 := -fx0*inner.x0, -fy0*inner.y0
	fx1, fy1 := w/outer.width(), h/outer.height()
	cx1, cy1 := -fx1*outer.x0, -fy1*outer.y0

	lerp := func(a, b float64) float64 { return a*(1-alpha) + b*alpha }
	newK := mat.NewDense(3, 3, []float64{
		lerp(fx0, fx1), 0, lerp(cx0, cx1),
		0, lerp(fy0, fy1), lerp(cy0, cy1),
		0, 0, 1,
	})

	validInner, _, err := correctedExtents(model, nil, newK, size)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	roi := roiFromExtent(validInner, size)
	if roi.Empty() {
		return nil, image.Rectangle{}, newError(ConvergenceFailure, "undistorted image has no valid region")
	}
	return newK, roi, nil
}

// leftSquare returns the 3x3 part of a 3x3 or 3x4 projection matrix.
func leftSquare(proj mat.Matrix) *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, proj.At(i, j))
		}
	}
	return out
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
