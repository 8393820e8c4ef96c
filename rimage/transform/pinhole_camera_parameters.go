// Package transform holds the pinhole camera model, lens distortion models and the projective
// geometry helpers shared by detection and calibration.
package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	return nil
}

// Size returns the image size the intrinsics were estimated for.
func (params *PinholeCameraIntrinsics) Size() image.Point {
	return image.Pt(params.Width, params.Height)
}

// CameraMatrix returns the 3x3 matrix K = [fx 0 ppx; 0 fy ppy; 0 0 1].
func (params *PinholeCameraIntrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx and ppy out of a 3x3 camera matrix.
func NewPinholeCameraIntrinsicsFromMatrix(k mat.Matrix, size image.Point) (*PinholeCameraIntrinsics, error) {
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	params := &PinholeCameraIntrinsics{
		Width:  size.X,
		Height: size.Y,
		Fx:     k.At(0, 0),
		Fy:     k.At(1, 1),
		Ppx:    k.At(0, 2),
		Ppy:    k.At(1, 2),
	}
	return params, params.CheckValid()
}

// PixelToNormalized maps a pixel to the z=1 plane of the camera frame.
func (params *PinholeCameraIntrinsics) PixelToNormalized(u, v float64) (float64, float64) {
	return (u - params.Ppx) / params.Fx, (v - params.Ppy) / params.Fy
}

// NormalizedToPixel maps a point of the z=1 plane to pixel coordinates.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(x, y float64) (float64, float64) {
	return x*params.Fx + params.Ppx, y*params.Fy + params.Ppy
}

// PinholeCameraModel is the model of a pinhole camera with lens distortion.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid checks the intrinsics and, when present, the distortion model.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// Distort applies the distortion model to a normalized point. A model without distortion is the identity.
func (params *PinholeCameraModel) Distort(x, y float64) (float64, float64) {
	if params.Distortion == nil {
		return x, y
	}
	return params.Distortion.Transform(x, y)
}

// UndistortPixel returns the normalized, undistorted coordinates of a distorted pixel.
func (params *PinholeCameraModel) UndistortPixel(pt r2.Point) r2.Point {
	p, _ := params.UndistortPixelChecked(pt)
	return p
}

// UndistortPixelChecked is UndistortPixel that also reports whether the inversion converged.
func (params *PinholeCameraModel) UndistortPixelChecked(pt r2.Point) (r2.Point, bool) {
	x, y := params.PixelToNormalized(pt.X, pt.Y)
	ok := true
	if params.Distortion != nil {
		x, y, ok = UndistortNormalized(params.Distortion, x, y)
	}
	return r2.Point{X: x, Y: y}, ok
}

// CornerRadius is the largest normalized distorted radius over the four image corners.
func (params *PinholeCameraModel) CornerRadius() float64 {
	w, h := float64(params.Width-1), float64(params.Height-1)
	maxRadius := 0.0
	for _, c := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := params.PixelToNormalized(c[0], c[1])
		maxRadius = math.Max(maxRadius, math.Hypot(x, y))
	}
	return maxRadius
}
