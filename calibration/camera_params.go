package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// cameraLayout describes how one camera's intrinsics and distortion are laid out in the
// solver's parameter vector: fx, fy, [cx, cy,] then the free distortion coefficients. A fixed
// principal point or k3 keeps the value it was built with.
type cameraLayout struct {
	size              image.Point
	numDistortion     int
	fixPrincipalPoint bool
	ppx, ppy          float64
	fixK3             bool
	k3                float64
}

// k3Index is the position of k3 in (k1, k2, p1, p2, k3, ...).
const k3Index = 4

func newCameraLayout(size image.Point, views int, init *transform.PinholeCameraModel, o *options) cameraLayout {
	l := cameraLayout{
		size:              size,
		numDistortion:     o.numDistortion(),
		fixPrincipalPoint: views < minViewsForPrincipalPoint,
		ppx:               init.Ppx,
		ppy:               init.Ppy,
		fixK3:             o.fixK3(),
	}
	if init.Distortion != nil {
		if params := init.Distortion.Parameters(); len(params) > k3Index {
			l.k3 = params[k3Index]
		}
	}
	return l
}

func (l cameraLayout) numFreeDistortion() int {
	if l.fixK3 {
		return l.numDistortion - 1
	}
	return l.numDistortion
}

func (l cameraLayout) len() int {
	if l.fixPrincipalPoint {
		return 2 + l.numFreeDistortion()
	}
	return 4 + l.numFreeDistortion()
}

func (l cameraLayout) distortionOffset() int {
	return l.len() - l.numFreeDistortion()
}

// collinear reports whether parameter i of this layout is one of the rational model's higher
// radial terms, which trade off against each other by construction and are left out of the
// conditioning check.
func (l cameraLayout) collinear(i int) bool {
	return l.numDistortion == 8 && i >= l.distortionOffset()+k3Index && i < l.len()
}

func (l cameraLayout) pack(model *transform.PinholeCameraModel) []float64 {
	out := []float64{model.Fx, model.Fy}
	if !l.fixPrincipalPoint {
		out = append(out, model.Ppx, model.Ppy)
	}
	coeffs := make([]float64, l.numDistortion)
	if model.Distortion != nil {
		copy(coeffs, model.Distortion.Parameters())
	}
	if l.fixK3 {
		coeffs = append(coeffs[:k3Index], coeffs[k3Index+1:]...)
	}
	return append(out, coeffs...)
}

func (l cameraLayout) unpack(params []float64) *transform.PinholeCameraModel {
	intr := &transform.PinholeCameraIntrinsics{
		Width: l.size.X, Height: l.size.Y,
		Fx: params[0], Fy: params[1], Ppx: l.ppx, Ppy: l.ppy,
	}
	if !l.fixPrincipalPoint {
		intr.Ppx, intr.Ppy = params[2], params[3]
	}
	off := l.distortionOffset()
	free := params[off : off+l.numFreeDistortion()]
	coeffs := make([]float64, l.numDistortion)
	if l.fixK3 {
		copy(coeffs, free[:k3Index])
		coeffs[k3Index] = l.k3
		copy(coeffs[k3Index+1:], free[k3Index:])
	} else {
		copy(coeffs, free)
	}
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: intr,
		Distortion:              distorterFor(coeffs),
	}
}

// distorterFor builds a distortion model without validation, for use inside residuals.
func distorterFor(c []float64) transform.Distorter {
	if len(c) == 8 {
		return &transform.RationalPolynomial{
			RadialK1: c[0], RadialK2: c[1], TangentialP1: c[2], TangentialP2: c[3],
			RadialK3: c[4], RadialK4: c[5], RadialK5: c[6], RadialK6: c[7],
		}
	}
	padded := make([]float64, 5)
	copy(padded, c)
	return &transform.BrownConrady{
		RadialK1: padded[0], RadialK2: padded[1], TangentialP1: padded[2], TangentialP2: padded[3], RadialK3: padded[4],
	}
}

const poseLen = 6

func packPose(p transform.Pose) []float64 {
	return []float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z}
}

func unpackPose(params []float64) transform.Pose {
	return transform.Pose{
		Rotation:    r3.Vector{X: params[0], Y: params[1], Z: params[2]},
		Translation: r3.Vector{X: params[3], Y: params[4], Z: params[5]},
	}
}

// composePose returns the pose of outer after inner: x -> outer(inner(x)).
func composePose(outer, inner transform.Pose) transform.Pose {
	ro := outer.RotationMatrix()
	rot := transform.Rodrigues(inner.Rotation)
	rot.Mul(ro, rot)
	return transform.Pose{
		Rotation:    transform.RodriguesFromMatrix(rot),
		Translation: transform.RotateVector(ro, inner.Translation).Add(outer.Translation),
	}
}

// validateModel rejects solutions that can not be a physical camera.
func validateModel(model *transform.PinholeCameraModel, what string) error {
	params := append([]float64{model.Fx, model.Fy, model.Ppx, model.Ppy}, model.Distortion.Parameters()...)
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return newError(ConvergenceFailure, "%s: non finite parameters", what)
		}
	}
	if model.Fx <= 0 || model.Fy <= 0 {
		return newError(ConvergenceFailure, "%s: non positive focal length (%.4g, %.4g)", what, model.Fx, model.Fy)
	}
	if model.Ppx < 0 || model.Ppx > float64(model.Width) || model.Ppy < 0 || model.Ppy > float64(model.Height) {
		return newError(ConvergenceFailure, "%s: principal point (%.4g, %.4g) outside the image", what, model.Ppx, model.Ppy)
	}
	if err := transform.CheckRadialMonotonic(model.Distortion, model.CornerRadius()); err != nil {
		return newError(ConvergenceFailure, "%s: %v; add views with the board near the image corners", what, err)
	}
	return nil
}

// modelFromMatrix builds a camera model from a camera matrix and coefficients.
func modelFromMatrix(k mat.Matrix, distortion []float64, size image.Point) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: size.X, Height: size.Y,
			Fx: k.At(0, 0), Fy: k.At(1, 1), Ppx: k.At(0, 2), Ppy: k.At(1, 2),
		},
		Distortion: distorterFor(distortion),
	}
}
