package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform from a board (or world) frame into a camera frame, stored as a
// Rodrigues rotation vector and a translation: x_cam = R(Rotation) * x + Translation.
type Pose struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
}

// RotationMatrix returns the 3x3 rotation of the pose.
func (p Pose) RotationMatrix() *mat.Dense {
	return Rodrigues(p.Rotation)
}

// Apply maps a point into the camera frame.
func (p Pose) Apply(pt r3.Vector) r3.Vector {
	return RotateVector(p.RotationMatrix(), pt).Add(p.Translation)
}

// ProjectPoints projects object points seen from pose through the camera model, distortion included.
func ProjectPoints(model *PinholeCameraModel, pose Pose, pts []r3.Vector) []r2.Point {
	rot := pose.RotationMatrix()
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = ProjectCameraPoint(model, RotateVector(rot, pt).Add(pose.Translation))
	}
	return out
}

// ProjectCameraPoint projects a point already expressed in the camera frame.
func ProjectCameraPoint(model *PinholeCameraModel, pc r3.Vector) r2.Point {
	x, y := pc.X/pc.Z, pc.Y/pc.Z
	x, y = model.Distort(x, y)
	u, v := model.NormalizedToPixel(x, y)
	return r2.Point{X: u, Y: v}
}

// ProjectWithMatrix applies a 3x4 projection matrix to a 3D point and dehomogenizes.
func ProjectWithMatrix(p mat.Matrix, pt r3.Vector) r2.Point {
	x := p.At(0, 0)*pt.X + p.At(0, 1)*pt.Y + p.At(0, 2)*pt.Z + p.At(0, 3)
	y := p.At(1, 0)*pt.X + p.At(1, 1)*pt.Y + p.At(1, 2)*pt.Z + p.At(1, 3)
	w := p.At(2, 0)*pt.X + p.At(2, 1)*pt.Y + p.At(2, 2)*pt.Z + p.At(2, 3)
	return r2.Point{X: x / w, Y: y / w}
}
