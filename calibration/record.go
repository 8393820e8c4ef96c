package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// MonoCalibrationRecord is the result of calibrating one camera. It is built once by
// CalibrateMono and not modified afterwards.
type MonoCalibrationRecord struct {
	ImageSize image.Point
	// CameraMatrix is K = [fx 0 cx; 0 fy cy; 0 0 1].
	CameraMatrix *mat.Dense
	// Distortion holds (k1, k2, p1, p2, k3) or (k1, k2, p1, p2, k3, k4, k5, k6).
	Distortion []float64
	// Extrinsics holds one board pose per view, in the order of Correspondences.
	Extrinsics []transform.Pose
	// NewCameraMatrix is the camera matrix of the undistorted image for Alpha.
	NewCameraMatrix *mat.Dense
	Alpha           float64
	// ROI is the valid pixel region of the undistorted image.
	ROI        image.Rectangle
	MapX, MapY *RemapField
	// Correspondences are the views the calibration was solved from.
	Correspondences Correspondences
	// RMS is the root mean square pixel residual of the solve.
	RMS float64
}

// Model returns the camera model of the record.
func (rec *MonoCalibrationRecord) Model() *transform.PinholeCameraModel {
	return modelFromMatrix(rec.CameraMatrix, rec.Distortion, rec.ImageSize)
}

// PerViewErrors scores every calibration view, see PerViewErrors.
func (rec *MonoCalibrationRecord) PerViewErrors() ([]float64, error) {
	return PerViewErrors(rec.Model(), rec.Extrinsics, rec.Correspondences)
}

// ReprojectionError scores the record against its own views.
func (rec *MonoCalibrationRecord) ReprojectionError() (float64, error) {
	return ReprojectionError(rec.Model(), rec.Extrinsics, rec.Correspondences)
}

// Undistort applies the record's maps to a frame and crops it to the ROI.
func (rec *MonoCalibrationRecord) Undistort(frame image.Image) (image.Image, error) {
	return Rectify(frame, rec.MapX, rec.MapY, rec.ROI)
}

// Side selects one camera of a stereo pair.
type Side int

const (
	// Left is the reference camera of the pair.
	Left Side = iota
	// Right is the second camera; x_right = R * x_left + T.
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// CameraCalibration is one camera's half of a stereo record.
type CameraCalibration struct {
	CameraMatrix *mat.Dense
	Distortion   []float64
	Extrinsics   []transform.Pose
	ImagePoints  [][]r2.Point
	// Rectification is the 3x3 rotation from the camera frame to the rectified frame.
	Rectification *mat.Dense
	// Projection is the 3x4 projection of the rectified frame.
	Projection *mat.Dense
	ROI        image.Rectangle
	MapX, MapY *RemapField
}

func (cam *CameraCalibration) model(size image.Point) *transform.PinholeCameraModel {
	return modelFromMatrix(cam.CameraMatrix, cam.Distortion, size)
}

// StereoCalibrationRecord is the result of calibrating and rectifying a camera pair. It is built
// once by CalibrateStereo; Rerectify returns a new record instead of changing this one.
type StereoCalibrationRecord struct {
	ImageSize    image.Point
	ObjectPoints [][]r3.Vector
	Left         CameraCalibration
	Right        CameraCalibration
	// R and T take left camera coordinates to right camera coordinates.
	R *mat.Dense
	T r3.Vector
	// E = [T]x R and F = K_right^-T E K_left^-1.
	E *mat.Dense
	F *mat.Dense
	// Q maps (x, y, disparity, 1) in the rectified left image to homogeneous 3D coordinates.
	Q     *mat.Dense
	Alpha float64
	RMS   float64
}

// Camera returns one side of the record.
func (rec *StereoCalibrationRecord) Camera(side Side) *CameraCalibration {
	if side == Left {
		return &rec.Left
	}
	return &rec.Right
}

// Model returns the camera model of one side.
func (rec *StereoCalibrationRecord) Model(side Side) *transform.PinholeCameraModel {
	return rec.Camera(side).model(rec.ImageSize)
}

// Correspondences returns the views seen by one side.
func (rec *StereoCalibrationRecord) Correspondences(side Side) Correspondences {
	cam := rec.Camera(side)
	out := make(Correspondences, len(rec.ObjectPoints))
	for i := range out {
		out[i] = View{ObjectPoints: rec.ObjectPoints[i], ImagePoints: cam.ImagePoints[i]}
	}
	return out
}

// ReprojectionError scores one side of the record against its own views.
func (rec *StereoCalibrationRecord) ReprojectionError(side Side) (float64, error) {
	return ReprojectionError(rec.Model(side), rec.Camera(side).Extrinsics, rec.Correspondences(side))
}

// PerViewErrors scores every view of one side.
func (rec *StereoCalibrationRecord) PerViewErrors(side Side) ([]float64, error) {
	return PerViewErrors(rec.Model(side), rec.Camera(side).Extrinsics, rec.Correspondences(side))
}

// RectifyPair rectifies and crops a stereo frame pair.
func (rec *StereoCalibrationRecord) RectifyPair(left, right image.Image) (image.Image, image.Image, error) {
	l, err := Rectify(left, rec.Left.MapX, rec.Left.MapY, rec.Left.ROI)
	if err != nil {
		return nil, nil, err
	}
	r, err := Rectify(right, rec.Right.MapX, rec.Right.MapY, rec.Right.ROI)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// Baseline is the distance between the camera centers, in pattern units.
func (rec *StereoCalibrationRecord) Baseline() float64 {
	return rec.T.Norm()
}

// Rerectify returns a copy of the record rectified for another alpha.
func (rec *StereoCalibrationRecord) Rerectify(alpha float64, opts ...Option) (*StereoCalibrationRecord, error) {
	out := *rec
	if err := out.rectify(alpha, newOptions(opts, alpha)); err != nil {
		return nil, err
	}
	return &out, nil
}

// rectify fills the rectification, projection, maps, ROIs and Q of a record under construction.
func (rec *StereoCalibrationRecord) rectify(alpha float64, o *options) error {
	rt, err := SolveRectification(rec, rec.ImageSize, alpha, WithZeroDisparity(o.zeroDisparity))
	if err != nil {
		return err
	}
	for _, side := range []Side{Left, Right} {
		cam := rec.Camera(side)
		cam.Rectification = rt.Rotation(side)
		cam.Projection = rt.Projection(side)
		mapX, mapY, roi, err := BuildUndistortMaps(rec.Model(side), cam.Rectification, cam.Projection, rec.ImageSize, alpha)
		if err != nil {
			return err
		}
		if roi.Empty() {
			return newError(ConvergenceFailure, "%s rectified image has no valid region", side)
		}
		cam.MapX, cam.MapY, cam.ROI = mapX, mapY, roi
	}
	rec.Q = rt.Q
	rec.Alpha = alpha
	return nil
}
