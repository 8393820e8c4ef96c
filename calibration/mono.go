package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereocalib/rimage/transform"
)

// minViewsForPrincipalPoint is the view count below which the principal point is held at the
// image center: fewer planar views can not separate it from the board poses.
const minViewsForPrincipalPoint = 3

// CalibrateMono solves one camera's intrinsics, distortion and per-view board poses from the
// correspondences, then builds the undistortion maps for the requested alpha.
func CalibrateMono(corr Correspondences, size image.Point, opts ...Option) (*MonoCalibrationRecord, error) {
	o := newOptions(opts, DefaultMonoAlpha)
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if err := validateAlpha(*o.alpha); err != nil {
		return nil, err
	}
	if err := corr.Validate(); err != nil {
		return nil, err
	}

	sol, err := solveMono(corr, size, o)
	if err != nil {
		return nil, err
	}

	newK, _, err := OptimalNewCameraMatrix(sol.model, size, *o.alpha)
	if err != nil {
		return nil, errors.Wrap(err, "mono calibration")
	}
	mapX, mapY, roi, err := BuildUndistortMaps(sol.model, nil, nil, size, *o.alpha)
	if err != nil {
		return nil, errors.Wrap(err, "mono calibration")
	}
	o.logger.Infow("mono calibration done",
		"views", len(corr), "rms", sol.rms, "fx", sol.model.Fx, "fy", sol.model.Fy,
		"cx", sol.model.Ppx, "cy", sol.model.Ppy, "roi", roi.String())

	return &MonoCalibrationRecord{
		ImageSize:       size,
		CameraMatrix:    sol.model.CameraMatrix(),
		Distortion:      sol.model.Distortion.Parameters(),
		Extrinsics:      sol.poses,
		NewCameraMatrix: newK,
		Alpha:           *o.alpha,
		ROI:             roi,
		MapX:            mapX,
		MapY:            mapY,
		Correspondences: corr,
		RMS:             sol.rms,
	}, nil
}

type monoSolution struct {
	model *transform.PinholeCameraModel
	poses []transform.Pose
	rms   float64
}

// solveMono is Zhang's closed form initialization followed by Levenberg-Marquardt over
// intrinsics, distortion and every view pose. Input is assumed validated.
func solveMono(corr Correspondences, size image.Point, o *options) (*monoSolution, error) {
	hs, err := viewHomographies(corr)
	if err != nil {
		return nil, err
	}
	intr, ok := zhangIntrinsics(hs, size)
	if !ok {
		intr = centeredIntrinsics(hs, size)
	}
	o.logger.Debugw("initial intrinsics", "closed_form", ok, "fx", intr.Fx, "fy", intr.Fy, "cx", intr.Ppx, "cy", intr.Ppy)

	init := &transform.PinholeCameraModel{PinholeCameraIntrinsics: intr}
	layout := newCameraLayout(size, len(corr), init, o)
	initial := layout.pack(init)
	k := intr.CameraMatrix()
	for _, h := range hs {
		initial = append(initial, packPose(poseFromHomography(k, h))...)
	}

	problem := leastSquaresProblem{
		numResiduals: 2 * corr.NumPoints(),
		residuals:    monoResiduals(layout, corr),
	}
	res, err := solveLeastSquares(problem, initial, o.settings, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "mono calibration")
	}
	if err := checkConditioning(res, "mono calibration", layout.collinear); err != nil {
		return nil, err
	}

	model := layout.unpack(res.params)
	if err := validateModel(model, "mono calibration"); err != nil {
		return nil, err
	}
	poses := make([]transform.Pose, len(corr))
	for i := range poses {
		poses[i] = unpackPose(res.params[layout.len()+poseLen*i:])
	}
	return &monoSolution{model: model, poses: poses, rms: res.rms(problem.numResiduals)}, nil
}

func monoResiduals(layout cameraLayout, corr Correspondences) func(dst, params []float64) {
	return func(dst, params []float64) {
		model := layout.unpack(params)
		idx := 0
		for i, v := range corr {
			pose := unpackPose(params[layout.len()+poseLen*i:])
			idx = appendResiduals(dst, idx, transform.ProjectPoints(model, pose, v.ObjectPoints), v.ImagePoints)
		}
	}
}

func appendResiduals(dst []float64, idx int, projected, observed []r2.Point) int {
	for j, p := range projected {
		dst[idx] = p.X - observed[j].X
		dst[idx+1] = p.Y - observed[j].Y
		idx += 2
	}
	return idx
}

// estimateViewPose finds the board pose of one view for a known camera: a homography in
// normalized coordinates for the starting point, then a small Levenberg-Marquardt solve.
func estimateViewPose(model *transform.PinholeCameraModel, v View, o *options) (transform.Pose, error) {
	board := make([]r2.Point, len(v.ObjectPoints))
	normalized := make([]r2.Point, len(v.ImagePoints))
	for i, p := range v.ObjectPoints {
		board[i] = r2.Point{X: p.X, Y: p.Y}
		normalized[i] = model.UndistortPixel(v.ImagePoints[i])
	}
	h, err := transform.EstimateHomography(board, normalized)
	if err != nil {
		return transform.Pose{}, newError(ConvergenceFailure, "pose estimation: %v", err)
	}
	initial := packPose(poseFromHomography(eye3(), h))
	problem := leastSquaresProblem{
		numResiduals: 2 * len(v.ImagePoints),
		residuals: func(dst, params []float64) {
			appendResiduals(dst, 0, transform.ProjectPoints(model, unpackPose(params), v.ObjectPoints), v.ImagePoints)
		},
	}
	res, err := solveLeastSquares(problem, initial, o.settings, o.logger)
	if err != nil {
		return transform.Pose{}, errors.Wrap(err, "pose estimation")
	}
	return unpackPose(res.params), nil
}
