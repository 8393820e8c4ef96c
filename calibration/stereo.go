package calibration

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// StereoGuess holds per-camera intrinsics to bootstrap a stereo solve, usually from two
// earlier mono calibrations.
type StereoGuess struct {
	Left  *transform.PinholeCameraModel
	Right *transform.PinholeCameraModel
}

// NewStereoGuess builds a guess from two mono records.
func NewStereoGuess(left, right *MonoCalibrationRecord) *StereoGuess {
	return &StereoGuess{Left: left.Model(), Right: right.Model()}
}

// CalibrateStereo solves the relative pose of a camera pair jointly with the board poses,
// fills in the essential and fundamental matrices and rectifies the pair.
//
// Without a guess each camera is first calibrated on its own and the joint solve refines both
// cameras. With a guess the guessed intrinsics are held fixed unless WithRefineIntrinsics is given.
// Rectification uses WithAlpha, DefaultStereoAlpha otherwise.
func CalibrateStereo(
	corr StereoCorrespondences,
	size image.Point,
	guess *StereoGuess,
	opts ...Option,
) (*StereoCalibrationRecord, error) {
	o := newOptions(opts, DefaultStereoAlpha)
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if err := validateAlpha(*o.alpha); err != nil {
		return nil, err
	}
	if err := corr.Validate(); err != nil {
		return nil, err
	}
	sides := [2]Correspondences{corr.Left(), corr.Right()}

	var models [2]*transform.PinholeCameraModel
	var poses [2][]transform.Pose
	refine := true
	if guess == nil {
		for k, c := range sides {
			sol, err := solveMono(c, size, o)
			if err != nil {
				return nil, errors.Wrapf(err, "%s camera", Side(k))
			}
			models[k], poses[k] = sol.model, sol.poses
		}
	} else {
		var err error
		if models, err = guess.models(size); err != nil {
			return nil, err
		}
		if len(models[0].Distortion.Parameters()) == 8 || len(models[1].Distortion.Parameters()) == 8 {
			o.rational = true
		}
		for k, c := range sides {
			poses[k] = make([]transform.Pose, len(c))
			for i, v := range c {
				if poses[k][i], err = estimateViewPose(models[k], v, o); err != nil {
					return nil, errors.Wrapf(err, "%s camera view %d", Side(k), i)
				}
			}
		}
		refine = o.refineIntrinsics
	}

	rel, err := medianRelativePose(poses[0], poses[1])
	if err != nil {
		return nil, err
	}
	o.logger.Debugw("initial relative pose", "rvec", rel.Rotation, "tvec", rel.Translation)

	sol, err := solveStereo(sides, size, models, poses[0], rel, refine, o)
	if err != nil {
		return nil, err
	}

	rot := sol.rel.RotationMatrix()
	e := transform.EssentialFromPose(rot, sol.rel.Translation)
	f, err := transform.FundamentalFromEssential(sol.models[0].CameraMatrix(), sol.models[1].CameraMatrix(), e)
	if err != nil {
		return nil, newError(ConvergenceFailure, "%v", err)
	}

	objectPoints := make([][]r3.Vector, len(corr))
	for i, v := range corr {
		objectPoints[i] = v.ObjectPoints
	}
	rec := &StereoCalibrationRecord{
		ImageSize:    size,
		ObjectPoints: objectPoints,
		R:            rot,
		T:            sol.rel.Translation,
		E:            e,
		F:            f,
		RMS:          sol.rms,
	}
	for k, side := range []Side{Left, Right} {
		cam := rec.Camera(side)
		cam.CameraMatrix = sol.models[k].CameraMatrix()
		cam.Distortion = sol.models[k].Distortion.Parameters()
		cam.ImagePoints = make([][]r2.Point, len(corr))
		for i, v := range sides[k] {
			cam.ImagePoints[i] = v.ImagePoints
		}
	}
	rec.Left.Extrinsics = sol.leftPoses
	rec.Right.Extrinsics = make([]transform.Pose, len(sol.leftPoses))
	for i, p := range sol.leftPoses {
		rec.Right.Extrinsics[i] = composePose(sol.rel, p)
	}

	if err := rec.rectify(*o.alpha, o); err != nil {
		return nil, err
	}
	o.logger.Infow("stereo calibration done",
		"views", len(corr), "rms", sol.rms, "baseline", rec.Baseline(), "refined_intrinsics", refine)
	return rec, nil
}

func (g *StereoGuess) models(size image.Point) ([2]*transform.PinholeCameraModel, error) {
	var out [2]*transform.PinholeCameraModel
	for k, m := range []*transform.PinholeCameraModel{g.Left, g.Right} {
		if m == nil || m.PinholeCameraIntrinsics == nil {
			return out, newError(InvalidInput, "%s guess is missing", Side(k))
		}
		if m.Width != size.X || m.Height != size.Y {
			return out, newError(ShapeMismatch, "%s guess is for %dx%d images, calibrating %dx%d",
				Side(k), m.Width, m.Height, size.X, size.Y)
		}
		if err := m.CheckValid(); err != nil {
			return out, newError(InvalidInput, "%s guess: %v", Side(k), err)
		}
		var coeffs []float64
		if m.Distortion != nil {
			coeffs = m.Distortion.Parameters()
		}
		intr := *m.PinholeCameraIntrinsics
		out[k] = &transform.PinholeCameraModel{PinholeCameraIntrinsics: &intr, Distortion: distorterFor(coeffs)}
	}
	return out, nil
}

// medianRelativePose combines the per view estimates R_r R_l^T and t_r - R t_l with a
// component wise median, which shrugs off a few bad views.
func medianRelativePose(left, right []transform.Pose) (transform.Pose, error) {
	var comps [6][]float64
	for i := range left {
		rl := left[i].RotationMatrix()
		rr := right[i].RotationMatrix()
		var rot mat.Dense
		rot.Mul(rr, rl.T())
		rvec := transform.RodriguesFromMatrix(&rot)
		t := right[i].Translation.Sub(transform.RotateVector(&rot, left[i].Translation))
		for c, v := range []float64{rvec.X, rvec.Y, rvec.Z, t.X, t.Y, t.Z} {
			comps[c] = append(comps[c], v)
		}
	}
	var med [6]float64
	for c := range comps {
		m, err := stats.Median(comps[c])
		if err != nil {
			return transform.Pose{}, newError(InsufficientData, "relative pose: %v", err)
		}
		med[c] = m
	}
	return unpackPose(med[:]), nil
}

type stereoSolution struct {
	models    [2]*transform.PinholeCameraModel
	rel       transform.Pose
	leftPoses []transform.Pose
	rms       float64
}

// solveStereo runs the joint Levenberg-Marquardt solve. The parameter vector is
// [left camera, right camera] when refining, then the relative pose, then every left board pose.
func solveStereo(
	sides [2]Correspondences,
	size image.Point,
	models [2]*transform.PinholeCameraModel,
	leftPoses []transform.Pose,
	rel transform.Pose,
	refine bool,
	o *options,
) (*stereoSolution, error) {
	var layouts [2]cameraLayout
	var initial []float64
	camLen := 0
	if refine {
		for k, m := range models {
			layouts[k] = newCameraLayout(size, len(sides[k]), m, o)
			initial = append(initial, layouts[k].pack(m)...)
		}
		camLen = layouts[0].len() + layouts[1].len()
	}
	initial = append(initial, packPose(rel)...)
	for _, p := range leftPoses {
		initial = append(initial, packPose(p)...)
	}

	cameras := func(params []float64) [2]*transform.PinholeCameraModel {
		if !refine {
			return models
		}
		return [2]*transform.PinholeCameraModel{
			layouts[0].unpack(params),
			layouts[1].unpack(params[layouts[0].len():]),
		}
	}
	problem := leastSquaresProblem{
		numResiduals: 2 * (sides[0].NumPoints() + sides[1].NumPoints()),
		residuals: func(dst, params []float64) {
			cams := cameras(params)
			relPose := unpackPose(params[camLen:])
			idx := 0
			for i := range sides[0] {
				pose := unpackPose(params[camLen+poseLen*(i+1):])
				obj := sides[0][i].ObjectPoints
				idx = appendResiduals(dst, idx, transform.ProjectPoints(cams[0], pose, obj), sides[0][i].ImagePoints)
				idx = appendResiduals(dst, idx,
					transform.ProjectPoints(cams[1], composePose(relPose, pose), obj), sides[1][i].ImagePoints)
			}
		},
	}
	res, err := solveLeastSquares(problem, initial, o.settings, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "stereo calibration")
	}
	collinear := func(i int) bool {
		if !refine || i >= camLen {
			return false
		}
		if i >= layouts[0].len() {
			return layouts[1].collinear(i - layouts[0].len())
		}
		return layouts[0].collinear(i)
	}
	if err := checkConditioning(res, "stereo calibration", collinear); err != nil {
		return nil, err
	}

	sol := &stereoSolution{
		models: cameras(res.params),
		rel:    unpackPose(res.params[camLen:]),
		rms:    res.rms(problem.numResiduals),
	}
	for k, m := range sol.models {
		if err := validateModel(m, Side(k).String()+" camera"); err != nil {
			return nil, err
		}
	}
	sol.leftPoses = make([]transform.Pose, len(leftPoses))
	for i := range sol.leftPoses {
		sol.leftPoses[i] = unpackPose(res.params[camLen+poseLen*(i+1):])
	}
	return sol, nil
}
