package report

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/calibration"
	"go.viam.com/stereocalib/rimage/transform"
)

func failure(kind calibration.ErrorKind, format string, args ...interface{}) error {
	return &calibration.CalibrationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// undistortedPairs returns the detections of every view as undistorted pixels of both cameras.
func undistortedPairs(rec *calibration.StereoCalibrationRecord) ([][2][]r2.Point, error) {
	out := make([][2][]r2.Point, len(rec.ObjectPoints))
	for k, side := range []calibration.Side{calibration.Left, calibration.Right} {
		model := rec.Model(side)
		cam := rec.Camera(side)
		if len(cam.ImagePoints) != len(out) {
			return nil, failure(calibration.ShapeMismatch,
				"%s camera has %d views, the record has %d", side, len(cam.ImagePoints), len(out))
		}
		for i, pts := range cam.ImagePoints {
			und := make([]r2.Point, len(pts))
			for j, pt := range pts {
				n, ok := model.UndistortPixelChecked(pt)
				if !ok {
					return nil, failure(calibration.ConvergenceFailure,
						"%s camera view %d point %d cannot be undistorted", side, i, j)
				}
				u, v := model.NormalizedToPixel(n.X, n.Y)
				und[j] = r2.Point{X: u, Y: v}
			}
			out[i][k] = und
		}
	}
	for i, pair := range out {
		if len(pair[0]) != len(pair[1]) || len(pair[0]) == 0 {
			return nil, failure(calibration.ShapeMismatch, "view %d has unpaired corners", i)
		}
	}
	return out, nil
}

// epipolarDistance is the symmetric distance of a pair to the epipolar lines of f, in pixels.
func epipolarDistance(f mat.Matrix, left, right r2.Point) float64 {
	l := mat.NewVecDense(3, []float64{left.X, left.Y, 1})
	r := mat.NewVecDense(3, []float64{right.X, right.Y, 1})
	var lineRight, lineLeft mat.VecDense
	lineRight.MulVec(f, l)
	lineLeft.MulVec(f.T(), r)
	d := math.Abs(mat.Dot(r, &lineRight))
	return d/math.Hypot(lineRight.AtVec(0), lineRight.AtVec(1))/2 +
		d/math.Hypot(lineLeft.AtVec(0), lineLeft.AtVec(1))/2
}

// epipolarErrors averages epipolarDistance over every view.
func epipolarErrors(f mat.Matrix, pairs [][2][]r2.Point) []float64 {
	perView := make([]float64, len(pairs))
	for i, pair := range pairs {
		sum := 0.0
		for j := range pair[0] {
			sum += epipolarDistance(f, pair[0][j], pair[1][j])
		}
		perView[i] = sum / float64(len(pair[0]))
	}
	return perView
}

// Epipolar summarizes the distance of the detections to the epipolar lines of the calibrated
// fundamental matrix, next to the fundamental matrix refit to the detections alone. A
// calibrated row far above the refit row means the extrinsics do not explain the views.
func Epipolar(rec *calibration.StereoCalibrationRecord) ([]*Summary, error) {
	if rec.F == nil {
		return nil, failure(calibration.InvalidInput, "record has no fundamental matrix")
	}
	pairs, err := undistortedPairs(rec)
	if err != nil {
		return nil, err
	}
	var all [2][]r2.Point
	for _, pair := range pairs {
		all[0] = append(all[0], pair[0]...)
		all[1] = append(all[1], pair[1]...)
	}
	refit, err := transform.ComputeFundamentalMatrixAllPoints(all[0], all[1])
	if err != nil {
		return nil, errors.Wrap(err, "refitting the fundamental matrix")
	}
	calibrated, err := Summarize("epipolar", epipolarErrors(rec.F, pairs))
	if err != nil {
		return nil, err
	}
	free, err := Summarize("epipolar refit", epipolarErrors(refit, pairs))
	if err != nil {
		return nil, err
	}
	return []*Summary{calibrated, free}, nil
}

// RectifiedRows summarizes, per view, the mean distance between the rectified rows of the
// left and right detections of each corner (columns for a vertical rig).
func RectifiedRows(rec *calibration.StereoCalibrationRecord) (*Summary, error) {
	for _, side := range []calibration.Side{calibration.Left, calibration.Right} {
		cam := rec.Camera(side)
		if cam.Rectification == nil || cam.Projection == nil {
			return nil, failure(calibration.InvalidInput, "%s camera is not rectified", side)
		}
	}
	// the baseline column of the right projection is on the row of the disparity axis
	vertical := rec.Right.Projection.At(1, 3) != 0
	var rect [2][][]r2.Point
	for k, side := range []calibration.Side{calibration.Left, calibration.Right} {
		model := rec.Model(side)
		cam := rec.Camera(side)
		rect[k] = make([][]r2.Point, len(cam.ImagePoints))
		for i, pts := range cam.ImagePoints {
			rect[k][i] = make([]r2.Point, len(pts))
			for j, pt := range pts {
				n, ok := model.UndistortPixelChecked(pt)
				if !ok {
					return nil, failure(calibration.ConvergenceFailure,
						"%s camera view %d point %d cannot be undistorted", side, i, j)
				}
				ray := transform.RotateVector(cam.Rectification, r3.Vector{X: n.X, Y: n.Y, Z: 1})
				rect[k][i][j] = transform.ProjectWithMatrix(cam.Projection, ray)
			}
		}
	}
	if len(rect[0]) != len(rect[1]) {
		return nil, failure(calibration.ShapeMismatch,
			"left camera has %d views, right camera has %d", len(rect[0]), len(rect[1]))
	}
	perView := make([]float64, len(rect[0]))
	for i := range perView {
		if len(rect[0][i]) != len(rect[1][i]) || len(rect[0][i]) == 0 {
			return nil, failure(calibration.ShapeMismatch, "view %d has unpaired corners", i)
		}
		sum := 0.0
		for j, l := range rect[0][i] {
			r := rect[1][i][j]
			if vertical {
				sum += math.Abs(l.X - r.X)
			} else {
				sum += math.Abs(l.Y - r.Y)
			}
		}
		perView[i] = sum / float64(len(rect[0][i]))
	}
	return Summarize("rectified rows", perView)
}
