package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// RectificationTransforms are the outputs of SolveRectification.
type RectificationTransforms struct {
	// LeftRotation and RightRotation rotate each camera frame into the common rectified frame.
	LeftRotation  *mat.Dense
	RightRotation *mat.Dense
	// LeftProjection and RightProjection are the 3x4 projections of the rectified images. The
	// right one carries the baseline times the focal length in its last column.
	LeftProjection  *mat.Dense
	RightProjection *mat.Dense
	// Q reprojects (x, y, disparity, 1) to homogeneous 3D coordinates in the rectified left frame.
	Q *mat.Dense
	// LeftROI and RightROI are the valid pixel regions of the rectified images.
	LeftROI  image.Rectangle
	RightROI image.Rectangle
	// Vertical is true when the baseline is mostly vertical and rectified columns align instead of rows.
	Vertical bool
}

// Rotation returns one side's rectification rotation.
func (rt *RectificationTransforms) Rotation(side Side) *mat.Dense {
	if side == Left {
		return rt.LeftRotation
	}
	return rt.RightRotation
}

// Projection returns one side's rectified projection.
func (rt *RectificationTransforms) Projection(side Side) *mat.Dense {
	if side == Left {
		return rt.LeftProjection
	}
	return rt.RightProjection
}

// SolveRectification computes Bouguet's rectification of a calibrated pair: each camera is
// rotated by half the relative rotation, then both are turned so the baseline lies along the
// rectified x axis (or y, for a mostly vertical rig). Both images share one focal length and,
// with zero disparity on, one principal point. alpha in [0, 1] trades cropping to valid
// pixels (0) against keeping all source pixels (1).
func SolveRectification(
	rec *StereoCalibrationRecord,
	size image.Point,
	alpha float64,
	opts ...Option,
) (*RectificationTransforms, error) {
	o := newOptions(opts, alpha)
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if err := validateAlpha(alpha); err != nil {
		return nil, err
	}
	if rec == nil || rec.R == nil {
		return nil, newError(InvalidInput, "stereo record with a relative pose is required")
	}
	if r, c := rec.R.Dims(); r != 3 || c != 3 {
		return nil, newError(ShapeMismatch, "relative rotation must be 3x3, got %dx%d", r, c)
	}
	if rec.T.Norm() == 0 {
		return nil, newError(InvalidInput, "zero baseline")
	}
	models := [2]*transform.PinholeCameraModel{rec.Model(Left), rec.Model(Right)}
	for _, m := range models {
		if err := m.CheckValid(); err != nil {
			return nil, newError(InvalidInput, "%v", err)
		}
	}

	// half rotations, so that both cameras end up parallel
	om := transform.RodriguesFromMatrix(rec.R).Mul(-0.5)
	rHalf := transform.Rodrigues(om)
	t := transform.RotateVector(rHalf, rec.T)

	vertical := math.Abs(t.X) <= math.Abs(t.Y)
	c := t.X
	axis := r3.Vector{X: 1}
	if vertical {
		c = t.Y
		axis = r3.Vector{Y: 1}
	}
	if c < 0 {
		axis = axis.Mul(-1)
	}

	// global rotation that brings t onto the chosen axis
	ww := t.Cross(axis)
	if nw := ww.Norm(); nw > 0 {
		ww = ww.Mul(math.Acos(math.Min(1, math.Abs(c)/t.Norm())) / nw)
	}
	wR := transform.Rodrigues(ww)

	var rl, rr mat.Dense
	rl.Mul(wR, rHalf.T())
	rr.Mul(wR, rHalf)
	tRect := transform.RotateVector(&rr, rec.T)
	tAxis := tRect.X
	if vertical {
		tAxis = tRect.Y
	}

	// common focal length: the smaller one, shrunk for barrel distortion
	nx, ny := float64(size.X), float64(size.Y)
	fc := math.Inf(1)
	for _, m := range models {
		f := m.Fy
		if vertical {
			f = m.Fx
		}
		if k1 := m.Distortion.Parameters()[0]; k1 < 0 {
			f *= 1 + k1*(nx*nx+ny*ny)/(4*f*f)
		}
		fc = math.Min(fc, f)
	}

	// principal points that center the rectified images
	rots := [2]*mat.Dense{&rl, &rr}
	var cc [2]r2.Point
	corners := []r2.Point{{X: 0, Y: 0}, {X: nx - 1, Y: 0}, {X: 0, Y: ny - 1}, {X: nx - 1, Y: ny - 1}}
	p0 := mat.NewDense(3, 3, []float64{fc, 0, 0, 0, fc, 0, 0, 0, 1})
	for k := range models {
		avg := r2.Point{}
		for _, corner := range corners {
			p, ok := correctPointChecked(models[k], rots[k], p0, corner)
			if !ok {
				return nil, newError(ConvergenceFailure, "%s lens model can not be inverted at image corner (%.0f, %.0f)",
					Side(k), corner.X, corner.Y)
			}
			avg = avg.Add(p)
		}
		avg = avg.Mul(1 / float64(len(corners)))
		cc[k] = r2.Point{X: (nx-1)/2 - avg.X, Y: (ny-1)/2 - avg.Y}
	}
	switch {
	case o.zeroDisparity:
		mid := cc[0].Add(cc[1]).Mul(0.5)
		cc[0], cc[1] = mid, mid
	case vertical:
		cc[0].X = (cc[0].X + cc[1].X) / 2
		cc[1].X = cc[0].X
	default:
		cc[0].Y = (cc[0].Y + cc[1].Y) / 2
		cc[1].Y = cc[0].Y
	}

	projections := func(f float64, cc [2]r2.Point) [2]*mat.Dense {
		var out [2]*mat.Dense
		for k := range out {
			out[k] = mat.NewDense(3, 4, []float64{
				f, 0, cc[k].X, 0,
				0, f, cc[k].Y, 0,
				0, 0, 1, 0,
			})
		}
		if vertical {
			out[1].Set(1, 3, tAxis*f)
		} else {
			out[1].Set(0, 3, tAxis*f)
		}
		return out
	}
	ps := projections(fc, cc)

	// alpha: scale between the largest valid-only view (s0) and the smallest keep-all view (s1)
	s0, s1 := 0.0, math.Inf(1)
	for k := range models {
		inner, outer, err := correctedExtents(models[k], rots[k], ps[k], size)
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera", Side(k))
		}
		cx, cy := cc[k].X, cc[k].Y
		s0 = math.Max(s0, math.Max(
			math.Max(cx/(cx-inner.x0), cy/(cy-inner.y0)),
			math.Max((nx-1-cx)/(inner.x1-cx), (ny-1-cy)/(inner.y1-cy))))
		s1 = math.Min(s1, math.Min(
			math.Min(cx/(cx-outer.x0), cy/(cy-outer.y0)),
			math.Min((nx-1-cx)/(outer.x1-cx), (ny-1-cy)/(outer.y1-cy))))
	}
	s := s0*(1-alpha) + s1*alpha
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return nil, newError(ConvergenceFailure, "rectification scale is degenerate (%v)", s)
	}
	fc *= s
	ps = projections(fc, cc)

	var rois [2]image.Rectangle
	for k := range models {
		inner, _, err := correctedExtents(models[k], rots[k], ps[k], size)
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera", Side(k))
		}
		if rois[k] = roiFromExtent(inner, size); rois[k].Empty() {
			return nil, newError(ConvergenceFailure,
				"%s rectified image has no valid region; the calibration is not usable", Side(k))
		}
	}

	q := mat.NewDense(4, 4, []float64{
		1, 0, 0, -cc[0].X,
		0, 1, 0, -cc[0].Y,
		0, 0, 0, fc,
		0, 0, -1 / tAxis, 0,
	})
	if vertical {
		q.Set(3, 3, (cc[0].Y-cc[1].Y)/tAxis)
	} else {
		q.Set(3, 3, (cc[0].X-cc[1].X)/tAxis)
	}

	o.logger.Debugw("rectification", "focal", fc, "cx", cc[0].X, "cy", cc[0].Y, "vertical", vertical, "scale", s)
	return &RectificationTransforms{
		LeftRotation:    &rl,
		RightRotation:   &rr,
		LeftProjection:  ps[0],
		RightProjection: ps[1],
		Q:               q,
		LeftROI:         rois[0],
		RightROI:        rois[1],
		Vertical:        vertical,
	}, nil
}
