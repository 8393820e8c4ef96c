package calibration

import (
	"math"

	"go.viam.com/stereocalib/rimage/transform"
)

// PerViewErrors projects every view's object points through the model and its pose and
// returns, per view, the L2 norm of the pixel residuals divided by the view's point count.
func PerViewErrors(model *transform.PinholeCameraModel, poses []transform.Pose, corr Correspondences) ([]float64, error) {
	if err := model.CheckValid(); err != nil {
		return nil, newError(InvalidInput, "%v", err)
	}
	if err := corr.Validate(); err != nil {
		return nil, err
	}
	if len(poses) != len(corr) {
		return nil, newError(ShapeMismatch, "%d poses for %d views", len(poses), len(corr))
	}
	out := make([]float64, len(corr))
	for i, v := range corr {
		projected := transform.ProjectPoints(model, poses[i], v.ObjectPoints)
		sum := 0.0
		for j, p := range projected {
			d := p.Sub(v.ImagePoints[j])
			sum += d.Dot(d)
		}
		out[i] = math.Sqrt(sum) / float64(len(projected))
	}
	return out, nil
}

// ReprojectionError is the calibration quality score: the mean over views of PerViewErrors.
// Lower is better; around one pixel or more usually means the calibration should be redone.
func ReprojectionError(model *transform.PinholeCameraModel, poses []transform.Pose, corr Correspondences) (float64, error) {
	perView, err := PerViewErrors(model, poses, corr)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, e := range perView {
		total += e
	}
	return total / float64(len(perView)), nil
}
