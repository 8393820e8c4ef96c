//go:build opencv

package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// OpenCVDetector is a Detector backed by OpenCV's chessboard finder and corner refinement.
// It is only built with the opencv build tag.
type OpenCVDetector struct {
	Cols, Rows int
	HalfWindow int
	Criteria   TermCriteria
}

// NewOpenCVDetector returns an OpenCV detector with the default refinement settings.
func NewOpenCVDetector(cols, rows int) *OpenCVDetector {
	return &OpenCVDetector{Cols: cols, Rows: rows, HalfWindow: DefaultSubPixWindow, Criteria: DefaultTermCriteria}
}

// FindCorners implements Detector.
func (d *OpenCVDetector) FindCorners(img image.Image) ([]r2.Point, bool) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, false
	}
	defer src.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	corners := gocv.NewMat()
	defer corners.Close()
	size := image.Pt(d.Cols, d.Rows)
	if !gocv.FindChessboardCorners(gray, size, &corners, gocv.CalibCBAdaptiveThresh+gocv.CalibCBNormalizeImage) {
		return nil, false
	}
	criteria := gocv.NewTermCriteria(gocv.MaxIter+gocv.EPS, d.Criteria.MaxIter, d.Criteria.Epsilon)
	win := image.Pt(d.HalfWindow, d.HalfWindow)
	gocv.CornerSubPix(gray, &corners, win, image.Pt(-1, -1), criteria)

	out := make([]r2.Point, corners.Rows())
	for i := range out {
		v := corners.GetVecfAt(i, 0)
		out[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return out, len(out) == d.Cols*d.Rows
}
