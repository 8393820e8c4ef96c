// Package chessboard finds the inner corners of a chessboard calibration pattern in an image.
package chessboard

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// SubPixConfiguration stores the parameters of the sub-pixel corner refinement.
type SubPixConfiguration struct {
	HalfWindow int          `json:"half_window"`
	Criteria   TermCriteria `json:"criteria"`
}

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Saddle SaddleConfiguration `json:"saddle"`
	Grid   GridConfiguration   `json:"grid"`
	SubPix SubPixConfiguration `json:"subpix"`
}

// DefaultDetectionConfiguration returns the default detection parameters.
func DefaultDetectionConfiguration() *DetectionConfiguration {
	return &DetectionConfiguration{
		Saddle: DefaultSaddleConf,
		Grid:   DefaultGridConf,
		SubPix: SubPixConfiguration{HalfWindow: DefaultSubPixWindow, Criteria: DefaultTermCriteria},
	}
}

// Detector finds the inner corners of one fixed pattern. Corners are returned row-major, the
// first row along +x, matching calibration.Pattern.ObjectPoints. A missing pattern is reported
// through the boolean, never as an error.
type Detector interface {
	FindCorners(img image.Image) ([]r2.Point, bool)
}

// SaddleDetector is the pure Go Detector.
type SaddleDetector struct {
	Cols, Rows int
	Config     *DetectionConfiguration
}

// NewDetector returns a SaddleDetector for a cols x rows inner corner pattern. A nil cfg uses
// the defaults.
func NewDetector(cols, rows int, cfg *DetectionConfiguration) *SaddleDetector {
	if cfg == nil {
		cfg = DefaultDetectionConfiguration()
	}
	return &SaddleDetector{Cols: cols, Rows: rows, Config: cfg}
}

// FindCorners implements Detector.
func (d *SaddleDetector) FindCorners(img image.Image) ([]r2.Point, bool) {
	return FindCorners(img, d.Cols, d.Rows, d.Config)
}

// FindCorners locates a cols x rows inner corner chessboard: saddle points of the blurred
// luminance that pass the X-junction test are grown into a lattice from a seed, the lattice
// must be exactly cols x rows (either way round), and its corners are refined to sub-pixel
// precision on the unblurred image.
func FindCorners(img image.Image, cols, rows int, cfg *DetectionConfiguration) ([]r2.Point, bool) {
	if img == nil || cols < 2 || rows < 2 {
		return nil, false
	}
	if cfg == nil {
		cfg = DefaultDetectionConfiguration()
	}
	gray := imaging.Grayscale(img)
	lum := luminance(gray)

	blurred := lum
	if cfg.Saddle.BlurSigma > 0 {
		blurred = luminance(imaging.Blur(gray, cfg.Saddle.BlurSigma))
	}
	candidates := GetSaddlePoints(blurred, &cfg.Saddle)
	corners, ok := assembleGrid(candidates, cols, rows, &cfg.Grid)
	if !ok {
		return nil, false
	}
	return RefineCorners(lum, corners, cfg.SubPix.HalfWindow, cfg.SubPix.Criteria), true
}

// luminance reads a grayscale NRGBA image, as produced by imaging, into a rows x cols matrix.
func luminance(img *image.NRGBA) *mat.Dense {
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		for x := 0; x < b.Dx(); x++ {
			out.Set(y, x, float64(row[4*x]))
		}
	}
	return out
}

// Luminance converts any image into the gray level matrix used by RefineCorners.
func Luminance(img image.Image) *mat.Dense {
	return luminance(imaging.Grayscale(img))
}
