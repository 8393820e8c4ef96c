// Package calibration solves for the intrinsic, distortion, stereo and rectification
// parameters of a camera pair from chessboard observations, builds the remap tables that
// undistort and rectify frames, and scores the result by reprojection error.
package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Pattern is a planar chessboard described by its inner corner grid.
type Pattern struct {
	// Cols is the number of inner corners along a row.
	Cols int `json:"cols"`
	// Rows is the number of inner corner rows.
	Rows int `json:"rows"`
	// SquareSize is the corner spacing in board units. Calibrated translations share this unit.
	SquareSize float64 `json:"square_size"`
}

// NewPattern returns a pattern of cols x rows inner corners spaced squareSize apart.
func NewPattern(cols, rows int, squareSize float64) (*Pattern, error) {
	p := &Pattern{Cols: cols, Rows: rows, SquareSize: squareSize}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects grids that can not be detected or oriented unambiguously.
func (p *Pattern) Validate() error {
	if p == nil {
		return newError(InvalidInput, "pattern is nil")
	}
	if p.Cols < 2 || p.Rows < 2 {
		return newError(InvalidInput, "pattern must have at least 2x2 inner corners, got %dx%d", p.Cols, p.Rows)
	}
	if p.SquareSize <= 0 || math.IsNaN(p.SquareSize) || math.IsInf(p.SquareSize, 0) {
		return newError(InvalidInput, "square size must be positive, got %v", p.SquareSize)
	}
	return nil
}

// NumCorners is the number of inner corners, and so the point count of every view.
func (p *Pattern) NumCorners() int {
	return p.Cols * p.Rows
}

// ObjectPoints returns the board frame coordinates of the inner corners on the z=0 plane,
// row-major: index row*Cols+col holds (col*SquareSize, row*SquareSize, 0). Corner detection
// returns its points in this same order.
func (p *Pattern) ObjectPoints() []r3.Vector {
	pts := make([]r3.Vector, 0, p.NumCorners())
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			pts = append(pts, r3.Vector{X: float64(col) * p.SquareSize, Y: float64(row) * p.SquareSize})
		}
	}
	return pts
}

// View pairs the pattern's object points with one set of detected corners.
func (p *Pattern) View(corners []r2.Point) (View, error) {
	if len(corners) != p.NumCorners() {
		return View{}, newError(ShapeMismatch, "expected %d corners, got %d", p.NumCorners(), len(corners))
	}
	return View{ObjectPoints: p.ObjectPoints(), ImagePoints: append([]r2.Point(nil), corners...)}, nil
}

// StereoView pairs the pattern's object points with the corners found in one stereo exposure.
func (p *Pattern) StereoView(left, right []r2.Point) (StereoView, error) {
	if len(left) != p.NumCorners() || len(right) != p.NumCorners() {
		return StereoView{}, newError(ShapeMismatch, "expected %d corners per side, got %d left and %d right",
			p.NumCorners(), len(left), len(right))
	}
	return StereoView{
		ObjectPoints: p.ObjectPoints(),
		Left:         append([]r2.Point(nil), left...),
		Right:        append([]r2.Point(nil), right...),
	}, nil
}
