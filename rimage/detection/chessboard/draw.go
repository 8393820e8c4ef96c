package chessboard

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/basicfont"
)

// DrawCorners renders detected corners over img for debugging: one hue per row, consecutive
// corners joined, and the first and last corner labelled with their index. When found is
// false the corners are drawn in red without lines.
func DrawCorners(img image.Image, corners []r2.Point, cols int, found bool) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	rows := 1
	if cols > 0 {
		rows = (len(corners) + cols - 1) / cols
	}
	radius := 3.0

	for i, pt := range corners {
		// gg addresses pixel centers at +0.5
		x, y := pt.X+0.5, pt.Y+0.5
		if !found {
			dc.SetRGB(1, 0, 0)
			dc.DrawCircle(x, y, radius)
			dc.Stroke()
			continue
		}
		row := 0
		if cols > 0 {
			row = i / cols
		}
		c := colorful.Hsv(300*float64(row)/float64(max(rows, 1)), 1, 1)
		dc.SetColor(c)
		if i > 0 {
			prev := corners[i-1]
			dc.SetLineWidth(1)
			dc.DrawLine(prev.X+0.5, prev.Y+0.5, x, y)
			dc.Stroke()
		}
		dc.DrawCircle(x, y, radius)
		dc.Stroke()
		if i == 0 || i == len(corners)-1 {
			dc.DrawString(fmt.Sprint(i), x+radius+1, y-radius-1)
		}
	}
	return dc.Image()
}

// SaveCornerOverlay writes DrawCorners' output to a PNG file.
func SaveCornerOverlay(path string, img image.Image, corners []r2.Point, cols int, found bool) error {
	return gg.SavePNG(path, DrawCorners(img, corners, cols, found))
}

// RenderBoard draws a chessboard with cols x rows inner corners on a white image. project maps
// board coordinates, in squares with inner corner (col, row) at (col, row), to pixel
// coordinates; the corners then land exactly on project's output.
func RenderBoard(size image.Point, cols, rows int, project func(x, y float64) r2.Point) image.Image {
	dc := gg.NewContext(size.X, size.Y)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	for b := 0; b <= rows; b++ {
		for a := 0; a <= cols; a++ {
			if (a+b)%2 != 0 {
				continue
			}
			x0, y0 := float64(a-1), float64(b-1)
			for i, c := range [][2]float64{{x0, y0}, {x0 + 1, y0}, {x0 + 1, y0 + 1}, {x0, y0 + 1}} {
				p := project(c[0], c[1])
				if i == 0 {
					dc.MoveTo(p.X+0.5, p.Y+0.5)
				} else {
					dc.LineTo(p.X+0.5, p.Y+0.5)
				}
			}
			dc.ClosePath()
			dc.Fill()
		}
	}
	return dc.Image()
}

// RenderPrintable draws a fronto-parallel board with squarePx pixel squares and a one square
// white margin, ready to print.
func RenderPrintable(cols, rows, squarePx int) image.Image {
	s := float64(squarePx)
	size := image.Pt((cols+3)*squarePx, (rows+3)*squarePx)
	return RenderBoard(size, cols, rows, func(x, y float64) r2.Point {
		return r2.Point{X: (x+2)*s - 0.5, Y: (y+2)*s - 0.5}
	})
}
