package chessboard

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereocalib/rimage/transform"
)

const (
	testCols = 9
	testRows = 6
)

var testImageSize = image.Pt(640, 480)

// boardProjection views a board with 25 unit squares from 500 units away, centered on the optical axis.
func boardProjection(rvec r3.Vector) func(x, y float64) r2.Point {
	model := &transform.PinholeCameraModel{PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
		Width: testImageSize.X, Height: testImageSize.Y, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240,
	}}
	const square = 25.0
	center := r3.Vector{X: (testCols - 1) * square / 2, Y: (testRows - 1) * square / 2}
	rot := transform.Rodrigues(rvec)
	pose := transform.Pose{
		Rotation:    rvec,
		Translation: transform.RotateVector(rot, center).Mul(-1).Add(r3.Vector{Z: 500}),
	}
	return func(x, y float64) r2.Point {
		return transform.ProjectPoints(model, pose, []r3.Vector{{X: x * square, Y: y * square}})[0]
	}
}

func truthCorners(project func(x, y float64) r2.Point) []r2.Point {
	var out []r2.Point
	for row := 0; row < testRows; row++ {
		for col := 0; col < testCols; col++ {
			out = append(out, project(float64(col), float64(row)))
		}
	}
	return out
}

func TestFindCorners(t *testing.T) {
	for _, tc := range []struct {
		name string
		rvec r3.Vector
	}{
		{"nearly fronto-parallel", r3.Vector{Z: 0.15}},
		{"tilted", r3.Vector{X: 0.35, Y: -0.25, Z: 0.1}},
		{"upside down", r3.Vector{Z: 3.0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			project := boardProjection(tc.rvec)
			img := RenderBoard(testImageSize, testCols, testRows, project)

			corners, found := FindCorners(img, testCols, testRows, nil)
			test.That(t, found, test.ShouldBeTrue)
			test.That(t, corners, test.ShouldHaveLength, testCols*testRows)

			// the first row runs along +x and rows advance along +y
			test.That(t, corners[testCols-1].X, test.ShouldBeGreaterThan, corners[0].X)
			test.That(t, corners[(testRows-1)*testCols].Y, test.ShouldBeGreaterThan, corners[0].Y)

			truth := truthCorners(project)
			if tc.rvec.Z > 1 {
				// a board turned by half a turn is detected in reverse order
				for i, j := 0, len(truth)-1; i < j; i, j = i+1, j-1 {
					truth[i], truth[j] = truth[j], truth[i]
				}
			}
			for i := range corners {
				test.That(t, corners[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.3)
			}
		})
	}
}

func TestFindCornersMisses(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 320, 240))
	for i := range blank.Pix {
		blank.Pix[i] = 128
	}
	_, found := FindCorners(blank, testCols, testRows, nil)
	test.That(t, found, test.ShouldBeFalse)

	img := RenderBoard(testImageSize, testCols, testRows, boardProjection(r3.Vector{Z: 0.1}))
	_, found = FindCorners(img, 7, 5, nil)
	test.That(t, found, test.ShouldBeFalse)

	_, found = FindCorners(nil, testCols, testRows, nil)
	test.That(t, found, test.ShouldBeFalse)
}

func TestDetectorInterface(t *testing.T) {
	var d Detector = NewDetector(testCols, testRows, nil)
	img := RenderPrintable(testCols, testRows, 30)
	corners, found := d.FindCorners(img)
	test.That(t, found, test.ShouldBeTrue)
	// printable boards put inner corner (0, 0) two squares in, minus half a pixel
	test.That(t, corners[0].X, test.ShouldAlmostEqual, 59.5, 0.3)
	test.That(t, corners[0].Y, test.ShouldAlmostEqual, 59.5, 0.3)
	test.That(t, corners[1].X-corners[0].X, test.ShouldAlmostEqual, 30, 0.3)
}

func TestXJunctionRejectsLCorners(t *testing.T) {
	img := RenderPrintable(testCols, testRows, 30)
	lum := Luminance(img)
	// inner corner
	test.That(t, isXJunction(lum, r2.Point{X: 59.5, Y: 59.5}, 4, 20), test.ShouldBeTrue)
	// outer corner of the top left black square
	test.That(t, isXJunction(lum, r2.Point{X: 29.5, Y: 29.5}, 4, 20), test.ShouldBeFalse)
	// middle of an edge
	test.That(t, isXJunction(lum, r2.Point{X: 74.5, Y: 59.5}, 4, 20), test.ShouldBeFalse)
}

func TestRefineCorners(t *testing.T) {
	project := boardProjection(r3.Vector{X: 0.2, Z: 0.3})
	img := RenderBoard(testImageSize, testCols, testRows, project)
	truth := truthCorners(project)
	start := make([]r2.Point, len(truth))
	for i, p := range truth {
		start[i] = p.Add(r2.Point{X: 1.4, Y: -0.8})
	}
	refined := RefineCorners(Luminance(img), start, DefaultSubPixWindow, DefaultTermCriteria)
	for i := range refined {
		test.That(t, refined[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.2)
	}
}

func TestDrawCorners(t *testing.T) {
	img := RenderPrintable(testCols, testRows, 20)
	corners, found := FindCorners(img, testCols, testRows, nil)
	test.That(t, found, test.ShouldBeTrue)
	overlay := DrawCorners(img, corners, testCols, found)
	test.That(t, overlay.Bounds(), test.ShouldResemble, img.Bounds())
	// the first row is joined in red
	mid := corners[0].Add(corners[1]).Mul(0.5)
	r, g, b, _ := overlay.At(int(mid.X), int(mid.Y)).RGBA()
	test.That(t, r, test.ShouldBeGreaterThan, g)
	test.That(t, r, test.ShouldBeGreaterThan, b)
	test.That(t, color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y, test.ShouldEqual, 255)
}
