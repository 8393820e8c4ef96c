package cli

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereocalib/calibration"
	"go.viam.com/stereocalib/rimage/detection/chessboard"
	"go.viam.com/stereocalib/rimage/transform"
)

const (
	cols   = 7
	rows   = 5
	square = 30.0
)

var (
	imageSize = image.Pt(640, 480)
	rotations = []r3.Vector{
		{X: 0.3}, {X: -0.3}, {Y: 0.3}, {Y: -0.3},
		{X: 0.2, Y: 0.2, Z: 0.1}, {X: -0.2, Y: 0.25, Z: -0.1}, {X: 0.1, Y: -0.3, Z: 0.05},
	}
	// board centers off the optical axis, so the views cover the image borders
	offsets = []r3.Vector{
		{X: -90, Y: -60}, {X: 90, Y: 60}, {X: 90, Y: -60}, {X: -90, Y: 60}, {}, {X: -90}, {X: 90},
	}
	baseline = r3.Vector{X: -60}
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"stereocalib"}, args...))
	return out.String(), err
}

func testCamera() *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
		Width: imageSize.X, Height: imageSize.Y, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
	}}
}

// boardPose puts the board center at offsets[i] in the left camera frame.
func boardPose(i int) transform.Pose {
	rvec := rotations[i]
	center := r3.Vector{X: (cols - 1) * square / 2, Y: (rows - 1) * square / 2}
	t := transform.RotateVector(transform.Rodrigues(rvec), center).Mul(-1)
	return transform.Pose{Rotation: rvec, Translation: t.Add(offsets[i]).Add(r3.Vector{Z: 500 + 15*float64(i)})}
}

func render(pose transform.Pose) image.Image {
	model := testCamera()
	return chessboard.RenderBoard(imageSize, cols, rows, func(x, y float64) r2.Point {
		return transform.ProjectPoints(model, pose, []r3.Vector{{X: x * square, Y: y * square}})[0]
	})
}

func writeViews(t *testing.T, dir string, right bool) {
	t.Helper()
	test.That(t, os.MkdirAll(dir, 0o750), test.ShouldBeNil)
	for i := range rotations {
		pose := boardPose(i)
		if right {
			pose.Translation = pose.Translation.Add(baseline)
		}
		test.That(t, imaging.Save(render(pose), filepath.Join(dir, fmt.Sprintf("%02d.png", i))), test.ShouldBeNil)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
}

func TestPatternCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.png")
	out, err := runApp(t, "pattern", "--cols", "9", "--rows", "6", "--square-px", "40", "--out", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "9x6")
	img, err := imaging.Open(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Pt(12*40, 9*40))

	_, err = runApp(t, "pattern", "--cols", "1", "--out", path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSchemaCommand(t *testing.T) {
	out, err := runApp(t, "schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"square_size"`)
}

func TestMonoPipeline(t *testing.T) {
	dir := t.TempDir()
	writeViews(t, filepath.Join(dir, "frames"), false)
	cfgPath := filepath.Join(dir, "mono.json")
	writeFile(t, cfgPath, fmt.Sprintf(`{
		"mode": "mono",
		"pattern": {"cols": %d, "rows": %d, "square_size": %v},
		"resolution": "vga",
		"input": {"images": "${RUN_DIR}/frames"},
		"output": {"record": "${RUN_DIR}/mono.json.out", "plot": "${RUN_DIR}/errors.png"}
	}`, cols, rows, square))
	t.Setenv("RUN_DIR", dir)

	out, err := runApp(t, "mono", "--config", cfgPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, fmt.Sprintf("found the pattern in %d of %d images", len(rotations), len(rotations)))

	recPath := filepath.Join(dir, "mono.json.out")
	rec, err := calibration.LoadMonoRecord(recPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.CameraMatrix.At(0, 0), test.ShouldAlmostEqual, 500, 10)
	test.That(t, rec.CameraMatrix.At(1, 1), test.ShouldAlmostEqual, 500, 10)
	test.That(t, rec.RMS, test.ShouldBeLessThan, 0.5)
	_, err = os.Stat(filepath.Join(dir, "errors.png"))
	test.That(t, err, test.ShouldBeNil)

	out, err = runApp(t, "score", "--record", recPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "camera")

	out, err = runApp(t, "score", "--record", recPath, "--json")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"Median"`)

	undistorted := filepath.Join(dir, "undistorted.png")
	_, err = runApp(t, "undistort", "--record", recPath, "--image", filepath.Join(dir, "frames", "00.png"),
		"--out", undistorted, "--no-crop")
	test.That(t, err, test.ShouldBeNil)
	img, err := imaging.Open(undistorted)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Size(), test.ShouldResemble, imageSize)

	// a mono document is not a stereo run
	_, err = runApp(t, "stereo", "--config", cfgPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStereoPipeline(t *testing.T) {
	dir := t.TempDir()
	writeViews(t, filepath.Join(dir, "left"), false)
	writeViews(t, filepath.Join(dir, "right"), true)
	cfgPath := filepath.Join(dir, "stereo.json")
	recPath := filepath.Join(dir, "stereo.out.json")
	writeFile(t, cfgPath, fmt.Sprintf(`{
		"mode": "stereo",
		"pattern": {"cols": %d, "rows": %d, "square_size": %v},
		"input": {"left": %q, "right": %q},
		"output": {"record": %q, "overlays": %q}
	}`, cols, rows, square, filepath.Join(dir, "left"), filepath.Join(dir, "right"), recPath, filepath.Join(dir, "overlays")))

	out, err := runApp(t, "stereo", "--config", cfgPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "left")

	rec, err := calibration.LoadStereoRecord(recPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Baseline(), test.ShouldAlmostEqual, 60, 2)
	test.That(t, rec.T.X, test.ShouldBeLessThan, 0)
	test.That(t, rec.Left.Distortion[4], test.ShouldEqual, 0)
	test.That(t, rec.Left.ROI.Empty(), test.ShouldBeFalse)
	test.That(t, rec.Right.ROI.Empty(), test.ShouldBeFalse)
	test.That(t, rec.Left.CameraMatrix.At(0, 0), test.ShouldAlmostEqual, 500, 10)
	overlays, err := os.ReadDir(filepath.Join(dir, "overlays"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overlays, test.ShouldHaveLength, 2*len(rotations))

	outLeft, outRight := filepath.Join(dir, "l.png"), filepath.Join(dir, "r.png")
	_, err = runApp(t, "rectify", "--record", recPath,
		"--left", filepath.Join(dir, "left", "00.png"), "--right", filepath.Join(dir, "right", "00.png"),
		"--out-left", outLeft, "--out-right", outRight, "--alpha", "0")
	test.That(t, err, test.ShouldBeNil)
	l, err := imaging.Open(outLeft)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Bounds().Size(), test.ShouldResemble, rec.Left.ROI.Size())

	out, err = runApp(t, "score", "--record", recPath, "--stereo")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "right")
	test.That(t, out, test.ShouldContainSubstring, "rectified rows")
}

func TestOpenCVBackendNeedsBuildTag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mono.json")
	writeFile(t, cfgPath, `{
		"mode": "mono",
		"pattern": {"cols": 7, "rows": 5, "square_size": 30},
		"detector": {"backend": "opencv"},
		"input": {"images": "frames"},
		"output": {"record": "out.json"}
	}`)
	_, err := runApp(t, "mono", "--config", cfgPath)
	test.That(t, err, test.ShouldNotBeNil)
}
