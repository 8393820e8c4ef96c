package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestMonoRecordRoundTrip(t *testing.T) {
	rec, err := CalibrateMono(syntheticMono(testModel([]float64{-0.1, 0, 0, 0, 0}), 4, 0), testSize)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "mono.json")
	test.That(t, SaveMonoRecord(path, rec), test.ShouldBeNil)
	loaded, err := LoadMonoRecord(path)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, mat.Equal(loaded.CameraMatrix, rec.CameraMatrix), test.ShouldBeTrue)
	test.That(t, mat.Equal(loaded.NewCameraMatrix, rec.NewCameraMatrix), test.ShouldBeTrue)
	test.That(t, loaded.Distortion, test.ShouldResemble, rec.Distortion)
	test.That(t, loaded.ROI, test.ShouldResemble, rec.ROI)
	test.That(t, loaded.MapX, test.ShouldResemble, rec.MapX)
	test.That(t, loaded.Extrinsics, test.ShouldResemble, rec.Extrinsics)

	score, err := loaded.ReprojectionError()
	test.That(t, err, test.ShouldBeNil)
	want, err := rec.ReprojectionError()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, score, test.ShouldAlmostEqual, want, 1e-12)
}

func TestMonoRecordShapeChecks(t *testing.T) {
	rec, err := CalibrateMono(syntheticMono(testModel(nil), 3, 0), testSize)
	test.That(t, err, test.ShouldBeNil)
	data, err := json.Marshal(rec)
	test.That(t, err, test.ShouldBeNil)

	var doc map[string]interface{}
	test.That(t, json.Unmarshal(data, &doc), test.ShouldBeNil)
	doc["camera_matrix"] = [][]float64{{1, 0, 0}, {0, 1, 0}}
	broken, err := json.Marshal(doc)
	test.That(t, err, test.ShouldBeNil)

	var out MonoCalibrationRecord
	err = json.Unmarshal(broken, &out)
	test.That(t, errors.Is(err, ErrShapeMismatch), test.ShouldBeTrue)

	test.That(t, json.Unmarshal(data, &out), test.ShouldBeNil)
	doc["camera_matrix"] = toMatrixJSON(rec.CameraMatrix)
	doc["distortion"] = []float64{0, 0, 0}
	broken, err = json.Marshal(doc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, KindOf(json.Unmarshal(broken, &out)), test.ShouldEqual, ShapeMismatch)

	path := filepath.Join(t.TempDir(), "broken.json")
	test.That(t, os.WriteFile(path, broken, 0o600), test.ShouldBeNil)
	_, err = LoadMonoRecord(path)
	test.That(t, KindOf(err), test.ShouldEqual, ShapeMismatch)
}

func TestStereoRecordRoundTrip(t *testing.T) {
	left, right := stereoTruth()
	rec, err := CalibrateStereo(syntheticStereo(left, right, 4, 0), testSize, nil)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "stereo.json")
	test.That(t, SaveStereoRecord(path, rec), test.ShouldBeNil)
	loaded, err := LoadStereoRecord(path)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, mat.Equal(loaded.Q, rec.Q), test.ShouldBeTrue)
	test.That(t, mat.Equal(loaded.F, rec.F), test.ShouldBeTrue)
	test.That(t, mat.Equal(loaded.Right.Projection, rec.Right.Projection), test.ShouldBeTrue)
	test.That(t, loaded.T, test.ShouldResemble, rec.T)
	test.That(t, loaded.Left.ROI, test.ShouldResemble, rec.Left.ROI)
	test.That(t, loaded.Right.MapY, test.ShouldResemble, rec.Right.MapY)

	frame := gradientGray(testSize)
	l, r, err := loaded.RectifyPair(frame, frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Bounds().Size(), test.ShouldResemble, loaded.Left.ROI.Size())
	test.That(t, r.Bounds().Size(), test.ShouldResemble, loaded.Right.ROI.Size())
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrap(newError(ConvergenceFailure, "stuck"), "mono calibration")
	test.That(t, errors.Is(err, ErrConvergenceFailure), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrShapeMismatch), test.ShouldBeFalse)
	test.That(t, KindOf(err), test.ShouldEqual, ConvergenceFailure)
	test.That(t, err.Error(), test.ShouldContainSubstring, "convergence failure: stuck")
	test.That(t, KindOf(errors.New("other")), test.ShouldEqual, ErrorKind(0))
}
