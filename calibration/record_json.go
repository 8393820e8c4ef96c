package calibration

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/rimage/transform"
)

// matrixJSON is a dense matrix stored row by row.
type matrixJSON [][]float64

func toMatrixJSON(m mat.Matrix) matrixJSON {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make(matrixJSON, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func (m matrixJSON) dense(name string, rows, cols int) (*mat.Dense, error) {
	if len(m) != rows {
		return nil, newError(ShapeMismatch, "%s must have %d rows, got %d", name, rows, len(m))
	}
	data := make([]float64, 0, rows*cols)
	for i, row := range m {
		if len(row) != cols {
			return nil, newError(ShapeMismatch, "%s row %d must have %d columns, got %d", name, i, cols, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(rows, cols, data), nil
}

type sizeJSON struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s sizeJSON) point() image.Point { return image.Pt(s.Width, s.Height) }

// roiJSON uses the x, y, width, height convention.
type roiJSON struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func toROIJSON(r image.Rectangle) roiJSON {
	return roiJSON{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (r roiJSON) rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

type monoRecordJSON struct {
	ImageSize       sizeJSON         `json:"image_size"`
	CameraMatrix    matrixJSON       `json:"camera_matrix"`
	Distortion      []float64        `json:"distortion"`
	Extrinsics      []transform.Pose `json:"extrinsics"`
	NewCameraMatrix matrixJSON       `json:"new_camera_matrix"`
	Alpha           float64          `json:"alpha"`
	ROI             roiJSON          `json:"roi"`
	MapX            *RemapField      `json:"map_x"`
	MapY            *RemapField      `json:"map_y"`
	Correspondences Correspondences  `json:"correspondences"`
	RMS             float64          `json:"rms"`
}

// MarshalJSON writes every field of the record, matrices as nested rows.
func (rec *MonoCalibrationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(monoRecordJSON{
		ImageSize:       sizeJSON{rec.ImageSize.X, rec.ImageSize.Y},
		CameraMatrix:    toMatrixJSON(rec.CameraMatrix),
		Distortion:      rec.Distortion,
		Extrinsics:      rec.Extrinsics,
		NewCameraMatrix: toMatrixJSON(rec.NewCameraMatrix),
		Alpha:           rec.Alpha,
		ROI:             toROIJSON(rec.ROI),
		MapX:            rec.MapX,
		MapY:            rec.MapY,
		Correspondences: rec.Correspondences,
		RMS:             rec.RMS,
	})
}

// UnmarshalJSON reads a record written by MarshalJSON and checks every shape.
func (rec *MonoCalibrationRecord) UnmarshalJSON(data []byte) error {
	var raw monoRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return newError(InvalidInput, "decoding mono record: %v", err)
	}
	size := raw.ImageSize.point()
	if err := validateSize(size); err != nil {
		return err
	}
	k, err := raw.CameraMatrix.dense("camera matrix", 3, 3)
	if err != nil {
		return err
	}
	newK, err := raw.NewCameraMatrix.dense("new camera matrix", 3, 3)
	if err != nil {
		return err
	}
	if err := validateDistortion(raw.Distortion); err != nil {
		return err
	}
	if err := validateMaps(raw.MapX, raw.MapY, size); err != nil {
		return err
	}
	if err := raw.Correspondences.Validate(); err != nil {
		return err
	}
	if len(raw.Extrinsics) != len(raw.Correspondences) {
		return newError(ShapeMismatch, "%d extrinsics for %d views", len(raw.Extrinsics), len(raw.Correspondences))
	}
	*rec = MonoCalibrationRecord{
		ImageSize:       size,
		CameraMatrix:    k,
		Distortion:      raw.Distortion,
		Extrinsics:      raw.Extrinsics,
		NewCameraMatrix: newK,
		Alpha:           raw.Alpha,
		ROI:             raw.ROI.rect(),
		MapX:            raw.MapX,
		MapY:            raw.MapY,
		Correspondences: raw.Correspondences,
		RMS:             raw.RMS,
	}
	return nil
}

type cameraJSON struct {
	CameraMatrix  matrixJSON       `json:"camera_matrix"`
	Distortion    []float64        `json:"distortion"`
	Extrinsics    []transform.Pose `json:"extrinsics"`
	ImagePoints   [][]r2.Point     `json:"image_points"`
	Rectification matrixJSON       `json:"rectification"`
	Projection    matrixJSON       `json:"projection"`
	ROI           roiJSON          `json:"roi"`
	MapX          *RemapField      `json:"map_x"`
	MapY          *RemapField      `json:"map_y"`
}

type stereoRecordJSON struct {
	ImageSize    sizeJSON      `json:"image_size"`
	ObjectPoints [][]r3.Vector `json:"object_points"`
	Left         cameraJSON    `json:"left"`
	Right        cameraJSON    `json:"right"`
	R            matrixJSON    `json:"r"`
	T            r3.Vector     `json:"t"`
	E            matrixJSON    `json:"e"`
	F            matrixJSON    `json:"f"`
	Q            matrixJSON    `json:"q"`
	Alpha        float64       `json:"alpha"`
	RMS          float64       `json:"rms"`
}

func toCameraJSON(cam *CameraCalibration) cameraJSON {
	return cameraJSON{
		CameraMatrix:  toMatrixJSON(cam.CameraMatrix),
		Distortion:    cam.Distortion,
		Extrinsics:    cam.Extrinsics,
		ImagePoints:   cam.ImagePoints,
		Rectification: toMatrixJSON(cam.Rectification),
		Projection:    toMatrixJSON(cam.Projection),
		ROI:           toROIJSON(cam.ROI),
		MapX:          cam.MapX,
		MapY:          cam.MapY,
	}
}

func (raw *cameraJSON) camera(side Side, size image.Point, numViews int) (CameraCalibration, error) {
	var cam CameraCalibration
	var err error
	if cam.CameraMatrix, err = raw.CameraMatrix.dense(side.String()+" camera matrix", 3, 3); err != nil {
		return cam, err
	}
	if cam.Rectification, err = raw.Rectification.dense(side.String()+" rectification", 3, 3); err != nil {
		return cam, err
	}
	if cam.Projection, err = raw.Projection.dense(side.String()+" projection", 3, 4); err != nil {
		return cam, err
	}
	if err := validateDistortion(raw.Distortion); err != nil {
		return cam, err
	}
	if err := validateMaps(raw.MapX, raw.MapY, size); err != nil {
		return cam, err
	}
	if len(raw.Extrinsics) != numViews || len(raw.ImagePoints) != numViews {
		return cam, newError(ShapeMismatch, "%s camera has %d extrinsics and %d point lists for %d views",
			side, len(raw.Extrinsics), len(raw.ImagePoints), numViews)
	}
	cam.Distortion = raw.Distortion
	cam.Extrinsics = raw.Extrinsics
	cam.ImagePoints = raw.ImagePoints
	cam.ROI = raw.ROI.rect()
	cam.MapX, cam.MapY = raw.MapX, raw.MapY
	return cam, nil
}

// MarshalJSON writes every field of the record, matrices as nested rows.
func (rec *StereoCalibrationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(stereoRecordJSON{
		ImageSize:    sizeJSON{rec.ImageSize.X, rec.ImageSize.Y},
		ObjectPoints: rec.ObjectPoints,
		Left:         toCameraJSON(&rec.Left),
		Right:        toCameraJSON(&rec.Right),
		R:            toMatrixJSON(rec.R),
		T:            rec.T,
		E:            toMatrixJSON(rec.E),
		F:            toMatrixJSON(rec.F),
		Q:            toMatrixJSON(rec.Q),
		Alpha:        rec.Alpha,
		RMS:          rec.RMS,
	})
}

// UnmarshalJSON reads a record written by MarshalJSON and checks every shape.
func (rec *StereoCalibrationRecord) UnmarshalJSON(data []byte) error {
	var raw stereoRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return newError(InvalidInput, "decoding stereo record: %v", err)
	}
	size := raw.ImageSize.point()
	if err := validateSize(size); err != nil {
		return err
	}
	out := StereoCalibrationRecord{ImageSize: size, ObjectPoints: raw.ObjectPoints, T: raw.T, Alpha: raw.Alpha, RMS: raw.RMS}
	var err error
	for _, m := range []struct {
		dst        **mat.Dense
		src        matrixJSON
		name       string
		rows, cols int
	}{
		{&out.R, raw.R, "R", 3, 3},
		{&out.E, raw.E, "E", 3, 3},
		{&out.F, raw.F, "F", 3, 3},
		{&out.Q, raw.Q, "Q", 4, 4},
	} {
		if *m.dst, err = m.src.dense(m.name, m.rows, m.cols); err != nil {
			return err
		}
	}
	if out.Left, err = raw.Left.camera(Left, size, len(raw.ObjectPoints)); err != nil {
		return err
	}
	if out.Right, err = raw.Right.camera(Right, size, len(raw.ObjectPoints)); err != nil {
		return err
	}
	if err := out.stereoCorrespondences().Validate(); err != nil {
		return err
	}
	*rec = out
	return nil
}

func (rec *StereoCalibrationRecord) stereoCorrespondences() StereoCorrespondences {
	out := make(StereoCorrespondences, len(rec.ObjectPoints))
	for i := range out {
		out[i] = StereoView{ObjectPoints: rec.ObjectPoints[i], Left: rec.Left.ImagePoints[i], Right: rec.Right.ImagePoints[i]}
	}
	return out
}

func validateDistortion(coeffs []float64) error {
	if len(coeffs) != 5 && len(coeffs) != 8 {
		return newError(ShapeMismatch, "distortion must have 5 or 8 coefficients, got %d", len(coeffs))
	}
	return nil
}

func validateMaps(mapX, mapY *RemapField, size image.Point) error {
	for _, f := range []*RemapField{mapX, mapY} {
		if f == nil {
			return newError(ShapeMismatch, "remap field is missing")
		}
		if f.Size() != size || len(f.Data) != size.X*size.Y {
			return newError(ShapeMismatch, "remap field is %v with %d values, image is %v", f.Size(), len(f.Data), size)
		}
	}
	return nil
}

// SaveMonoRecord writes a mono record as JSON.
func SaveMonoRecord(path string, rec *MonoCalibrationRecord) error {
	return saveJSON(path, rec)
}

// LoadMonoRecord reads a mono record written by SaveMonoRecord.
func LoadMonoRecord(path string) (*MonoCalibrationRecord, error) {
	rec := &MonoCalibrationRecord{}
	if err := loadJSON(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveStereoRecord writes a stereo record as JSON.
func SaveStereoRecord(path string, rec *StereoCalibrationRecord) error {
	return saveJSON(path, rec)
}

// LoadStereoRecord reads a stereo record written by SaveStereoRecord.
func LoadStereoRecord(path string) (*StereoCalibrationRecord, error) {
	rec := &StereoCalibrationRecord{}
	if err := loadJSON(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func saveJSON(path string, v interface{}) error {
	//nolint:gosec
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	return f.Sync()
}

func loadJSON(path string, v interface{}) error {
	//nolint:gosec
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "opening %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "reading %q", path)
	}
	return nil
}
