package transform

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	rutils "go.viam.com/sparsestereo/utils"
)

// ErrInvalidGeometry is returned for malformed calibration matrices or mismatched point arrays.
var ErrInvalidGeometry = errors.New("invalid geometry")

// NewInvalidGeometryError wraps ErrInvalidGeometry with a description.
func NewInvalidGeometryError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidGeometry, format, args...)
}

// StereoCalibration describes a calibrated stereo rig. Rotation and Translation map points from
// the left camera frame to the right camera frame: X_r = Rotation * X_l + Translation.
// The fundamental and projection matrices are derived once and must be treated as read-only.
type StereoCalibration struct {
	Left        CameraCalibration
	Right       CameraCalibration
	ImageSize   image.Point
	Rotation    *mat.Dense
	Translation r3.Vector

	Fundamental     *mat.Dense
	ProjectionLeft  *mat.Dense
	ProjectionRight *mat.Dense
}

// NewStereoCalibration derives the fundamental matrix F = K_r^-T [T]x R K_l^-1 and the
// projection matrices P_l = K_l [I|0] and P_r = K_r [R|T].
func NewStereoCalibration(left, right CameraCalibration, rotation *mat.Dense, translation r3.Vector) (*StereoCalibration, error) {
	if err := multierr.Combine(left.CheckValid(), right.CheckValid()); err != nil {
		return nil, errors.Wrap(err, "invalid camera calibration")
	}
	if rotation == nil {
		return nil, NewInvalidGeometryError("rotation is required")
	}
	if r, c := rotation.Dims(); r != 3 || c != 3 {
		return nil, NewInvalidGeometryError("rotation must be 3x3, got %dx%d", r, c)
	}
	if det := mat.Det(rotation); !rutils.Float64AlmostEqual(det, 1, 1e-6) {
		return nil, NewInvalidGeometryError("rotation must have determinant 1, got %v", det)
	}

	kl, kr := left.CameraMatrix(), right.CameraMatrix()
	fundamental, err := FundamentalFromExtrinsics(kl, kr, rotation, translation)
	if err != nil {
		return nil, err
	}
	calib := &StereoCalibration{
		Left:            left,
		Right:           right,
		ImageSize:       image.Point{left.Intrinsics.Width, left.Intrinsics.Height},
		Rotation:        mat.DenseCopyOf(rotation),
		Translation:     translation,
		Fundamental:     fundamental,
		ProjectionLeft:  ProjectionMatrix(kl, eye(3), r3.Vector{}),
		ProjectionRight: ProjectionMatrix(kr, rotation, translation),
	}
	if err := calib.CheckValid(); err != nil {
		return nil, err
	}
	return calib, nil
}

// NewRectifiedStereoCalibration builds a rig whose right camera sits baseline units along the
// left camera's +x axis, with parallel optical axes.
func NewRectifiedStereoCalibration(left, right CameraCalibration, baseline float64) (*StereoCalibration, error) {
	return NewStereoCalibration(left, right, eye(3), r3.Vector{X: -baseline})
}

// Baseline returns the distance between the two camera centers.
func (sc *StereoCalibration) Baseline() float64 {
	return sc.Translation.Norm()
}

// CheckValid verifies the shapes of every derived matrix.
func (sc *StereoCalibration) CheckValid() error {
	if sc == nil {
		return NewInvalidGeometryError("stereo calibration is nil")
	}
	check := func(name string, m *mat.Dense, rows, cols int) error {
		if m == nil {
			return NewInvalidGeometryError("%s is missing", name)
		}
		if r, c := m.Dims(); r != rows || c != cols {
			return NewInvalidGeometryError("%s must be %dx%d, got %dx%d", name, rows, cols, r, c)
		}
		return nil
	}
	return multierr.Combine(
		sc.Left.CheckValid(),
		sc.Right.CheckValid(),
		check("fundamental matrix", sc.Fundamental, 3, 3),
		check("left projection matrix", sc.ProjectionLeft, 3, 4),
		check("right projection matrix", sc.ProjectionRight, 3, 4),
	)
}

type stereoCalibrationJSON struct {
	Left        CameraCalibration `json:"left"`
	Right       CameraCalibration `json:"right"`
	Rotation    []float64         `json:"rotation"`
	Translation []float64         `json:"translation"`
}

// LoadStereoCalibration reads a calibration JSON file and derives its matrices. The rotation is
// 9 row-major values and defaults to identity when omitted.
func LoadStereoCalibration(file string) (*StereoCalibration, error) {
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return nil, errors.Wrap(err, "error reading stereo calibration")
	}
	return ParseStereoCalibration(data, file)
}

// ParseStereoCalibration decodes a calibration from JSON. path is used in validation errors.
func ParseStereoCalibration(data []byte, path string) (*StereoCalibration, error) {
	var raw stereoCalibrationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "error parsing stereo calibration")
	}
	if raw.Left.Intrinsics == nil {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "left.intrinsic_parameters")
	}
	if raw.Right.Intrinsics == nil {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "right.intrinsic_parameters")
	}
	rotation := eye(3)
	if raw.Rotation != nil {
		if len(raw.Rotation) != 9 {
			return nil, utils.NewConfigValidationError(path,
				NewInvalidGeometryError("rotation must have 9 values, got %d", len(raw.Rotation)))
		}
		rotation = mat.NewDense(3, 3, raw.Rotation)
	}
	if len(raw.Translation) != 3 {
		return nil, utils.NewConfigValidationError(path,
			NewInvalidGeometryError("translation must have 3 values, got %d", len(raw.Translation)))
	}
	translation := r3.Vector{X: raw.Translation[0], Y: raw.Translation[1], Z: raw.Translation[2]}
	return NewStereoCalibration(raw.Left, raw.Right, rotation, translation)
}
