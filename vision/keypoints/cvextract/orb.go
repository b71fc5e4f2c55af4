//go:build opencv

// Package cvextract provides an OpenCV backed ORB feature extractor. It is only built with
// the opencv build tag and needs OpenCV installed.
package cvextract

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/vision/keypoints"
)

// number of detectors, one per side of a stereo pair
const poolSize = 2

// Config holds the OpenCV ORB parameters.
type Config struct {
	MaxFeatures   int     `json:"max_features"`
	ScaleFactor   float64 `json:"scale_factor"`
	Levels        int     `json:"n_levels"`
	EdgeThreshold int     `json:"edge_threshold"`
	FastThreshold int     `json:"fast_threshold"`
	PatchSize     int     `json:"patch_size"`
}

// DefaultConfig returns OpenCV's ORB defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFeatures:   500,
		ScaleFactor:   1.2,
		Levels:        8,
		EdgeThreshold: 31,
		FastThreshold: 20,
		PatchSize:     31,
	}
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.MaxFeatures < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_features should be >= 1"))
	}
	if config.ScaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("scale_factor should be greater than 1"))
	}
	if config.Levels < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_levels should be >= 1"))
	}
	if config.PatchSize < 2 || config.EdgeThreshold < 0 || config.FastThreshold < 0 {
		return utils.NewConfigValidationError(path, errors.New("patch_size, edge_threshold and fast_threshold are out of range"))
	}
	return nil
}

// ORBExtractor detects and describes ORB features with OpenCV. Descriptors are returned with
// one 0/1 column per bit so that they match with keypoints.Hamming.
type ORBExtractor struct {
	detectors chan *gocv.ORB
	logger    logging.Logger
}

// NewORBExtractor creates the OpenCV detectors. Close must be called to free them.
func NewORBExtractor(cfg *Config, logger logging.Logger) (*ORBExtractor, error) {
	if err := cfg.Validate("cvorb"); err != nil {
		return nil, err
	}
	detectors := make(chan *gocv.ORB, poolSize)
	for i := 0; i < poolSize; i++ {
		orb := gocv.NewORBWithParams(
			cfg.MaxFeatures, float32(cfg.ScaleFactor), cfg.Levels, cfg.EdgeThreshold,
			0, 2, gocv.ORBScoreTypeHarris, cfg.PatchSize, cfg.FastThreshold)
		detectors <- &orb
	}
	return &ORBExtractor{detectors: detectors, logger: logger}, nil
}

// DetectAndCompute implements keypoints.FeatureExtractor. Up to two calls run concurrently.
func (o *ORBExtractor) DetectAndCompute(img *image.Gray) (*keypoints.Features, error) {
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert image to an OpenCV matrix")
	}
	defer utils.UncheckedErrorFunc(src.Close)
	mask := gocv.NewMat()
	defer utils.UncheckedErrorFunc(mask.Close)

	orb := <-o.detectors
	cvKps, descs := orb.DetectAndCompute(src, mask)
	o.detectors <- orb
	defer utils.UncheckedErrorFunc(descs.Close)

	features, err := convertFeatures(cvKps, descs)
	if err != nil {
		return nil, err
	}
	o.logger.Debugw("opencv orb extraction", "keypoints", features.Len())
	return features, nil
}

// Close frees the OpenCV detectors.
func (o *ORBExtractor) Close() error {
	var err error
	for i := 0; i < poolSize; i++ {
		orb := <-o.detectors
		if closeErr := orb.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func convertFeatures(cvKps []gocv.KeyPoint, descs gocv.Mat) (*keypoints.Features, error) {
	kps := make(keypoints.KeyPoints, len(cvKps))
	for i, kp := range cvKps {
		kps[i] = keypoints.KeyPoint{
			Pt:       r2.Point{X: kp.X, Y: kp.Y},
			Size:     kp.Size,
			Angle:    kp.Angle * math.Pi / 180,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
	}
	if len(kps) == 0 || descs.Empty() {
		return &keypoints.Features{KeyPoints: keypoints.KeyPoints{}, Descriptors: &keypoints.Descriptors{}}, nil
	}
	if descs.Rows() != len(kps) {
		return nil, errors.Errorf("opencv returned %d descriptors for %d keypoints", descs.Rows(), len(kps))
	}
	bits := descs.Cols() * 8
	data := make([]float64, descs.Rows()*bits)
	for r := 0; r < descs.Rows(); r++ {
		for c := 0; c < descs.Cols(); c++ {
			b := descs.GetUCharAt(r, c)
			for k := 0; k < 8; k++ {
				data[r*bits+c*8+k] = float64((b >> (7 - k)) & 1)
			}
		}
	}
	return &keypoints.Features{
		KeyPoints:   kps,
		Descriptors: keypoints.NewDescriptorsFromDense(mat.NewDense(descs.Rows(), bits, data)),
	}, nil
}
