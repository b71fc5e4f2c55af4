package stereo

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/sparsestereo/vision/keypoints"
)

// Strategy names a matching strategy.
type Strategy string

const (
	// EpipolarBanded compares each left descriptor with the right descriptors of nearby rows.
	EpipolarBanded Strategy = "epipolar_banded"
	// BruteForce compares every pair of descriptors, with an optional cross check.
	BruteForce Strategy = "brute_force"
	// KnnRatio takes the two nearest neighbors and applies the ratio test.
	KnnRatio Strategy = "knn_ratio"
	// KDTree searches a kd-tree and keeps matches under the distance threshold.
	KDTree Strategy = "kdtree"
	// KDTreeRatio searches a kd-tree and applies the ratio test.
	KDTreeRatio Strategy = "kdtree_ratio"
)

// Validate returns an error for unknown strategies.
func (s Strategy) Validate() error {
	switch s {
	case EpipolarBanded, BruteForce, KnnRatio, KDTree, KDTreeRatio:
		return nil
	default:
		return errors.Errorf("unknown strategy %q", s)
	}
}

func (s Strategy) usesKDTree() bool {
	return s == KDTree || s == KDTreeRatio
}

// Config holds the matcher thresholds. It is read-only once a Matcher is built.
type Config struct {
	// Strategy is used by Match, FullStrategy by MatchFull.
	Strategy     Strategy               `json:"strategy"`
	FullStrategy Strategy               `json:"full_strategy"`
	Norm         keypoints.DistanceType `json:"norm"`

	RatioTestThreshold float64 `json:"ratio_test_threshold"`
	EpipolarThreshold  float64 `json:"epipolar_threshold"`
	MinDisparity       float64 `json:"min_disparity"`
	// MaxDisparity of 0 disables the maximum disparity filter.
	MaxDisparity      float64 `json:"max_disparity"`
	VerticalTolerance float64 `json:"vertical_tolerance"`
	CrossCheck        bool    `json:"cross_check"`

	DistanceMultiplier   float64 `json:"distance_multiplier"`
	MinDistanceThreshold float64 `json:"min_distance_threshold"`

	// MaxKeypoints caps the keypoints of each image in detection order; 0 keeps all of them.
	MaxKeypoints int `json:"max_keypoints"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		Strategy:             EpipolarBanded,
		FullStrategy:         KnnRatio,
		Norm:                 keypoints.Euclidean,
		RatioTestThreshold:   0.7,
		EpipolarThreshold:    0.5,
		MinDisparity:         10,
		MaxDisparity:         0,
		VerticalTolerance:    10,
		CrossCheck:           true,
		DistanceMultiplier:   2,
		MinDistanceThreshold: 0.02,
		MaxKeypoints:         0,
	}
}

// LoadConfiguration reads a JSON config file. Fields missing from the file keep their
// default values.
func LoadConfiguration(file string) (*Config, error) {
	config := DefaultConfig()
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode stereo configuration %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the config are valid. Every invalid field is reported.
func (config *Config) Validate(path string) error {
	var errs error
	invalid := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.Errorf(format, args...)))
	}
	if err := config.Strategy.Validate(); err != nil {
		invalid("strategy: %v", err)
	}
	if err := config.FullStrategy.Validate(); err != nil {
		invalid("full_strategy: %v", err)
	}
	if err := config.Norm.Validate(); err != nil {
		invalid("norm: %v", err)
	}
	if (config.Strategy.usesKDTree() || config.FullStrategy.usesKDTree()) && config.Norm != keypoints.Euclidean {
		invalid("kd-tree strategies need the %q norm, got %q", keypoints.Euclidean, config.Norm)
	}
	if config.RatioTestThreshold <= 0 {
		invalid("ratio_test_threshold should be > 0")
	}
	if config.EpipolarThreshold <= 0 {
		invalid("epipolar_threshold should be > 0")
	}
	if config.MaxDisparity < 0 || (config.MaxDisparity > 0 && config.MaxDisparity < config.MinDisparity) {
		invalid("max_disparity should be 0 or >= min_disparity")
	}
	if config.VerticalTolerance < 0 {
		invalid("vertical_tolerance should be >= 0")
	}
	if config.DistanceMultiplier <= 0 {
		invalid("distance_multiplier should be > 0")
	}
	if config.MinDistanceThreshold < 0 {
		invalid("min_distance_threshold should be >= 0")
	}
	if config.MaxKeypoints < 0 {
		invalid("max_keypoints should be >= 0")
	}
	return errs
}
