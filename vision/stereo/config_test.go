package stereo

import (
	"path/filepath"
	"testing"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/sparsestereo/vision/keypoints"
)

func TestLoadConfiguration(t *testing.T) {
	test.That(t, DefaultConfig().Validate("stereo"), test.ShouldBeNil)

	cfg, err := LoadConfiguration(filepath.Join("testdata", "stereoconfig.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Strategy, test.ShouldEqual, BruteForce)
	test.That(t, cfg.Norm, test.ShouldEqual, keypoints.Hamming)
	test.That(t, cfg.MinDisparity, test.ShouldEqual, 4)
	test.That(t, cfg.MaxDisparity, test.ShouldEqual, 64)
	test.That(t, cfg.CrossCheck, test.ShouldBeFalse)
	test.That(t, cfg.MaxKeypoints, test.ShouldEqual, 500)
	// fields absent from the file keep their defaults
	test.That(t, cfg.FullStrategy, test.ShouldEqual, KnnRatio)
	test.That(t, cfg.RatioTestThreshold, test.ShouldEqual, 0.7)
	test.That(t, cfg.VerticalTolerance, test.ShouldEqual, 10)

	_, err = LoadConfiguration(filepath.Join("testdata", "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"strategy", func(c *Config) { c.Strategy = "greedy" }, "strategy"},
		{"full strategy", func(c *Config) { c.FullStrategy = "" }, "full_strategy"},
		{"norm", func(c *Config) { c.Norm = "cosine" }, "norm"},
		{"kdtree norm", func(c *Config) {
			c.Strategy = KDTree
			c.Norm = keypoints.Hamming
		}, "kd-tree"},
		{"ratio", func(c *Config) { c.RatioTestThreshold = 0 }, "ratio_test_threshold"},
		{"epipolar", func(c *Config) { c.EpipolarThreshold = -1 }, "epipolar_threshold"},
		{"max disparity", func(c *Config) { c.MaxDisparity = 5 }, "max_disparity"},
		{"vertical tolerance", func(c *Config) { c.VerticalTolerance = -1 }, "vertical_tolerance"},
		{"multiplier", func(c *Config) { c.DistanceMultiplier = 0 }, "distance_multiplier"},
		{"max keypoints", func(c *Config) { c.MaxKeypoints = -1 }, "max_keypoints"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate("stereo")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}

	cfg := DefaultConfig()
	cfg.RatioTestThreshold = 0
	cfg.EpipolarThreshold = 0
	test.That(t, multierr.Errors(cfg.Validate("stereo")), test.ShouldHaveLength, 2)
}
