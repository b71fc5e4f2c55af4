//go:build opencv

package cvextract

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"

	"go.viam.com/sparsestereo/logging"
)

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate("cvorb"), test.ShouldBeNil)
	for _, mutate := range []func(*Config){
		func(c *Config) { c.MaxFeatures = 0 },
		func(c *Config) { c.ScaleFactor = 1 },
		func(c *Config) { c.Levels = 0 },
		func(c *Config) { c.PatchSize = 1 },
	} {
		cfg := DefaultConfig()
		mutate(cfg)
		test.That(t, cfg.Validate("cvorb"), test.ShouldNotBeNil)
	}
}

func TestORBExtractor(t *testing.T) {
	extractor, err := NewORBExtractor(DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, extractor.Close(), test.ShouldBeNil)
	}()

	img := image.NewGray(image.Rect(0, 0, 300, 200))
	draw.Draw(img, image.Rect(100, 50, 200, 150), &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	features, err := extractor.DetectAndCompute(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, features.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, features.Descriptors.Rows(), test.ShouldEqual, features.Len())
	test.That(t, features.Descriptors.Cols(), test.ShouldEqual, 256)
	for _, v := range features.Descriptors.RawRow(0) {
		test.That(t, v == 0 || v == 1, test.ShouldBeTrue)
	}

	flat, err := extractor.DetectAndCompute(image.NewGray(image.Rect(0, 0, 64, 64)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, flat.Len(), test.ShouldEqual, 0)
}
