package keypoints

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/rimage"
	rutils "go.viam.com/sparsestereo/utils"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns a single layer configuration with 256 bit oriented descriptors.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          1,
		DownscaleFactor: 2,
		FastConf:        &FASTConfig{NMatchesCircle: 9, NMSWinSize: 7, Threshold: 20, Oriented: true},
		BRIEFConf:       &BRIEFConfig{N: 256, Sampling: normal, UseOrientation: true, PatchSize: 48, Seed: 42},
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	var config ORBConfig
	configFile, err := os.Open(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode ORB configuration %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if err := config.FastConf.Validate(path + ".fast"); err != nil {
		return err
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

// ComputeORBKeypoints computes oriented FAST keypoints and BRIEF descriptors on the first
// cfg.Layers pyramid layers, or on every layer when the image has fewer octaves. Keypoints are
// returned in original image coordinates, layer by layer. An image too small for the FAST
// circle has no keypoints.
func ComputeORBKeypoints(im *image.Gray, sp *SamplePairs, cfg *ORBConfig) (*Features, error) {
	if cfg.Layers <= 0 {
		return nil, errors.New("number of layers should be > 0")
	}
	if cfg.DownscaleFactor <= 1 {
		return nil, errors.New("downscale factor should be >= 2")
	}
	minSize := 2*fastBorder + 1
	if size := im.Bounds().Size(); size.X < minSize || size.Y < minSize {
		return &Features{KeyPoints: KeyPoints{}, Descriptors: &Descriptors{}}, nil
	}
	pyramid, err := rimage.GetImagePyramid(im, float64(cfg.DownscaleFactor), minSize)
	if err != nil {
		return nil, err
	}
	layers := min(cfg.Layers, len(pyramid.Scales))
	orbPoints := make(KeyPoints, 0)
	rows := make([][]float64, 0)
	for i := 0; i < layers; i++ {
		currentImage := pyramid.Images[i]
		fastKps, err := NewFASTKeypointsFromImage(currentImage, cfg.FastConf)
		if err != nil {
			return nil, err
		}
		for j := range fastKps {
			fastKps[j].Octave = i
		}
		kept, descs, err := ComputeBRIEFDescriptors(currentImage, sp, fastKps, cfg.BRIEFConf)
		if err != nil {
			return nil, err
		}
		orbPoints = append(orbPoints, RescaleKeypoints(kept, pyramid.Scales[i])...)
		for r := 0; r < descs.Rows(); r++ {
			rows = append(rows, descs.RawRow(r))
		}
	}
	descriptors, err := NewDescriptors(rows)
	if err != nil {
		return nil, err
	}
	return &Features{KeyPoints: orbPoints, Descriptors: descriptors}, nil
}

// ORBExtractor is the CPU feature extractor. It is safe for concurrent use: the sample pairs
// are generated once and only read afterwards.
type ORBExtractor struct {
	cfg    *ORBConfig
	pairs  *SamplePairs
	logger logging.Logger
}

// NewORBExtractor validates cfg and generates the BRIEF sample pairs shared by every image.
func NewORBExtractor(cfg *ORBConfig, logger logging.Logger) (*ORBExtractor, error) {
	if err := cfg.Validate("orb"); err != nil {
		return nil, err
	}
	return &ORBExtractor{
		cfg:    cfg,
		pairs:  cfg.BRIEFConf.NewSamplePairs(),
		logger: logger,
	}, nil
}

// DetectAndCompute implements FeatureExtractor.
func (o *ORBExtractor) DetectAndCompute(img *image.Gray) (*Features, error) {
	timer := rutils.NewProfilingTimer(nil)
	features, err := ComputeORBKeypoints(img, o.pairs, o.cfg)
	if err != nil {
		return nil, err
	}
	o.logger.Debugw("orb extraction", "keypoints", features.Len(), "elapsed", timer.Elapsed())
	return features, nil
}

// DetectAndComputePair implements PairExtractor by extracting both images concurrently.
func (o *ORBExtractor) DetectAndComputePair(ctx context.Context, left, right *image.Gray) (*Features, *Features, error) {
	return extractConcurrently(ctx, o, left, right)
}
