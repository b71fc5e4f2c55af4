package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/rimage"
	"go.viam.com/sparsestereo/rimage/transform"
	"go.viam.com/sparsestereo/vision/keypoints"
	"go.viam.com/sparsestereo/vision/keypoints/accel"
	"go.viam.com/sparsestereo/vision/stereo"
)

// newLogger logs to the app's error writer so that the printed points stay clean.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("sparsestereo")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if !c.Bool(flagDebug) {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

// newExtractor builds the requested extractor. The returned function releases its resources.
func newExtractor(c *cli.Context, logger logging.Logger) (keypoints.FeatureExtractor, func(), error) {
	orbCfg := keypoints.DefaultORBConfig()
	if path := c.Path(flagORBConfig); path != "" {
		var err error
		if orbCfg, err = keypoints.LoadORBConfiguration(path); err != nil {
			return nil, nil, err
		}
	}
	orb, err := keypoints.NewORBExtractor(orbCfg, logger.Sublogger("orb"))
	if err != nil {
		return nil, nil, err
	}

	switch kind := c.String(flagExtractor); kind {
	case extractorCPU:
		return orb, func() {}, nil
	case extractorSingleQueue:
		dev := accel.NewHostDevice(logger.Sublogger("device"))
		return accel.NewSingleStreamExtractor(dev, orb, logger), dev.Close, nil
	case extractorMultiQueue:
		dev := accel.NewHostDevice(logger.Sublogger("device"))
		return accel.NewMultiStreamExtractor(dev, orb, logger), dev.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown extractor %q", kind)
	}
}

// MatchAction runs the matcher on a stereo pair.
func MatchAction(c *cli.Context) error {
	logger := newLogger(c)

	calib, err := transform.LoadStereoCalibration(c.Path(flagCalibration))
	if err != nil {
		return err
	}
	cfg := stereo.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		if cfg, err = stereo.LoadConfiguration(path); err != nil {
			return err
		}
	}
	left, err := rimage.ReadGrayImage(c.Path(flagLeft), c.Float64(flagBlur))
	if err != nil {
		return err
	}
	right, err := rimage.ReadGrayImage(c.Path(flagRight), c.Float64(flagBlur))
	if err != nil {
		return err
	}

	extractor, closeExtractor, err := newExtractor(c, logger)
	if err != nil {
		return err
	}
	defer closeExtractor()

	matcher, err := stereo.NewMatcher(extractor, calib, cfg, logger.Sublogger("stereo"))
	if err != nil {
		return err
	}

	if !c.Bool(flagFull) {
		points, err := matcher.Match(c.Context, left, right)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, points.String())
		return nil
	}
	result, err := matcher.MatchFull(c.Context, left, right)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, result.Points.String())
	residuals, err := result.ResidualStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "epipolar residuals: mean %.3g median %.3g max %.3g\n",
		residuals.Mean, residuals.Median, residuals.Max)
	return nil
}
