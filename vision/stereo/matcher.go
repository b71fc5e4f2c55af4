// Package stereo turns a calibrated stereo image pair into triangulated 3D points from sparse
// feature correspondences.
package stereo

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/rimage"
	"go.viam.com/sparsestereo/rimage/transform"
	rutils "go.viam.com/sparsestereo/utils"
	"go.viam.com/sparsestereo/vision/keypoints"
)

// Matcher computes 3D point correspondences from stereo pairs taken by one calibrated rig.
// It holds no state between calls and is safe for concurrent use when its extractor is.
type Matcher struct {
	extractor keypoints.FeatureExtractor
	calib     *transform.StereoCalibration
	cfg       Config
	logger    logging.Logger
}

// NewMatcher validates the configuration and calibration. The calibration must not be
// modified afterwards. A nil cfg uses DefaultConfig and a nil logger discards logs.
func NewMatcher(
	extractor keypoints.FeatureExtractor,
	calib *transform.StereoCalibration,
	cfg *Config,
	logger logging.Logger,
) (*Matcher, error) {
	if extractor == nil {
		return nil, errors.New("a feature extractor is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewBlankLogger("stereo")
	}
	if err := cfg.Validate("stereo"); err != nil {
		return nil, err
	}
	if err := calib.CheckValid(); err != nil {
		return nil, err
	}
	return &Matcher{extractor: extractor, calib: calib, cfg: *cfg, logger: logger}, nil
}

// correspondences is the state handed from one pipeline stage to the next.
type correspondences struct {
	left, right *keypoints.Features
	// matches index the keypoints of left and right
	matches []keypoints.DescriptorMatch
	// corrected pixels, index i belonging to matches[i]
	leftPts, rightPts []r2.Point
}

// Match runs the pipeline with the configured strategy and returns the triangulated points.
func (m *Matcher) Match(ctx context.Context, left, right *image.Gray) (*Points, error) {
	c, err := m.correspond(ctx, left, right, m.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return m.triangulate(ctx, c)
}

// MatchFull runs the pipeline with the full strategy and also returns the matched keypoints,
// their descriptors and the epipolar residuals of the corrected pairs.
func (m *Matcher) MatchFull(ctx context.Context, left, right *image.Gray) (*MatchResult, error) {
	c, err := m.correspond(ctx, left, right, m.cfg.FullStrategy)
	if err != nil {
		return nil, err
	}
	points, err := m.triangulate(ctx, c)
	if err != nil {
		return nil, err
	}

	leftKps, rightKps, err := keypoints.GetMatchingKeyPoints(c.matches, c.left.KeyPoints, c.right.KeyPoints)
	if err != nil {
		return nil, err
	}
	leftIdx := lo.Map(c.matches, func(dm keypoints.DescriptorMatch, _ int) int { return dm.QueryIdx })
	rightIdx := lo.Map(c.matches, func(dm keypoints.DescriptorMatch, _ int) int { return dm.TrainIdx })
	result := &MatchResult{
		Points:           *points,
		LeftKeyPoints:    leftKps.WithPoints(c.leftPts),
		RightKeyPoints:   rightKps.WithPoints(c.rightPts),
		LeftDescriptors:  c.left.Descriptors.SelectRows(leftIdx),
		RightDescriptors: c.right.Descriptors.SelectRows(rightIdx),
		Residuals: lo.Map(c.leftPts, func(p r2.Point, i int) float64 {
			return transform.EpipolarResidual(m.calib.Fundamental, p, c.rightPts[i])
		}),
	}
	if err := result.checkAligned(); err != nil {
		return nil, err
	}
	return result, nil
}

// correspond extracts, matches, filters and corrects correspondences.
func (m *Matcher) correspond(ctx context.Context, left, right *image.Gray, strategy Strategy) (*correspondences, error) {
	if left == nil || right == nil {
		return nil, errors.New("both images of the pair are required")
	}
	if !rimage.SameImgSize(left, right) {
		return nil, errors.Errorf("left image is %v but right image is %v", left.Bounds().Size(), right.Bounds().Size())
	}
	timer := rutils.NewProfilingTimer(nil)

	leftFeatures, rightFeatures, err := keypoints.ExtractPair(ctx, m.extractor, left, right)
	if err != nil {
		return nil, err
	}
	leftFeatures = leftFeatures.Truncate(m.cfg.MaxKeypoints)
	rightFeatures = rightFeatures.Truncate(m.cfg.MaxKeypoints)
	timer.Lap(ctx, m.logger, "extract")
	if leftFeatures.Len() == 0 || rightFeatures.Len() == 0 {
		return nil, errors.Wrapf(ErrNoKeypointsDetected, "%d left and %d right keypoints", leftFeatures.Len(), rightFeatures.Len())
	}

	matches, err := m.cfg.runStrategy(strategy, leftFeatures, rightFeatures)
	if err != nil {
		return nil, err
	}
	m.logger.CDebugw(ctx, "candidate matches", "strategy", strategy, "matches", len(matches),
		"left", leftFeatures.Len(), "right", rightFeatures.Len())
	timer.Lap(ctx, m.logger, "match")
	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrNoMatchesFound, "strategy %s", strategy)
	}

	rawLeft, rawRight := leftFeatures.KeyPoints.Points(), rightFeatures.KeyPoints.Points()
	matches, err = FilterMinimumDisparity(matches, rawLeft, rawRight, m.cfg.MinDisparity)
	if err != nil {
		return nil, err
	}
	if m.cfg.MaxDisparity > 0 {
		if matches, err = FilterMaximumDisparity(matches, rawLeft, rawRight, m.cfg.MaxDisparity); err != nil {
			return nil, err
		}
	}
	m.logger.CDebugw(ctx, "disparity filter", "matches", len(matches))
	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrAllMatchesFiltered, "disparity outside [%v, %v]", m.cfg.MinDisparity, m.cfg.MaxDisparity)
	}

	undistortedLeft := m.calib.Left.UndistortPixels(rawLeft)
	undistortedRight := m.calib.Right.UndistortPixels(rawRight)
	matches, _, err = FilterEpipolarConstraint(matches, undistortedLeft, undistortedRight, m.calib.Fundamental, m.cfg.EpipolarThreshold)
	if err != nil {
		return nil, err
	}
	m.logger.CDebugw(ctx, "epipolar filter", "matches", len(matches))
	timer.Lap(ctx, m.logger, "filter")
	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrAllMatchesFiltered, "epipolar residual above %v", m.cfg.EpipolarThreshold)
	}

	compactLeft, compactRight, _, err := CompactMatches(matches, undistortedLeft, undistortedRight)
	if err != nil {
		return nil, err
	}
	correctedLeft, correctedRight, err := transform.CorrectMatches(m.calib.Fundamental, compactLeft, compactRight)
	if err != nil {
		return nil, err
	}
	timer.Lap(ctx, m.logger, "correct")

	return &correspondences{
		left:     leftFeatures,
		right:    rightFeatures,
		matches:  matches,
		leftPts:  correctedLeft,
		rightPts: correctedRight,
	}, nil
}

func (m *Matcher) triangulate(ctx context.Context, c *correspondences) (*Points, error) {
	timer := rutils.NewProfilingTimer(nil)
	points3D, err := transform.Triangulate(m.calib.ProjectionLeft, m.calib.ProjectionRight, c.leftPts, c.rightPts)
	if err != nil {
		return nil, err
	}
	timer.Lap(ctx, m.logger, "triangulate")
	return &Points{Points3D: points3D, Left: c.leftPts, Right: c.rightPts}, nil
}
