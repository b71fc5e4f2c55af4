package stereo

import (
	"github.com/pkg/errors"

	"go.viam.com/sparsestereo/vision/keypoints"
)

// runStrategy produces candidate matches from left (query) to right (train) features.
func (config *Config) runStrategy(strategy Strategy, left, right *keypoints.Features) ([]keypoints.DescriptorMatch, error) {
	switch strategy {
	case EpipolarBanded:
		return keypoints.MatchEpipolarBanded(
			left.KeyPoints.Points(), right.KeyPoints.Points(),
			left.Descriptors, right.Descriptors,
			config.Norm, config.VerticalTolerance)
	case BruteForce:
		return keypoints.MatchBruteForce(left.Descriptors, right.Descriptors, config.Norm, config.CrossCheck)
	case KnnRatio:
		knn, err := keypoints.KnnMatch2(left.Descriptors, right.Descriptors, config.Norm)
		if err != nil {
			return nil, err
		}
		return keypoints.FilterRatioTest(knn, config.RatioTestThreshold), nil
	case KDTree:
		matches, err := keypoints.NewKDTreeIndex(right.Descriptors).Match(left.Descriptors)
		if err != nil {
			return nil, err
		}
		return keypoints.FilterMatchesByDistance(matches, config.DistanceMultiplier, config.MinDistanceThreshold), nil
	case KDTreeRatio:
		knn, err := keypoints.NewKDTreeIndex(right.Descriptors).KnnMatch2(left.Descriptors)
		if err != nil {
			return nil, err
		}
		return keypoints.FilterRatioTest(knn, config.RatioTestThreshold), nil
	default:
		return nil, errors.Errorf("unknown strategy %q", strategy)
	}
}
