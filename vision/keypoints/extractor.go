package keypoints

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// FeatureExtractor detects keypoints in one gray image and describes them.
type FeatureExtractor interface {
	DetectAndCompute(img *image.Gray) (*Features, error)
}

// PairExtractor is implemented by extractors that schedule a stereo pair themselves.
type PairExtractor interface {
	DetectAndComputePair(ctx context.Context, left, right *image.Gray) (*Features, *Features, error)
}

// ExtractPair extracts features from both images of a stereo pair. Extractors that implement
// PairExtractor handle the pair themselves; any other extractor runs the two images as
// concurrent tasks. No result is returned until both sides have finished.
func ExtractPair(ctx context.Context, extractor FeatureExtractor, left, right *image.Gray) (*Features, *Features, error) {
	if pe, ok := extractor.(PairExtractor); ok {
		return pe.DetectAndComputePair(ctx, left, right)
	}
	return extractConcurrently(ctx, extractor, left, right)
}

// extractConcurrently runs the left and right extraction in two goroutines writing to their own
// results and joins them. Failures of both sides are combined.
func extractConcurrently(ctx context.Context, extractor FeatureExtractor, left, right *image.Gray) (*Features, *Features, error) {
	var (
		leftFeatures, rightFeatures *Features
		leftErr, rightErr           error
	)
	errs, _ := errgroup.WithContext(ctx)
	errs.Go(func() error {
		leftFeatures, leftErr = extractor.DetectAndCompute(left)
		return nil
	})
	errs.Go(func() error {
		rightFeatures, rightErr = extractor.DetectAndCompute(right)
		return nil
	})
	if err := errs.Wait(); err != nil {
		return nil, nil, err
	}
	if err := multierr.Combine(
		errors.Wrap(leftErr, "left image"),
		errors.Wrap(rightErr, "right image"),
	); err != nil {
		return nil, nil, err
	}
	return leftFeatures, rightFeatures, nil
}
