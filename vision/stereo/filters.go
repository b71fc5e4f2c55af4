package stereo

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sparsestereo/rimage/transform"
	"go.viam.com/sparsestereo/vision/keypoints"
)

// checkMatchIndices verifies that every match refers to an existing left and right point.
func checkMatchIndices(matches []keypoints.DescriptorMatch, left, right []r2.Point) error {
	for i, m := range matches {
		if m.QueryIdx < 0 || m.QueryIdx >= len(left) {
			return transform.NewInvalidGeometryError("match %d refers to left point %d of %d", i, m.QueryIdx, len(left))
		}
		if m.TrainIdx < 0 || m.TrainIdx >= len(right) {
			return transform.NewInvalidGeometryError("match %d refers to right point %d of %d", i, m.TrainIdx, len(right))
		}
	}
	return nil
}

func disparity(m keypoints.DescriptorMatch, left, right []r2.Point) float64 {
	return left[m.QueryIdx].X - right[m.TrainIdx].X
}

// FilterMinimumDisparity keeps the matches whose disparity left.x - right.x is at least
// minDisparity.
func FilterMinimumDisparity(matches []keypoints.DescriptorMatch, left, right []r2.Point, minDisparity float64) ([]keypoints.DescriptorMatch, error) {
	if err := checkMatchIndices(matches, left, right); err != nil {
		return nil, err
	}
	return lo.Filter(matches, func(m keypoints.DescriptorMatch, _ int) bool {
		return disparity(m, left, right) >= minDisparity
	}), nil
}

// FilterMaximumDisparity keeps the matches whose disparity is at most maxDisparity.
func FilterMaximumDisparity(matches []keypoints.DescriptorMatch, left, right []r2.Point, maxDisparity float64) ([]keypoints.DescriptorMatch, error) {
	if err := checkMatchIndices(matches, left, right); err != nil {
		return nil, err
	}
	return lo.Filter(matches, func(m keypoints.DescriptorMatch, _ int) bool {
		return disparity(m, left, right) <= maxDisparity
	}), nil
}

// FilterEpipolarConstraint keeps the matches whose epipolar residual p2^T F p1 is below
// threshold in absolute value. The residuals of the kept matches are returned alongside them.
func FilterEpipolarConstraint(
	matches []keypoints.DescriptorMatch,
	left, right []r2.Point,
	fundamental mat.Matrix,
	threshold float64,
) ([]keypoints.DescriptorMatch, []float64, error) {
	if r, c := fundamental.Dims(); r != 3 || c != 3 {
		return nil, nil, transform.NewInvalidGeometryError("fundamental matrix must be 3x3, got %dx%d", r, c)
	}
	if err := checkMatchIndices(matches, left, right); err != nil {
		return nil, nil, err
	}
	kept := make([]keypoints.DescriptorMatch, 0, len(matches))
	residuals := make([]float64, 0, len(matches))
	for _, m := range matches {
		r := transform.EpipolarResidual(fundamental, left[m.QueryIdx], right[m.TrainIdx])
		if math.Abs(r) < threshold {
			kept = append(kept, m)
			residuals = append(residuals, r)
		}
	}
	return kept, residuals, nil
}

// CompactMatches builds the point arrays of the matched pairs. Match i of the returned set
// refers to index i of both new arrays; distances are kept.
func CompactMatches(matches []keypoints.DescriptorMatch, left, right []r2.Point) ([]r2.Point, []r2.Point, []keypoints.DescriptorMatch, error) {
	if err := checkMatchIndices(matches, left, right); err != nil {
		return nil, nil, nil, err
	}
	compactLeft := lo.Map(matches, func(m keypoints.DescriptorMatch, _ int) r2.Point { return left[m.QueryIdx] })
	compactRight := lo.Map(matches, func(m keypoints.DescriptorMatch, _ int) r2.Point { return right[m.TrainIdx] })
	compacted := lo.Map(matches, func(m keypoints.DescriptorMatch, i int) keypoints.DescriptorMatch {
		return keypoints.DescriptorMatch{QueryIdx: i, TrainIdx: i, Distance: m.Distance}
	})
	return compactLeft, compactRight, compacted, nil
}
