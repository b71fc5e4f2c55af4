package keypoints

import (
	"math"
	"slices"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sparsestereo/rimage/transform"
)

// DescriptorMatch pairs query descriptor QueryIdx (left image) with train descriptor TrainIdx
// (right image). Distance is the descriptor distance of the pair.
type DescriptorMatch struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

// MatchBruteForce matches every query descriptor to its nearest train descriptor. With
// crossCheck, a pair is kept only if the query descriptor is also the nearest neighbor of the
// train descriptor. Matches come out in query order; exact ties go to the lowest index.
func MatchBruteForce(query, train *Descriptors, distType DistanceType, crossCheck bool) ([]DescriptorMatch, error) {
	distances, err := PairwiseDistance(query, train, distType)
	if err != nil {
		return nil, err
	}
	if distances.IsEmpty() {
		return []DescriptorMatch{}, nil
	}
	nearestTrain := argMinPerRow(distances)
	var nearestQuery []int
	if crossCheck {
		nearestQuery = argMinPerRow(distances.T())
	}
	matches := make([]DescriptorMatch, 0, len(nearestTrain))
	for q, t := range nearestTrain {
		if crossCheck && nearestQuery[t] != q {
			continue
		}
		matches = append(matches, DescriptorMatch{QueryIdx: q, TrainIdx: t, Distance: distances.At(q, t)})
	}
	return matches, nil
}

// argMinPerRow returns the column of the minimum of each row, the first one on ties.
func argMinPerRow(distances mat.Matrix) []int {
	nRows, _ := distances.Dims()
	indices := make([]int, nRows)
	for i := 0; i < nRows; i++ {
		indices[i] = floats.MinIdx(mat.Row(nil, i, distances))
	}
	return indices
}

// KnnMatch2 returns, for every query descriptor, its two nearest train descriptors sorted by
// increasing distance (a single one when train holds one descriptor).
func KnnMatch2(query, train *Descriptors, distType DistanceType) ([][]DescriptorMatch, error) {
	distances, err := PairwiseDistance(query, train, distType)
	if err != nil {
		return nil, err
	}
	if distances.IsEmpty() {
		return [][]DescriptorMatch{}, nil
	}
	nRows, nCols := distances.Dims()
	knn := make([][]DescriptorMatch, nRows)
	for q := 0; q < nRows; q++ {
		row := distances.RawRowView(q)
		best, second := -1, -1
		for t := 0; t < nCols; t++ {
			switch {
			case best < 0 || row[t] < row[best]:
				best, second = t, best
			case second < 0 || row[t] < row[second]:
				second = t
			}
		}
		knn[q] = []DescriptorMatch{{QueryIdx: q, TrainIdx: best, Distance: row[best]}}
		if second >= 0 {
			knn[q] = append(knn[q], DescriptorMatch{QueryIdx: q, TrainIdx: second, Distance: row[second]})
		}
	}
	return knn, nil
}

// FilterRatioTest applies Lowe's ratio test to k-nearest-neighbor candidates: the nearest
// neighbor is kept when its distance is below threshold times the second one. A threshold of 1
// or more disables the comparison and keeps the nearest neighbor of every candidate. Otherwise
// candidates with fewer than two neighbors are dropped.
func FilterRatioTest(knn [][]DescriptorMatch, threshold float64) []DescriptorMatch {
	good := make([]DescriptorMatch, 0, len(knn))
	for _, candidates := range knn {
		if threshold >= 1 {
			if len(candidates) > 0 {
				good = append(good, candidates[0])
			}
			continue
		}
		if len(candidates) < 2 {
			continue
		}
		if candidates[0].Distance < threshold*candidates[1].Distance {
			good = append(good, candidates[0])
		}
	}
	return good
}

// FilterMatchesByDistance keeps the matches whose distance does not exceed
// max(multiplier * smallest distance, minThreshold).
func FilterMatchesByDistance(matches []DescriptorMatch, multiplier, minThreshold float64) []DescriptorMatch {
	if len(matches) == 0 {
		return []DescriptorMatch{}
	}
	minDist := lo.MinBy(matches, func(a, b DescriptorMatch) bool { return a.Distance < b.Distance }).Distance
	threshold := math.Max(multiplier*minDist, minThreshold)
	return lo.Filter(matches, func(m DescriptorMatch, _ int) bool { return m.Distance <= threshold })
}

// MatchEpipolarBanded matches descriptors of a roughly rectified pair. Each query point is only
// compared with the train points whose row lies within verticalTolerance of its own. Both sets
// are visited in row order so the window of candidate rows only moves forward. Matches come out
// in query order and ties go to the first candidate in row order.
func MatchEpipolarBanded(
	queryPts, trainPts []r2.Point,
	query, train *Descriptors,
	distType DistanceType,
	verticalTolerance float64,
) ([]DescriptorMatch, error) {
	if len(queryPts) != query.Rows() {
		return nil, transform.NewInvalidGeometryError("%d query points for %d query descriptors", len(queryPts), query.Rows())
	}
	if len(trainPts) != train.Rows() {
		return nil, transform.NewInvalidGeometryError("%d train points for %d train descriptors", len(trainPts), train.Rows())
	}
	if err := checkDescriptorWidths(query, train); err != nil {
		return nil, err
	}
	if verticalTolerance < 0 {
		return nil, errors.Errorf("vertical tolerance must be >= 0, got %v", verticalTolerance)
	}

	queryOrder := sortedByRow(queryPts)
	trainOrder := sortedByRow(trainPts)
	dist := distType.distanceFunc()

	matches := make([]DescriptorMatch, 0, len(queryOrder))
	lower, upper := 0, 0
	for _, q := range queryOrder {
		y := queryPts[q].Y
		for lower < len(trainOrder) && trainPts[trainOrder[lower]].Y < y-verticalTolerance {
			lower++
		}
		upper = max(upper, lower)
		for upper < len(trainOrder) && trainPts[trainOrder[upper]].Y <= y+verticalTolerance {
			upper++
		}
		best, bestDist := -1, math.Inf(1)
		for _, t := range trainOrder[lower:upper] {
			if d := dist(query.RawRow(q), train.RawRow(t)); d < bestDist {
				best, bestDist = t, d
			}
		}
		if best >= 0 {
			matches = append(matches, DescriptorMatch{QueryIdx: q, TrainIdx: best, Distance: bestDist})
		}
	}
	slices.SortFunc(matches, func(a, b DescriptorMatch) int { return a.QueryIdx - b.QueryIdx })
	return matches, nil
}

// sortedByRow returns the indices of pts ordered by increasing Y, stable on ties.
func sortedByRow(pts []r2.Point) []int {
	order := lo.Range(len(pts))
	sort.SliceStable(order, func(i, j int) bool { return pts[order[i]].Y < pts[order[j]].Y })
	return order
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches []DescriptorMatch, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	matchedKps1 := make(KeyPoints, len(matches))
	matchedKps2 := make(KeyPoints, len(matches))
	for i, match := range matches {
		if match.QueryIdx < 0 || match.QueryIdx >= len(kps1) {
			return nil, nil, transform.NewInvalidGeometryError("match %d refers to query keypoint %d of %d", i, match.QueryIdx, len(kps1))
		}
		if match.TrainIdx < 0 || match.TrainIdx >= len(kps2) {
			return nil, nil, transform.NewInvalidGeometryError("match %d refers to train keypoint %d of %d", i, match.TrainIdx, len(kps2))
		}
		matchedKps1[i] = kps1[match.QueryIdx]
		matchedKps2[i] = kps2[match.TrainIdx]
	}
	return matchedKps1, matchedKps2, nil
}
