package keypoints

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DistanceType defines the metric used to compare two descriptors.
type DistanceType string

const (
	// Euclidean is the L2 norm of the difference.
	Euclidean DistanceType = "euclidean"
	// Manhattan is the L1 norm of the difference.
	Manhattan DistanceType = "manhattan"
	// Hamming counts the differing components. It is meant for unpacked binary descriptors.
	Hamming DistanceType = "hamming"
)

// Validate returns an error for unknown distance types.
func (dt DistanceType) Validate() error {
	switch dt {
	case Euclidean, Manhattan, Hamming:
		return nil
	default:
		return errors.Errorf("unknown distance type %q", dt)
	}
}

// distanceFunc returns the metric without length checks; callers compare equal width rows.
func (dt DistanceType) distanceFunc() func(p1, p2 []float64) float64 {
	switch dt {
	case Manhattan:
		return func(p1, p2 []float64) float64 { return floats.Distance(p1, p2, 1) }
	case Hamming:
		return hammingDistance
	case Euclidean:
		fallthrough
	default:
		return func(p1, p2 []float64) float64 { return floats.Distance(p1, p2, 2) }
	}
}

func hammingDistance(p1, p2 []float64) float64 {
	distance := 0
	for i := range p1 {
		if p1[i] != p2[i] {
			distance++
		}
	}
	return float64(distance)
}

// PairwiseDistance computes the query x train matrix of distances between two descriptor sets.
func PairwiseDistance(query, train *Descriptors, distType DistanceType) (*mat.Dense, error) {
	if err := checkDescriptorWidths(query, train); err != nil {
		return nil, err
	}
	m, n := query.Rows(), train.Rows()
	if m == 0 || n == 0 {
		return &mat.Dense{}, nil
	}
	dist := distType.distanceFunc()
	distances := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		q := query.RawRow(i)
		for j := 0; j < n; j++ {
			distances.Set(i, j, dist(q, train.RawRow(j)))
		}
	}
	return distances, nil
}

func checkDescriptorWidths(query, train *Descriptors) error {
	if query.Rows() > 0 && train.Rows() > 0 && query.Cols() != train.Cols() {
		return errors.Errorf("descriptor widths differ: %d and %d", query.Cols(), train.Cols())
	}
	return nil
}
