package keypoints

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"

	rutils "go.viam.com/sparsestereo/utils"
)

// descriptorPoint is one train descriptor stored in the tree, with its row in the train set.
type descriptorPoint struct {
	row []float64
	idx int
}

// Compare implements kdtree.Comparable.
func (p descriptorPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.row[d] - c.(descriptorPoint).row[d]
}

// Dims implements kdtree.Comparable.
func (p descriptorPoint) Dims() int { return len(p.row) }

// Distance implements kdtree.Comparable. It is the squared euclidean distance.
func (p descriptorPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(descriptorPoint)
	var sum float64
	for i, v := range p.row {
		sum += rutils.Square(v - q.row[i])
	}
	return sum
}

type descriptorPoints []descriptorPoint

func (p descriptorPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p descriptorPoints) Len() int                      { return len(p) }
func (p descriptorPoints) Pivot(d kdtree.Dim) int {
	return descriptorPlane{descriptorPoints: p, Dim: d}.Pivot()
}
func (p descriptorPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// descriptorPlane sorts descriptor points along one dimension.
type descriptorPlane struct {
	kdtree.Dim
	descriptorPoints
}

func (p descriptorPlane) Less(i, j int) bool {
	return p.descriptorPoints[i].row[p.Dim] < p.descriptorPoints[j].row[p.Dim]
}

func (p descriptorPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p descriptorPlane) Slice(start, end int) kdtree.SortSlicer {
	p.descriptorPoints = p.descriptorPoints[start:end]
	return p
}

func (p descriptorPlane) Swap(i, j int) {
	p.descriptorPoints[i], p.descriptorPoints[j] = p.descriptorPoints[j], p.descriptorPoints[i]
}

// KDTreeIndex answers nearest neighbor queries against a fixed train descriptor set. The search
// is exact and always uses the euclidean distance.
type KDTreeIndex struct {
	tree *kdtree.Tree
	size int
	dims int
}

// NewKDTreeIndex builds the tree over the train descriptors.
func NewKDTreeIndex(train *Descriptors) *KDTreeIndex {
	n := train.Rows()
	if n == 0 {
		return &KDTreeIndex{}
	}
	points := make(descriptorPoints, n)
	for i := range points {
		points[i] = descriptorPoint{row: train.RawRow(i), idx: i}
	}
	return &KDTreeIndex{tree: kdtree.New(points, false), size: n, dims: train.Cols()}
}

// Len returns the number of indexed descriptors.
func (index *KDTreeIndex) Len() int { return index.size }

// nearest returns the k nearest train descriptors of row. Ties keep the lowest train indices:
// the tree search only reports the k-th distance, every descriptor within it is then gathered
// and ranked by distance and index.
func (index *KDTreeIndex) nearest(row []float64, k int) []DescriptorMatch {
	query := descriptorPoint{row: row}
	nKeeper := kdtree.NewNKeeper(k)
	index.tree.NearestSet(nKeeper, query)
	kth := 0.0
	for _, cd := range nKeeper.Heap {
		if cd.Comparable != nil {
			kth = math.Max(kth, cd.Dist)
		}
	}
	// widened to keep exact ties at the k-th distance
	distKeeper := kdtree.NewDistKeeper(kth + math.Max(kth*1e-9, 1e-12))
	index.tree.NearestSet(distKeeper, query)

	found := make([]DescriptorMatch, 0, len(distKeeper.Heap))
	for _, cd := range distKeeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		found = append(found, DescriptorMatch{
			TrainIdx: cd.Comparable.(descriptorPoint).idx,
			Distance: math.Sqrt(cd.Dist),
		})
	}
	slices.SortFunc(found, func(a, b DescriptorMatch) int {
		if a.Distance != b.Distance {
			if a.Distance < b.Distance {
				return -1
			}
			return 1
		}
		return a.TrainIdx - b.TrainIdx
	})
	if len(found) > k {
		found = found[:k]
	}
	return found
}

func (index *KDTreeIndex) knn(query *Descriptors, k int) ([][]DescriptorMatch, error) {
	if query.Rows() > 0 && index.size > 0 && query.Cols() != index.dims {
		return nil, errors.Errorf("descriptor widths differ: %d and %d", query.Cols(), index.dims)
	}
	if index.size == 0 {
		return [][]DescriptorMatch{}, nil
	}
	out := make([][]DescriptorMatch, query.Rows())
	for q := range out {
		found := index.nearest(query.RawRow(q), k)
		for i := range found {
			found[i].QueryIdx = q
		}
		out[q] = found
	}
	return out, nil
}

// Match returns the nearest train descriptor of every query descriptor, in query order.
func (index *KDTreeIndex) Match(query *Descriptors) ([]DescriptorMatch, error) {
	knn, err := index.knn(query, 1)
	if err != nil {
		return nil, err
	}
	matches := make([]DescriptorMatch, 0, len(knn))
	for _, found := range knn {
		if len(found) > 0 {
			matches = append(matches, found[0])
		}
	}
	return matches, nil
}

// KnnMatch2 returns the two nearest train descriptors of every query descriptor, sorted by
// increasing distance.
func (index *KDTreeIndex) KnnMatch2(query *Descriptors) ([][]DescriptorMatch, error) {
	return index.knn(query, 2)
}
