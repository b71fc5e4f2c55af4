package keypoints

import (
	"math/rand/v2"
	"testing"

	"go.viam.com/test"
)

func randomDescriptors(t *testing.T, rng *rand.Rand, n, dims int) *Descriptors {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dims)
		for j := range rows[i] {
			rows[i][j] = rng.Float64() * 10
		}
	}
	return mustDescriptors(t, rows)
}

func TestKDTreeIndexAgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	train := randomDescriptors(t, rng, 200, 8)
	query := randomDescriptors(t, rng, 50, 8)

	index := NewKDTreeIndex(train)
	test.That(t, index.Len(), test.ShouldEqual, 200)

	matches, err := index.Match(query)
	test.That(t, err, test.ShouldBeNil)
	expected, err := MatchBruteForce(query, train, Euclidean, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matches, test.ShouldHaveLength, len(expected))
	for i := range matches {
		test.That(t, matches[i].QueryIdx, test.ShouldEqual, expected[i].QueryIdx)
		test.That(t, matches[i].TrainIdx, test.ShouldEqual, expected[i].TrainIdx)
		test.That(t, matches[i].Distance, test.ShouldAlmostEqual, expected[i].Distance, 1e-9)
	}

	knn, err := index.KnnMatch2(query)
	test.That(t, err, test.ShouldBeNil)
	expectedKnn, err := KnnMatch2(query, train, Euclidean)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, knn, test.ShouldHaveLength, len(expectedKnn))
	for i := range knn {
		test.That(t, knn[i], test.ShouldHaveLength, 2)
		for k := range knn[i] {
			test.That(t, knn[i][k].TrainIdx, test.ShouldEqual, expectedKnn[i][k].TrainIdx)
			test.That(t, knn[i][k].Distance, test.ShouldAlmostEqual, expectedKnn[i][k].Distance, 1e-9)
		}
	}
}

func TestKDTreeIndexEdgeCases(t *testing.T) {
	empty := NewKDTreeIndex(&Descriptors{})
	matches, err := empty.Match(mustDescriptors(t, [][]float64{{1, 2}}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matches, test.ShouldBeEmpty)

	single := NewKDTreeIndex(mustDescriptors(t, [][]float64{{1, 2}}))
	knn, err := single.KnnMatch2(mustDescriptors(t, [][]float64{{1, 3}, {0, 2}}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, knn, test.ShouldHaveLength, 2)
	test.That(t, knn[0], test.ShouldHaveLength, 1)
	test.That(t, knn[0][0].Distance, test.ShouldAlmostEqual, 1)
	test.That(t, knn[1][0].QueryIdx, test.ShouldEqual, 1)

	_, err = single.Match(mustDescriptors(t, [][]float64{{1, 2, 3}}))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestKDTreeIndexTiesKeepLowestIndex(t *testing.T) {
	base := [][]float64{{0, 0, 0}, {5, 1, 2}, {9, 9, 1}, {2, 7, 4}, {8, 3, 6}}
	rows := make([][]float64, 20)
	for i := range rows {
		rows[i] = base[i%len(base)]
	}
	train := mustDescriptors(t, rows)
	query := mustDescriptors(t, [][]float64{base[0], base[3], {8, 3, 6.2}})
	index := NewKDTreeIndex(train)

	matches, err := index.Match(query)
	test.That(t, err, test.ShouldBeNil)
	expected, err := MatchBruteForce(query, train, Euclidean, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matches, test.ShouldHaveLength, 3)
	for i, m := range matches {
		test.That(t, m.QueryIdx, test.ShouldEqual, i)
		test.That(t, m.TrainIdx, test.ShouldEqual, expected[i].TrainIdx)
	}
	test.That(t, matches[0].TrainIdx, test.ShouldEqual, 0)
	test.That(t, matches[1].TrainIdx, test.ShouldEqual, 3)
	test.That(t, matches[2].TrainIdx, test.ShouldEqual, 4)

	knn, err := index.KnnMatch2(query)
	test.That(t, err, test.ShouldBeNil)
	expectedKnn, err := KnnMatch2(query, train, Euclidean)
	test.That(t, err, test.ShouldBeNil)
	for q := range knn {
		test.That(t, knn[q], test.ShouldHaveLength, 2)
		for k := range knn[q] {
			test.That(t, knn[q][k].TrainIdx, test.ShouldEqual, expectedKnn[q][k].TrainIdx)
		}
	}
	test.That(t, knn[0][1].TrainIdx, test.ShouldEqual, 5)
	test.That(t, knn[2][1].TrainIdx, test.ShouldEqual, 9)
}
