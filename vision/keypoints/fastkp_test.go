package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

// createTestImage draws a white rectangle spanning [x0, x0+50) x [30, 150) on black.
func createTestImage(x0 int) *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(x0, 30, x0+50, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func rectangleCorners(x0 int) []r2.Point {
	x0f := float64(x0)
	return []r2.Point{{X: x0f, Y: 30}, {X: x0f + 49, Y: 30}, {X: x0f, Y: 149}, {X: x0f + 49, Y: 149}}
}

func TestLoadFASTConfiguration(t *testing.T) {
	cfg, err := LoadFASTConfiguration(filepath.Join("testdata", "kpconfig.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Threshold, test.ShouldEqual, 20)
	test.That(t, cfg.NMatchesCircle, test.ShouldEqual, 9)
	test.That(t, cfg.NMSWinSize, test.ShouldEqual, 7)
	test.That(t, cfg.Oriented, test.ShouldBeTrue)

	_, err = LoadFASTConfiguration(filepath.Join("testdata", "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := &FASTConfig{NMatchesCircle: 17, NMSWinSize: 3}
	test.That(t, bad.Validate("fast"), test.ShouldNotBeNil)
	bad = &FASTConfig{NMatchesCircle: 9, NMSWinSize: 0}
	test.That(t, bad.Validate("fast"), test.ShouldNotBeNil)
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	rectImage := createTestImage(50)
	// testing cross neighborhood
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	test.That(t, len(vals), test.ShouldEqual, 4)
	// values at a corner of the rectangle
	test.That(t, vals[0], test.ShouldEqual, 255)
	test.That(t, vals[1], test.ShouldEqual, 255)
	test.That(t, vals[2], test.ShouldEqual, 0)
	test.That(t, vals[3], test.ShouldEqual, 0)
	// testing circle neighborhood
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	for i := 0; i < 4; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
	for i := 4; i < 9; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 255)
	}
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 3, false},
		// contiguous across the end of the circle
		{[]float64{1, 0, 0, 1, 1}, 3, true},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, 4},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, 0},
	}
	for _, tst := range tests {
		test.That(t, sumOfPositiveValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestSumNegativeValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, -2},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, -6},
	}
	for _, tst := range tests {
		test.That(t, sumOfNegativeValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestGetBrighterValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{0, 0, 0, 0, 1, 1}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getBrighterValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestGetDarkerValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{1, 0, 1, 1, 0, 0}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getDarkerValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestComputeFAST(t *testing.T) {
	cfg, err := LoadFASTConfiguration(filepath.Join("testdata", "kpconfig.json"))
	test.That(t, err, test.ShouldBeNil)

	kps, err := NewFASTKeypointsFromImage(createTestImage(50), cfg)
	test.That(t, err, test.ShouldBeNil)
	// non maximum suppression leaves exactly the rectangle corners, in raster order
	test.That(t, kps.Points(), test.ShouldResemble, rectangleCorners(50))
	for _, kp := range kps {
		// 11 dark circle pixels, each 255 - 20 beyond the threshold
		test.That(t, kp.Response, test.ShouldEqual, 11*235.)
	}

	// the intensity centroid points into the rectangle
	test.That(t, kps[0].Angle, test.ShouldBeBetween, 0., math.Pi/2)
	test.That(t, kps[1].Angle, test.ShouldBeBetween, math.Pi/2, math.Pi)
	test.That(t, kps[2].Angle, test.ShouldBeBetween, -math.Pi/2, 0.)
	test.That(t, kps[3].Angle, test.ShouldBeBetween, -math.Pi, -math.Pi/2)

	unoriented := *cfg
	unoriented.Oriented = false
	kps, err = NewFASTKeypointsFromImage(createTestImage(50), &unoriented)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kps, test.ShouldHaveLength, 4)
	test.That(t, kps[0].Angle, test.ShouldEqual, 0.)

	// a flat image has no corners
	flat := image.NewGray(image.Rect(0, 0, 40, 40))
	test.That(t, ComputeFAST(flat, cfg), test.ShouldBeEmpty)
}

func TestFeaturesTruncate(t *testing.T) {
	descs, err := NewDescriptors([][]float64{{0, 1}, {1, 1}, {1, 0}})
	test.That(t, err, test.ShouldBeNil)
	features := &Features{
		KeyPoints:   KeyPoints{{Pt: r2.Point{X: 1}}, {Pt: r2.Point{X: 2}}, {Pt: r2.Point{X: 3}}},
		Descriptors: descs,
	}
	truncated := features.Truncate(2)
	test.That(t, truncated.Len(), test.ShouldEqual, 2)
	test.That(t, truncated.Descriptors.Rows(), test.ShouldEqual, 2)
	test.That(t, truncated.KeyPoints[1].Pt.X, test.ShouldEqual, 2)
	test.That(t, truncated.Descriptors.RawRow(1), test.ShouldResemble, []float64{1, 1})

	test.That(t, features.Truncate(0), test.ShouldEqual, features)
	test.That(t, features.Truncate(5), test.ShouldEqual, features)
}
