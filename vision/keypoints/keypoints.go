// Package keypoints detects keypoints in gray images, describes them and matches descriptor sets.
// For now:
// - FAST keypoints
// - BRIEF descriptors, combined into ORB over an image pyramid
// - brute force, k-nearest-neighbor, kd-tree and epipolar-banded matching
package keypoints

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"go.viam.com/sparsestereo/rimage"
)

// KeyPoint is a detected salient image location. Angle is in radians.
type KeyPoint struct {
	Pt       r2.Point
	Size     float64
	Angle    float64
	Response float64
	Octave   int
}

// KeyPoints is an ordered set of keypoints.
type KeyPoints []KeyPoint

// Points returns the keypoint locations.
func (kps KeyPoints) Points() []r2.Point {
	return lo.Map(kps, func(kp KeyPoint, _ int) r2.Point { return kp.Pt })
}

// WithPoints returns a copy of kps whose locations are replaced by pts.
func (kps KeyPoints) WithPoints(pts []r2.Point) KeyPoints {
	return lo.Map(kps, func(kp KeyPoint, i int) KeyPoint {
		kp.Pt = pts[i]
		return kp
	})
}

// RescaleKeypoints maps keypoints detected on a pyramid level back to the original image.
func RescaleKeypoints(kps KeyPoints, scale float64) KeyPoints {
	return lo.Map(kps, func(kp KeyPoint, _ int) KeyPoint {
		kp.Pt = kp.Pt.Mul(scale)
		kp.Size *= scale
		return kp
	})
}

// Features holds the keypoints of one image and their descriptors, row i describing keypoint i.
type Features struct {
	KeyPoints   KeyPoints
	Descriptors *Descriptors
}

// Len returns the number of keypoints.
func (f *Features) Len() int {
	if f == nil {
		return 0
	}
	return len(f.KeyPoints)
}

// Truncate keeps the first n features in detection order. n <= 0 keeps everything.
func (f *Features) Truncate(n int) *Features {
	if n <= 0 || n >= f.Len() {
		return f
	}
	return &Features{
		KeyPoints:   f.KeyPoints[:n],
		Descriptors: f.Descriptors.Truncate(n),
	}
}

const orientationPatchSize = 31

// computeMaskOrientationFAST creates the circular mask used to compute orientations of corners.
func computeMaskOrientationFAST() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, orientationPatchSize, orientationPatchSize))
	halfWidths := []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}
	for i := -15; i < 16; i++ {
		hw := halfWidths[lo.Ternary(i < 0, -i, i)]
		for j := -hw; j <= hw; j++ {
			mask.SetGray(j+15, i+15, color.Gray{1})
		}
	}
	return mask
}

// computeKeypointsOrientations returns the intensity centroid angle of the patch around each
// keypoint.
func computeKeypointsOrientations(img *image.Gray, kps KeyPoints) ([]float64, error) {
	half := (orientationPatchSize - 1) / 2
	mask := computeMaskOrientationFAST()
	padded, err := rimage.PaddingGray(img,
		image.Point{orientationPatchSize, orientationPatchSize}, image.Point{half, half}, rimage.BorderConstant)
	if err != nil {
		return nil, err
	}
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		kx, ky := int(math.Round(kp.Pt.X)), int(math.Round(kp.Pt.Y))
		m01, m10 := 0, 0
		for y := 0; y < orientationPatchSize; y++ {
			m01Row := 0
			for x := 0; x < orientationPatchSize; x++ {
				if mask.GrayAt(x, y).Y == 0 {
					continue
				}
				pixVal := int(padded.GrayAt(x+kx, y+ky).Y)
				m10 += pixVal * (x - half)
				m01Row += pixVal
			}
			m01 += m01Row * (y - half)
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations, nil
}

// OrientKeyPoints returns a copy of kps with Angle set from the intensity centroid.
func OrientKeyPoints(img *image.Gray, kps KeyPoints) (KeyPoints, error) {
	orientations, err := computeKeypointsOrientations(img, kps)
	if err != nil {
		return nil, err
	}
	return lo.Map(kps, func(kp KeyPoint, i int) KeyPoint {
		kp.Angle = orientations[i]
		return kp
	}), nil
}
