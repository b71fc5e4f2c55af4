package accel

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sparsestereo/vision/keypoints"
)

// keypoints are laid out on the device as x, y, size, angle, response, octave.
const keypointWidth = 6

// packFeatures converts features to the device layout. Descriptors are kept in single
// precision.
func packFeatures(f *keypoints.Features) ([]float32, *keypoints.Descriptors) {
	kps := make([]float32, 0, keypointWidth*f.Len())
	for _, kp := range f.KeyPoints {
		kps = append(kps,
			float32(kp.Pt.X), float32(kp.Pt.Y),
			float32(kp.Size), float32(kp.Angle), float32(kp.Response),
			float32(kp.Octave))
	}
	return kps, f.Descriptors.AsFloat32()
}

func copyDescriptors(d *keypoints.Descriptors) *keypoints.Descriptors {
	if d.Rows() == 0 {
		return &keypoints.Descriptors{}
	}
	return keypoints.NewDescriptorsFromDense(mat.DenseCopyOf(d.Dense()))
}

func unpackFeatures(kps []float32, descs *keypoints.Descriptors) (*keypoints.Features, error) {
	if len(kps)%keypointWidth != 0 {
		return nil, errors.Errorf("device keypoint buffer of length %d is not a multiple of %d", len(kps), keypointWidth)
	}
	n := len(kps) / keypointWidth
	out := make(keypoints.KeyPoints, n)
	for i := range out {
		v := kps[i*keypointWidth : (i+1)*keypointWidth]
		out[i] = keypoints.KeyPoint{
			Pt:       r2.Point{X: float64(v[0]), Y: float64(v[1])},
			Size:     float64(v[2]),
			Angle:    float64(v[3]),
			Response: float64(v[4]),
			Octave:   int(v[5]),
		}
	}
	if descs.Rows() != n {
		return nil, errors.Errorf("device holds %d descriptors for %d keypoints", descs.Rows(), n)
	}
	if n == 0 {
		descs = &keypoints.Descriptors{}
	}
	return &keypoints.Features{KeyPoints: out, Descriptors: descs}, nil
}
