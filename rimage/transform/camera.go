package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CameraCalibration is one side of a stereo rig: intrinsics plus lens distortion.
type CameraCalibration struct {
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion *BrownConrady            `json:"distortion_parameters,omitempty"`
}

// CheckValid validates the intrinsics. A missing distortion model means no distortion.
func (cc *CameraCalibration) CheckValid() error {
	if cc == nil {
		return errors.New("camera calibration is nil")
	}
	return cc.Intrinsics.CheckValid()
}

// CameraMatrix returns the 3x3 camera matrix K.
func (cc *CameraCalibration) CameraMatrix() *mat.Dense {
	return cc.Intrinsics.GetCameraMatrix()
}

// UndistortPixel maps a raw pixel to where an ideal pinhole camera with the same camera matrix
// would have imaged it.
func (cc *CameraCalibration) UndistortPixel(pt r2.Point) r2.Point {
	if cc.Distortion.IsZero() {
		return pt
	}
	n := cc.Intrinsics.NormalizePixel(pt)
	x, y := cc.Distortion.Undistort(n.X, n.Y)
	return cc.Intrinsics.DenormalizePoint(r2.Point{X: x, Y: y})
}

// DistortPixel is the inverse of UndistortPixel.
func (cc *CameraCalibration) DistortPixel(pt r2.Point) r2.Point {
	if cc.Distortion.IsZero() {
		return pt
	}
	n := cc.Intrinsics.NormalizePixel(pt)
	x, y := cc.Distortion.Transform(n.X, n.Y)
	return cc.Intrinsics.DenormalizePoint(r2.Point{X: x, Y: y})
}

// UndistortPixels undistorts every point into a new slice.
func (cc *CameraCalibration) UndistortPixels(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = cc.UndistortPixel(pt)
	}
	return out
}
