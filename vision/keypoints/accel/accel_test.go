package accel

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/golang/geo/r2"
	"go.uber.org/goleak"
	"go.viam.com/test"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/vision/keypoints"
)

func rectangleImage(x0 int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 300, 200))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{0}}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(x0, 30, x0+50, 150), &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	return img
}

func unorientedORB(t *testing.T, logger logging.Logger) *keypoints.ORBExtractor {
	t.Helper()
	cfg := keypoints.DefaultORBConfig()
	cfg.FastConf.Oriented = false
	cfg.BRIEFConf.UseOrientation = false
	orb, err := keypoints.NewORBExtractor(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	return orb
}

type fakeExtractor struct {
	features *keypoints.Features
	err      error
}

func (f *fakeExtractor) DetectAndCompute(img *image.Gray) (*keypoints.Features, error) {
	return f.features, f.err
}

func TestStreamRunsWorkInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := NewHostDevice(logging.NewTestLogger(t))
	defer dev.Close()
	stream := dev.NewStream()

	var order []int
	for i := 0; i < 3*streamQueueSize; i++ {
		stream.Enqueue(func() error {
			order = append(order, i)
			return nil
		})
	}
	test.That(t, stream.WaitForCompletion(), test.ShouldBeNil)
	test.That(t, order, test.ShouldHaveLength, 3*streamQueueSize)
	for i, v := range order {
		test.That(t, v, test.ShouldEqual, i)
	}

	errBoom := errors.New("boom")
	ran := false
	stream.Enqueue(func() error { return errBoom })
	stream.Enqueue(func() error {
		ran = true
		return nil
	})
	test.That(t, stream.WaitForCompletion(), test.ShouldBeError, errBoom)
	test.That(t, ran, test.ShouldBeTrue)
	test.That(t, stream.WaitForCompletion(), test.ShouldBeNil)

	stream.Enqueue(func() error { panic("bad kernel") })
	err := stream.WaitForCompletion()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad kernel")

	stream.Close()
	stream.Close()
	stream.Enqueue(func() error { return nil })
	test.That(t, errors.Is(stream.WaitForCompletion(), ErrStreamClosed), test.ShouldBeTrue)
}

func TestHostFeaturesNeedSynchronization(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := NewHostDevice(logging.NewTestLogger(t))
	defer dev.Close()
	stream := dev.NewStream()

	descs, err := keypoints.NewDescriptors([][]float64{{0, 1, 1}, {1, 0, 0.1}})
	test.That(t, err, test.ShouldBeNil)
	extractor := &fakeExtractor{features: &keypoints.Features{
		KeyPoints:   keypoints.KeyPoints{{Pt: r2.Point{X: 3, Y: 4}, Octave: 1}, {Pt: r2.Point{X: 5.5, Y: 1}, Response: 7}},
		Descriptors: descs,
	}}

	buf, err := stream.Upload(image.NewGray(image.Rect(0, 0, 8, 8)))
	test.That(t, err, test.ShouldBeNil)
	defer buf.Release()
	test.That(t, dev.LiveBuffers(), test.ShouldEqual, 1)

	stream.DetectAndCompute(buf, extractor)
	host := stream.Download(buf)
	_, err = host.Features()
	test.That(t, errors.Is(err, ErrNotSynchronized), test.ShouldBeTrue)

	test.That(t, stream.WaitForCompletion(), test.ShouldBeNil)
	features, err := host.Features()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, features.KeyPoints.Points(), test.ShouldResemble, []r2.Point{{X: 3, Y: 4}, {X: 5.5, Y: 1}})
	test.That(t, features.KeyPoints[0].Octave, test.ShouldEqual, 1)
	test.That(t, features.KeyPoints[1].Response, test.ShouldEqual, 7)
	test.That(t, features.Descriptors.Rows(), test.ShouldEqual, 2)
	// descriptors come back in single precision
	test.That(t, features.Descriptors.RawRow(1)[2], test.ShouldEqual, float64(float32(0.1)))

	buf.Release()
	buf.Release()
	test.That(t, dev.LiveBuffers(), test.ShouldEqual, 0)

	_, err = stream.Upload(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReleasedBufferFailsQueuedWork(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := NewHostDevice(logging.NewTestLogger(t))
	defer dev.Close()
	stream := dev.NewStream()

	gate := make(chan struct{})
	stream.Enqueue(func() error {
		<-gate
		return nil
	})
	buf, err := stream.Upload(image.NewGray(image.Rect(0, 0, 4, 4)))
	test.That(t, err, test.ShouldBeNil)
	buf.Release()
	close(gate)
	test.That(t, stream.WaitForCompletion(), test.ShouldBeError, ErrReleasedBuffer)
	test.That(t, dev.LiveBuffers(), test.ShouldEqual, 0)
}

func TestDeviceExtractorsMatchHost(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := logging.NewTestLogger(t)
	orb := unorientedORB(t, logger)
	left, right := rectangleImage(50), rectangleImage(30)

	expectedLeft, expectedRight, err := keypoints.ExtractPair(context.Background(), orb, left, right)
	test.That(t, err, test.ShouldBeNil)

	dev := NewHostDevice(logger)
	defer dev.Close()
	single := NewSingleStreamExtractor(dev, orb, logger)
	multi := NewMultiStreamExtractor(dev, orb, logger)

	for _, tc := range []struct {
		name      string
		extractor keypoints.FeatureExtractor
	}{
		{"single stream", single},
		{"multi stream", multi},
	} {
		t.Run(tc.name, func(t *testing.T) {
			leftFeatures, rightFeatures, err := keypoints.ExtractPair(context.Background(), tc.extractor, left, right)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, leftFeatures.KeyPoints.Points(), test.ShouldResemble, expectedLeft.KeyPoints.Points())
			test.That(t, rightFeatures.KeyPoints.Points(), test.ShouldResemble, expectedRight.KeyPoints.Points())
			test.That(t, leftFeatures.Descriptors.Dense(), test.ShouldResemble, expectedLeft.Descriptors.Dense())
			test.That(t, rightFeatures.Descriptors.Dense(), test.ShouldResemble, expectedRight.Descriptors.Dense())

			one, err := tc.extractor.DetectAndCompute(left)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, one.KeyPoints.Points(), test.ShouldResemble, expectedLeft.KeyPoints.Points())

			test.That(t, dev.LiveBuffers(), test.ShouldEqual, 0)
		})
	}

	single.Close()
	multi.Close()
}

func TestDeviceExtractorErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := logging.NewTestLogger(t)
	dev := NewHostDevice(logger)
	defer dev.Close()
	failing := &fakeExtractor{err: errors.New("no device memory")}

	for _, tc := range []struct {
		name      string
		extractor interface {
			keypoints.PairExtractor
			keypoints.FeatureExtractor
		}
	}{
		{"single stream", NewSingleStreamExtractor(dev, failing, logger)},
		{"multi stream", NewMultiStreamExtractor(dev, failing, logger)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img := image.NewGray(image.Rect(0, 0, 16, 16))
			_, _, err := tc.extractor.DetectAndComputePair(context.Background(), img, img)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "left image")
			test.That(t, err.Error(), test.ShouldContainSubstring, "no device memory")
			test.That(t, dev.LiveBuffers(), test.ShouldEqual, 0)

			_, _, err = tc.extractor.DetectAndComputePair(context.Background(), img, nil)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "right image")

			_, err = tc.extractor.DetectAndCompute(img)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, dev.LiveBuffers(), test.ShouldEqual, 0)
		})
	}
}

func TestPackFeaturesSinglePrecision(t *testing.T) {
	descs, err := keypoints.NewDescriptors([][]float64{{0.1, 1}})
	test.That(t, err, test.ShouldBeNil)
	source := &keypoints.Features{
		KeyPoints:   keypoints.KeyPoints{{Pt: r2.Point{X: 1.5, Y: 2}, Angle: 0.3}},
		Descriptors: descs,
	}
	kps, deviceDescs := packFeatures(source)
	test.That(t, kps, test.ShouldHaveLength, keypointWidth)
	test.That(t, deviceDescs.RawRow(0), test.ShouldResemble, []float64{float64(float32(0.1)), 1})
	test.That(t, descs.RawRow(0)[0], test.ShouldEqual, 0.1)

	features, err := unpackFeatures(kps, copyDescriptors(deviceDescs))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, features.KeyPoints[0].Angle, test.ShouldEqual, float64(float32(0.3)))

	_, err = unpackFeatures(kps, &keypoints.Descriptors{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = unpackFeatures(kps[:4], deviceDescs)
	test.That(t, err, test.ShouldNotBeNil)

	empty, err := unpackFeatures(nil, copyDescriptors(nil))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Len(), test.ShouldEqual, 0)
}
