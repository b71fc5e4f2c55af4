package accel

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sparsestereo/logging"
	rutils "go.viam.com/sparsestereo/utils"
	"go.viam.com/sparsestereo/vision/keypoints"
)

// sideExtractor labels the errors of one side of a stereo pair.
type sideExtractor struct {
	keypoints.FeatureExtractor
	side string
}

func (s sideExtractor) DetectAndCompute(img *image.Gray) (*keypoints.Features, error) {
	features, err := s.FeatureExtractor.DetectAndCompute(img)
	return features, errors.Wrap(err, s.side)
}

// job is the device work for one image: upload, extraction and download.
type job struct {
	buf  *Buffer
	host *HostFeatures
}

func enqueueJob(stream *Stream, img *image.Gray, extractor keypoints.FeatureExtractor) (*job, error) {
	buf, err := stream.Upload(img)
	if err != nil {
		return nil, err
	}
	stream.DetectAndCompute(buf, extractor)
	return &job{buf: buf, host: stream.Download(buf)}, nil
}

func (j *job) release() {
	if j != nil {
		j.buf.Release()
	}
}

func checkImage(img *image.Gray, side string) error {
	if img == nil || img.Bounds().Empty() {
		return errors.Errorf("%s is empty", side)
	}
	return nil
}

// SingleStreamExtractor runs extraction on one device stream. A stereo pair is processed
// left then right on that stream and read back after one synchronization.
type SingleStreamExtractor struct {
	mu     sync.Mutex
	stream *Stream
	host   keypoints.FeatureExtractor
	logger logging.Logger
}

// NewSingleStreamExtractor runs host on a new stream of dev.
func NewSingleStreamExtractor(dev *Device, host keypoints.FeatureExtractor, logger logging.Logger) *SingleStreamExtractor {
	return &SingleStreamExtractor{stream: dev.NewStream(), host: host, logger: logger}
}

// DetectAndCompute implements keypoints.FeatureExtractor.
func (e *SingleStreamExtractor) DetectAndCompute(img *image.Gray) (*keypoints.Features, error) {
	if err := checkImage(img, "image"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	timer := rutils.NewProfilingTimer(nil)
	ctx := context.Background()

	j, err := enqueueJob(e.stream, img, e.host)
	defer j.release()
	if err != nil {
		return nil, multierr.Combine(err, e.stream.WaitForCompletion())
	}
	if err := e.stream.WaitForCompletion(); err != nil {
		return nil, err
	}
	timer.Lap(ctx, e.logger, "detect")
	features, err := j.host.Features()
	timer.Lap(ctx, e.logger, "convert")
	return features, err
}

// DetectAndComputePair implements keypoints.PairExtractor. Both images go through the same
// stream one after the other.
func (e *SingleStreamExtractor) DetectAndComputePair(
	ctx context.Context,
	left, right *image.Gray,
) (*keypoints.Features, *keypoints.Features, error) {
	if err := multierr.Combine(checkImage(left, "left image"), checkImage(right, "right image")); err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	timer := rutils.NewProfilingTimer(nil)

	leftJob, err := enqueueJob(e.stream, left, sideExtractor{e.host, "left image"})
	defer leftJob.release()
	if err != nil {
		return nil, nil, multierr.Combine(err, e.stream.WaitForCompletion())
	}
	rightJob, err := enqueueJob(e.stream, right, sideExtractor{e.host, "right image"})
	defer rightJob.release()
	if err != nil {
		return nil, nil, multierr.Combine(err, e.stream.WaitForCompletion())
	}
	if err := e.stream.WaitForCompletion(); err != nil {
		return nil, nil, err
	}
	timer.Lap(ctx, e.logger, "detect")
	return convertPair(ctx, e.logger, timer, leftJob, rightJob)
}

// Close stops the stream.
func (e *SingleStreamExtractor) Close() {
	e.stream.Close()
}

// MultiStreamExtractor gives each side of a stereo pair its own stream so that the two
// images are uploaded, processed and downloaded concurrently. Host data is read only after
// both streams completed.
type MultiStreamExtractor struct {
	mu                      sync.Mutex
	leftStream, rightStream *Stream
	host                    keypoints.FeatureExtractor
	logger                  logging.Logger
}

// NewMultiStreamExtractor runs host on two new streams of dev.
func NewMultiStreamExtractor(dev *Device, host keypoints.FeatureExtractor, logger logging.Logger) *MultiStreamExtractor {
	return &MultiStreamExtractor{
		leftStream:  dev.NewStream(),
		rightStream: dev.NewStream(),
		host:        host,
		logger:      logger,
	}
}

// DetectAndCompute implements keypoints.FeatureExtractor using the left stream.
func (e *MultiStreamExtractor) DetectAndCompute(img *image.Gray) (*keypoints.Features, error) {
	if err := checkImage(img, "image"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	j, err := enqueueJob(e.leftStream, img, e.host)
	defer j.release()
	if err != nil {
		return nil, multierr.Combine(err, e.leftStream.WaitForCompletion())
	}
	if err := e.leftStream.WaitForCompletion(); err != nil {
		return nil, err
	}
	return j.host.Features()
}

// DetectAndComputePair implements keypoints.PairExtractor.
func (e *MultiStreamExtractor) DetectAndComputePair(
	ctx context.Context,
	left, right *image.Gray,
) (*keypoints.Features, *keypoints.Features, error) {
	if err := multierr.Combine(checkImage(left, "left image"), checkImage(right, "right image")); err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	timer := rutils.NewProfilingTimer(nil)

	leftJob, leftErr := enqueueJob(e.leftStream, left, sideExtractor{e.host, "left image"})
	defer leftJob.release()
	rightJob, rightErr := enqueueJob(e.rightStream, right, sideExtractor{e.host, "right image"})
	defer rightJob.release()

	// single barrier over both streams
	err := multierr.Combine(
		leftErr, rightErr,
		e.leftStream.WaitForCompletion(),
		e.rightStream.WaitForCompletion(),
	)
	if err != nil {
		return nil, nil, err
	}
	timer.Lap(ctx, e.logger, "detect")
	return convertPair(ctx, e.logger, timer, leftJob, rightJob)
}

// Close stops both streams.
func (e *MultiStreamExtractor) Close() {
	e.leftStream.Close()
	e.rightStream.Close()
}

func convertPair(
	ctx context.Context,
	logger logging.Logger,
	timer *rutils.ProfilingTimer,
	leftJob, rightJob *job,
) (*keypoints.Features, *keypoints.Features, error) {
	leftFeatures, leftErr := leftJob.host.Features()
	rightFeatures, rightErr := rightJob.host.Features()
	if err := multierr.Combine(
		errors.Wrap(leftErr, "left image"),
		errors.Wrap(rightErr, "right image"),
	); err != nil {
		return nil, nil, err
	}
	timer.Lap(ctx, logger, "convert")
	logger.CDebugw(ctx, "device extraction", "left", leftFeatures.Len(), "right", rightFeatures.Len())
	return leftFeatures, rightFeatures, nil
}
