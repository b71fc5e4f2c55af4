// Package accel runs feature extraction on a command-stream device. Work is enqueued on
// streams that execute asynchronously; results live in device buffers and may only be read
// on the host after the owning stream has been synchronized with WaitForCompletion.
//
// The host device executes streams on goroutines and keeps device results in single
// precision, the way accelerator backends do, so that the conversion back to the host
// representation is exercised on every path.
package accel

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sparsestereo/logging"
	"go.viam.com/sparsestereo/vision/keypoints"
)

const streamQueueSize = 16

var (
	// ErrReleasedBuffer is returned by stream work touching a buffer after its release.
	ErrReleasedBuffer = errors.New("use of released device buffer")
	// ErrNotSynchronized is returned when host data is read before its stream completed.
	ErrNotSynchronized = errors.New("stream not synchronized with the host")
	// ErrStreamClosed is returned when work is enqueued on a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
)

// Device owns streams and the buffers allocated through them.
type Device struct {
	logger logging.Logger

	mu      sync.Mutex
	streams []*Stream
	live    int
}

// NewHostDevice returns a device whose streams run on the host.
func NewHostDevice(logger logging.Logger) *Device {
	return &Device{logger: logger}
}

// NewStream creates a stream with its own worker. Work enqueued on different streams
// executes concurrently.
func (d *Device) NewStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Stream{
		dev:    d,
		name:   fmt.Sprintf("stream%d", len(d.streams)),
		ops:    make(chan func() error, streamQueueSize),
		logger: d.logger,
	}
	d.streams = append(d.streams, s)
	s.start()
	return s
}

// LiveBuffers returns the number of allocated and unreleased buffers.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Close closes every stream of the device, waiting for queued work to finish.
func (d *Device) Close() {
	d.mu.Lock()
	streams := d.streams
	d.streams = nil
	d.mu.Unlock()
	for _, s := range streams {
		s.Close()
	}
}

func (d *Device) alloc() *Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live++
	return &Buffer{dev: d}
}

func (d *Device) free() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live--
}

// Buffer is device memory holding an image and the features extracted from it.
type Buffer struct {
	dev *Device

	mu       sync.Mutex
	released bool
	size     image.Rectangle
	stride   int
	pixels   []uint8
	// packed keypoints, keypointWidth values each, and their single precision descriptors
	kps      []float32
	descs    *keypoints.Descriptors
}

// Release frees the buffer. It is safe to call more than once.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.pixels, b.kps, b.descs = nil, nil, nil
	b.dev.free()
}

// with runs f while holding the buffer, failing if it was released.
func (b *Buffer) with(f func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrReleasedBuffer
	}
	return f()
}

// Stream executes enqueued work in order on a single worker.
type Stream struct {
	dev    *Device
	name   string
	logger logging.Logger
	ops    chan func() error

	// mu guards closed and the sequence counters; sends on ops happen under it.
	mu        sync.Mutex
	closed    bool
	enqueued  uint64
	completed uint64

	errMu   sync.Mutex
	err     error
	pending sync.WaitGroup

	activeBackgroundWorkers sync.WaitGroup
}

func (s *Stream) start() {
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		for op := range s.ops {
			s.run(op)
		}
	}, s.activeBackgroundWorkers.Done)
}

func (s *Stream) run(op func() error) {
	defer s.pending.Done()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic in %s: %v", s.name, r)
			}
		}()
		return op()
	}()
	if err != nil {
		s.logger.Debugw("stream work failed", "stream", s.name, "error", err)
		s.errMu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.errMu.Unlock()
	}
}

// Enqueue schedules op after all work already on the stream. Its error is reported by the
// next WaitForCompletion; work after a failed op still runs.
func (s *Stream) Enqueue(op func() error) {
	s.enqueue(op)
}

func (s *Stream) enqueue(op func() error) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.errMu.Lock()
		if s.err == nil {
			s.err = errors.Wrap(ErrStreamClosed, s.name)
		}
		s.errMu.Unlock()
		return math.MaxUint64
	}
	s.pending.Add(1)
	s.enqueued++
	s.ops <- op
	return s.enqueued
}

// WaitForCompletion blocks until all work enqueued so far has executed and returns the first
// error raised since the previous call. Data downloaded by that work is readable afterwards.
// It must not run concurrently with Enqueue on the same stream.
func (s *Stream) WaitForCompletion() error {
	s.mu.Lock()
	target := s.enqueued
	s.mu.Unlock()

	s.pending.Wait()

	s.mu.Lock()
	s.completed = max(s.completed, target)
	s.mu.Unlock()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *Stream) synchronized(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq <= s.completed
}

// Close stops the stream worker once the queued work has run. It is safe to call more than
// once.
func (s *Stream) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ops)
	}
	s.mu.Unlock()
	s.activeBackgroundWorkers.Wait()
}

// Upload allocates a buffer and enqueues a copy of img into it. img may be modified once
// the stream has completed.
func (s *Stream) Upload(img *image.Gray) (*Buffer, error) {
	if img == nil {
		return nil, errors.New("cannot upload a nil image")
	}
	if img.Bounds().Empty() {
		return nil, errors.New("cannot upload an empty image")
	}
	buf := s.dev.alloc()
	s.Enqueue(func() error {
		return buf.with(func() error {
			buf.size = img.Bounds()
			buf.stride = img.Bounds().Dx()
			buf.pixels = make([]uint8, buf.stride*img.Bounds().Dy())
			for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
				row := img.Pix[img.PixOffset(img.Bounds().Min.X, y):img.PixOffset(img.Bounds().Max.X, y)]
				copy(buf.pixels[(y-img.Bounds().Min.Y)*buf.stride:], row)
			}
			return nil
		})
	})
	return buf, nil
}

// DetectAndCompute enqueues feature extraction on the image held by buf. The features stay
// in device memory until downloaded.
func (s *Stream) DetectAndCompute(buf *Buffer, extractor keypoints.FeatureExtractor) {
	s.Enqueue(func() error {
		return buf.with(func() error {
			img := &image.Gray{Pix: buf.pixels, Stride: buf.stride, Rect: buf.size}
			features, err := extractor.DetectAndCompute(img)
			if err != nil {
				return err
			}
			buf.kps, buf.descs = packFeatures(features)
			return nil
		})
	})
}

// Download enqueues a copy of the features held by buf into host memory. The returned
// HostFeatures is readable once the stream has completed.
func (s *Stream) Download(buf *Buffer) *HostFeatures {
	host := &HostFeatures{stream: s}
	host.seq = s.enqueue(func() error {
		return buf.with(func() error {
			host.kps = append([]float32(nil), buf.kps...)
			host.descs = copyDescriptors(buf.descs)
			return nil
		})
	})
	return host
}

// HostFeatures holds features downloaded from a device buffer, still in device layout.
type HostFeatures struct {
	stream *Stream
	seq    uint64
	kps    []float32
	descs  *keypoints.Descriptors
}

// Features converts the downloaded data to keypoints and descriptors in pixel coordinates.
// It fails with ErrNotSynchronized until the download's stream has been waited on.
func (h *HostFeatures) Features() (*keypoints.Features, error) {
	if !h.stream.synchronized(h.seq) {
		return nil, errors.Wrap(ErrNotSynchronized, h.stream.name)
	}
	return unpackFeatures(h.kps, h.descs)
}
