package utils

import (
	"context"
	"image"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/sparsestereo/logging"
)

func TestParallelForEachPixel(t *testing.T) {
	for _, size := range []image.Point{{1, 1}, {3, 2}, {37, 21}, {64, 64}} {
		visits := make([]int32, size.X*size.Y)
		ParallelForEachPixel(size, func(x, y int) {
			atomic.AddInt32(&visits[y*size.X+x], 1)
		})
		for _, v := range visits {
			test.That(t, v, test.ShouldEqual, 1)
		}
	}
}

func TestSampling(t *testing.T) {
	src := rand.NewPCG(1, 2)
	for _, v := range SampleNIntegersUniform(200, -15, 15, src) {
		test.That(t, v, test.ShouldBeBetweenOrEqual, -15, 15)
	}
	for _, v := range SampleNIntegersNormal(200, -15, 15, src) {
		test.That(t, v, test.ShouldBeBetweenOrEqual, -15, 15)
	}

	a := SampleNIntegersUniform(20, 0, 100, rand.NewPCG(7, 7))
	b := SampleNIntegersUniform(20, 0, 100, rand.NewPCG(7, 7))
	test.That(t, a, test.ShouldResemble, b)
}

func TestClamp(t *testing.T) {
	test.That(t, ClampF64(-1, 0, 1), test.ShouldEqual, 0.)
	test.That(t, ClampF64(0.5, 0, 1), test.ShouldEqual, 0.5)
	test.That(t, ClampF64(3, 0, 1), test.ShouldEqual, 1.)
	test.That(t, Float64AlmostEqual(1, 1+1e-12, 1e-9), test.ShouldBeTrue)
}

func TestProfilingTimer(t *testing.T) {
	mockClock := clock.NewMock()
	logger, observed := logging.NewObservedTestLogger(t)

	timer := NewProfilingTimer(mockClock)
	mockClock.Add(25 * time.Millisecond)
	test.That(t, timer.Lap(context.Background(), logger, "detect"), test.ShouldEqual, 25*time.Millisecond)
	test.That(t, timer.Elapsed(), test.ShouldEqual, time.Duration(0))

	entries := observed.FilterMessage("phase timing").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["phase"], test.ShouldEqual, "detect")
}
