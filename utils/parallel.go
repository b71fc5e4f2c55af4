package utils

import (
	"image"
	"math"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachPixel loops through the image and calls f for each [x, y] position.
// The image is divided into N * N blocks, where N is ParallelFactor. For each block a
// goroutine is started. f must only write to state owned by its own pixel.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	procs := ParallelFactor
	if size.X < procs || size.Y < procs {
		procs = 1
	}
	blockW := int(math.Floor(float64(size.X) / float64(procs)))
	blockH := int(math.Floor(float64(size.Y) / float64(procs)))

	var waitGroup sync.WaitGroup
	waitGroup.Add(procs * procs)
	for i := 0; i < procs; i++ {
		startX, endX := i*blockW, (i+1)*blockW
		if i == procs-1 {
			endX = size.X
		}
		for j := 0; j < procs; j++ {
			startY, endY := j*blockH, (j+1)*blockH
			if j == procs-1 {
				endY = size.Y
			}
			sX, eX, sY, eY := startX, endX, startY, endY
			utils.PanicCapturingGo(func() {
				defer waitGroup.Done()
				for x := sX; x < eX; x++ {
					for y := sY; y < eY; y++ {
						f(x, y)
					}
				}
			})
		}
	}
	waitGroup.Wait()
}
