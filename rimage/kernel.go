package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Kernel is a 2D convolution kernel stored row-major in Content.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// NewKernel returns a zero kernel of the given size.
func NewKernel(height, width int) (*Kernel, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Errorf("kernel size must be positive, got %dx%d", height, width)
	}
	content := make([][]float64, height)
	for i := range content {
		content[i] = make([]float64, width)
	}
	return &Kernel{Content: content, Height: height, Width: width}, nil
}

// Size returns the kernel size as an image.Point (X is the width).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel value at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// AbSum returns the sum of the absolute values of the kernel.
func (k *Kernel) AbSum() float64 {
	var sum float64
	for _, row := range k.Content {
		for _, v := range row {
			sum += math.Abs(v)
		}
	}
	return sum
}

// Normalize returns a copy of the kernel whose absolute values sum to 1.
func (k *Kernel) Normalize() *Kernel {
	sum := k.AbSum()
	out := &Kernel{Content: make([][]float64, k.Height), Height: k.Height, Width: k.Width}
	for i, row := range k.Content {
		out.Content[i] = make([]float64, k.Width)
		for j, v := range row {
			if sum == 0 {
				out.Content[i][j] = v
				continue
			}
			out.Content[i][j] = v / sum
		}
	}
	return out
}

// GetGaussian5 returns the unnormalized 5x5 binomial approximation of a Gaussian kernel.
func GetGaussian5() Kernel {
	return Kernel{
		[][]float64{
			{1, 4, 7, 4, 1},
			{4, 16, 26, 16, 4},
			{7, 26, 41, 26, 7},
			{4, 16, 26, 16, 4},
			{1, 4, 7, 4, 1},
		},
		5,
		5,
	}
}
