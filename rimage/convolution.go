package rimage

import (
	"image"
	"image/color"

	"go.viam.com/sparsestereo/utils"
)

// ConvolveGray applies a convolution matrix (Kernel) to a grayscale image.
// Example of usage:
//
//	res, err := rimage.ConvolveGray(img, kernel, image.Point{1, 1}, rimage.BorderReflect)
//
// The anchor is the kernel cell written to the result pixel. Values are clamped to [0, 255].
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(image.Rect(0, 0, originalSize.X, originalSize.Y))
	utils.ParallelForEachPixel(originalSize, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				sum += float64(padded.GrayAt(x+kx, y+ky).Y) * kernel.At(kx, ky)
			}
		}
		resultImage.SetGray(x, y, color.Gray{uint8(utils.ClampF64(sum+0.5, 0, 255))})
	})
	return resultImage, nil
}
