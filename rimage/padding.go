package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// BorderPad selects how pixels outside the image are synthesized.
type BorderPad int

const (
	// BorderConstant pads with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate repeats the edge pixel: aaa|abcd|ddd.
	BorderReplicate
	// BorderReflect mirrors without repeating the edge pixel: cb|abcd|cb.
	BorderReflect
)

// PaddingGray pads img so that a kernel of size kernelSize anchored at anchor can be applied at
// every pixel. The output has the original pixel (0, 0) at (anchor.X, anchor.Y).
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v must be inside the kernel of size %v", anchor, kernelSize)
	}
	bounds := img.Bounds()
	size := bounds.Size()
	if size.X == 0 || size.Y == 0 {
		return nil, errors.New("cannot pad an empty image")
	}
	padded := image.NewGray(image.Rect(0, 0, size.X+kernelSize.X-1, size.Y+kernelSize.Y-1))
	for y := 0; y < padded.Rect.Dy(); y++ {
		srcY, okY := borderIndex(y-anchor.Y, size.Y, border)
		for x := 0; x < padded.Rect.Dx(); x++ {
			srcX, okX := borderIndex(x-anchor.X, size.X, border)
			if !okX || !okY {
				continue
			}
			padded.SetGray(x, y, color.Gray{img.GrayAt(bounds.Min.X+srcX, bounds.Min.Y+srcY).Y})
		}
	}
	return padded, nil
}

// borderIndex maps an out of range index back into [0, n). It reports false when the pixel
// should be left at zero.
func borderIndex(i, n int, border BorderPad) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch border {
	case BorderReplicate:
		if i < 0 {
			return 0, true
		}
		return n - 1, true
	case BorderReflect:
		if n == 1 {
			return 0, true
		}
		period := 2 * (n - 1)
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i, true
	default:
		return 0, false
	}
}
