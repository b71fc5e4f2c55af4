package rimage

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ImagePyramid contains a slice of an image and its downscaled versions. Scales[i] is the factor
// that maps a pixel of Images[i] back to the original image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []float64
}

// GetImagePyramid downscales img by downscaleFactor until the next level would be smaller than
// minSize in either dimension.
func GetImagePyramid(img *image.Gray, downscaleFactor float64, minSize int) (*ImagePyramid, error) {
	if downscaleFactor <= 1 {
		return nil, errors.Errorf("downscale factor must be greater than 1, got %v", downscaleFactor)
	}
	size := img.Bounds().Size()
	if size.X < minSize || size.Y < minSize {
		return nil, errors.Errorf("image of size %v is smaller than the minimum pyramid size %d", size, minSize)
	}
	pyramid := &ImagePyramid{
		Images: []*image.Gray{MakeGray(img)},
		Scales: []float64{1},
	}
	scale := downscaleFactor
	for {
		w := int(math.Round(float64(size.X) / scale))
		h := int(math.Round(float64(size.Y) / scale))
		if w < minSize || h < minSize {
			break
		}
		resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
		pyramid.Images = append(pyramid.Images, MakeGray(resized))
		pyramid.Scales = append(pyramid.Scales, scale)
		scale *= downscaleFactor
	}
	return pyramid, nil
}
