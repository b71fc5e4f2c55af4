package rimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ReadGrayImage decodes an image file into a zero-origin gray image. A positive blur applies
// a gaussian blur of that sigma before the conversion.
func ReadGrayImage(path string, blur float64) (*image.Gray, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	if blur > 0 {
		return MakeGray(imaging.Blur(img, blur)), nil
	}
	return MakeGray(img), nil
}
