package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func constantGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestPaddingGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.Pix = []uint8{10, 20, 30}

	for _, tc := range []struct {
		name     string
		border   BorderPad
		expected []uint8
	}{
		{"constant", BorderConstant, []uint8{0, 10, 20, 30, 0}},
		{"replicate", BorderReplicate, []uint8{10, 10, 20, 30, 30}},
		{"reflect", BorderReflect, []uint8{20, 10, 20, 30, 20}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			padded, err := PaddingGray(img, image.Point{3, 1}, image.Point{1, 0}, tc.border)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, padded.Bounds().Size(), test.ShouldResemble, image.Point{5, 1})
			test.That(t, padded.Pix, test.ShouldResemble, tc.expected)
		})
	}

	_, err := PaddingGray(img, image.Point{3, 3}, image.Point{3, 0}, BorderConstant)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConvolveGray(t *testing.T) {
	img := constantGray(12, 9, 100)
	kernel := GetGaussian5()
	normalized := kernel.Normalize()
	test.That(t, normalized.AbSum(), test.ShouldAlmostEqual, 1.)

	blurred, err := ConvolveGray(img, normalized, image.Point{2, 2}, BorderReflect)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blurred.Bounds(), test.ShouldResemble, img.Bounds())
	for _, v := range blurred.Pix {
		test.That(t, v, test.ShouldEqual, 100)
	}

	// a zero padded border darkens the corners
	blurred, err = ConvolveGray(img, normalized, image.Point{2, 2}, BorderConstant)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blurred.GrayAt(0, 0).Y, test.ShouldBeLessThan, 100)
	test.That(t, blurred.GrayAt(6, 4).Y, test.ShouldEqual, 100)

	identity, err := NewKernel(3, 3)
	test.That(t, err, test.ShouldBeNil)
	identity.Content[1][1] = 1
	img.SetGray(3, 3, color.Gray{7})
	same, err := ConvolveGray(img, identity, image.Point{1, 1}, BorderConstant)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same.Pix, test.ShouldResemble, img.Pix)
}

func TestMakeGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(2, 3, 6, 5))
	rgba.Set(2, 3, color.White)
	gray := MakeGray(rgba)
	test.That(t, gray.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 2))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, 255)
	test.That(t, SameImgSize(gray, rgba), test.ShouldBeTrue)

	g := constantGray(4, 4, 1)
	test.That(t, MakeGray(g), test.ShouldEqual, g)
}
