package libio

import (
	"fmt"
	goimg "image"

	"github.com/chewxy/math32"
)

type image struct {
	Channels      int
	Width, Height int
}

// Index calculates the tuple index into the image data.
// Row 0 is the first row in memory, which is the top row of a Radiance file.
func (img *image) Index(x, y int) int {
	return x*img.Channels + y*img.Channels*img.Width
}

func (img *image) Count() int {
	return img.Width * img.Height
}

type IntImage struct {
	image
	Pix []uint8
}

func NewIntImage(pix []uint8, channels int, width, height int) *IntImage {
	return &IntImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

func (img *IntImage) Bytes() int {
	return img.Width * img.Height * img.Channels
}

func (img *IntImage) ToChannels(nr int, defaults ...uint8) *IntImage {
	dst := toChannels(img.Channels, nr, img.Count(), img.Pix, defaults...)

	return NewIntImage(dst, nr, img.Width, img.Height)
}

func toChannels[P ~[]E, E any](srcCh, dstCh int, count int, pix P, defaults ...E) P {
	if srcCh == dstCh {
		return pix
	}

	if missing := dstCh - len(defaults); missing > 0 {
		defaults = append(defaults, make([]E, missing)...)
	}

	dst := make([]E, count*dstCh)

	for i := 0; i < count; i++ {
		for c := 0; c < dstCh; c++ {
			if c < srcCh {
				dst[i*dstCh+c] = pix[i*srcCh+c]
			} else {
				dst[i*dstCh+c] = defaults[c]
			}
		}
	}

	return dst
}

// ToRGBA converts the image for encoding with the image packages.
// Missing color channels are black, missing alpha is opaque.
func (img *IntImage) ToRGBA() *goimg.RGBA {
	rgba := goimg.NewRGBA(goimg.Rect(0, 0, img.Width, img.Height))

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := img.Index(x, y)
			j := (x + y*img.Width) * 4
			for c := 0; c < img.Channels && c < 4; c++ {
				rgba.Pix[j+c] = img.Pix[i+c]
			}
			if img.Channels < 4 {
				rgba.Pix[j+3] = 0xff
			}
		}
	}

	return rgba
}

type FloatImage struct {
	image
	Pix []float32
}

func NewFloatImage(pix []float32, channels int, width, height int) *FloatImage {
	return &FloatImage{
		Pix: pix,
		image: image{
			Channels: channels,
			Width:    width,
			Height:   height,
		},
	}
}

// Validate checks that the pixel data matches the dimensions.
func (img *FloatImage) Validate() error {
	if img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 {
		return fmt.Errorf("image is %dx%dx%d", img.Width, img.Height, img.Channels)
	}
	if want := img.Count() * img.Channels; len(img.Pix) != want {
		return fmt.Errorf("image of %dx%dx%d has %d values, want %d", img.Width, img.Height, img.Channels, len(img.Pix), want)
	}
	return nil
}

func (img *FloatImage) Bytes() int {
	return img.Width * img.Height * img.Channels * 4
}

func (img *FloatImage) ToChannels(nr int, defaults ...float32) *FloatImage {
	dst := toChannels(img.Channels, nr, img.Count(), img.Pix, defaults...)

	return NewFloatImage(dst, nr, img.Width, img.Height)
}

// FlipY returns a copy with the row order reversed.
func (img *FloatImage) FlipY() *FloatImage {
	row := img.Width * img.Channels
	pix := make([]float32, len(img.Pix))
	for y := 0; y < img.Height; y++ {
		copy(pix[(img.Height-y-1)*row:], img.Pix[y*row:(y+1)*row])
	}
	return NewFloatImage(pix, img.Channels, img.Width, img.Height)
}

// ToIntImage tone maps the image to 8 bit.
func (img *FloatImage) ToIntImage(gamma, scale float32) *IntImage {
	pix := make([]uint8, len(img.Pix))

	for i := 0; i < len(img.Pix); i++ {
		pix[i] = uint8(tonemap(img.Pix[i], 1.0/gamma, scale) * 0xff)
	}

	return NewIntImage(pix, img.Channels, img.Width, img.Height)
}

func tonemap(value, gamma, scale float32) float32 {
	value = math32.Pow(math32.Max(0, value), gamma) * scale
	return math32.Min(math32.Max(0.0, value), 1.0)
}
