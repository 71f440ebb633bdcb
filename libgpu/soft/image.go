package soft

import (
	"fmt"

	"iblbake/libgpu"
)

type image struct {
	dev  *Device
	desc libgpu.ImageDesc
	// levels[l] holds all layers of level l, layer after layer, RGBA.
	levels [][]float32
	// layouts[l][layer]
	layouts   [][]libgpu.Layout
	bytes     int64
	destroyed bool
}

func newImage(dev *Device, desc libgpu.ImageDesc) *image {
	img := &image{
		dev:     dev,
		desc:    desc,
		levels:  make([][]float32, desc.MipLevels),
		layouts: make([][]libgpu.Layout, desc.MipLevels),
	}
	for l := range img.levels {
		w, h := desc.Extent(l)
		img.levels[l] = make([]float32, w*h*desc.Layers*4)
		img.layouts[l] = make([]libgpu.Layout, desc.Layers)
		img.bytes += int64(desc.LevelBytes(l) * desc.Layers)
	}
	return img
}

func (img *image) Destroy() {
	if img.destroyed {
		return
	}
	img.destroyed = true
	img.levels = nil
	img.dev.memoryUsed -= img.bytes
	img.dev.count(func(s *Stats) { s.Images-- })
}

func (img *image) String() string {
	return fmt.Sprintf("%q", img.desc.Label)
}

// texels returns the RGBA texels of one layer of a level.
func (img *image) texels(level, layer int) []float32 {
	w, h := img.desc.Extent(level)
	n := w * h * 4
	return img.levels[level][layer*n : (layer+1)*n]
}

func (img *image) usable() error {
	if img.destroyed {
		return fmt.Errorf("image %v used after destroy: %w", img, libgpu.ErrInvalid)
	}
	return nil
}

func (img *image) needUsage(u libgpu.Usage, what string) error {
	if !img.desc.Usage.Has(u) {
		return fmt.Errorf("%s on image %v without %v usage (has %v): %w", what, img, u, img.desc.Usage, libgpu.ErrInvalid)
	}
	return nil
}

// expect checks that every sub-resource in the range is in one of the
// allowed layouts.
func (img *image) expect(baseLevel, levels, baseLayer, layers int, what string, allowed ...libgpu.Layout) error {
	for l := baseLevel; l < baseLevel+levels; l++ {
		for a := baseLayer; a < baseLayer+layers; a++ {
			cur := img.layouts[l][a]
			ok := false
			for _, want := range allowed {
				if cur == want {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("%s: image %v level %d layer %d is in %v, want %v: %w",
					what, img, l, a, cur, allowed[0], libgpu.ErrLayout)
			}
		}
	}
	return nil
}

func (img *image) transition(b libgpu.Barrier) error {
	if err := img.usable(); err != nil {
		return err
	}
	baseLevel, levels, baseLayer, layers := b.Range(img.desc.MipLevels, img.desc.Layers)
	if baseLevel < 0 || levels < 1 || baseLevel+levels > img.desc.MipLevels ||
		baseLayer < 0 || layers < 1 || baseLayer+layers > img.desc.Layers {
		return fmt.Errorf("barrier range exceeds image %v: %w", img, libgpu.ErrInvalid)
	}
	if b.Before != libgpu.LayoutUndefined {
		if err := img.expect(baseLevel, levels, baseLayer, layers, "transition", b.Before); err != nil {
			return err
		}
	}
	for l := baseLevel; l < baseLevel+levels; l++ {
		for a := baseLayer; a < baseLayer+layers; a++ {
			img.layouts[l][a] = b.After
		}
	}
	return nil
}

func (img *image) checkRegion(r libgpu.Region) error {
	if r.Level < 0 || r.Level >= img.desc.MipLevels || r.Layer < 0 || r.Layers < 1 || r.Layer+r.Layers > img.desc.Layers {
		return fmt.Errorf("region outside of image %v: %w", img, libgpu.ErrInvalid)
	}
	w, h := img.desc.Extent(r.Level)
	if r.X < 0 || r.Y < 0 || r.Width < 1 || r.Height < 1 || r.X+r.Width > w || r.Y+r.Height > h {
		return fmt.Errorf("region %dx%d+%d+%d outside of level %d of image %v: %w",
			r.Width, r.Height, r.X, r.Y, r.Level, img, libgpu.ErrInvalid)
	}
	return nil
}

func (img *image) write(r libgpu.Region, data []byte) error {
	src, err := libgpu.DecodeTexels(img.desc.Format, data)
	if err != nil {
		return err
	}
	w, _ := img.desc.Extent(r.Level)
	i := 0
	for a := r.Layer; a < r.Layer+r.Layers; a++ {
		dst := img.texels(r.Level, a)
		for y := r.Y; y < r.Y+r.Height; y++ {
			row := (y*w + r.X) * 4
			n := copy(dst[row:row+r.Width*4], src[i:])
			i += n
		}
	}
	return nil
}

func (img *image) read(r libgpu.Region, data []byte) error {
	w, _ := img.desc.Extent(r.Level)
	texels := make([]float32, 0, r.Width*r.Height*r.Layers*4)
	for a := r.Layer; a < r.Layer+r.Layers; a++ {
		src := img.texels(r.Level, a)
		for y := r.Y; y < r.Y+r.Height; y++ {
			row := (y*w + r.X) * 4
			texels = append(texels, src[row:row+r.Width*4]...)
		}
	}
	enc, err := libgpu.EncodeTexels(img.desc.Format, texels)
	if err != nil {
		return err
	}
	if len(enc) != len(data) {
		return fmt.Errorf("readback buffer of %d bytes, region has %d: %w", len(data), len(enc), libgpu.ErrInvalid)
	}
	copy(data, enc)
	return nil
}

// store writes a texel, rounded to the image format.
func (img *image) store(level, layer, x, y int, px [4]float32) {
	w, _ := img.desc.Extent(level)
	px = libgpu.Quantize(img.desc.Format, px)
	copy(img.texels(level, layer)[(y*w+x)*4:], px[:])
}

type view struct {
	dev       *Device
	img       *image
	desc      libgpu.ViewDesc
	destroyed bool
}

func (v *view) Destroy() {
	if !v.destroyed {
		v.destroyed = true
		v.dev.count(func(s *Stats) { s.Views-- })
	}
}
