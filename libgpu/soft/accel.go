package soft

import (
	"fmt"
	"math"

	"iblbake/libgpu"
)

// Accelerator runs draws on another processor while the images stay in host
// memory. Copies, blits and transitions are still executed by the Device.
type Accelerator interface {
	Name() string
	// NewPipeline prepares a program of the accelerator's own compiler.
	NewPipeline(desc *libgpu.PipelineDesc) (AcceleratedPipeline, error)
	Destroy()
}

type AcceleratedPipeline interface {
	// Draw renders every texel of target.
	Draw(target *Target, textures []*Texture, uniforms []float32) error
	Destroy()
}

// Target is the sub-resource a draw renders into. Texels are RGBA, row 0
// first, and are rounded to Format after the draw.
type Target struct {
	Width, Height int
	Format        libgpu.Format
	Level, Layer  int
	Texels        []float32
}

// Texture is a bound view together with its sampler.
type Texture struct {
	t *texture
}

func (t *Texture) Kind() libgpu.ImageKind {
	return t.t.img.desc.Kind
}

func (t *Texture) Sampler() libgpu.SamplerDesc {
	return t.t.sampler
}

// Levels returns the number of mip levels of the view.
func (t *Texture) Levels() int {
	return t.t.view.Levels
}

// Layers returns the number of layers of the view.
func (t *Texture) Layers() int {
	return t.t.view.Layers
}

func (t *Texture) Size(level int) (w, h int) {
	return t.t.Size(level)
}

// Texels returns the RGBA texels of one view relative level and layer.
// The slice must not be modified.
func (t *Texture) Texels(level, layer int) []float32 {
	return t.t.img.texels(t.t.view.BaseLevel+level, t.t.view.BaseLayer+layer)
}

// TexInfoHeader is the number of values in front of the per level entries of
// the info block returned by Pack.
const TexInfoHeader = 10

// Pack flattens the levels and layers of the view into RGBA texels and an
// info block: levels, layers, mag, min, mipmap, address u and v, border,
// the bits of min and max lod, then width, height and texel offset of each
// level.
func (t *Texture) Pack() ([]float32, []int32) {
	s := t.Sampler()
	levels, layers := t.Levels(), t.Layers()
	info := make([]int32, TexInfoHeader, TexInfoHeader+levels*3)
	info[0] = int32(levels)
	info[1] = int32(layers)
	info[2] = int32(s.Mag)
	info[3] = int32(s.Min)
	info[4] = int32(s.Mipmap)
	info[5] = int32(s.AddressU)
	info[6] = int32(s.AddressV)
	info[7] = int32(s.Border)
	info[8] = int32(math.Float32bits(s.MinLod))
	info[9] = int32(math.Float32bits(s.MaxLod))

	var texels []float32
	for level := 0; level < levels; level++ {
		w, h := t.Size(level)
		info = append(info, int32(w), int32(h), int32(len(texels)/4))
		for layer := 0; layer < layers; layer++ {
			texels = append(texels, t.Texels(level, layer)...)
		}
	}
	return texels, info
}

func (dev *Device) drawAccelerated(pipe *pipeline, target *image, d *libgpu.Draw, textures []*texture) error {
	w, h := target.desc.Extent(d.Level)
	dst := &Target{
		Width:  w,
		Height: h,
		Format: target.desc.Format,
		Level:  d.Level,
		Layer:  d.Layer,
		Texels: make([]float32, w*h*4),
	}
	bound := make([]*Texture, len(textures))
	for i, t := range textures {
		bound[i] = &Texture{t: t}
	}
	if err := pipe.accel.Draw(dst, bound, d.Uniforms); err != nil {
		return err
	}
	if len(dst.Texels) != w*h*4 {
		return fmt.Errorf("accelerator returned %d values for %dx%d texels: %w", len(dst.Texels), w, h, libgpu.ErrInvalid)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px [4]float32
			copy(px[:], dst.Texels[(y*w+x)*4:])
			target.store(d.Level, d.Layer, x, y, px)
		}
	}
	return nil
}
