package ibl

import (
	"fmt"

	"iblbake/libgpu"
)

// PrefilterPass convolves an environment cube map with the GGX lobe for
// increasing roughness, one roughness value per mip level.
type PrefilterPass struct {
	pass
	Samples int
	Format  libgpu.Format
}

func NewPrefilterPass(arena *libgpu.Arena, compiler libgpu.Compiler) *PrefilterPass {
	return &PrefilterPass{
		pass:    pass{arena: arena, compiler: compiler},
		Samples: 512,
		Format:  libgpu.FormatRGBA16F,
	}
}

// Roughness returns the roughness rendered into a mip level.
func Roughness(level, mipLevels int) float32 {
	if mipLevels <= 1 {
		return 0
	}
	return float32(level) / float32(mipLevels-1)
}

// Run renders a size*size cube map with mipLevels levels from the cube
// map src, which should carry a full mip chain for the sample lod
// selection to avoid aliasing.
func (p *PrefilterPass) Run(src *libgpu.Image, size, mipLevels int) (*libgpu.Image, error) {
	if err := requireKind("prefilter", src, libgpu.ImageCube); err != nil {
		return nil, err
	}
	if err := requireSize("prefilter", size); err != nil {
		return nil, err
	}
	if p.Samples <= 0 {
		return nil, invalidQuality("prefilter samples", p.Samples)
	}
	mipLevels = libgpu.ResolveMipLevels(size, size, mipLevels)
	dst := libgpu.ImageDesc{
		Label:     "prefiltered",
		Kind:      libgpu.ImageCube,
		Format:    p.Format,
		Width:     size,
		Height:    size,
		MipLevels: mipLevels,
	}
	srcSize := float32(src.Desc().Width)
	source := &passSource{image: src, view: libgpu.ViewDesc{Kind: libgpu.ViewCube}, sampler: environmentSampler()}
	draws := cubeDraws(mipLevels, func(level int) []float32 {
		return []float32{Roughness(level, mipLevels), float32(p.Samples), srcSize, 0}
	})
	return p.run(PrefilterProgram(), dst, source, draws)
}

func environmentSampler() libgpu.SamplerDesc {
	desc := libgpu.DefaultSamplerDesc()
	desc.Label = "environment"
	return desc
}

func invalidQuality[T int | float32](what string, v T) error {
	return fmt.Errorf("%s %v: %w", what, v, libgpu.ErrInvalid)
}
