package ibl

import (
	"fmt"

	"iblbake/libgpu"
)

// EquirectPass projects an equirectangular panorama onto the faces of a
// cube map. Any aspect ratio is accepted, 2:1 panoramas map without
// stretching.
type EquirectPass struct {
	pass
	Format libgpu.Format
}

func NewEquirectPass(arena *libgpu.Arena, compiler libgpu.Compiler) *EquirectPass {
	return &EquirectPass{
		pass:   pass{arena: arena, compiler: compiler},
		Format: libgpu.FormatRGBA16F,
	}
}

// Run renders level 0 of a size*size cube map and fills the remaining
// mipLevels by downsampling. libgpu.MipLevelsAuto requests a full chain.
func (p *EquirectPass) Run(src *libgpu.Image, size, mipLevels int) (*libgpu.Image, error) {
	if err := requireKind("equirect", src, libgpu.Image2D); err != nil {
		return nil, err
	}
	if err := requireSize("equirect", size); err != nil {
		return nil, err
	}
	dst := libgpu.ImageDesc{
		Label:     "environment",
		Kind:      libgpu.ImageCube,
		Format:    p.Format,
		Width:     size,
		Height:    size,
		MipLevels: mipLevels,
	}
	source := &passSource{image: src, view: libgpu.ViewDesc{Kind: libgpu.View2D, Layers: 1}, sampler: panoramaSampler()}
	img, err := p.run(EquirectProgram(), dst, source, cubeDraws(1, nil))
	if err != nil {
		return nil, err
	}
	if err := img.GenerateMipmaps(libgpu.LayoutShaderRead); err != nil {
		img.Destroy()
		return nil, fmt.Errorf("environment mipmaps: %w", err)
	}
	return img, nil
}

// panoramaSampler wraps around horizontally and clamps at the poles.
func panoramaSampler() libgpu.SamplerDesc {
	desc := libgpu.DefaultSamplerDesc()
	desc.Label = "panorama"
	desc.Mipmap = libgpu.MipmapNone
	desc.AddressU = libgpu.AddressRepeat
	return desc
}
