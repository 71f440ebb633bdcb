package ibl

import (
	"iblbake/libgpu"
)

// IrradiancePass convolves an equirectangular panorama with a cosine lobe
// into a diffuse irradiance cube map.
type IrradiancePass struct {
	pass
	// SampleDelta is the step in radians of the hemisphere integration.
	SampleDelta float32
	Format      libgpu.Format
}

func NewIrradiancePass(arena *libgpu.Arena, compiler libgpu.Compiler) *IrradiancePass {
	return &IrradiancePass{
		pass:        pass{arena: arena, compiler: compiler},
		SampleDelta: 0.025,
		Format:      libgpu.FormatRGBA16F,
	}
}

func (p *IrradiancePass) Run(src *libgpu.Image, size int) (*libgpu.Image, error) {
	if err := requireKind("irradiance", src, libgpu.Image2D); err != nil {
		return nil, err
	}
	if err := requireSize("irradiance", size); err != nil {
		return nil, err
	}
	if p.SampleDelta <= 0 {
		return nil, invalidQuality("irradiance sample delta", p.SampleDelta)
	}
	dst := libgpu.ImageDesc{
		Label:  "irradiance",
		Kind:   libgpu.ImageCube,
		Format: p.Format,
		Width:  size,
		Height: size,
	}
	source := &passSource{image: src, view: libgpu.ViewDesc{Kind: libgpu.View2D, Layers: 1}, sampler: panoramaSampler()}
	draws := cubeDraws(1, func(int) []float32 {
		return []float32{p.SampleDelta, 0, 0, 0}
	})
	return p.run(IrradianceProgram(), dst, source, draws)
}
