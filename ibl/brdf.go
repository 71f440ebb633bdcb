package ibl

import (
	"iblbake/libgpu"
)

// BrdfLutPass renders the split sum BRDF lookup table. The red channel
// holds the scale and the green channel the bias to F0, indexed by NdotV
// along u and roughness along v.
type BrdfLutPass struct {
	pass
	Samples int
	Format  libgpu.Format
}

func NewBrdfLutPass(arena *libgpu.Arena, compiler libgpu.Compiler) *BrdfLutPass {
	return &BrdfLutPass{
		pass:    pass{arena: arena, compiler: compiler},
		Samples: 1024,
		Format:  libgpu.FormatRG16F,
	}
}

func (p *BrdfLutPass) Run(size int) (*libgpu.Image, error) {
	if err := requireSize("brdf lut", size); err != nil {
		return nil, err
	}
	if p.Samples <= 0 {
		return nil, invalidQuality("brdf lut samples", p.Samples)
	}
	dst := libgpu.ImageDesc{
		Label:  "brdf lut",
		Kind:   libgpu.Image2D,
		Format: p.Format,
		Width:  size,
		Height: size,
	}
	draws := []passDraw{{uniforms: []float32{float32(p.Samples), 0, 0, 0}}}
	return p.run(BrdfProgram(), dst, nil, draws)
}
