package soft

import (
	"fmt"

	"iblbake/libgpu"
)

// Compiler compiles programs for the soft device by picking their Go kernel.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

func (*Compiler) Compile(desc *libgpu.ProgramDesc) (libgpu.Program, error) {
	if desc.Kernel == nil {
		return nil, fmt.Errorf("program %q has no kernel: %w: %w", desc.Name, libgpu.ErrCompile, libgpu.ErrUnsupported)
	}
	return &Program{
		name:     desc.Name,
		kernel:   desc.Kernel,
		textures: desc.Textures,
		uniforms: desc.Uniforms,
	}, nil
}

type Program struct {
	name     string
	kernel   libgpu.FragmentFunc
	textures int
	uniforms int
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Destroy() {}
