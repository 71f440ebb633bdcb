package clgpu

import (
	"fmt"
	"strings"

	"github.com/Qendolin/go-opencl/cl"

	"iblbake/libgpu"
)

// Compiler builds the OpenCL source of a program into a kernel named after
// the program.
type Compiler struct {
	core *clCore
}

// Source returns the full source the compiler builds for desc.
func Source(desc *libgpu.ProgramDesc) string {
	var sb strings.Builder
	for _, def := range desc.SortedDefines() {
		fmt.Fprintf(&sb, "#define %s %s\n", def[0], def[1])
	}
	sb.WriteString(preludeSrc)
	sb.WriteString("\n")
	sb.WriteString(desc.OpenCL)
	return sb.String()
}

func (c *Compiler) Compile(desc *libgpu.ProgramDesc) (libgpu.Program, error) {
	if desc.OpenCL == "" {
		return nil, fmt.Errorf("program %q has no opencl source: %w: %w", desc.Name, libgpu.ErrCompile, libgpu.ErrUnsupported)
	}
	if desc.Textures > 1 {
		return nil, fmt.Errorf("program %q binds %d textures, opencl supports one: %w", desc.Name, desc.Textures, libgpu.ErrUnsupported)
	}

	prog, err := c.core.context.CreateProgramWithSource([]string{Source(desc)})
	if err != nil {
		return nil, fmt.Errorf("program %q: %w: %w", desc.Name, libgpu.ErrCompile, err)
	}
	err = prog.BuildProgram(nil, "")
	if err != nil {
		prog.Release()
		return nil, fmt.Errorf("build program %q: %w: %w", desc.Name, libgpu.ErrCompile, err)
	}
	kernel, err := prog.CreateKernel(desc.Name)
	if err != nil {
		prog.Release()
		return nil, fmt.Errorf("program %q kernel: %w: %w", desc.Name, libgpu.ErrCompile, err)
	}

	return &Program{
		core:     c.core,
		name:     desc.Name,
		program:  prog,
		kernel:   kernel,
		textures: desc.Textures,
		uniforms: desc.Uniforms,
	}, nil
}

type Program struct {
	core     *clCore
	name     string
	program  *cl.Program
	kernel   *cl.Kernel
	textures int
	uniforms int
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Destroy() {
	if p.kernel == nil {
		return
	}
	p.kernel.Release()
	p.program.Release()
	p.kernel = nil
	p.program = nil
}
