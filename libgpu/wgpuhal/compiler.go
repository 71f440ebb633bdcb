package wgpuhal

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"iblbake/libgpu"
)

// Source returns the full WGSL module the compiler builds for desc. Defines
// become module scope constants.
func Source(desc *libgpu.ProgramDesc) string {
	var sb strings.Builder
	for _, def := range desc.SortedDefines() {
		fmt.Fprintf(&sb, "const %s = %s;\n", def[0], def[1])
	}
	sb.WriteString(preludeSrc)
	sb.WriteString("\n")
	sb.WriteString(desc.WGSL)
	return sb.String()
}

// spirvWords converts little endian SPIR-V bytes to words.
func spirvWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}

// Compiler translates WGSL programs to SPIR-V with naga. The result does not
// depend on an adapter, so one compiler serves every hal device.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

func (c *Compiler) Compile(desc *libgpu.ProgramDesc) (libgpu.Program, error) {
	if desc.WGSL == "" {
		return nil, fmt.Errorf("program %q has no wgsl source: %w: %w", desc.Name, libgpu.ErrCompile, libgpu.ErrUnsupported)
	}
	if desc.Textures > 1 {
		return nil, fmt.Errorf("program %q binds %d textures, hal supports one: %w", desc.Name, desc.Textures, libgpu.ErrUnsupported)
	}
	if desc.Uniforms > MaxUniforms {
		return nil, fmt.Errorf("program %q takes %d uniforms, hal supports %d: %w", desc.Name, desc.Uniforms, MaxUniforms, libgpu.ErrUnsupported)
	}
	code, err := naga.Compile(Source(desc))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w: %w", desc.Name, libgpu.ErrCompile, err)
	}
	return &Program{
		name:     desc.Name,
		spirv:    spirvWords(code),
		textures: desc.Textures,
		uniforms: desc.Uniforms,
	}, nil
}

// Program is compiled SPIR-V. Pipelines create their own shader modules.
type Program struct {
	name     string
	spirv    []uint32
	textures int
	uniforms int
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Destroy() {
	p.spirv = nil
}
