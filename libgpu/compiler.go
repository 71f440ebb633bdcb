package libgpu

import (
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Compiler turns a program description into a program for one device.
// It is an explicit dependency of everything that renders; there is no
// process wide compiler.
type Compiler interface {
	Compile(desc *ProgramDesc) (Program, error)
}

type Program interface {
	Name() string
	Destroy()
}

// ProgramDesc describes a fullscreen fragment program in every source
// language a device may consume. A device uses the one it understands and
// reports ErrUnsupported when it is missing.
type ProgramDesc struct {
	Name string
	// Textures is the number of texture bindings, in binding order.
	Textures int
	// Uniforms is the number of float32 uniform values.
	Uniforms int
	// Defines are prepended to the GLSL and OpenCL sources as #define and
	// to the WGSL source as const declarations.
	Defines map[string]string

	// Kernel is executed per texel by the software device.
	Kernel FragmentFunc
	// GLSL is a fragment stage without a #version line. It reads the
	// texel center from `layout(location = 0) in vec2 v_uv` and writes
	// `layout(location = 0) out vec4`. Uniforms are a vec4 array at
	// location 0, textures use `layout(binding = i)`.
	GLSL string
	// WGSL defines `fn fs_main(in: FragmentInput) -> vec4<f32>`, called
	// once per target texel. The device prepends a prelude with the entry
	// point, FragmentInput, u_params and the tex_sample and tex_sample_cube
	// functions for texture 0.
	WGSL string
	// OpenCL defines a kernel with the same name as the program, taking
	// FRAGMENT_PARAMS. The device prelude supplies FRAGMENT_BEGIN,
	// write_fragment, TEXTURE and the tex_sample functions.
	OpenCL string
}

// SortedDefines returns the defines as name, value pairs ordered by name, so
// equal descriptions always produce the same source text.
func (d *ProgramDesc) SortedDefines() [][2]string {
	names := maps.Keys(d.Defines)
	slices.Sort(names)
	defines := make([][2]string, len(names))
	for i, name := range names {
		defines[i] = [2]string{name, d.Defines[name]}
	}
	return defines
}

// FragmentFunc computes the output texel of one fragment.
type FragmentFunc func(frag *Fragment) [4]float32

// Fragment is the input of a FragmentFunc.
type Fragment struct {
	// X and Y are the texel coordinates within the target level,
	// U and V the texel center normalized to [0, 1].
	X, Y          int
	U, V          float32
	Width, Height int
	Layer, Level  int
	Uniforms      []float32
	Textures      []SampledTexture
}

// Uniform returns the i-th vec4 uniform slot.
func (f *Fragment) Uniform(i int) mgl32.Vec4 {
	var v mgl32.Vec4
	copy(v[:], f.Uniforms[i*4:])
	return v
}

// SampledTexture is a bound view as seen by a FragmentFunc.
type SampledTexture interface {
	// Sample filters the layer of a 2D or array view at (u, v).
	Sample(u, v float32, layer int, lod float32) [4]float32
	// SampleCube filters a cube view in direction dir.
	SampleCube(dir mgl32.Vec3, lod float32) [4]float32
	Levels() int
	Size(level int) (w, h int)
}
