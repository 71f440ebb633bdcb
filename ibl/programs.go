package ibl

import (
	"embed"
	"strconv"

	"iblbake/libgpu"
)

//go:embed shaders
var shaderFS embed.FS

func mustReadShader(name string) string {
	src, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		panic(err)
	}
	return string(src)
}

var (
	commonGlsl   = mustReadShader("common.glsl")
	commonWgsl   = mustReadShader("common.wgsl")
	commonOpenCL = mustReadShader("common.cl")
)

// newProgramDesc assembles a program from the common sources and the
// program sources in shaders/<name>.*.
func newProgramDesc(name string, textures, slots int, kernel libgpu.FragmentFunc) *libgpu.ProgramDesc {
	return &libgpu.ProgramDesc{
		Name:     name,
		Textures: textures,
		Uniforms: slots * 4,
		Defines:  map[string]string{"PARAM_SLOTS": strconv.Itoa(slots)},
		Kernel:   kernel,
		GLSL:     commonGlsl + mustReadShader(name+".glsl"),
		WGSL:     commonWgsl + mustReadShader(name+".wgsl"),
		OpenCL:   commonOpenCL + mustReadShader(name+".cl"),
	}
}

func BrdfProgram() *libgpu.ProgramDesc {
	return newProgramDesc("brdf", 0, 1, brdfKernel)
}

func EquirectProgram() *libgpu.ProgramDesc {
	return newProgramDesc("equirect", 1, 3, equirectKernel)
}

func IrradianceProgram() *libgpu.ProgramDesc {
	return newProgramDesc("irradiance", 1, 4, irradianceKernel)
}

func PrefilterProgram() *libgpu.ProgramDesc {
	return newProgramDesc("prefilter", 1, 4, prefilterKernel)
}

// faceUniforms packs the face matrix into slots 0 to 2, followed by params.
func faceUniforms(face int, params ...float32) []float32 {
	m := FaceMatrix(face)
	u := make([]float32, 0, 12+len(params))
	for c := 0; c < 3; c++ {
		col := m.Col(c)
		u = append(u, col[0], col[1], col[2], 0)
	}
	return append(u, params...)
}
