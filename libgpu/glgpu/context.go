package glgpu

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"iblbake/libgpu"
)

// NewHeadlessContext creates a hidden window with a 4.5 core context, makes
// it current and loads the GL functions. The calling goroutine has to stay
// locked to its thread for as long as the context is used.
func NewHeadlessContext(debug bool) (*glfw.Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("init glfw: %w", err)
	}
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 5)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	if debug {
		glfw.WindowHint(glfw.OpenGLDebugContext, glfw.True)
	}
	ctx, err := glfw.CreateWindow(64, 64, "iblbake", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create gl context: %w: %w", libgpu.ErrUnsupported, err)
	}
	ctx.MakeContextCurrent()

	err = gl.InitWithProcAddrFunc(func(name string) unsafe.Pointer {
		addr := glfw.GetProcAddress(name)
		if addr == nil {
			return unsafe.Pointer(uintptr(0xffff_ffff_ffff_ffff))
		}
		return addr
	})
	if err != nil {
		ctx.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("load gl functions: %w", err)
	}

	if debug {
		gl.Enable(gl.DEBUG_OUTPUT)
		gl.Enable(gl.DEBUG_OUTPUT_SYNCHRONOUS)
		gl.DebugMessageCallback(func(source, gltype, id, severity uint32, length int32, message string, userParam unsafe.Pointer) {
			if severity == gl.DEBUG_SEVERITY_NOTIFICATION {
				return
			}
			libgpu.Logger().Debug("gl: "+message, "id", id, "type", gltype)
		}, nil)
	}
	return ctx, nil
}

const (
	VendorIntel   = "intel"
	VendorNvidia  = "nvidia"
	VendorAmd     = "ati"
	VendorUnknown = "unknown"
)

type glEnvironment struct {
	Vendor   string
	Renderer string
	Version  string
	// https://community.intel.com/t5/Graphics/glNamedFramebufferTextureLayer-rejects-cubemaps-of-any-kind/td-p/1167643
	UseIntelCubemapDsaFix   bool
	MaxTextureMaxAnisotropy float32
}

func getGlEnv() *glEnvironment {
	raw := gl.GoStr(gl.GetString(gl.VENDOR))
	vendor := strings.ToLower(raw)
	if strings.Contains(vendor, "intel") {
		vendor = VendorIntel
	} else if strings.Contains(vendor, "nvidia") {
		vendor = VendorNvidia
	} else if strings.Contains(vendor, "ati ") || strings.Contains(vendor, "amd") {
		vendor = VendorAmd
	} else {
		vendor = VendorUnknown
	}

	env := &glEnvironment{
		Vendor:                vendor,
		Renderer:              gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:               gl.GoStr(gl.GetString(gl.VERSION)),
		UseIntelCubemapDsaFix: vendor == VendorIntel,
	}
	gl.GetFloatv(gl.MAX_TEXTURE_MAX_ANISOTROPY, &env.MaxTextureMaxAnisotropy)
	return env
}

func setObjectLabel(namespace, id uint32, label string) {
	if label == "" {
		return
	}
	bytes := []byte(label)
	gl.ObjectLabel(namespace, id, int32(len(bytes)), (*uint8)(unsafe.Pointer(&bytes[0])))
}

// glState skips redundant binds.
type glState struct {
	TextureUnits, SamplerUnits []uint32
	DrawFramebuffer            uint32
	ProgramPipeline            uint32
	VertexArray                uint32
	ViewportRect               [4]int
}

func newGlState(units int) *glState {
	return &glState{
		TextureUnits: make([]uint32, units),
		SamplerUnits: make([]uint32, units),
	}
}

func (s *glState) BindTextureUnit(unit int, texture uint32) {
	if s.TextureUnits[unit] == texture {
		return
	}
	gl.BindTextureUnit(uint32(unit), texture)
	s.TextureUnits[unit] = texture
}

func (s *glState) BindSampler(unit int, sampler uint32) {
	if s.SamplerUnits[unit] == sampler {
		return
	}
	gl.BindSampler(uint32(unit), sampler)
	s.SamplerUnits[unit] = sampler
}

// Forget drops a deleted texture or sampler from the bound units.
func (s *glState) Forget(texture, sampler uint32) {
	for i := range s.TextureUnits {
		if texture != 0 && s.TextureUnits[i] == texture {
			s.TextureUnits[i] = 0
		}
		if sampler != 0 && s.SamplerUnits[i] == sampler {
			s.SamplerUnits[i] = 0
		}
	}
}

func (s *glState) BindDrawFramebuffer(framebuffer uint32) {
	if s.DrawFramebuffer == framebuffer {
		return
	}
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, framebuffer)
	s.DrawFramebuffer = framebuffer
}

func (s *glState) BindProgramPipeline(pipeline uint32) {
	if s.ProgramPipeline == pipeline {
		return
	}
	gl.BindProgramPipeline(pipeline)
	s.ProgramPipeline = pipeline
}

func (s *glState) BindVertexArray(array uint32) {
	if s.VertexArray == array {
		return
	}
	gl.BindVertexArray(array)
	s.VertexArray = array
}

func (s *glState) Viewport(x, y, w, h int) {
	if s.ViewportRect[0] == x && s.ViewportRect[1] == y && s.ViewportRect[2] == w && s.ViewportRect[3] == h {
		return
	}
	gl.Viewport(int32(x), int32(y), int32(w), int32(h))
	s.ViewportRect = [4]int{x, y, w, h}
}
