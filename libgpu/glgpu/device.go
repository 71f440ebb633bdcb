// Package glgpu implements libgpu.Device on an OpenGL 4.5 core context
// using direct state access.
//
// GL tracks hazards itself, so transitions only insert a texture barrier.
// Every method must be called on the thread the context is current on.
package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"iblbake/libgpu"
	"iblbake/libutil"
)

const maxTextureUnits = 32

type Device struct {
	window *glfw.Window
	env    *glEnvironment
	state  *glState
	limits libgpu.Limits

	vertex  uint32
	vao     uint32
	drawFbo uint32
	readFbo uint32
}

// Open creates a hidden window context and a device on it. The device owns
// the context and terminates glfw when destroyed.
func Open(debug bool) (*Device, error) {
	window, err := NewHeadlessContext(debug)
	if err != nil {
		return nil, err
	}
	dev, err := New()
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, err
	}
	dev.window = window
	return dev, nil
}

// New creates a device on the current context.
func New() (dev *Device, err error) {
	dev = &Device{
		env:   getGlEnv(),
		state: newGlState(maxTextureUnits),
	}

	var cleanup libutil.Cleanup
	defer func() {
		if err != nil {
			cleanup.Destroy()
		}
	}()

	var maxSize, maxCube, maxLayers, maxUnits, maxUniforms int32
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &maxSize)
	gl.GetIntegerv(gl.MAX_CUBE_MAP_TEXTURE_SIZE, &maxCube)
	gl.GetIntegerv(gl.MAX_ARRAY_TEXTURE_LAYERS, &maxLayers)
	gl.GetIntegerv(gl.MAX_TEXTURE_IMAGE_UNITS, &maxUnits)
	gl.GetIntegerv(gl.MAX_FRAGMENT_UNIFORM_COMPONENTS, &maxUniforms)
	dev.limits = libgpu.Limits{
		MaxImage2D:   int(maxSize),
		MaxImageCube: int(maxCube),
		MaxLayers:    int(maxLayers),
		MaxTextures:  libutil.Min(int(maxUnits), maxTextureUnits),
		MaxUniforms:  int(maxUniforms),
	}

	dev.vertex, err = buildProgram("fullscreen", gl.VERTEX_SHADER, fullscreenVertexSrc, nil)
	if err != nil {
		return nil, err
	}
	cleanup.Add(libutil.DestroyFunc(func() { gl.DeleteProgram(dev.vertex) }))

	gl.CreateVertexArrays(1, &dev.vao)
	cleanup.Add(libutil.DestroyFunc(func() { gl.DeleteVertexArrays(1, &dev.vao) }))

	gl.CreateFramebuffers(1, &dev.drawFbo)
	cleanup.Add(libutil.DestroyFunc(func() { gl.DeleteFramebuffers(1, &dev.drawFbo) }))
	setObjectLabel(gl.FRAMEBUFFER, dev.drawFbo, "draw target")
	drawBuffers := []uint32{gl.COLOR_ATTACHMENT0}
	gl.NamedFramebufferDrawBuffers(dev.drawFbo, 1, &drawBuffers[0])

	gl.CreateFramebuffers(1, &dev.readFbo)
	cleanup.Add(libutil.DestroyFunc(func() { gl.DeleteFramebuffers(1, &dev.readFbo) }))
	setObjectLabel(gl.FRAMEBUFFER, dev.readFbo, "blit source")
	gl.NamedFramebufferReadBuffer(dev.readFbo, gl.COLOR_ATTACHMENT0)

	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	gl.Disable(gl.CULL_FACE)
	gl.Enable(gl.TEXTURE_CUBE_MAP_SEAMLESS)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("gl device setup: gl error 0x%x: %w", code, libgpu.ErrUnsupported)
	}
	libgpu.Logger().Info("gl device opened", "vendor", dev.env.Vendor, "renderer", dev.env.Renderer, "version", dev.env.Version)
	return dev, nil
}

func (dev *Device) Name() string {
	return "gl/" + dev.env.Vendor
}

func (dev *Device) Limits() libgpu.Limits {
	return dev.limits
}

func (dev *Device) NewImage(desc *libgpu.ImageDesc) (libgpu.HwImage, error) {
	return newImage(dev, *desc)
}

func (dev *Device) NewView(hw libgpu.HwImage, desc *libgpu.ViewDesc) (libgpu.HwView, error) {
	img, ok := hw.(*image)
	if !ok {
		return nil, fmt.Errorf("view of foreign image: %w", libgpu.ErrInvalid)
	}
	return newView(dev, img, *desc)
}

func (dev *Device) NewSampler(desc *libgpu.SamplerDesc) (libgpu.HwSampler, error) {
	return newSampler(dev, desc), nil
}

func (dev *Device) NewPipeline(desc *libgpu.PipelineDesc) (libgpu.Pipeline, error) {
	prog, ok := desc.Program.(*Program)
	if !ok || prog.glId == 0 {
		return nil, fmt.Errorf("pipeline %q: program was not compiled for gl: %w", desc.Label, libgpu.ErrInvalid)
	}
	if _, err := lookupFormat(desc.Target); err != nil || desc.Target.IsDepth() {
		return nil, fmt.Errorf("pipeline %q target %v: %w", desc.Label, desc.Target, libgpu.ErrUnsupported)
	}

	pipe := &pipeline{dev: dev, label: desc.Label, program: prog, target: desc.Target}
	gl.CreateProgramPipelines(1, &pipe.glId)
	gl.UseProgramStages(pipe.glId, gl.VERTEX_SHADER_BIT, dev.vertex)
	gl.UseProgramStages(pipe.glId, gl.FRAGMENT_SHADER_BIT, prog.glId)
	setObjectLabel(gl.PROGRAM_PIPELINE, pipe.glId, desc.Label)
	if code := gl.GetError(); code != gl.NO_ERROR {
		pipe.Destroy()
		return nil, fmt.Errorf("pipeline %q: gl error 0x%x: %w", desc.Label, code, libgpu.ErrAllocation)
	}
	return pipe, nil
}

func (dev *Device) NewCmdBuffer() (libgpu.CmdBuffer, error) {
	return &cmdBuffer{dev: dev}, nil
}

// Submit executes the recorded commands and waits with glFinish. A command
// that leaves a GL error fails the submission.
func (dev *Device) Submit(cb libgpu.CmdBuffer) error {
	buf, ok := cb.(*cmdBuffer)
	if !ok || buf.dev != dev {
		return fmt.Errorf("command buffer of another device: %w", libgpu.ErrInvalid)
	}
	if buf.submitted {
		return fmt.Errorf("command buffer submitted twice: %w", libgpu.ErrInvalid)
	}
	buf.submitted = true
	// clear errors left by code outside of the device
	for gl.GetError() != gl.NO_ERROR {
	}
	for i, cmd := range buf.cmds {
		if err := cmd(); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		if code := gl.GetError(); code != gl.NO_ERROR {
			return fmt.Errorf("command %d: gl error 0x%x: %w", i, code, libgpu.ErrSubmit)
		}
	}
	gl.Finish()
	return nil
}

func (dev *Device) Destroy() {
	if dev.drawFbo == 0 {
		return
	}
	gl.DeleteFramebuffers(1, &dev.drawFbo)
	gl.DeleteFramebuffers(1, &dev.readFbo)
	gl.DeleteVertexArrays(1, &dev.vao)
	gl.DeleteProgram(dev.vertex)
	dev.drawFbo, dev.readFbo, dev.vao, dev.vertex = 0, 0, 0, 0
	if dev.window != nil {
		dev.window.Destroy()
		glfw.Terminate()
		dev.window = nil
	}
}

// attach binds one level and layer of img as the color attachment of fbo
// and checks it for use as target, GL_DRAW_FRAMEBUFFER or GL_READ_FRAMEBUFFER.
func (dev *Device) attach(fbo, target uint32, img *image, level, layer int) error {
	switch {
	case !img.layered():
		gl.NamedFramebufferTexture(fbo, gl.COLOR_ATTACHMENT0, img.glId, int32(level))
	case img.target == gl.TEXTURE_CUBE_MAP && dev.env.UseIntelCubemapDsaFix:
		gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, img.glId)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, uint32(gl.TEXTURE_CUBE_MAP_POSITIVE_X+layer), img.glId, int32(level))
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		dev.state.DrawFramebuffer = 0
		dev.state.TextureUnits[0] = 0
	default:
		gl.NamedFramebufferTextureLayer(fbo, gl.COLOR_ATTACHMENT0, img.glId, int32(level), int32(layer))
	}
	return checkFramebuffer(fbo, target)
}

func checkFramebuffer(fbo, target uint32) error {
	status := gl.CheckNamedFramebufferStatus(fbo, target)
	switch status {
	case gl.FRAMEBUFFER_COMPLETE:
		return nil
	case gl.FRAMEBUFFER_INCOMPLETE_ATTACHMENT:
		return fmt.Errorf("an attachment is framebuffer incomplete (GL_FRAMEBUFFER_INCOMPLETE_ATTACHMENT): %w", libgpu.ErrInvalid)
	case gl.FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT:
		return fmt.Errorf("the framebuffer has no attachments (GL_FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT): %w", libgpu.ErrInvalid)
	case gl.FRAMEBUFFER_INCOMPLETE_DRAW_BUFFER:
		return fmt.Errorf("the object type of a draw attachment is none (GL_FRAMEBUFFER_INCOMPLETE_DRAW_BUFFER): %w", libgpu.ErrInvalid)
	case gl.FRAMEBUFFER_INCOMPLETE_READ_BUFFER:
		return fmt.Errorf("the object type of the read attachment is none (GL_FRAMEBUFFER_INCOMPLETE_READ_BUFFER): %w", libgpu.ErrInvalid)
	case gl.FRAMEBUFFER_UNSUPPORTED:
		return fmt.Errorf("the combination of internal formats of the attachments is not supported (GL_FRAMEBUFFER_UNSUPPORTED): %w", libgpu.ErrUnsupported)
	case gl.FRAMEBUFFER_INCOMPLETE_LAYER_TARGETS:
		return fmt.Errorf("FRAMEBUFFER_INCOMPLETE_LAYER_TARGETS: %w", libgpu.ErrInvalid)
	}
	return fmt.Errorf("unknown framebuffer status: %X: %w", status, libgpu.ErrInvalid)
}
