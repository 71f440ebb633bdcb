package libgpu

// Device is the interface to an explicit graphics backend.
// Every object it creates must be destroyed explicitly, views and
// pipelines before the images and programs they were created from.
// Command buffers are recorded on the calling goroutine and executed
// by Submit, which blocks until the GPU is done with them.
type Device interface {
	// Name identifies the backend and adapter, e.g. "soft" or "gl/intel".
	Name() string

	Limits() Limits

	NewImage(desc *ImageDesc) (HwImage, error)

	// NewView creates a typed view of img. The view must not outlive img.
	NewView(img HwImage, desc *ViewDesc) (HwView, error)

	NewSampler(desc *SamplerDesc) (HwSampler, error)

	// NewPipeline creates a fullscreen render pipeline from a program
	// produced by the Compiler that belongs to this device.
	NewPipeline(desc *PipelineDesc) (Pipeline, error)

	NewCmdBuffer() (CmdBuffer, error)

	// Submit executes cb on the single queue of the device and waits
	// for completion. The command buffer can not be reused afterwards.
	Submit(cb CmdBuffer) error

	Destroy()
}

// CmdBuffer records commands for a later Submit.
// Recording never fails; invalid commands are reported by Submit.
type CmdBuffer interface {
	Destroy()

	// Transition records a layout transition with a full memory barrier
	// for every sub-resource range in barriers.
	Transition(barriers []Barrier)

	// CopyToImage records a staged upload of data into region.
	// The data is copied at record time.
	CopyToImage(dst HwImage, region Region, data []byte)

	// CopyFromImage records a readback of region into dst.
	// The contents of dst are valid once Submit returns.
	CopyFromImage(src HwImage, region Region, dst []byte)

	// Blit records a linear downsample of SrcLevel into DstLevel.
	Blit(blit *Blit)

	// Draw records a single fullscreen draw into one sub-resource of the
	// target image.
	Draw(draw *Draw)
}

// HwImage is a backend image allocation.
type HwImage interface {
	Destroy()
}

// HwView is a backend image view.
type HwView interface {
	Destroy()
}

// HwSampler is a backend sampler object.
type HwSampler interface {
	Destroy()
}

// Pipeline is a backend render pipeline.
type Pipeline interface {
	Destroy()
}

type Limits struct {
	MaxImage2D   int
	MaxImageCube int
	MaxLayers    int
	MaxTextures  int
	MaxUniforms  int
}

// Barrier is a layout transition over a range of sub-resources.
// A zero Levels or Layers means all remaining levels or layers.
type Barrier struct {
	Image             HwImage
	BaseLevel, Levels int
	BaseLayer, Layers int
	Before, After     Layout
}

// Region selects texels of a single mip level. A zero Width or Height
// selects the full extent of the level, a zero Layers selects one layer.
// Texel data for multiple layers is laid out layer after layer.
type Region struct {
	Level         int
	Layer, Layers int
	X, Y          int
	Width, Height int
}

type Blit struct {
	Image              HwImage
	SrcLevel, DstLevel int
	BaseLayer, Layers  int
	Filter             Filter
}

// Binding pairs a view with the sampler used to read it.
type Binding struct {
	View    HwView
	Sampler HwSampler
}

type Draw struct {
	Pipeline Pipeline
	Target   HwImage
	Level    int
	Layer    int
	Textures []Binding
	// Uniforms are packed as consecutive vec4 slots.
	Uniforms []float32
}

type PipelineDesc struct {
	Label   string
	Program Program
	Target  Format
}
