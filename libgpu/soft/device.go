// Package soft implements libgpu.Device on the CPU.
//
// Every image is stored as RGBA float32 texels rounded to the precision of
// its format. Layouts are tracked per sub-resource and checked strictly, so
// a command that touches a sub-resource in the wrong layout fails Submit
// with libgpu.ErrLayout where a real driver would only produce garbage.
package soft

import (
	"fmt"
	"runtime"
	"sync"

	"iblbake/libgpu"
)

// Stats counts the work a device has executed.
type Stats struct {
	Submits     int
	Draws       int
	Blits       int
	Uploads     int
	Downloads   int
	Transitions int
	Images      int
	Views       int
	Pipelines   int
}

type Option func(d *Device)

// WithMemoryLimit makes image allocations fail once more than limit bytes
// of texel storage are in use. Zero means unlimited.
func WithMemoryLimit(limit int64) Option {
	return func(d *Device) {
		d.memoryLimit = limit
	}
}

func WithLimits(limits libgpu.Limits) Option {
	return func(d *Device) {
		d.limits = limits
	}
}

// WithWorkers sets the number of goroutines a draw is split across.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithAccelerator runs draws of pipelines created from programs of
// another compiler on accel.
func WithAccelerator(accel Accelerator) Option {
	return func(d *Device) {
		d.accel = accel
	}
}

type Device struct {
	accel       Accelerator
	limits      libgpu.Limits
	workers     int
	memoryLimit int64
	memoryUsed  int64

	mu    sync.Mutex
	stats Stats
}

func New(options ...Option) *Device {
	d := &Device{
		limits: libgpu.Limits{
			MaxImage2D:   16384,
			MaxImageCube: 16384,
			MaxLayers:    2048,
			MaxTextures:  16,
			MaxUniforms:  256,
		},
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *Device) Name() string {
	if d.accel != nil {
		return d.accel.Name()
	}
	return "soft"
}

func (d *Device) Limits() libgpu.Limits {
	return d.limits
}

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats zeroes the call counters. Live object counts are kept.
func (d *Device) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{Images: d.stats.Images, Views: d.stats.Views, Pipelines: d.stats.Pipelines}
}

func (d *Device) count(f func(s *Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

func (d *Device) NewImage(desc *libgpu.ImageDesc) (libgpu.HwImage, error) {
	if desc.Format.Size() == 0 {
		return nil, fmt.Errorf("format %v: %w", desc.Format, libgpu.ErrUnsupported)
	}
	img := newImage(d, *desc)
	if d.memoryLimit > 0 && d.memoryUsed+img.bytes > d.memoryLimit {
		return nil, fmt.Errorf("%d bytes requested, %d of %d in use: %w",
			img.bytes, d.memoryUsed, d.memoryLimit, libgpu.ErrAllocation)
	}
	d.memoryUsed += img.bytes
	d.count(func(s *Stats) { s.Images++ })
	return img, nil
}

func (d *Device) NewView(hw libgpu.HwImage, desc *libgpu.ViewDesc) (libgpu.HwView, error) {
	img, ok := hw.(*image)
	if !ok || img.destroyed {
		return nil, fmt.Errorf("view of foreign or destroyed image: %w", libgpu.ErrInvalid)
	}
	if desc.BaseLevel+desc.Levels > img.desc.MipLevels || desc.BaseLayer+desc.Layers > img.desc.Layers {
		return nil, fmt.Errorf("view range exceeds image: %w", libgpu.ErrInvalid)
	}
	d.count(func(s *Stats) { s.Views++ })
	return &view{dev: d, img: img, desc: *desc}, nil
}

func (d *Device) NewSampler(desc *libgpu.SamplerDesc) (libgpu.HwSampler, error) {
	return &sampler{desc: *desc}, nil
}

func (d *Device) NewPipeline(desc *libgpu.PipelineDesc) (libgpu.Pipeline, error) {
	if desc.Target.Size() == 0 {
		return nil, fmt.Errorf("pipeline %q target %v: %w", desc.Label, desc.Target, libgpu.ErrUnsupported)
	}
	pipe := &pipeline{dev: d, label: desc.Label, target: desc.Target}
	if prog, ok := desc.Program.(*Program); ok {
		pipe.program = prog
	} else if d.accel != nil {
		accel, err := d.accel.NewPipeline(desc)
		if err != nil {
			return nil, err
		}
		pipe.accel = accel
	} else {
		return nil, fmt.Errorf("pipeline %q: program was not compiled for the soft device: %w", desc.Label, libgpu.ErrInvalid)
	}
	d.count(func(s *Stats) { s.Pipelines++ })
	return pipe, nil
}

func (d *Device) NewCmdBuffer() (libgpu.CmdBuffer, error) {
	return &cmdBuffer{dev: d}, nil
}

// Submit executes the recorded commands in order and stops at the first
// failing one.
func (d *Device) Submit(cb libgpu.CmdBuffer) error {
	buf, ok := cb.(*cmdBuffer)
	if !ok {
		return fmt.Errorf("command buffer of another device: %w", libgpu.ErrInvalid)
	}
	if buf.submitted {
		return fmt.Errorf("command buffer submitted twice: %w", libgpu.ErrInvalid)
	}
	buf.submitted = true
	d.count(func(s *Stats) { s.Submits++ })
	for i, cmd := range buf.cmds {
		if err := cmd(); err != nil {
			buf.rollback()
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

func (d *Device) Destroy() {
	if d.accel != nil {
		d.accel.Destroy()
		d.accel = nil
	}
}

type sampler struct {
	desc libgpu.SamplerDesc
}

func (*sampler) Destroy() {}

type pipeline struct {
	dev     *Device
	label   string
	program *Program
	accel   AcceleratedPipeline
	target  libgpu.Format
}

func (p *pipeline) Destroy() {
	if p.accel != nil {
		p.accel.Destroy()
		p.accel = nil
	}
	if p.dev != nil {
		p.dev.count(func(s *Stats) { s.Pipelines-- })
		p.dev = nil
	}
}
