// Package wgpuhal runs draws as WebGPU compute shaders on the wgpu hal
// Vulkan backend.
//
// Images are kept in host memory by a soft.Device. A draw uploads the bound
// view as a storage buffer, dispatches one invocation per target texel and
// reads the texels back through a staging buffer. rgba32float is not
// filterable in core WebGPU, so sampling is done by the prelude in WGSL.
package wgpuhal

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/exp/slices"

	// registers the Vulkan backend
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

//go:embed prelude.wgsl
var preludeSrc string

// MaxUniforms is the size of the u_params array of the prelude in floats.
const MaxUniforms = 16 * 4

type halCore struct {
	// serializes queue submissions and readbacks
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
}

func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	}
	return 2
}

func newHalCore() (core *halCore, err error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available: %w", libgpu.ErrUnsupported)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w: %w", libgpu.ErrUnsupported, err)
	}
	defer func() {
		if err != nil {
			instance.Destroy()
		}
	}()

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no gpu adapters found: %w", libgpu.ErrUnsupported)
	}
	slices.SortStableFunc(adapters, func(a, b hal.ExposedAdapter) int {
		return adapterRank(a.Info.DeviceType) - adapterRank(b.Info.DeviceType)
	})
	selected := &adapters[0]

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("open device: %w: %w", libgpu.ErrUnsupported, err)
	}
	return &halCore{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
	}, nil
}

func (core *halCore) Release() {
	core.device.Destroy()
	core.instance.Destroy()
}

// New opens the best adapter, preferring discrete over integrated GPUs, and
// returns a device that draws with it. Programs for the device come from
// NewCompiler.
func New(options ...soft.Option) (*soft.Device, error) {
	core, err := newHalCore()
	if err != nil {
		return nil, fmt.Errorf("open hal device: %w", err)
	}
	accel := &accelerator{halCore: core}
	dev := soft.New(append(options, soft.WithAccelerator(accel))...)
	libgpu.Logger().Info("hal device opened", "adapter", core.name)
	return dev, nil
}

type accelerator struct {
	*halCore
}

func (a *accelerator) Name() string {
	return "hal/" + strings.ToLower(strings.TrimSpace(a.name))
}

func (a *accelerator) Destroy() {
	if a.halCore != nil {
		a.halCore.Release()
		a.halCore = nil
	}
}

func (a *accelerator) NewPipeline(desc *libgpu.PipelineDesc) (soft.AcceleratedPipeline, error) {
	prog, ok := desc.Program.(*Program)
	if !ok || prog.spirv == nil {
		return nil, fmt.Errorf("pipeline %q: program was not compiled for hal: %w", desc.Label, libgpu.ErrInvalid)
	}
	return newPipeline(a.halCore, desc.Label, prog)
}
