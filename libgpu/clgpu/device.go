// Package clgpu runs draws as OpenCL kernels.
//
// Images are kept in host memory by a soft.Device; every draw uploads the
// bound view and the uniforms, runs the program's kernel over the target
// texels and reads the result back. Copies, blits and transitions stay on
// the CPU.
package clgpu

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Qendolin/go-opencl/cl"
	"golang.org/x/exp/slices"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

//go:embed prelude.cl
var preludeSrc string

type DeviceType = cl.DeviceType

const (
	DeviceTypeCPU         = DeviceType(cl.DeviceTypeCPU)
	DeviceTypeGPU         = DeviceType(cl.DeviceTypeGPU)
	DeviceTypeAccelerator = DeviceType(cl.DeviceTypeAccelerator)
)

type clCore struct {
	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue
}

// pickDevice orders the devices of all platforms by the preferred type and
// then by compute units times clock.
func pickDevice(preferred DeviceType) (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, err
	}

	var devices []*cl.Device
	for _, p := range platforms {
		devs, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil {
			continue
		}
		devices = append(devices, devs...)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no opencl devices found: %w", libgpu.ErrUnsupported)
	}

	slices.SortFunc(devices, func(a, b *cl.Device) int {
		if a.Type() == preferred && b.Type() != preferred {
			return -1
		}
		if a.Type() != preferred && b.Type() == preferred {
			return 1
		}

		aPower := a.MaxComputeUnits() * a.MaxClockFrequency()
		bPower := b.MaxComputeUnits() * b.MaxClockFrequency()

		return bPower - aPower
	})

	return devices[0], nil
}

func newClCore(preferred DeviceType) (core *clCore, err error) {
	device, err := pickDevice(preferred)
	if err != nil {
		return nil, err
	}

	ctx, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, err
	}

	queue, err := ctx.CreateCommandQueue(device, 0)
	if err != nil {
		ctx.Release()
		return nil, err
	}

	return &clCore{
		device:  device,
		context: ctx,
		queue:   queue,
	}, nil
}

func (core *clCore) Release() {
	core.queue.Release()
	core.context.Release()
}

// New opens the best OpenCL device of the preferred type and returns a
// device that draws with it together with the matching compiler.
func New(preferred DeviceType, options ...soft.Option) (*soft.Device, *Compiler, error) {
	core, err := newClCore(preferred)
	if err != nil {
		return nil, nil, fmt.Errorf("open opencl device: %w", err)
	}
	accel := &accelerator{clCore: core}
	dev := soft.New(append(options, soft.WithAccelerator(accel))...)
	libgpu.Logger().Info("opencl device opened", "device", core.device.Name())
	return dev, &Compiler{core: core}, nil
}

type accelerator struct {
	*clCore
}

func (a *accelerator) Name() string {
	return "cl/" + strings.ToLower(strings.TrimSpace(a.device.Name()))
}

func (a *accelerator) Destroy() {
	if a.clCore != nil {
		a.clCore.Release()
		a.clCore = nil
	}
}

func (a *accelerator) NewPipeline(desc *libgpu.PipelineDesc) (soft.AcceleratedPipeline, error) {
	prog, ok := desc.Program.(*Program)
	if !ok || prog.kernel == nil {
		return nil, fmt.Errorf("pipeline %q: program was not compiled for opencl: %w", desc.Label, libgpu.ErrInvalid)
	}
	if prog.core != a.clCore {
		return nil, fmt.Errorf("pipeline %q: program of another opencl context: %w", desc.Label, libgpu.ErrInvalid)
	}
	return &pipeline{core: a.clCore, program: prog}, nil
}
