package wgpuhal

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

const (
	workgroupSize = 8
	waitInterval  = 10 * time.Second
	paramsSize    = MaxUniforms * 4
	targetSize    = 16
)

type pipeline struct {
	core    *halCore
	label   string
	program *Program

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	compute    hal.ComputePipeline
}

func newPipeline(core *halCore, label string, prog *Program) (_ *pipeline, err error) {
	p := &pipeline{core: core, label: label, program: prog}
	defer func() {
		if err != nil {
			p.Destroy()
			err = fmt.Errorf("pipeline %q: %w: %w", label, libgpu.ErrAllocation, err)
		}
	}()
	device := core.device

	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  prog.name,
		Source: hal.ShaderSource{SPIRV: prog.spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	uniform := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	readOnly := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: uniform},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: uniform},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: readOnly},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: readOnly},
			{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	p.compute, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label,
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "cs_main"},
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	return p, nil
}

func (p *pipeline) Destroy() {
	if p.core == nil {
		return
	}
	device := p.core.device
	if p.compute != nil {
		device.DestroyComputePipeline(p.compute)
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
	}
	p.core = nil
}

func asBytes[T float32 | int32 | uint32](s []T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

// buffers tracks the buffers of one draw.
type buffers struct {
	device hal.Device
	list   []hal.Buffer
}

func (b *buffers) create(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w: %w", label, libgpu.ErrAllocation, err)
	}
	b.list = append(b.list, buf)
	return buf, nil
}

func (b *buffers) Destroy() {
	for _, buf := range b.list {
		b.device.DestroyBuffer(buf)
	}
}

func (p *pipeline) Draw(target *soft.Target, textures []*soft.Texture, uniforms []float32) error {
	prog := p.program
	if p.core == nil || prog.spirv == nil {
		return fmt.Errorf("pipeline %q destroyed: %w", p.label, libgpu.ErrInvalid)
	}
	if len(textures) != prog.textures {
		return fmt.Errorf("program %q takes %d textures, got %d: %w", prog.name, prog.textures, len(textures), libgpu.ErrInvalid)
	}
	if len(uniforms) < prog.uniforms {
		return fmt.Errorf("program %q takes %d uniforms, got %d: %w", prog.name, prog.uniforms, len(uniforms), libgpu.ErrInvalid)
	}

	// storage bindings must not be empty
	texels := make([]float32, 4)
	info := make([]int32, soft.TexInfoHeader)
	if len(textures) == 1 {
		texels, info = textures[0].Pack()
	}
	params := make([]float32, MaxUniforms)
	copy(params, uniforms)
	w, h := uint32(target.Width), uint32(target.Height)
	size := []uint32{w, h, 0, 0}
	outSize := uint64(w) * uint64(h) * 16

	p.core.mu.Lock()
	defer p.core.mu.Unlock()
	device, queue := p.core.device, p.core.queue

	bufs := &buffers{device: device}
	defer bufs.Destroy()
	paramBuf, err := bufs.create("params", paramsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	targetBuf, err := bufs.create("target", targetSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	texelBuf, err := bufs.create("texels", uint64(len(texels))*4, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	infoBuf, err := bufs.create("info", uint64(len(info))*4, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	outBuf, err := bufs.create("out", outSize, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	if err != nil {
		return err
	}
	stagingBuf, err := bufs.create("staging", outSize, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	queue.WriteBuffer(paramBuf, 0, asBytes(params))
	queue.WriteBuffer(targetBuf, 0, asBytes(size))
	queue.WriteBuffer(texelBuf, 0, asBytes(texels))
	queue.WriteBuffer(infoBuf, 0, asBytes(info))

	bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  p.label + "_bind",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: targetBuf.NativeHandle(), Offset: 0, Size: targetSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: texelBuf.NativeHandle(), Offset: 0, Size: uint64(len(texels)) * 4}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: infoBuf.NativeHandle(), Offset: 0, Size: uint64(len(info)) * 4}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: outBuf.NativeHandle(), Offset: 0, Size: outSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w: %w", libgpu.ErrAllocation, err)
	}
	defer device.DestroyBindGroup(bindGroup)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: p.label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w: %w", libgpu.ErrAllocation, err)
	}
	if err := encoder.BeginEncoding(p.label); err != nil {
		return fmt.Errorf("begin encoding: %w: %w", libgpu.ErrSubmit, err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	pass.SetPipeline(p.compute)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((w+workgroupSize-1)/workgroupSize, (h+workgroupSize-1)/workgroupSize, 1)
	pass.End()
	encoder.CopyBufferToBuffer(outBuf, stagingBuf, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: outSize}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w: %w", libgpu.ErrSubmit, err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w: %w", libgpu.ErrAllocation, err)
	}
	defer device.DestroyFence(fence)
	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w: %w", libgpu.ErrSubmit, err)
	}
	// large convolutions can run for minutes
	for start := time.Now(); ; {
		done, err := device.Wait(fence, 1, waitInterval)
		if err != nil {
			return fmt.Errorf("wait for gpu: %w: %w", libgpu.ErrSubmit, err)
		}
		if done {
			break
		}
		libgpu.Logger().Debug("waiting for gpu", "pipeline", p.label, "elapsed", time.Since(start))
	}

	readback := make([]byte, outSize)
	if err := queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return fmt.Errorf("readback: %w: %w", libgpu.ErrSubmit, err)
	}
	for i := range target.Texels {
		target.Texels[i] = math.Float32frombits(binary.LittleEndian.Uint32(readback[i*4:]))
	}
	return nil
}
