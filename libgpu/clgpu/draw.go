package clgpu

import (
	"fmt"
	"unsafe"

	"github.com/Qendolin/go-opencl/cl"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

type pipeline struct {
	core    *clCore
	program *Program
}

func (p *pipeline) Destroy() {}

func (p *pipeline) Draw(target *soft.Target, textures []*soft.Texture, uniforms []float32) error {
	prog := p.program
	if prog.kernel == nil {
		return fmt.Errorf("program %q destroyed: %w", prog.name, libgpu.ErrInvalid)
	}
	if len(textures) != prog.textures {
		return fmt.Errorf("program %q takes %d textures, got %d: %w", prog.name, prog.textures, len(textures), libgpu.ErrInvalid)
	}
	if len(uniforms) < prog.uniforms {
		return fmt.Errorf("program %q takes %d uniforms, got %d: %w", prog.name, prog.uniforms, len(uniforms), libgpu.ErrInvalid)
	}

	// kernels without a texture or uniforms still get valid buffers
	texels := make([]float32, 4)
	info := make([]int32, soft.TexInfoHeader)
	if len(textures) == 1 {
		texels, info = textures[0].Pack()
	}
	params := make([]float32, (len(uniforms)+3)/4*4+4)
	copy(params, uniforms)

	var release []*cl.MemObject
	defer func() {
		for _, mem := range release {
			mem.Release()
		}
	}()
	buffer := func(size int, ptr unsafe.Pointer) (*cl.MemObject, error) {
		mem, err := p.core.context.CreateBuffer(cl.MemReadOnly|cl.MemCopyHostPtr, size, ptr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", libgpu.ErrAllocation, err)
		}
		release = append(release, mem)
		return mem, nil
	}

	texelBuf, err := buffer(len(texels)*4, unsafe.Pointer(&texels[0]))
	if err != nil {
		return err
	}
	infoBuf, err := buffer(len(info)*4, unsafe.Pointer(&info[0]))
	if err != nil {
		return err
	}
	paramBuf, err := buffer(len(params)*4, unsafe.Pointer(&params[0]))
	if err != nil {
		return err
	}

	w, h := target.Width, target.Height
	dstImage, err := p.core.context.CreateImage(cl.MemWriteOnly, cl.ImageFormat{
		ChannelOrder:    cl.ChannelOrderRGBA,
		ChannelDataType: cl.ChannelDataTypeFloat,
	}, cl.ImageDescription{
		Type:   cl.MemObjectTypeImage2D,
		Width:  w,
		Height: h,
	}, w*h*4*4, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", libgpu.ErrAllocation, err)
	}
	release = append(release, dstImage)

	kernel := prog.kernel
	if err := kernel.SetArgBuffer(0, dstImage); err != nil {
		return err
	}
	if err := kernel.SetArgInt32(1, int32(w)); err != nil {
		return err
	}
	if err := kernel.SetArgInt32(2, int32(h)); err != nil {
		return err
	}
	if err := kernel.SetArgBuffer(3, texelBuf); err != nil {
		return err
	}
	if err := kernel.SetArgBuffer(4, infoBuf); err != nil {
		return err
	}
	if err := kernel.SetArgBuffer(5, paramBuf); err != nil {
		return err
	}

	localWorkSize := []int{16, 16, 1}
	globalWorkSize := []int{roundUpKernelSize(localWorkSize[0], w), roundUpKernelSize(localWorkSize[1], h), 1}

	_, err = p.core.queue.EnqueueNDRangeKernel(kernel, []int{0, 0, 0}, globalWorkSize, localWorkSize, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", libgpu.ErrSubmit, err)
	}

	_, err = p.core.queue.EnqueueReadImage(dstImage, true, [3]int{}, [3]int{w, h, 1}, 0, 0, unsafe.Pointer(&target.Texels[0]), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", libgpu.ErrSubmit, err)
	}
	return nil
}

func roundUpKernelSize(groupSize, globalSize int) int {
	r := globalSize % groupSize
	if r == 0 {
		return globalSize
	}
	return globalSize + groupSize - r
}
