package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"

	"iblbake/libgpu"
)

type cmdBuffer struct {
	dev       *Device
	cmds      []func() error
	submitted bool
}

func (cb *cmdBuffer) Destroy() {
	cb.cmds = nil
}

func (cb *cmdBuffer) record(cmd func() error) {
	cb.cmds = append(cb.cmds, cmd)
}

func asImage(hw libgpu.HwImage) (*image, error) {
	img, ok := hw.(*image)
	if !ok || img == nil {
		return nil, fmt.Errorf("image of another device: %w", libgpu.ErrInvalid)
	}
	return img, img.usable()
}

func (cb *cmdBuffer) Transition(barriers []libgpu.Barrier) {
	barriers = append([]libgpu.Barrier(nil), barriers...)
	cb.record(func() error {
		for _, b := range barriers {
			img, err := asImage(b.Image)
			if err != nil {
				return err
			}
			baseLevel, levels, baseLayer, layers := b.Range(img.desc.MipLevels, img.desc.Layers)
			if baseLevel < 0 || levels < 1 || baseLevel+levels > img.desc.MipLevels ||
				baseLayer < 0 || layers < 1 || baseLayer+layers > img.desc.Layers {
				return fmt.Errorf("barrier range exceeds image %v: %w", img, libgpu.ErrInvalid)
			}
		}
		gl.TextureBarrier()
		return nil
	})
}

func (cb *cmdBuffer) CopyToImage(dst libgpu.HwImage, region libgpu.Region, data []byte) {
	data = append([]byte(nil), data...)
	cb.record(func() error {
		img, err := asImage(dst)
		if err != nil {
			return err
		}
		region = region.Full(&img.desc)
		if err := img.checkRegion(region); err != nil {
			return err
		}
		return img.upload(region, data)
	})
}

func (cb *cmdBuffer) CopyFromImage(src libgpu.HwImage, region libgpu.Region, dst []byte) {
	cb.record(func() error {
		img, err := asImage(src)
		if err != nil {
			return err
		}
		region = region.Full(&img.desc)
		if err := img.checkRegion(region); err != nil {
			return err
		}
		return img.download(region, dst)
	})
}

func (cb *cmdBuffer) Blit(blit *libgpu.Blit) {
	b := *blit
	dev := cb.dev
	cb.record(func() error {
		img, err := asImage(b.Image)
		if err != nil {
			return err
		}
		levels := img.desc.MipLevels
		if b.SrcLevel < 0 || b.SrcLevel >= levels || b.DstLevel < 0 || b.DstLevel >= levels || b.SrcLevel == b.DstLevel {
			return fmt.Errorf("blit level %d to %d of %d: %w", b.SrcLevel, b.DstLevel, levels, libgpu.ErrInvalid)
		}
		_, _, baseLayer, layers := libgpu.Barrier{BaseLayer: b.BaseLayer, Layers: b.Layers}.Range(levels, img.desc.Layers)
		if baseLayer < 0 || layers < 1 || baseLayer+layers > img.desc.Layers {
			return fmt.Errorf("blit layers %d+%d of %v: %w", baseLayer, layers, img, libgpu.ErrInvalid)
		}
		filter := uint32(gl.LINEAR)
		if b.Filter == libgpu.FilterNearest {
			filter = gl.NEAREST
		}

		sw, sh := img.desc.Extent(b.SrcLevel)
		dw, dh := img.desc.Extent(b.DstLevel)
		for layer := baseLayer; layer < baseLayer+layers; layer++ {
			if err := dev.attach(dev.readFbo, gl.READ_FRAMEBUFFER, img, b.SrcLevel, layer); err != nil {
				return fmt.Errorf("blit source: %w", err)
			}
			if err := dev.attach(dev.drawFbo, gl.DRAW_FRAMEBUFFER, img, b.DstLevel, layer); err != nil {
				return fmt.Errorf("blit destination: %w", err)
			}
			gl.BlitNamedFramebuffer(dev.readFbo, dev.drawFbo,
				0, 0, int32(sw), int32(sh), 0, 0, int32(dw), int32(dh), gl.COLOR_BUFFER_BIT, filter)
		}
		return nil
	})
}

func (cb *cmdBuffer) Draw(draw *libgpu.Draw) {
	d := *draw
	d.Textures = append([]libgpu.Binding(nil), draw.Textures...)
	d.Uniforms = append([]float32(nil), draw.Uniforms...)
	cb.record(func() error {
		return cb.dev.draw(&d)
	})
}

func (dev *Device) draw(d *libgpu.Draw) error {
	pipe, ok := d.Pipeline.(*pipeline)
	if !ok || pipe.glId == 0 {
		return fmt.Errorf("draw with foreign or destroyed pipeline: %w", libgpu.ErrInvalid)
	}
	prog := pipe.program
	target, err := asImage(d.Target)
	if err != nil {
		return err
	}
	if target.desc.Format != pipe.target {
		return fmt.Errorf("pipeline %q renders %v, target is %v: %w", pipe.label, pipe.target, target.desc.Format, libgpu.ErrInvalid)
	}
	if d.Level < 0 || d.Level >= target.desc.MipLevels || d.Layer < 0 || d.Layer >= target.desc.Layers {
		return fmt.Errorf("draw into level %d layer %d of %v: %w", d.Level, d.Layer, target, libgpu.ErrInvalid)
	}
	if len(d.Textures) != prog.textures {
		return fmt.Errorf("program %q takes %d textures, got %d: %w", prog.name, prog.textures, len(d.Textures), libgpu.ErrInvalid)
	}
	if len(d.Uniforms) < prog.uniforms {
		return fmt.Errorf("program %q takes %d uniforms, got %d: %w", prog.name, prog.uniforms, len(d.Uniforms), libgpu.ErrInvalid)
	}

	if err := dev.attach(dev.drawFbo, gl.DRAW_FRAMEBUFFER, target, d.Level, d.Layer); err != nil {
		return fmt.Errorf("draw target %v: %w", target, err)
	}
	for i, b := range d.Textures {
		v, ok := b.View.(*view)
		if !ok || v.glId == 0 {
			return fmt.Errorf("texture %d: foreign or destroyed view: %w", i, libgpu.ErrInvalid)
		}
		s, ok := b.Sampler.(*sampler)
		if !ok || s.glId == 0 {
			return fmt.Errorf("texture %d: foreign or destroyed sampler: %w", i, libgpu.ErrInvalid)
		}
		if v.img == target {
			return fmt.Errorf("texture %d samples the draw target: %w", i, libgpu.ErrInvalid)
		}
		dev.state.BindTextureUnit(i, v.glId)
		dev.state.BindSampler(i, s.glId)
	}
	if slots := (prog.uniforms + 3) / 4; slots > 0 {
		params := make([]float32, slots*4)
		copy(params, d.Uniforms)
		gl.ProgramUniform4fv(prog.glId, 0, int32(slots), &params[0])
	}

	w, h := target.desc.Extent(d.Level)
	dev.state.BindDrawFramebuffer(dev.drawFbo)
	dev.state.Viewport(0, 0, w, h)
	dev.state.BindProgramPipeline(pipe.glId)
	dev.state.BindVertexArray(dev.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	return nil
}
