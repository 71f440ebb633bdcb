package soft

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"iblbake/libgpu"
)

type cmdBuffer struct {
	dev       *Device
	cmds      []func() error
	submitted bool
	// layouts before the first transition of each image in this buffer
	saved map[*image][][]libgpu.Layout
}

func (cb *cmdBuffer) Destroy() {
	cb.cmds = nil
	cb.saved = nil
}

func (cb *cmdBuffer) save(img *image) {
	if _, ok := cb.saved[img]; ok {
		return
	}
	if cb.saved == nil {
		cb.saved = map[*image][][]libgpu.Layout{}
	}
	layouts := make([][]libgpu.Layout, len(img.layouts))
	for l := range img.layouts {
		layouts[l] = append([]libgpu.Layout(nil), img.layouts[l]...)
	}
	cb.saved[img] = layouts
}

// rollback puts every image transitioned by a failed submission back into
// its previous layouts.
func (cb *cmdBuffer) rollback() {
	for img, layouts := range cb.saved {
		if img.usable() == nil {
			img.layouts = layouts
		}
	}
	cb.saved = nil
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
			cb.save(img)
			if err := img.transition(b); err != nil {
				return err
			}
		}
		cb.dev.count(func(s *Stats) { s.Transitions += len(barriers) })
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
		if err := img.needUsage(libgpu.UsageTransferDst, "upload"); err != nil {
			return err
		}
		if err := img.checkRegion(region); err != nil {
			return err
		}
		err = img.expect(region.Level, 1, region.Layer, region.Layers, "upload",
			libgpu.LayoutTransferDst, libgpu.LayoutGeneral)
		if err != nil {
			return err
		}
		cb.dev.count(func(s *Stats) { s.Uploads++ })
		return img.write(region, data)
	})
}

func (cb *cmdBuffer) CopyFromImage(src libgpu.HwImage, region libgpu.Region, dst []byte) {
	cb.record(func() error {
		img, err := asImage(src)
		if err != nil {
			return err
		}
		if err := img.needUsage(libgpu.UsageTransferSrc, "download"); err != nil {
			return err
		}
		if err := img.checkRegion(region); err != nil {
			return err
		}
		err = img.expect(region.Level, 1, region.Layer, region.Layers, "download",
			libgpu.LayoutTransferSrc, libgpu.LayoutGeneral)
		if err != nil {
			return err
		}
		cb.dev.count(func(s *Stats) { s.Downloads++ })
		return img.read(region, dst)
	})
}

func (cb *cmdBuffer) Blit(blit *libgpu.Blit) {
	b := *blit
	cb.record(func() error {
		img, err := asImage(b.Image)
		if err != nil {
			return err
		}
		if err := img.needUsage(libgpu.UsageTransferSrc|libgpu.UsageTransferDst, "blit"); err != nil {
			return err
		}
		levels := img.desc.MipLevels
		if b.SrcLevel < 0 || b.SrcLevel >= levels || b.DstLevel < 0 || b.DstLevel >= levels || b.SrcLevel == b.DstLevel {
			return fmt.Errorf("blit level %d to %d of %d: %w", b.SrcLevel, b.DstLevel, levels, libgpu.ErrInvalid)
		}
		_, _, baseLayer, layers := libgpu.Barrier{BaseLayer: b.BaseLayer, Layers: b.Layers}.Range(levels, img.desc.Layers)
		if err := img.expect(b.SrcLevel, 1, baseLayer, layers, "blit source",
			libgpu.LayoutTransferSrc, libgpu.LayoutGeneral); err != nil {
			return err
		}
		if err := img.expect(b.DstLevel, 1, baseLayer, layers, "blit destination",
			libgpu.LayoutTransferDst, libgpu.LayoutGeneral); err != nil {
			return err
		}

		src := &texture{
			img:     img,
			view:    libgpu.ViewDesc{BaseLevel: b.SrcLevel, Levels: 1, Layers: img.desc.Layers},
			sampler: libgpu.DefaultSamplerDesc(),
		}
		w, h := img.desc.Extent(b.DstLevel)
		for layer := baseLayer; layer < baseLayer+layers; layer++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					u := (float32(x) + 0.5) / float32(w)
					v := (float32(y) + 0.5) / float32(h)
					img.store(b.DstLevel, layer, x, y, src.sampleLevel(0, layer, u, v, b.Filter))
				}
			}
		}
		cb.dev.count(func(s *Stats) { s.Blits++ })
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
	if !ok || pipe.dev == nil {
		return fmt.Errorf("draw with foreign or destroyed pipeline: %w", libgpu.ErrInvalid)
	}
	target, err := asImage(d.Target)
	if err != nil {
		return err
	}
	if err := target.needUsage(libgpu.UsageColorTarget, "draw"); err != nil {
		return err
	}
	if target.desc.Format != pipe.target {
		return fmt.Errorf("pipeline %q renders %v, target is %v: %w", pipe.label, pipe.target, target.desc.Format, libgpu.ErrInvalid)
	}
	if d.Level < 0 || d.Level >= target.desc.MipLevels || d.Layer < 0 || d.Layer >= target.desc.Layers {
		return fmt.Errorf("draw into level %d layer %d of %v: %w", d.Level, d.Layer, target, libgpu.ErrInvalid)
	}
	if err := target.expect(d.Level, 1, d.Layer, 1, "draw target",
		libgpu.LayoutColorTarget, libgpu.LayoutGeneral); err != nil {
		return err
	}
	if prog := pipe.program; prog != nil {
		if len(d.Textures) != prog.textures {
			return fmt.Errorf("program %q takes %d textures, got %d: %w", prog.name, prog.textures, len(d.Textures), libgpu.ErrInvalid)
		}
		if len(d.Uniforms) < prog.uniforms {
			return fmt.Errorf("program %q takes %d uniforms, got %d: %w", prog.name, prog.uniforms, len(d.Uniforms), libgpu.ErrInvalid)
		}
	}

	textures := make([]*texture, len(d.Textures))
	for i, b := range d.Textures {
		v, ok := b.View.(*view)
		if !ok || v.destroyed {
			return fmt.Errorf("texture %d: foreign or destroyed view: %w", i, libgpu.ErrInvalid)
		}
		s, ok := b.Sampler.(*sampler)
		if !ok {
			return fmt.Errorf("texture %d: foreign sampler: %w", i, libgpu.ErrInvalid)
		}
		if err := v.img.usable(); err != nil {
			return err
		}
		if err := v.img.needUsage(libgpu.UsageSampled, "sample"); err != nil {
			return err
		}
		if err := v.img.expect(v.desc.BaseLevel, v.desc.Levels, v.desc.BaseLayer, v.desc.Layers,
			fmt.Sprintf("texture %d", i), libgpu.LayoutShaderRead, libgpu.LayoutGeneral); err != nil {
			return err
		}
		textures[i] = &texture{img: v.img, view: v.desc, sampler: s.desc}
	}

	if pipe.accel != nil {
		if err := dev.drawAccelerated(pipe, target, d, textures); err != nil {
			return fmt.Errorf("pipeline %q: %w", pipe.label, err)
		}
		dev.count(func(s *Stats) { s.Draws++ })
		return nil
	}

	prog := pipe.program
	w, h := target.desc.Extent(d.Level)
	var g errgroup.Group
	g.SetLimit(dev.workers)
	sampled := make([]libgpu.SampledTexture, len(textures))
	for i, t := range textures {
		sampled[i] = t
	}
	for y := 0; y < h; y++ {
		g.Go(func() error {
			frag := libgpu.Fragment{
				Y:        y,
				V:        (float32(y) + 0.5) / float32(h),
				Width:    w,
				Height:   h,
				Layer:    d.Layer,
				Level:    d.Level,
				Uniforms: d.Uniforms,
				Textures: sampled,
			}
			for x := 0; x < w; x++ {
				frag.X = x
				frag.U = (float32(x) + 0.5) / float32(w)
				target.store(d.Level, d.Layer, x, y, prog.kernel(&frag))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	dev.count(func(s *Stats) { s.Draws++ })
	return nil
}
