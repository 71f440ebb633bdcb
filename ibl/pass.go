// Package ibl renders the image based lighting resources of an
// environment: the split sum BRDF lookup table, the conversion of an
// equirectangular panorama to a cube map, the diffuse irradiance map and
// the specular prefiltered environment map.
//
// Every pass compiles its program through the Compiler it was created
// with, renders all of its draws in a single submission and returns an
// image in LayoutShaderRead that belongs to the arena.
package ibl

import (
	"fmt"
	"time"

	"iblbake/libgpu"
	"iblbake/libutil"
)

// DestinationUsage is the usage of every image a pass creates.
const DestinationUsage = libgpu.UsageSampled | libgpu.UsageColorTarget | libgpu.UsageTransferSrc | libgpu.UsageTransferDst

type passDraw struct {
	level, layer int
	uniforms     []float32
}

type passSource struct {
	image   *libgpu.Image
	view    libgpu.ViewDesc
	sampler libgpu.SamplerDesc
}

type pass struct {
	arena    *libgpu.Arena
	compiler libgpu.Compiler
}

// run creates the destination image and renders draws into it with the
// program. src may be nil for programs without textures.
func (p *pass) run(prog *libgpu.ProgramDesc, dst libgpu.ImageDesc, src *passSource, draws []passDraw) (*libgpu.Image, error) {
	start := time.Now()
	dev := p.arena.Device()

	var cleanup libutil.Cleanup
	defer cleanup.Destroy()

	program, err := p.compiler.Compile(prog)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", prog.Name, err)
	}
	cleanup.Add(program)

	pipeline, err := dev.NewPipeline(&libgpu.PipelineDesc{Label: prog.Name, Program: program, Target: dst.Format})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline: %w", prog.Name, err)
	}
	cleanup.Add(pipeline)

	var textures []libgpu.Binding
	if src != nil {
		if src.image.Destroyed() {
			return nil, fmt.Errorf("%s source %v: %w", prog.Name, src.image.Handle(), libgpu.ErrNotFound)
		}
		sampler, err := libgpu.NewSampler(dev, src.sampler)
		if err != nil {
			return nil, err
		}
		cleanup.Add(sampler)

		view := p.arena.NewView(src.image.Handle(), src.view)
		cleanup.Add(view)
		hv, err := view.Handle()
		if err != nil {
			return nil, fmt.Errorf("%s source view: %w", prog.Name, err)
		}
		textures = []libgpu.Binding{{View: hv, Sampler: sampler.Hw()}}
	}

	dst.Usage |= DestinationUsage
	result, err := p.arena.Create(dst)
	if err != nil {
		return nil, err
	}

	var srcLayout libgpu.Layout
	if src != nil {
		srcLayout = src.image.Layout()
	}
	err = p.arena.Submit(func(cb libgpu.CmdBuffer) error {
		if src != nil && src.image.Layout() != libgpu.LayoutShaderRead {
			src.image.RecordTransition(cb, libgpu.LayoutShaderRead)
		}
		result.RecordTransition(cb, libgpu.LayoutColorTarget)
		for _, d := range draws {
			cb.Draw(&libgpu.Draw{
				Pipeline: pipeline,
				Target:   result.Hw(),
				Level:    d.level,
				Layer:    d.layer,
				Textures: textures,
				Uniforms: d.uniforms,
			})
		}
		result.RecordTransition(cb, libgpu.LayoutShaderRead)
		return nil
	})
	if err != nil {
		if src != nil {
			src.image.ResetLayout(srcLayout)
		}
		result.Destroy()
		return nil, fmt.Errorf("%s pass: %w", prog.Name, err)
	}
	result.MarkModified()

	libgpu.Logger().Debug("pass finished", "program", prog.Name, "device", dev.Name(),
		"draws", len(draws), "image", result.Handle(), "elapsed", time.Since(start))
	return result, nil
}

// cubeDraws returns one draw per face of the given mip levels.
func cubeDraws(levels int, params func(level int) []float32) []passDraw {
	draws := make([]passDraw, 0, levels*6)
	for level := 0; level < levels; level++ {
		var p []float32
		if params != nil {
			p = params(level)
		}
		for face := 0; face < 6; face++ {
			draws = append(draws, passDraw{level: level, layer: face, uniforms: faceUniforms(face, p...)})
		}
	}
	return draws
}

func requireKind(what string, img *libgpu.Image, kind libgpu.ImageKind) error {
	if img == nil {
		return fmt.Errorf("%s source is nil: %w", what, libgpu.ErrInvalid)
	}
	if k := img.Desc().Kind; k != kind {
		return fmt.Errorf("%s source %v is a %v image, want %v: %w", what, img.Handle(), k, kind, libgpu.ErrInvalid)
	}
	return nil
}

func requireSize(what string, size int) error {
	if size <= 0 {
		return fmt.Errorf("%s size %d: %w", what, size, libgpu.ErrInvalid)
	}
	return nil
}
