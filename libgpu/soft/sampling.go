package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"iblbake/libgpu"
)

// texture is a view bound together with a sampler, as seen by a kernel.
type texture struct {
	img     *image
	view    libgpu.ViewDesc
	sampler libgpu.SamplerDesc
}

func (t *texture) Levels() int {
	return t.view.Levels
}

func (t *texture) Size(level int) (w, h int) {
	return t.img.desc.Extent(t.view.BaseLevel + level)
}

func (t *texture) Sample(u, v float32, layer int, lod float32) [4]float32 {
	if layer < 0 {
		layer = 0
	} else if layer >= t.view.Layers {
		layer = t.view.Layers - 1
	}
	return t.sampleLod(t.view.BaseLayer+layer, u, v, lod)
}

func (t *texture) SampleCube(dir mgl32.Vec3, lod float32) [4]float32 {
	face, u, v := sampleCubeMap(dir[0], dir[1], dir[2])
	return t.sampleLod(t.view.BaseLayer+face, u, v, lod)
}

// sampleLod selects and blends mip levels according to the sampler.
func (t *texture) sampleLod(layer int, u, v, lod float32) [4]float32 {
	s := &t.sampler
	filter := s.Mag
	if lod > 0 {
		filter = s.Min
	}
	lod = math32.Max(s.MinLod, math32.Min(s.MaxLod, lod))
	lod = math32.Max(0, math32.Min(float32(t.view.Levels-1), lod))

	switch s.Mipmap {
	case libgpu.MipmapNone:
		return t.sampleLevel(0, layer, u, v, filter)
	case libgpu.MipmapNearest:
		return t.sampleLevel(int(lod+0.5), layer, u, v, filter)
	}
	lo, frac := math32.Modf(lod)
	a := t.sampleLevel(int(lo), layer, u, v, filter)
	if frac == 0 {
		return a
	}
	b := t.sampleLevel(int(lo)+1, layer, u, v, filter)
	return mix(a, b, frac)
}

func (t *texture) sampleLevel(level, layer int, u, v float32, filter libgpu.Filter) [4]float32 {
	level += t.view.BaseLevel
	w, h := t.img.desc.Extent(level)
	pix := t.img.texels(level, layer)

	if filter == libgpu.FilterNearest {
		x := int(math32.Floor(u * float32(w)))
		y := int(math32.Floor(v * float32(h)))
		return t.fetch(pix, w, h, x, y)
	}

	// -0.5 to adjust for the pixel center offset
	fu := u*float32(w) - 0.5
	fv := v*float32(h) - 0.5
	x0f, y0f := math32.Floor(fu), math32.Floor(fv)
	ufrac, vfrac := fu-x0f, fv-y0f
	x0, y0 := int(x0f), int(y0f)

	p00 := t.fetch(pix, w, h, x0, y0)
	p10 := t.fetch(pix, w, h, x0+1, y0)
	p01 := t.fetch(pix, w, h, x0, y0+1)
	p11 := t.fetch(pix, w, h, x0+1, y0+1)
	return mix(mix(p00, p10, ufrac), mix(p01, p11, ufrac), vfrac)
}

func (t *texture) fetch(pix []float32, w, h, x, y int) [4]float32 {
	x, okx := address(t.sampler.AddressU, x, w)
	y, oky := address(t.sampler.AddressV, y, h)
	if !okx || !oky {
		return t.sampler.Border.RGBA()
	}
	var px [4]float32
	copy(px[:], pix[(y*w+x)*4:])
	return px
}

// address maps a texel coordinate into [0, n). It reports false when the
// border color has to be used instead.
func address(mode libgpu.AddressMode, i, n int) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch mode {
	case libgpu.AddressRepeat:
		i %= n
		if i < 0 {
			i += n
		}
	case libgpu.AddressMirror:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
	case libgpu.AddressClampToBorder:
		return 0, false
	default:
		if i < 0 {
			i = 0
		} else {
			i = n - 1
		}
	}
	return i, true
}

func mix(a, b [4]float32, t float32) [4]float32 {
	for c := range a {
		a[c] = a[c]*(1-t) + b[c]*t
	}
	return a
}

// Cube map face reference: https://www.khronos.org/opengl/wiki_opengl/images/CubeMapAxes.png
func sampleCubeMap(rx, ry, rz float32) (face int, u, v float32) {
	ax := math32.Abs(rx)
	ay := math32.Abs(ry)
	az := math32.Abs(rz)

	// this normalizes the uvs
	var uvfac float32

	if ax >= ay && ax >= az {
		if rx >= 0 {
			face = 0
			u = -rz
		} else {
			face = 1
			u = rz
		}
		uvfac = 0.5 / ax
		v = -ry
	} else if ay >= ax && ay >= az {
		if ry >= 0 {
			face = 2
			v = rz
		} else {
			face = 3
			v = -rz
		}
		uvfac = 0.5 / ay
		u = rx
	} else {
		if rz >= 0 {
			face = 4
			u = rx
		} else {
			face = 5
			u = -rx
		}
		uvfac = 0.5 / az
		v = -ry
	}

	u = u*uvfac + 0.5
	v = v*uvfac + 0.5

	return
}
