package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.5-core/gl"

	"iblbake/libgpu"
)

type glFormat struct {
	internal, format, dataType uint32
}

var glFormats = map[libgpu.Format]glFormat{
	libgpu.FormatRGBA8:    {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	libgpu.FormatRGBA16F:  {gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT},
	libgpu.FormatRGBA32F:  {gl.RGBA32F, gl.RGBA, gl.FLOAT},
	libgpu.FormatRG16F:    {gl.RG16F, gl.RG, gl.HALF_FLOAT},
	libgpu.FormatRG32F:    {gl.RG32F, gl.RG, gl.FLOAT},
	libgpu.FormatR32F:     {gl.R32F, gl.RED, gl.FLOAT},
	libgpu.FormatDepth32F: {gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT},
}

func lookupFormat(f libgpu.Format) (glFormat, error) {
	format, ok := glFormats[f]
	if !ok {
		return glFormat{}, fmt.Errorf("format %v: %w", f, libgpu.ErrUnsupported)
	}
	return format, nil
}

type image struct {
	glId   uint32
	dev    *Device
	target uint32
	desc   libgpu.ImageDesc
	format glFormat
}

func imageTarget(desc *libgpu.ImageDesc) (uint32, error) {
	if desc.Samples > 1 {
		return 0, fmt.Errorf("multisampled images: %w", libgpu.ErrUnsupported)
	}
	switch desc.Kind {
	case libgpu.ImageCube:
		if desc.Layers != 6 {
			return 0, fmt.Errorf("cube arrays: %w", libgpu.ErrUnsupported)
		}
		return gl.TEXTURE_CUBE_MAP, nil
	case libgpu.Image1D:
		if desc.Layers > 1 {
			return gl.TEXTURE_1D_ARRAY, nil
		}
		return gl.TEXTURE_1D, nil
	}
	if desc.Layers > 1 {
		return gl.TEXTURE_2D_ARRAY, nil
	}
	return gl.TEXTURE_2D, nil
}

func newImage(dev *Device, desc libgpu.ImageDesc) (*image, error) {
	target, err := imageTarget(&desc)
	if err != nil {
		return nil, err
	}
	format, err := lookupFormat(desc.Format)
	if err != nil {
		return nil, err
	}

	img := &image{dev: dev, target: target, desc: desc, format: format}
	gl.CreateTextures(target, 1, &img.glId)
	levels, w, h := int32(desc.MipLevels), int32(desc.Width), int32(desc.Height)
	switch target {
	case gl.TEXTURE_1D:
		gl.TextureStorage1D(img.glId, levels, format.internal, w)
	case gl.TEXTURE_1D_ARRAY:
		gl.TextureStorage2D(img.glId, levels, format.internal, w, int32(desc.Layers))
	case gl.TEXTURE_2D, gl.TEXTURE_CUBE_MAP:
		gl.TextureStorage2D(img.glId, levels, format.internal, w, h)
	case gl.TEXTURE_2D_ARRAY:
		gl.TextureStorage3D(img.glId, levels, format.internal, w, h, int32(desc.Layers))
	}
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &img.glId)
		return nil, fmt.Errorf("texture storage for %q: gl error 0x%x: %w", desc.Label, code, libgpu.ErrAllocation)
	}
	setObjectLabel(gl.TEXTURE, img.glId, desc.Label)
	return img, nil
}

func (img *image) Destroy() {
	if img.glId == 0 {
		return
	}
	img.dev.state.Forget(img.glId, 0)
	gl.DeleteTextures(1, &img.glId)
	img.glId = 0
}

func (img *image) String() string {
	return fmt.Sprintf("%q", img.desc.Label)
}

func (img *image) usable() error {
	if img.glId == 0 {
		return fmt.Errorf("image %v used after destroy: %w", img, libgpu.ErrInvalid)
	}
	return nil
}

func (img *image) layered() bool {
	return img.target != gl.TEXTURE_1D && img.target != gl.TEXTURE_2D
}

func (img *image) checkRegion(r libgpu.Region) error {
	if r.Level < 0 || r.Level >= img.desc.MipLevels || r.Layer < 0 || r.Layers < 1 || r.Layer+r.Layers > img.desc.Layers {
		return fmt.Errorf("region outside of image %v: %w", img, libgpu.ErrInvalid)
	}
	w, h := img.desc.Extent(r.Level)
	if r.X < 0 || r.Y < 0 || r.Width < 1 || r.Height < 1 || r.X+r.Width > w || r.Y+r.Height > h {
		return fmt.Errorf("region %dx%d+%d+%d outside of level %d of image %v: %w",
			r.Width, r.Height, r.X, r.Y, r.Level, img, libgpu.ErrInvalid)
	}
	return nil
}

// box converts a region into the offset and size arguments of the
// TextureSubImage family, where layers are the last used dimension.
func (img *image) box(r libgpu.Region) (x, y, z, w, h, d int32) {
	switch img.target {
	case gl.TEXTURE_1D:
		return int32(r.X), 0, 0, int32(r.Width), 1, 1
	case gl.TEXTURE_1D_ARRAY:
		return int32(r.X), int32(r.Layer), 0, int32(r.Width), int32(r.Layers), 1
	case gl.TEXTURE_2D:
		return int32(r.X), int32(r.Y), 0, int32(r.Width), int32(r.Height), 1
	}
	return int32(r.X), int32(r.Y), int32(r.Layer), int32(r.Width), int32(r.Height), int32(r.Layers)
}

func (img *image) upload(r libgpu.Region, data []byte) error {
	if want := r.Width * r.Height * r.Layers * img.desc.Format.Size(); len(data) != want {
		return fmt.Errorf("upload of %d bytes, region has %d: %w", len(data), want, libgpu.ErrInvalid)
	}
	x, y, z, w, h, d := img.box(r)
	level := int32(r.Level)
	f := img.format
	switch img.target {
	case gl.TEXTURE_1D:
		gl.TextureSubImage1D(img.glId, level, x, w, f.format, f.dataType, gl.Ptr(data))
	case gl.TEXTURE_1D_ARRAY, gl.TEXTURE_2D:
		gl.TextureSubImage2D(img.glId, level, x, y, w, h, f.format, f.dataType, gl.Ptr(data))
	default:
		gl.TextureSubImage3D(img.glId, level, x, y, z, w, h, d, f.format, f.dataType, gl.Ptr(data))
	}
	return nil
}

func (img *image) download(r libgpu.Region, data []byte) error {
	if want := r.Width * r.Height * r.Layers * img.desc.Format.Size(); len(data) != want {
		return fmt.Errorf("readback buffer of %d bytes, region has %d: %w", len(data), want, libgpu.ErrInvalid)
	}
	f := img.format
	lw, lh := img.desc.Extent(r.Level)
	fullFaces := r.X == 0 && r.Y == 0 && r.Width == lw && r.Height == lh
	if img.target == gl.TEXTURE_CUBE_MAP && img.dev.env.UseIntelCubemapDsaFix && fullFaces {
		faceLen := img.desc.LevelBytes(r.Level)
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, img.glId)
		for i := 0; i < r.Layers; i++ {
			face := uint32(gl.TEXTURE_CUBE_MAP_POSITIVE_X + r.Layer + i)
			gl.GetTexImage(face, int32(r.Level), f.format, f.dataType, gl.Ptr(data[i*faceLen:]))
		}
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
		img.dev.state.TextureUnits[0] = 0
		return nil
	}
	x, y, z, w, h, d := img.box(r)
	gl.GetTextureSubImage(img.glId, int32(r.Level), x, y, z, w, h, d, f.format, f.dataType, int32(len(data)), gl.Ptr(data))
	return nil
}

type view struct {
	glId uint32
	dev  *Device
	img  *image
	desc libgpu.ViewDesc
}

func viewTarget(img *image, kind libgpu.ViewKind) (uint32, error) {
	switch kind {
	case libgpu.ViewDefault:
		return img.target, nil
	case libgpu.View1D:
		return gl.TEXTURE_1D, nil
	case libgpu.View2D:
		return gl.TEXTURE_2D, nil
	case libgpu.View2DArray:
		return gl.TEXTURE_2D_ARRAY, nil
	case libgpu.ViewCube:
		return gl.TEXTURE_CUBE_MAP, nil
	}
	return 0, fmt.Errorf("view kind %d: %w", kind, libgpu.ErrInvalid)
}

func newView(dev *Device, img *image, desc libgpu.ViewDesc) (*view, error) {
	if err := img.usable(); err != nil {
		return nil, err
	}
	if desc.BaseLevel+desc.Levels > img.desc.MipLevels || desc.BaseLayer+desc.Layers > img.desc.Layers {
		return nil, fmt.Errorf("view range exceeds image: %w", libgpu.ErrInvalid)
	}
	target, err := viewTarget(img, desc.Kind)
	if err != nil {
		return nil, err
	}
	format := img.format
	if desc.Format != libgpu.FormatUndefined && desc.Format != img.desc.Format {
		if format, err = lookupFormat(desc.Format); err != nil {
			return nil, err
		}
	}

	v := &view{dev: dev, img: img, desc: desc}
	gl.GenTextures(1, &v.glId)
	gl.TextureView(v.glId, target, img.glId, format.internal,
		uint32(desc.BaseLevel), uint32(desc.Levels), uint32(desc.BaseLayer), uint32(desc.Layers))
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &v.glId)
		return nil, fmt.Errorf("texture view of %v: gl error 0x%x: %w", img, code, libgpu.ErrInvalid)
	}
	setObjectLabel(gl.TEXTURE, v.glId, img.desc.Label+" view")
	return v, nil
}

func (v *view) Destroy() {
	if v.glId == 0 {
		return
	}
	v.dev.state.Forget(v.glId, 0)
	gl.DeleteTextures(1, &v.glId)
	v.glId = 0
}

type sampler struct {
	glId uint32
	dev  *Device
}

var glWrapModes = map[libgpu.AddressMode]int32{
	libgpu.AddressClampToEdge:   gl.CLAMP_TO_EDGE,
	libgpu.AddressRepeat:        gl.REPEAT,
	libgpu.AddressMirror:        gl.MIRRORED_REPEAT,
	libgpu.AddressClampToBorder: gl.CLAMP_TO_BORDER,
}

func minFilter(min libgpu.Filter, mipmap libgpu.MipmapMode) int32 {
	linear := min == libgpu.FilterLinear
	switch mipmap {
	case libgpu.MipmapNone:
		if linear {
			return gl.LINEAR
		}
		return gl.NEAREST
	case libgpu.MipmapNearest:
		if linear {
			return gl.LINEAR_MIPMAP_NEAREST
		}
		return gl.NEAREST_MIPMAP_NEAREST
	}
	if linear {
		return gl.LINEAR_MIPMAP_LINEAR
	}
	return gl.NEAREST_MIPMAP_LINEAR
}

func newSampler(dev *Device, desc *libgpu.SamplerDesc) *sampler {
	s := &sampler{dev: dev}
	gl.CreateSamplers(1, &s.glId)

	mag := int32(gl.LINEAR)
	if desc.Mag == libgpu.FilterNearest {
		mag = gl.NEAREST
	}
	gl.SamplerParameteri(s.glId, gl.TEXTURE_MIN_FILTER, minFilter(desc.Min, desc.Mipmap))
	gl.SamplerParameteri(s.glId, gl.TEXTURE_MAG_FILTER, mag)
	gl.SamplerParameteri(s.glId, gl.TEXTURE_WRAP_S, glWrapModes[desc.AddressU])
	gl.SamplerParameteri(s.glId, gl.TEXTURE_WRAP_T, glWrapModes[desc.AddressV])
	gl.SamplerParameteri(s.glId, gl.TEXTURE_WRAP_R, glWrapModes[desc.AddressW])
	gl.SamplerParameterf(s.glId, gl.TEXTURE_MIN_LOD, desc.MinLod)
	gl.SamplerParameterf(s.glId, gl.TEXTURE_MAX_LOD, desc.MaxLod)
	color := desc.Border.RGBA()
	gl.SamplerParameterfv(s.glId, gl.TEXTURE_BORDER_COLOR, &color[0])
	if desc.Anisotropy > 1 {
		quality := desc.Anisotropy
		if limit := dev.env.MaxTextureMaxAnisotropy; limit > 0 && quality > limit {
			quality = limit
		}
		gl.SamplerParameterf(s.glId, gl.TEXTURE_MAX_ANISOTROPY, quality)
	}
	setObjectLabel(gl.SAMPLER, s.glId, desc.Label)
	return s
}

func (s *sampler) Destroy() {
	if s.glId == 0 {
		return
	}
	s.dev.state.Forget(0, s.glId)
	gl.DeleteSamplers(1, &s.glId)
	s.glId = 0
}
