package libgpu

import (
	"fmt"
	"strconv"
	"strings"

	"iblbake/libutil"
)

// Texture is an image together with its default view and sampler.
type Texture struct {
	Image   *Image
	View    *View
	Sampler *Sampler
}

// Destroy releases the view, the sampler and the image, in that order.
func (t *Texture) Destroy() {
	if t.View != nil {
		t.View.Destroy()
	}
	if t.Sampler != nil {
		t.Sampler.Destroy()
	}
	if t.Image != nil {
		t.Image.Destroy()
	}
}

// TextureBuilder collects texture options. Nothing is created before Build.
type TextureBuilder struct {
	image   ImageDesc
	view    ViewDesc
	sampler SamplerDesc
}

// NewTextureBuilder returns a builder for a single level, sampled RGBA16F
// 2D texture with a trilinear edge clamped sampler.
func NewTextureBuilder() *TextureBuilder {
	return &TextureBuilder{
		image: ImageDesc{
			Kind:      Image2D,
			Format:    FormatRGBA16F,
			Layers:    1,
			MipLevels: 1,
			Samples:   1,
			Usage:     UsageSampled | UsageTransferDst,
			Tiling:    TilingOptimal,
			Memory:    MemoryDeviceLocal,
		},
		sampler: DefaultSamplerDesc(),
	}
}

func (b *TextureBuilder) Label(label string) *TextureBuilder {
	b.image.Label = label
	b.sampler.Label = label
	return b
}

func (b *TextureBuilder) Kind(kind ImageKind) *TextureBuilder {
	b.image.Kind = kind
	return b
}

func (b *TextureBuilder) Format(format Format) *TextureBuilder {
	b.image.Format = format
	return b
}

// Extent sets the size. depth is the layer count and ignored for cubes.
func (b *TextureBuilder) Extent(width, height, depth int) *TextureBuilder {
	b.image.Width = width
	b.image.Height = height
	b.image.Layers = depth
	return b
}

func (b *TextureBuilder) Usage(usage Usage) *TextureBuilder {
	b.image.Usage = usage
	return b
}

func (b *TextureBuilder) Tiling(tiling Tiling) *TextureBuilder {
	b.image.Tiling = tiling
	return b
}

func (b *TextureBuilder) Memory(policy MemoryPolicy) *TextureBuilder {
	b.image.Memory = policy
	return b
}

// MipLevels sets the mip count. MipLevelsAuto derives it from the extent.
func (b *TextureBuilder) MipLevels(levels int) *TextureBuilder {
	b.image.MipLevels = levels
	return b
}

func (b *TextureBuilder) Samples(samples int) *TextureBuilder {
	b.image.Samples = samples
	return b
}

func (b *TextureBuilder) Filter(min, mag Filter) *TextureBuilder {
	b.sampler.Min = min
	b.sampler.Mag = mag
	return b
}

func (b *TextureBuilder) MipmapMode(mode MipmapMode) *TextureBuilder {
	b.sampler.Mipmap = mode
	return b
}

func (b *TextureBuilder) AddressMode(u, v, w AddressMode) *TextureBuilder {
	b.sampler.AddressU = u
	b.sampler.AddressV = v
	b.sampler.AddressW = w
	return b
}

func (b *TextureBuilder) LodRange(min, max float32) *TextureBuilder {
	b.sampler.MinLod = min
	b.sampler.MaxLod = max
	return b
}

func (b *TextureBuilder) Anisotropy(max float32) *TextureBuilder {
	b.sampler.Anisotropy = max
	return b
}

func (b *TextureBuilder) BorderColor(color BorderColor) *TextureBuilder {
	b.sampler.Border = color
	return b
}

// View overrides the default view.
func (b *TextureBuilder) View(desc ViewDesc) *TextureBuilder {
	b.view = desc
	return b
}

// ImageDesc returns the image description Build would use, with the mip
// count resolved.
func (b *TextureBuilder) ImageDesc() ImageDesc {
	desc := b.image
	if desc.Kind == ImageCube && desc.Height == 0 {
		desc.Height = desc.Width
	}
	desc.MipLevels = ResolveMipLevels(desc.Width, desc.Height, desc.MipLevels)
	return desc
}

func (b *TextureBuilder) SamplerDesc() SamplerDesc {
	return b.sampler
}

// Build creates the image, sampler and view. On failure everything created
// so far is destroyed again.
func (b *TextureBuilder) Build(arena *Arena) (tex *Texture, err error) {
	var cleanup libutil.Cleanup
	defer func() {
		if err != nil {
			cleanup.Destroy()
		}
	}()

	img, err := arena.Create(b.ImageDesc())
	if err != nil {
		return nil, err
	}
	cleanup.Add(img)

	sampler, err := NewSampler(arena.Device(), b.sampler)
	if err != nil {
		return nil, err
	}
	cleanup.Add(sampler)

	view := arena.NewView(img.Handle(), b.view)
	if _, err = view.Handle(); err != nil {
		return nil, err
	}

	return &Texture{Image: img, View: view, Sampler: sampler}, nil
}

// Set applies an option by name, as found in text configuration.
// Recognized keys are format, width, height, depth, kind, usage, tiling,
// memory, mipLevels, samples, minFilter, magFilter, mipmapMode,
// addressModeU, addressModeV, addressModeW, addressModes, minLod, maxLod,
// anisotropy, borderColor and label.
func (b *TextureBuilder) Set(key, value string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("texture option %s=%q: %w", key, value, err)
		}
	}()
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case "label":
		b.Label(value)
	case "format":
		b.image.Format, err = ParseFormat(value)
	case "width":
		b.image.Width, err = parseInt(value)
	case "height":
		b.image.Height, err = parseInt(value)
	case "depth", "layers":
		b.image.Layers, err = parseInt(value)
	case "kind":
		b.image.Kind, err = parseEnum(value, map[string]ImageKind{"1d": Image1D, "2d": Image2D, "cube": ImageCube})
	case "usage":
		b.image.Usage, err = ParseUsage(value)
	case "tiling":
		b.image.Tiling, err = parseEnum(value, map[string]Tiling{"optimal": TilingOptimal, "linear": TilingLinear})
	case "memorypolicy", "memory":
		b.image.Memory, err = parseEnum(value, map[string]MemoryPolicy{"device": MemoryDeviceLocal, "host": MemoryHostVisible})
	case "miplevels":
		if b.image.MipLevels, err = strconv.Atoi(value); err != nil {
			err = fmt.Errorf("%v: %w", err, ErrInvalid)
		}
	case "samples":
		b.image.Samples, err = parseInt(value)
	case "minfilter":
		b.sampler.Min, err = parseFilter(value)
	case "magfilter":
		b.sampler.Mag, err = parseFilter(value)
	case "mipmapmode":
		b.sampler.Mipmap, err = parseEnum(value, map[string]MipmapMode{"linear": MipmapLinear, "nearest": MipmapNearest, "none": MipmapNone})
	case "addressmodeu":
		b.sampler.AddressU, err = parseAddressMode(value)
	case "addressmodev":
		b.sampler.AddressV, err = parseAddressMode(value)
	case "addressmodew":
		b.sampler.AddressW, err = parseAddressMode(value)
	case "addressmodes":
		var mode AddressMode
		mode, err = parseAddressMode(value)
		b.AddressMode(mode, mode, mode)
	case "minlod":
		b.sampler.MinLod, err = parseFloat(value)
	case "maxlod":
		b.sampler.MaxLod, err = parseFloat(value)
	case "lodrange":
		lo, hi, ok := strings.Cut(value, ":")
		if !ok {
			return fmt.Errorf("expected min:max: %w", ErrInvalid)
		}
		if b.sampler.MinLod, err = parseFloat(lo); err != nil {
			return err
		}
		b.sampler.MaxLod, err = parseFloat(hi)
	case "anisotropy":
		b.sampler.Anisotropy, err = parseFloat(value)
	case "bordercolor":
		b.sampler.Border, err = parseEnum(value, map[string]BorderColor{
			"transparent": BorderTransparentBlack, "black": BorderOpaqueBlack, "white": BorderOpaqueWhite})
	default:
		return fmt.Errorf("unknown option: %w", ErrInvalid)
	}
	return err
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value: %w", ErrInvalid)
	}
	return v, nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	return float32(v), nil
}

func parseFilter(s string) (Filter, error) {
	return parseEnum(s, map[string]Filter{"linear": FilterLinear, "nearest": FilterNearest})
}

func parseAddressMode(s string) (AddressMode, error) {
	return parseEnum(s, map[string]AddressMode{
		"clamp": AddressClampToEdge, "repeat": AddressRepeat, "mirror": AddressMirror, "border": AddressClampToBorder})
}

func parseEnum[T any](s string, values map[string]T) (T, error) {
	if v, ok := values[strings.ToLower(s)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("unknown value: %w", ErrInvalid)
}
