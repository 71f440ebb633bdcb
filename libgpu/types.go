package libgpu

import (
	"fmt"
	"strings"
)

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8
	FormatRGBA16F
	FormatRGBA32F
	FormatRG16F
	FormatRG32F
	FormatR32F
	FormatDepth32F
)

var formatNames = map[Format]string{
	FormatUndefined: "undefined",
	FormatRGBA8:     "rgba8",
	FormatRGBA16F:   "rgba16f",
	FormatRGBA32F:   "rgba32f",
	FormatRG16F:     "rg16f",
	FormatRG32F:     "rg32f",
	FormatR32F:      "r32f",
	FormatDepth32F:  "depth32f",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Size returns the number of bytes of one texel.
func (f Format) Size() int {
	switch f {
	case FormatRGBA8, FormatR32F, FormatDepth32F:
		return 4
	case FormatRGBA16F, FormatRG32F:
		return 8
	case FormatRGBA32F:
		return 16
	case FormatRG16F:
		return 4
	}
	return 0
}

func (f Format) Channels() int {
	switch f {
	case FormatRGBA8, FormatRGBA16F, FormatRGBA32F:
		return 4
	case FormatRG16F, FormatRG32F:
		return 2
	case FormatR32F, FormatDepth32F:
		return 1
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatDepth32F
}

func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s && f != FormatUndefined {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format %q: %w", s, ErrInvalid)
}

type ImageKind int

const (
	Image2D ImageKind = iota
	Image1D
	ImageCube
)

func (k ImageKind) String() string {
	switch k {
	case Image1D:
		return "1d"
	case Image2D:
		return "2d"
	case ImageCube:
		return "cube"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Usage is a mask of the ways an image may be used.
type Usage int

const (
	UsageSampled Usage = 1 << iota
	UsageColorTarget
	UsageDepthTarget
	UsageTransferSrc
	UsageTransferDst
	UsageStorage
	UsageNone Usage = 0
)

var usageNames = []struct {
	usage Usage
	name  string
}{
	{UsageSampled, "sampled"},
	{UsageColorTarget, "color"},
	{UsageDepthTarget, "depth"},
	{UsageTransferSrc, "src"},
	{UsageTransferDst, "dst"},
	{UsageStorage, "storage"},
}

func (u Usage) Has(bits Usage) bool {
	return u&bits == bits
}

func (u Usage) String() string {
	var names []string
	for _, n := range usageNames {
		if u.Has(n.usage) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseUsage parses a '|' or ',' separated list of usage names.
func ParseUsage(s string) (Usage, error) {
	var u Usage
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		found := false
		for _, n := range usageNames {
			if n.name == part {
				u |= n.usage
				found = true
				break
			}
		}
		if !found {
			return UsageNone, fmt.Errorf("unknown usage %q: %w", part, ErrInvalid)
		}
	}
	return u, nil
}

type Tiling int

const (
	TilingOptimal Tiling = iota
	TilingLinear
)

type MemoryPolicy int

const (
	MemoryDeviceLocal MemoryPolicy = iota
	MemoryHostVisible
)

// Layout is the layout of an image sub-resource.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorTarget
	LayoutDepthTarget
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderRead
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorTarget:
		return "color-target"
	case LayoutDepthTarget:
		return "depth-target"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutShaderRead:
		return "shader-read"
	case LayoutPresent:
		return "present"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

type ImageDesc struct {
	Label     string
	Kind      ImageKind
	Format    Format
	Width     int
	Height    int
	Layers    int
	MipLevels int
	Samples   int
	Usage     Usage
	Tiling    Tiling
	Memory    MemoryPolicy
}

// Extent returns the size of the given mip level.
func (d *ImageDesc) Extent(level int) (w, h int) {
	w, h = d.Width>>level, d.Height>>level
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// LevelBytes returns the number of bytes of one layer of a mip level.
func (d *ImageDesc) LevelBytes(level int) int {
	w, h := d.Extent(level)
	return w * h * d.Format.Size()
}

type ViewKind int

const (
	// ViewDefault derives the view kind from the image kind and layer count.
	ViewDefault ViewKind = iota
	View1D
	View2D
	View2DArray
	ViewCube
)

type ViewDesc struct {
	Kind ViewKind
	// Format defaults to the image format.
	Format    Format
	BaseLevel int
	// Levels defaults to all remaining levels.
	Levels    int
	BaseLayer int
	// Layers defaults to all remaining layers.
	Layers int
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type MipmapMode int

const (
	MipmapLinear MipmapMode = iota
	MipmapNearest
	// MipmapNone always samples level zero of the view.
	MipmapNone
)

type AddressMode int

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
	AddressMirror
	AddressClampToBorder
)

type BorderColor int

const (
	BorderTransparentBlack BorderColor = iota
	BorderOpaqueBlack
	BorderOpaqueWhite
)

// RGBA returns the border color as a texel.
func (c BorderColor) RGBA() [4]float32 {
	switch c {
	case BorderOpaqueBlack:
		return [4]float32{0, 0, 0, 1}
	case BorderOpaqueWhite:
		return [4]float32{1, 1, 1, 1}
	}
	return [4]float32{}
}

type SamplerDesc struct {
	Label      string
	Min, Mag   Filter
	Mipmap     MipmapMode
	AddressU   AddressMode
	AddressV   AddressMode
	AddressW   AddressMode
	MinLod     float32
	MaxLod     float32
	Anisotropy float32
	Border     BorderColor
}

// DefaultSamplerDesc is a trilinear, edge clamped sampler.
func DefaultSamplerDesc() SamplerDesc {
	return SamplerDesc{
		Min:      FilterLinear,
		Mag:      FilterLinear,
		Mipmap:   MipmapLinear,
		AddressU: AddressClampToEdge,
		AddressV: AddressClampToEdge,
		AddressW: AddressClampToEdge,
		MinLod:   0,
		MaxLod:   1000,
	}
}

// Full fills the zero fields of r with the full extent of its level and a
// single layer.
func (r Region) Full(desc *ImageDesc) Region {
	if r.Layers <= 0 {
		r.Layers = 1
	}
	if r.Width == 0 || r.Height == 0 {
		r.X, r.Y = 0, 0
		r.Width, r.Height = desc.Extent(r.Level)
	}
	return r
}

// Range returns the levels and layers a barrier covers on an image with
// the given number of levels and layers.
func (b Barrier) Range(levels, layers int) (baseLevel, levelCount, baseLayer, layerCount int) {
	levelCount = b.Levels
	if levelCount <= 0 {
		levelCount = levels - b.BaseLevel
	}
	layerCount = b.Layers
	if layerCount <= 0 {
		layerCount = layers - b.BaseLayer
	}
	return b.BaseLevel, levelCount, b.BaseLayer, layerCount
}
