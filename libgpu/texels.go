package libgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/x448/float16"
)

// EncodeTexels converts RGBA float texels into the byte layout of format f.
// Missing channels are dropped, 8-bit channels are clamped and rounded.
func EncodeTexels(f Format, src []float32) ([]byte, error) {
	if len(src)%4 != 0 {
		return nil, fmt.Errorf("source not a multiple of 4 floats: %w", ErrInvalid)
	}
	n := len(src) / 4
	size := f.Size()
	if size == 0 {
		return nil, fmt.Errorf("encode %v: %w", f, ErrUnsupported)
	}
	le := binary.LittleEndian
	dst := make([]byte, n*size)
	channels := f.Channels()
	for i := 0; i < n; i++ {
		px := src[i*4 : i*4+4]
		out := dst[i*size : i*size+size]
		switch f {
		case FormatRGBA8:
			for c := 0; c < 4; c++ {
				out[c] = uint8(math32.Round(clamp01(px[c]) * 255))
			}
		case FormatRGBA16F, FormatRG16F:
			for c := 0; c < channels; c++ {
				le.PutUint16(out[c*2:], float16.Fromfloat32(px[c]).Bits())
			}
		default:
			for c := 0; c < channels; c++ {
				le.PutUint32(out[c*4:], math.Float32bits(px[c]))
			}
		}
	}
	return dst, nil
}

// DecodeTexels converts bytes of format f into RGBA float texels.
// Missing color channels decode as zero and missing alpha as one.
func DecodeTexels(f Format, src []byte) ([]float32, error) {
	size := f.Size()
	if size == 0 {
		return nil, fmt.Errorf("decode %v: %w", f, ErrUnsupported)
	}
	if len(src)%size != 0 {
		return nil, fmt.Errorf("source not a multiple of %d bytes: %w", size, ErrInvalid)
	}
	le := binary.LittleEndian
	n := len(src) / size
	dst := make([]float32, n*4)
	channels := f.Channels()
	for i := 0; i < n; i++ {
		in := src[i*size : i*size+size]
		px := dst[i*4 : i*4+4]
		px[3] = 1
		switch f {
		case FormatRGBA8:
			for c := 0; c < 4; c++ {
				px[c] = float32(in[c]) / 255
			}
		case FormatRGBA16F, FormatRG16F:
			for c := 0; c < channels; c++ {
				px[c] = float16.Frombits(le.Uint16(in[c*2:])).Float32()
			}
		default:
			for c := 0; c < channels; c++ {
				px[c] = math.Float32frombits(le.Uint32(in[c*4:]))
			}
		}
	}
	return dst, nil
}

// Quantize rounds an RGBA texel to the precision of format f, the way a
// store to an image of that format would.
func Quantize(f Format, px [4]float32) [4]float32 {
	switch f {
	case FormatRGBA8:
		for c := range px {
			px[c] = math32.Round(clamp01(px[c])*255) / 255
		}
	case FormatRGBA16F:
		for c := range px {
			px[c] = float16.Fromfloat32(px[c]).Float32()
		}
	case FormatRG16F:
		px[0] = float16.Fromfloat32(px[0]).Float32()
		px[1] = float16.Fromfloat32(px[1]).Float32()
		px[2], px[3] = 0, 1
	case FormatRG32F:
		px[2], px[3] = 0, 1
	case FormatR32F, FormatDepth32F:
		px[1], px[2], px[3] = 0, 0, 1
	}
	return px
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
