package libio

import (
	"fmt"

	"github.com/chewxy/math32"
)

// See: https://www.graphics.cornell.edu/~bjw/rgbe/rgbe.c

// EncodeRgbe packs float texels with the given number of components into
// shared exponent RGBE bytes. Components beyond the third are dropped.
func EncodeRgbe(components int, data []float32, buf []byte) (n int) {
	count := len(data) / components
	for i := 0; i < count; i++ {
		var (
			r = data[i*components+0]
			g = data[i*components+1]
			b = data[i*components+2]
		)
		out := buf[i*4 : i*4+4]

		max := math32.Max(r, math32.Max(g, b))
		if max < 1e-32 {
			out[0], out[1], out[2], out[3] = 0, 0, 0, 0
			continue
		}

		frac, exp := math32.Frexp(max)
		f := frac * 256.0 / max
		out[0] = byte(math32.Max(r*f, 0))
		out[1] = byte(math32.Max(g*f, 0))
		out[2] = byte(math32.Max(b*f, 0))
		out[3] = byte(exp + 128)
	}
	return count * 4
}

// DecodeRgbe unpacks RGBE bytes into float texels with the given number of
// components. A fourth component is set to one.
func DecodeRgbe(components int, data []byte, buf []float32) (n int) {
	count := len(data) / 4
	for i := 0; i < count; i++ {
		in := data[i*4 : i*4+4]
		out := buf[i*components : i*components+components]
		if components > 3 {
			out[3] = 1
		}
		e := in[3]
		if e == 0 {
			out[0], out[1], out[2] = 0, 0, 0
			continue
		}
		f := math32.Ldexp(1.0, int(e)-(128+8))
		out[0] = (float32(in[0]) + 0.5) * f
		out[1] = (float32(in[1]) + 0.5) * f
		out[2] = (float32(in[2]) + 0.5) * f
	}
	return count * components
}

// EncodeRgbeBytes is EncodeRgbe into a new buffer.
func EncodeRgbeBytes(data []float32, components int) ([]byte, error) {
	if components < 3 || len(data)%components != 0 {
		return nil, fmt.Errorf("source not a multiple of %d floats", components)
	}
	result := make([]byte, len(data)/components*4)
	n := EncodeRgbe(components, data, result)
	return result[:n], nil
}

// DecodeRgbeBytes is DecodeRgbe into a new buffer.
func DecodeRgbeBytes(data []byte, components int) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("source not a multiple of 4 bytes")
	}
	if components < 3 {
		return nil, fmt.Errorf("rgbe decodes to at least 3 components, not %d", components)
	}
	result := make([]float32, len(data)/4*components)
	n := DecodeRgbe(components, data, result)
	return result[:n], nil
}
