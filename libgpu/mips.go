package libgpu

import "math/bits"

// MipLevelsAuto requests a full mip chain.
const MipLevelsAuto = -1

// MaxMipLevels returns floor(log2(max(w, h))) + 1.
func MaxMipLevels(w, h int) int {
	if h > w {
		w = h
	}
	if w < 1 {
		return 1
	}
	return bits.Len(uint(w))
}

// ResolveMipLevels returns the full chain length when requested is
// negative (or zero) and requested clamped to the full chain otherwise.
func ResolveMipLevels(w, h, requested int) int {
	max := MaxMipLevels(w, h)
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}
