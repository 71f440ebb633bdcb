package libgpu_test

import (
	"testing"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

func newArena(t *testing.T, options ...soft.Option) (*libgpu.Arena, *soft.Device) {
	t.Helper()
	dev := soft.New(options...)
	arena := libgpu.NewArena(dev)
	t.Cleanup(arena.Destroy)
	return arena, dev
}

func newImage(t *testing.T, arena *libgpu.Arena, desc libgpu.ImageDesc) *libgpu.Image {
	t.Helper()
	img, err := arena.Create(desc)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func rgba32(label string, w, h int) libgpu.ImageDesc {
	return libgpu.ImageDesc{
		Label:  label,
		Format: libgpu.FormatRGBA32F,
		Width:  w,
		Height: h,
		Usage:  libgpu.UsageSampled | libgpu.UsageTransferSrc | libgpu.UsageTransferDst | libgpu.UsageColorTarget,
	}
}

func ramp(count int) []float32 {
	data := make([]float32, count)
	for i := range data {
		data[i] = float32(i) * 0.25
	}
	return data
}

func almostEqual(a, b, eps float32) bool {
	d := a - b
	return d <= eps && d >= -eps
}
