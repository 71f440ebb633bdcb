package ibl_test

import (
	"testing"

	"github.com/chewxy/math32"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

func newSoft(t *testing.T) (*soft.Device, *libgpu.Arena, libgpu.Compiler) {
	t.Helper()
	dev := soft.New(soft.WithWorkers(4))
	arena := libgpu.NewArena(dev)
	t.Cleanup(arena.Destroy)
	return dev, arena, soft.NewCompiler()
}

// newPanorama uploads an equirectangular image whose texels are produced
// by fill from their normalized coordinates.
func newPanorama(t *testing.T, arena *libgpu.Arena, w, h int, fill func(u, v float32) [4]float32) *libgpu.Image {
	t.Helper()
	img, err := arena.Create(libgpu.ImageDesc{
		Label:  "panorama",
		Format: libgpu.FormatRGBA32F,
		Width:  w,
		Height: h,
		Usage:  libgpu.UsageSampled | libgpu.UsageTransferDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	texels := make([]float32, 0, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := fill((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
			texels = append(texels, px[:]...)
		}
	}
	if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
		t.Fatal(err)
	}
	if err := img.UploadFloats(texels, libgpu.Region{}); err != nil {
		t.Fatal(err)
	}
	if err := img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutShaderRead); err != nil {
		t.Fatal(err)
	}
	return img
}

func constant(c [4]float32) func(u, v float32) [4]float32 {
	return func(float32, float32) [4]float32 { return c }
}

// readLevel downloads every layer of a level and leaves the image in
// LayoutShaderRead.
func readLevel(t *testing.T, img *libgpu.Image, level int) []float32 {
	t.Helper()
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
		t.Fatal(err)
	}
	texels, err := img.DownloadFloats(libgpu.Region{Level: level, Layers: img.Desc().Layers})
	if err != nil {
		t.Fatal(err)
	}
	if err := img.TransitionLayout(libgpu.LayoutTransferSrc, libgpu.LayoutShaderRead); err != nil {
		t.Fatal(err)
	}
	return texels
}

func almostEqual(a, b, tolerance float32) bool {
	return math32.Abs(a-b) <= tolerance
}
