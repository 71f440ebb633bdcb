package libgpu_test

import (
	"errors"
	"testing"

	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

func TestUploadDownload(t *testing.T) {
	formats := []struct {
		format libgpu.Format
		eps    float32
	}{
		{libgpu.FormatRGBA32F, 0},
		{libgpu.FormatRGBA16F, 0.01},
	}

	for _, f := range formats {
		t.Run(f.format.String(), func(t *testing.T) {
			arena, _ := newArena(t)
			desc := rgba32("rt", 4, 3)
			desc.Format = f.format
			img := newImage(t, arena, desc)

			data := ramp(4 * 3 * 4)
			if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
				t.Fatal(err)
			}
			if err := img.UploadFloats(data, libgpu.Region{}); err != nil {
				t.Fatal(err)
			}
			if err := img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutTransferSrc); err != nil {
				t.Fatal(err)
			}
			result, err := img.DownloadFloats(libgpu.Region{})
			if err != nil {
				t.Fatal(err)
			}
			for i := range data {
				if !almostEqual(result[i], data[i], f.eps*data[i]) {
					t.Fatalf("texel value %d should be: %.4f but is %.4f", i, data[i], result[i])
				}
			}
		})
	}
}

func TestUploadSubRegion(t *testing.T) {
	arena, _ := newArena(t)
	img := newImage(t, arena, rgba32("sub", 4, 4))
	img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst)

	region := libgpu.Region{X: 1, Y: 2, Width: 2, Height: 1}
	if err := img.UploadFloats([]float32{1, 2, 3, 4, 5, 6, 7, 8}, region); err != nil {
		t.Fatal(err)
	}
	img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutTransferSrc)
	all, err := img.DownloadFloats(libgpu.Region{})
	if err != nil {
		t.Fatal(err)
	}
	at := (2*4 + 1) * 4
	if all[at] != 1 || all[at+4] != 5 || all[at-4] != 0 {
		t.Errorf("sub region landed in the wrong place: %v", all[at-4:at+8])
	}

	if err := img.UploadFloats(make([]float32, 4), libgpu.Region{}); !errors.Is(err, libgpu.ErrLayout) {
		t.Errorf("upload in transfer-src layout should fail with ErrLayout, got %v", err)
	}
}

func TestUploadSizeMismatch(t *testing.T) {
	arena, _ := newArena(t)
	img := newImage(t, arena, rgba32("size", 4, 4))
	img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst)
	if err := img.UploadFloats(make([]float32, 4), libgpu.Region{}); !errors.Is(err, libgpu.ErrInvalid) {
		t.Errorf("short upload should fail with ErrInvalid, got %v", err)
	}
	if is := img.Version(); is != 1 {
		t.Errorf("failed upload should not bump the version, is %d", is)
	}
}

func TestTransitionFromWrongLayout(t *testing.T) {
	arena, _ := newArena(t)
	img := newImage(t, arena, rgba32("layout", 2, 2))
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferDst); !errors.Is(err, libgpu.ErrLayout) {
		t.Errorf("transition from a layout the image is not in should fail with ErrLayout, got %v", err)
	}
	if img.Layout() != libgpu.LayoutUndefined {
		t.Errorf("failed transition should not change the layout, is %v", img.Layout())
	}
}

func TestGenerateMipmaps(t *testing.T) {
	arena, dev := newArena(t)
	desc := rgba32("mips", 8, 8)
	desc.MipLevels = libgpu.MipLevelsAuto
	img := newImage(t, arena, desc)
	if is := img.Desc().MipLevels; is != 4 {
		t.Fatalf("8x8 image should have 4 levels, has %d", is)
	}

	// checkerboard of 0 and 2 averages to 1
	data := make([]float32, 8*8*4)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := float32((x + y) % 2 * 2)
			copy(data[(y*8+x)*4:], []float32{v, v, v, 1})
		}
	}
	img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst)
	if err := img.UploadFloats(data, libgpu.Region{}); err != nil {
		t.Fatal(err)
	}
	if err := img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutShaderRead); err != nil {
		t.Fatal(err)
	}

	dev.ResetStats()
	version := img.Version()
	if err := img.GenerateMipmaps(libgpu.LayoutShaderRead); err != nil {
		t.Fatal(err)
	}
	if img.Version() <= version {
		t.Error("generating mipmaps should bump the version")
	}
	if stats := dev.Stats(); stats.Submits != 1 || stats.Blits != 3 {
		t.Errorf("mip chain should be one submit with 3 blits, got %+v", stats)
	}
	if img.Layout() != libgpu.LayoutShaderRead {
		t.Errorf("image should be back in shader-read, is %v", img.Layout())
	}

	img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc)
	for level := 1; level < 4; level++ {
		texels, err := img.DownloadFloats(libgpu.Region{Level: level})
		if err != nil {
			t.Fatal(err)
		}
		w, h := img.Extent(level)
		if len(texels) != w*h*4 {
			t.Fatalf("level %d has %d floats", level, len(texels))
		}
		for i := 0; i < len(texels); i += 4 {
			if !almostEqual(texels[i], 1, 1e-5) {
				t.Fatalf("level %d texel %d should be: %.4f but is %.4f", level, i/4, 1.0, texels[i])
			}
		}
	}
}

func TestGenerateMipmapsSingleLevel(t *testing.T) {
	arena, dev := newArena(t)
	img := newImage(t, arena, rgba32("one", 4, 4))
	dev.ResetStats()
	if err := img.GenerateMipmaps(libgpu.LayoutUndefined); err != nil {
		t.Fatal(err)
	}
	if is := dev.Stats().Submits; is != 0 {
		t.Errorf("single level image should not submit anything, submitted %d", is)
	}
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	arena, dev := newArena(t, soft.WithMemoryLimit(1024))
	_, err := arena.Create(rgba32("huge", 64, 64))
	if !errors.Is(err, libgpu.ErrAllocation) {
		t.Fatalf("over-limit image should fail with ErrAllocation, got %v", err)
	}
	if arena.Len() != 0 || dev.Stats().Images != 0 {
		t.Errorf("failed create should register nothing, arena %d, device %d", arena.Len(), dev.Stats().Images)
	}

	invalid := []libgpu.ImageDesc{
		{Format: libgpu.FormatRGBA8, Width: 0, Height: 4},
		{Width: 4, Height: 4},
		{Kind: libgpu.ImageCube, Format: libgpu.FormatRGBA8, Width: 4, Height: 2},
		{Format: libgpu.FormatRGBA8, Width: 4, Height: 4, Samples: 4, MipLevels: 2},
	}
	for _, desc := range invalid {
		if _, err := arena.Create(desc); !errors.Is(err, libgpu.ErrInvalid) {
			t.Errorf("create %+v should fail with ErrInvalid, got %v", desc, err)
		}
	}
}

func TestAdoptedImageIsNotFreed(t *testing.T) {
	arena, dev := newArena(t)
	desc := libgpu.ImageDesc{Format: libgpu.FormatRGBA8, Width: 4, Height: 4, Layers: 1, MipLevels: 1, Samples: 1, Usage: libgpu.UsageColorTarget}
	hw, err := dev.NewImage(&desc)
	if err != nil {
		t.Fatal(err)
	}
	defer hw.Destroy()

	img, err := arena.Adopt(hw, desc, libgpu.LayoutPresent)
	if err != nil {
		t.Fatal(err)
	}
	if img.Owned() {
		t.Error("adopted image should not be owned")
	}
	img.Destroy()
	if is := dev.Stats().Images; is != 1 {
		t.Errorf("destroying an adopted image should keep the device image, %d alive", is)
	}
	if !img.Destroyed() {
		t.Error("image should report destroyed")
	}
	img.Destroy()
}
