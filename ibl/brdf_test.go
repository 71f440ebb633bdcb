package ibl_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/x448/float16"

	"iblbake/ibl"
	"iblbake/libgpu"
)

func TestIntegrateBrdf(t *testing.T) {
	// smooth surfaces reflect everything at normal incidence
	scale, bias := ibl.IntegrateBrdf(0.9, 0.05, 1024)
	if !almostEqual(scale, 1, 0.02) {
		t.Errorf("smooth scale should be: %.4f but is %.4f", 1.0, scale)
	}
	if bias > 0.01 {
		t.Errorf("smooth bias should be below 0.01 but is %.4f", bias)
	}

	// rough surfaces lose energy to masking and shadowing
	roughScale, roughBias := ibl.IntegrateBrdf(0.5, 1, 1024)
	smoothScale, smoothBias := ibl.IntegrateBrdf(0.5, 0.1, 1024)
	if roughScale+roughBias >= smoothScale+smoothBias {
		t.Errorf("rough albedo %.4f should be below smooth albedo %.4f", roughScale+roughBias, smoothScale+smoothBias)
	}

	a1, b1 := ibl.IntegrateBrdf(0.3, 0.6, 256)
	a2, b2 := ibl.IntegrateBrdf(0.3, 0.6, 256)
	if a1 != a2 || b1 != b2 {
		t.Errorf("integration is not deterministic: (%v, %v) != (%v, %v)", a1, b1, a2, b2)
	}
}

func TestBrdfLutPass(t *testing.T) {
	dev, arena, compiler := newSoft(t)
	pass := ibl.NewBrdfLutPass(arena, compiler)
	pass.Samples = 64

	lut, err := pass.Run(16)
	if err != nil {
		t.Fatal(err)
	}
	desc := lut.Desc()
	if desc.Format != libgpu.FormatRG16F || desc.Width != 16 || desc.Height != 16 || desc.MipLevels != 1 {
		t.Fatalf("unexpected lut %v", lut)
	}
	if lut.Layout() != libgpu.LayoutShaderRead {
		t.Errorf("lut should be in %v but is in %v", libgpu.LayoutShaderRead, lut.Layout())
	}
	if stats := dev.Stats(); stats.Draws != 1 || stats.Views != 0 || stats.Pipelines != 0 {
		t.Errorf("pass should draw once and release its objects: %+v", stats)
	}

	texels := readLevel(t, lut, 0)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			a, b := ibl.IntegrateBrdf((float32(x)+0.5)/16, (float32(y)+0.5)/16, 64)
			a = float16.Fromfloat32(a).Float32()
			b = float16.Fromfloat32(b).Float32()
			i := (y*16 + x) * 4
			if texels[i] != a || texels[i+1] != b {
				t.Errorf("lut texel (%d, %d) should be: (%.4f, %.4f) but is (%.4f, %.4f)", x, y, a, b, texels[i], texels[i+1])
			}
		}
	}
}

func TestBrdfLutDeterminism(t *testing.T) {
	_, arena, compiler := newSoft(t)
	pass := ibl.NewBrdfLutPass(arena, compiler)
	pass.Samples = 32

	run := func() []byte {
		lut, err := pass.Run(8)
		if err != nil {
			t.Fatal(err)
		}
		defer lut.Destroy()
		if err := lut.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
			t.Fatal(err)
		}
		data, err := lut.Download(libgpu.Region{})
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	if !bytes.Equal(run(), run()) {
		t.Error("two runs produced different tables")
	}
	if arena.Len() != 0 {
		t.Errorf("arena should be empty but holds %d images", arena.Len())
	}
}

func TestBrdfLutPassInvalid(t *testing.T) {
	_, arena, compiler := newSoft(t)
	pass := ibl.NewBrdfLutPass(arena, compiler)
	if _, err := pass.Run(0); !errors.Is(err, libgpu.ErrInvalid) {
		t.Errorf("size 0 should fail with %v but got %v", libgpu.ErrInvalid, err)
	}
	pass.Samples = 0
	if _, err := pass.Run(4); !errors.Is(err, libgpu.ErrInvalid) {
		t.Errorf("0 samples should fail with %v but got %v", libgpu.ErrInvalid, err)
	}
	if arena.Len() != 0 {
		t.Errorf("failed runs should not leave images, arena holds %d", arena.Len())
	}
}
