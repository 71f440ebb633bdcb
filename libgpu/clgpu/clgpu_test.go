package clgpu

import (
	"math"
	"strings"
	"testing"

	"iblbake/ibl"
	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

func TestRoundUpKernelSize(t *testing.T) {
	tests := []struct{ group, global, want int }{
		{16, 1, 16},
		{16, 16, 16},
		{16, 17, 32},
		{32, 128, 128},
	}
	for _, test := range tests {
		if got := roundUpKernelSize(test.group, test.global); got != test.want {
			t.Errorf("roundUpKernelSize(%d, %d) should be: %d but is %d", test.group, test.global, test.want, got)
		}
	}
}

func TestSourceOrdersDefinesBeforePrelude(t *testing.T) {
	src := Source(&libgpu.ProgramDesc{
		Name:    "test",
		Defines: map[string]string{"B": "2", "A": "1"},
		OpenCL:  "__kernel void test(FRAGMENT_PARAMS) {}",
	})
	if !strings.HasPrefix(src, "#define A 1\n#define B 2\n") {
		t.Errorf("defines should come first and sorted, source starts with %q", src[:min(len(src), 40)])
	}
	prelude := strings.Index(src, "#define FRAGMENT_PARAMS")
	kernel := strings.Index(src, "__kernel void test")
	if prelude < 0 || kernel < prelude {
		t.Errorf("prelude at %d should precede the kernel at %d", prelude, kernel)
	}
}

func openOrSkip(t *testing.T) (*soft.Device, *Compiler) {
	t.Helper()
	dev, compiler, err := New(DeviceTypeGPU)
	if err != nil {
		t.Skipf("no opencl device: %v", err)
	}
	return dev, compiler
}

func TestBrdfLutMatchesSoftDevice(t *testing.T) {
	dev, compiler := openOrSkip(t)
	defer dev.Destroy()

	lut := func(dev libgpu.Device, compiler libgpu.Compiler) []float32 {
		arena := libgpu.NewArena(dev)
		defer arena.Destroy()
		pass := ibl.NewBrdfLutPass(arena, compiler)
		pass.Samples = 64
		img, err := pass.Run(32)
		if err != nil {
			t.Fatal(err)
		}
		defer img.Destroy()
		err = img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc)
		if err != nil {
			t.Fatal(err)
		}
		texels, err := img.DownloadFloats(libgpu.Region{})
		if err != nil {
			t.Fatal(err)
		}
		return texels
	}

	want := lut(soft.New(), soft.NewCompiler())
	got := lut(dev, compiler)
	for i := range want {
		if math.Abs(float64(want[i]-got[i])) > 2e-3 {
			t.Fatalf("texel value %d should be: %.4f but is %.4f", i, want[i], got[i])
		}
	}
}
