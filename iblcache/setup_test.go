package iblcache_test

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/chewxy/math32"

	"iblbake/iblcache"
	"iblbake/libgpu"
	"iblbake/libgpu/soft"
)

// fastQuality keeps the passes cheap enough for the software device.
func fastQuality() iblcache.Quality {
	q := iblcache.DefaultQuality()
	q.BrdfSamples = 16
	q.IrradianceSampleDelta = 0.5
	q.PrefilterSamples = 4
	return q
}

type fixture struct {
	dev   *soft.Device
	arena *libgpu.Arena
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := soft.New()
	arena := libgpu.NewArena(dev)
	t.Cleanup(arena.Destroy)
	return &fixture{dev: dev, arena: arena, dir: t.TempDir()}
}

// failingUploads wraps a device and fails every submission that copies
// data into an image.
type failingUploads struct {
	libgpu.Device
}

type uploadCounter struct {
	libgpu.CmdBuffer
	uploads int
}

func (cb *uploadCounter) CopyToImage(libgpu.HwImage, libgpu.Region, []byte) {
	cb.uploads++
}

func (d failingUploads) NewCmdBuffer() (libgpu.CmdBuffer, error) {
	cb, err := d.Device.NewCmdBuffer()
	if err != nil {
		return nil, err
	}
	return &uploadCounter{CmdBuffer: cb}, nil
}

func (d failingUploads) Submit(cb libgpu.CmdBuffer) error {
	counter := cb.(*uploadCounter)
	if counter.uploads > 0 {
		return errors.New("upload rejected")
	}
	return d.Device.Submit(counter.CmdBuffer)
}

func (f *fixture) cache(t *testing.T, options ...iblcache.Option) *iblcache.Cache {
	t.Helper()
	options = append([]iblcache.Option{iblcache.WithQuality(fastQuality())}, options...)
	c, err := iblcache.New(f.dir, f.arena, soft.NewCompiler(), options...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

// panorama uploads a w*h equirectangular gradient from a blue sky to a
// brown ground with a bright spot.
func (f *fixture) panorama(t *testing.T, w, h int) *libgpu.Image {
	t.Helper()
	img, err := f.arena.Create(libgpu.ImageDesc{
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
		v := (float32(y) + 0.5) / float32(h)
		for x := 0; x < w; x++ {
			u := (float32(x) + 0.5) / float32(w)
			px := [4]float32{0.2 + 0.6*(1-v), 0.3 + 0.3*(1-v), 0.9 - 0.7*v, 1}
			if math32.Abs(u-0.25) < 0.05 && math32.Abs(v-0.3) < 0.1 {
				px = [4]float32{12, 11, 9, 1}
			}
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

// readAll downloads every level and layer of img.
func readAll(t *testing.T, img *libgpu.Image) [][]float32 {
	t.Helper()
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
		t.Fatal(err)
	}
	desc := img.Desc()
	levels := make([][]float32, desc.MipLevels)
	for level := range levels {
		texels, err := img.DownloadFloats(libgpu.Region{Level: level, Layers: desc.Layers})
		if err != nil {
			t.Fatal(err)
		}
		levels[level] = texels
	}
	if err := img.TransitionLayout(libgpu.LayoutTransferSrc, libgpu.LayoutShaderRead); err != nil {
		t.Fatal(err)
	}
	return levels
}

// expectSimilar compares the color channels of two downloads. tolerance is
// relative to the brightest channel of the texel.
func expectSimilar(t *testing.T, what string, a, b [][]float32, channels int, tolerance float32) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("%s: %d levels, want %d", what, len(b), len(a))
	}
	for level := range a {
		if len(a[level]) != len(b[level]) {
			t.Fatalf("%s level %d: %d values, want %d", what, level, len(b[level]), len(a[level]))
		}
		for i := 0; i < len(a[level]); i += 4 {
			var max float32
			for c := 0; c < channels; c++ {
				max = math32.Max(max, math32.Abs(a[level][i+c]))
			}
			for c := 0; c < channels; c++ {
				should, is := a[level][i+c], b[level][i+c]
				if math32.Abs(should-is) > max*tolerance+1e-3 {
					t.Fatalf("%s level %d texel %d channel %d should be: %.4f but is %.4f", what, level, i/4, c, should, is)
				}
			}
		}
	}
}
