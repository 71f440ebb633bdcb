package iblcache_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"iblbake/iblcache"
	"iblbake/libgpu"
	"iblbake/libio"
)

func writePanorama(t *testing.T, w, h int) (string, []float32) {
	t.Helper()
	pix := make([]float32, 0, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix = append(pix, float32(x+1)/float32(w), float32(y+1)/float32(h), 0.5, 1)
		}
	}
	path := filepath.Join(t.TempDir(), "sky.hdr")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := libio.EncodeHdr(f, libio.NewFloatImage(pix, 4, w, h), nil); err != nil {
		t.Fatal(err)
	}
	return path, pix
}

func TestLoadPanorama(t *testing.T) {
	f := newFixture(t)
	path, pix := writePanorama(t, 16, 8)

	tex, err := iblcache.LoadPanorama(f.arena, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()

	desc := tex.Image.Desc()
	if desc.Width != 16 || desc.Height != 8 || desc.Kind != libgpu.Image2D || desc.MipLevels != 1 {
		t.Errorf("panorama should be a single level 16x8 2D image but is %+v", desc)
	}
	if desc.Label != "sky.hdr" {
		t.Errorf("label should be: %q but is %q", "sky.hdr", desc.Label)
	}
	if tex.Image.Layout() != libgpu.LayoutShaderRead {
		t.Errorf("panorama should be left in %v but is in %v", libgpu.LayoutShaderRead, tex.Image.Layout())
	}
	// rgbe keeps 8 bits of mantissa for the brightest channel
	expectSimilar(t, "panorama", [][]float32{pix}, readAll(t, tex.Image), 3, 1.0/64)
}

func TestLoadPanoramaWithBuilder(t *testing.T) {
	f := newFixture(t)
	path, _ := writePanorama(t, 16, 8)

	b := libgpu.NewTextureBuilder()
	for key, value := range map[string]string{"format": "rgba32f", "miplevels": "-1", "addressmodes": "repeat"} {
		if err := b.Set(key, value); err != nil {
			t.Fatal(err)
		}
	}
	tex, err := iblcache.LoadPanorama(f.arena, path, b)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()
	if levels := tex.Image.Desc().MipLevels; levels != 5 {
		t.Errorf("16x8 panorama should have 5 levels but has %d", levels)
	}
	levels := readAll(t, tex.Image)
	if last := levels[len(levels)-1]; len(last) != 4 {
		t.Errorf("last level should hold one texel but holds %d values", len(last))
	}
}

func TestLoadPanoramaMissing(t *testing.T) {
	f := newFixture(t)
	before := f.arena.Len()
	if _, err := iblcache.LoadPanorama(f.arena, f.path("missing.hdr"), nil); !os.IsNotExist(err) {
		t.Errorf("missing file should fail with not exist but got %v", err)
	}
	if f.arena.Len() != before {
		t.Error("failed load should not leave images in the arena")
	}
}

func TestEntries(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	src := f.panorama(t, 64, 32)

	irr, err := c.Irradiance(iblcache.Key{Name: "diffuse"}, src, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer irr.Destroy()
	pre, err := c.Prefiltered(iblcache.Key{Name: "specular"}, src, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pre.Destroy()
	lut, err := c.BrdfLut("lut", 8)
	if err != nil {
		t.Fatal(err)
	}
	defer lut.Destroy()

	entries, err := c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("cache should list 2 cube entries but lists %+v", entries)
	}
	if e := entries[0]; e.Name != "diffuse" || e.Size != 8 || e.MipLevels != 1 || len(e.Files) != 7 {
		t.Errorf("irradiance entry is %+v", e)
	}
	if e := entries[1]; e.Name != "specular" || e.Size != 8 || e.MipLevels != 2 || len(e.Files) != 13 {
		t.Errorf("prefiltered entry is %+v", e)
	}
	if !reflect.DeepEqual(entries[1].Files, pre.Files) {
		t.Errorf("entry files should be: %v but are %v", pre.Files, entries[1].Files)
	}
}

func TestEntriesSkipsBrokenSidecar(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	if err := os.WriteFile(f.path("broken.info"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("broken sidecar should be skipped but got %+v", entries)
	}
}
