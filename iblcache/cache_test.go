package iblcache_test

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"testing"

	"iblbake/iblcache"
	"iblbake/libgpu"
	"iblbake/libgpu/soft"
	"iblbake/libio"
)

func TestBrdfLut(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)

	first, err := c.BrdfLut("brdf_lut.f32", 128)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Destroy()
	if first.Hit {
		t.Error("first request should miss")
	}
	if stats := f.dev.Stats(); stats.Draws != 1 {
		t.Errorf("miss should run the pass once, drew %d times", stats.Draws)
	}
	if files := f.files(t); !reflect.DeepEqual(files, []string{"brdf_lut.f32"}) {
		t.Errorf("cache should only hold the table, holds %v", files)
	}

	f.dev.ResetStats()
	second, err := c.BrdfLut("brdf_lut.f32", 128)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Destroy()
	if !second.Hit {
		t.Error("second request should hit")
	}
	if stats := f.dev.Stats(); stats.Draws != 0 {
		t.Errorf("hit should not run the pass, drew %d times", stats.Draws)
	}
	desc := second.Image.Desc()
	if desc.Format != libgpu.FormatRG16F || desc.Width != 128 || desc.Height != 128 {
		t.Errorf("unexpected cached table %v", second.Image)
	}
	if second.Image.Layout() != libgpu.LayoutShaderRead {
		t.Errorf("cached table should be in %v but is in %v", libgpu.LayoutShaderRead, second.Image.Layout())
	}
	if _, err := second.View.Handle(); err != nil {
		t.Errorf("view of cached table: %v", err)
	}
	expectSimilar(t, "brdf lut", readAll(t, first.Image), readAll(t, second.Image), 2, 1e-3)
}

func TestBrdfLutFile(t *testing.T) {
	f := newFixture(t)
	lut, err := f.cache(t).BrdfLut("lut", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer lut.Destroy()

	file, err := os.Open(f.path("lut"))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, err := libio.DecodeFloatImage(bufio.NewReader(file))
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 16 || img.Height != 16 || img.Channels != 2 {
		t.Errorf("table file should be 16x16x2 but is %dx%dx%d", img.Width, img.Height, img.Channels)
	}
}

func TestBrdfLutUploadError(t *testing.T) {
	f := newFixture(t)
	lut, err := f.cache(t).BrdfLut("lut", 8)
	if err != nil {
		t.Fatal(err)
	}
	lut.Destroy()

	// the stored table decodes but can not be uploaded
	arena := libgpu.NewArena(failingUploads{Device: f.dev})
	t.Cleanup(arena.Destroy)
	newCache := func(options ...iblcache.Option) *iblcache.Cache {
		options = append([]iblcache.Option{iblcache.WithQuality(fastQuality())}, options...)
		c, err := iblcache.New(f.dir, arena, soft.NewCompiler(), options...)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	_, err = newCache(iblcache.WithPolicy(iblcache.MismatchFail)).BrdfLut("lut", 8)
	if !errors.Is(err, iblcache.ErrCorrupt) {
		t.Errorf("request should fail with %v but got %v", iblcache.ErrCorrupt, err)
	}
	if arena.Len() != 0 {
		t.Errorf("failed upload should release its image, arena holds %d", arena.Len())
	}

	again, err := newCache().BrdfLut("lut", 8)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Destroy()
	if again.Hit {
		t.Error("table that failed to upload should be baked again")
	}
	if arena.Len() != 1 {
		t.Errorf("arena should only hold the baked table, holds %d", arena.Len())
	}
}

func TestIrradiance(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	src := f.panorama(t, 256, 128)
	key := iblcache.Key{Name: "env"}

	first, err := c.Irradiance(key, src, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Destroy()
	if first.Hit {
		t.Error("first request should miss")
	}

	expected := []string{"env.info"}
	for layer := 0; layer < 6; layer++ {
		expected = append(expected, fmt.Sprintf("env.layer%d.hdr", layer))
	}
	if files := f.files(t); !reflect.DeepEqual(files, expected) {
		t.Errorf("cache should hold %v but holds %v", expected, files)
	}
	info, err := os.ReadFile(f.path("env.info"))
	if err != nil {
		t.Fatal(err)
	}
	if string(info) != "32 " {
		t.Errorf("sidecar should be: %q but is %q", "32 ", info)
	}
	for layer := 0; layer < 6; layer++ {
		file, err := os.Open(f.path(fmt.Sprintf("env.layer%d.hdr", layer)))
		if err != nil {
			t.Fatal(err)
		}
		w, h, err := libio.DecodeHdrConfig(bufio.NewReader(file))
		file.Close()
		if err != nil {
			t.Fatal(err)
		}
		if w != 32 || h != 32 {
			t.Errorf("face %d should be 32x32 but is %dx%d", layer, w, h)
		}
	}

	f.dev.ResetStats()
	second, err := c.Irradiance(key, src, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Destroy()
	if !second.Hit {
		t.Error("second request should hit")
	}
	if stats := f.dev.Stats(); stats.Draws != 0 || stats.Uploads != 6 {
		t.Errorf("hit should upload 6 faces without drawing: %+v", stats)
	}
	expectSimilar(t, "irradiance", readAll(t, first.Image), readAll(t, second.Image), 3, 1.0/64)
}

func TestPrefilteredIdempotence(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	src := f.panorama(t, 64, 32)
	key := iblcache.Key{Name: "env", Source: "panorama"}

	first, err := c.Prefiltered(key, src, 16, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Destroy()
	if first.Hit || first.Image.Desc().MipLevels != 3 {
		t.Fatalf("first request should bake 3 levels, got hit=%v %v", first.Hit, first.Image)
	}
	if len(first.Files) != 6*3+1 {
		t.Errorf("entry should have %d files but has %d", 6*3+1, len(first.Files))
	}
	for _, file := range first.Files {
		if _, err := os.Stat(file); err != nil {
			t.Error(err)
		}
	}

	second, err := c.Prefiltered(key, src, 16, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Destroy()
	if !second.Hit {
		t.Error("second request should hit")
	}
	expectSimilar(t, "prefiltered", readAll(t, first.Image), readAll(t, second.Image), 3, 1.0/64)

	// a cube source is used as is
	env := second.Image
	third, err := c.Prefiltered(iblcache.Key{Name: "env", Source: "cube"}, env, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer third.Destroy()
	if third.Hit || third.Image.Desc().MipLevels != 2 {
		t.Errorf("cube source should bake 2 levels, got hit=%v %v", third.Hit, third.Image)
	}
}

// populate bakes a prefiltered entry of size 128 with 4 mip levels.
func populate(t *testing.T, f *fixture, key iblcache.Key, src *libgpu.Image) {
	t.Helper()
	a, err := f.cache(t).Prefiltered(key, src, 128, 4)
	if err != nil {
		t.Fatal(err)
	}
	a.Destroy()
}

func TestPrefilteredShapeMismatch(t *testing.T) {
	f := newFixture(t)
	src := f.panorama(t, 256, 128)
	key := iblcache.Key{Name: "specular"}
	populate(t, f, key, src)

	t.Run("keep", func(t *testing.T) {
		f.dev.ResetStats()
		a, err := f.cache(t, iblcache.WithPolicy(iblcache.MismatchKeepCached)).Prefiltered(key, src, 128, 6)
		if err != nil {
			t.Fatal(err)
		}
		defer a.Destroy()
		if !a.Hit || a.Image.Desc().MipLevels != 4 {
			t.Errorf("cached 4 level entry should be loaded, got hit=%v %v", a.Hit, a.Image)
		}
		if stats := f.dev.Stats(); stats.Draws != 0 || stats.Uploads != 24 {
			t.Errorf("loading should upload 24 files without drawing: %+v", stats)
		}
	})

	t.Run("fail", func(t *testing.T) {
		images := f.arena.Len()
		_, err := f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).Prefiltered(key, src, 128, 6)
		if !errors.Is(err, iblcache.ErrShapeMismatch) {
			t.Errorf("request should fail with %v but got %v", iblcache.ErrShapeMismatch, err)
		}
		if f.arena.Len() != images {
			t.Errorf("failed request should not create images, arena holds %d instead of %d", f.arena.Len(), images)
		}
	})

	t.Run("rebake", func(t *testing.T) {
		a, err := f.cache(t).Prefiltered(key, src, 128, 6)
		if err != nil {
			t.Fatal(err)
		}
		defer a.Destroy()
		if a.Hit || a.Image.Desc().MipLevels != 6 {
			t.Errorf("entry should be baked with 6 levels, got hit=%v %v", a.Hit, a.Image)
		}
		info, err := os.ReadFile(f.path("specular.info"))
		if err != nil {
			t.Fatal(err)
		}
		if string(info) != "128 6 " {
			t.Errorf("sidecar should be: %q but is %q", "128 6 ", info)
		}
		if _, err := os.Stat(f.path("specular.layer5.mipLevel5.hdr")); err != nil {
			t.Error(err)
		}

		again, err := f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).Prefiltered(key, src, 128, 6)
		if err != nil {
			t.Fatal(err)
		}
		defer again.Destroy()
		if !again.Hit {
			t.Error("rebaked entry should hit")
		}
	})
}

func TestCorruptEntry(t *testing.T) {
	f := newFixture(t)
	src := f.panorama(t, 64, 32)
	key := iblcache.Key{Name: "diffuse"}

	a, err := f.cache(t).Irradiance(key, src, 8)
	if err != nil {
		t.Fatal(err)
	}
	a.Destroy()
	if err := os.Remove(f.path("diffuse.layer3.hdr")); err != nil {
		t.Fatal(err)
	}
	images := f.arena.Len()

	_, err = f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).Irradiance(key, src, 8)
	if !errors.Is(err, iblcache.ErrCorrupt) {
		t.Errorf("request should fail with %v but got %v", iblcache.ErrCorrupt, err)
	}
	if f.arena.Len() != images {
		t.Errorf("failed load should release its image, arena holds %d instead of %d", f.arena.Len(), images)
	}

	f.dev.ResetStats()
	b, err := f.cache(t).Irradiance(key, src, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()
	if b.Hit {
		t.Error("corrupt entry should be baked again")
	}
	if stats := f.dev.Stats(); stats.Draws != 6 {
		t.Errorf("rebake should draw 6 faces: %+v", stats)
	}
	if _, err := os.Stat(f.path("diffuse.layer3.hdr")); err != nil {
		t.Errorf("missing face should be written again: %v", err)
	}

	if err := os.WriteFile(f.path("diffuse.info"), []byte("big "), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).Irradiance(key, src, 8)
	if !errors.Is(err, iblcache.ErrCorrupt) {
		t.Errorf("unreadable sidecar should fail with %v but got %v", iblcache.ErrCorrupt, err)
	}
}

func TestCorruptLut(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.path("lut"), []byte("not a table"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).BrdfLut("lut", 8)
	if !errors.Is(err, iblcache.ErrCorrupt) {
		t.Errorf("request should fail with %v but got %v", iblcache.ErrCorrupt, err)
	}
	a, err := f.cache(t).BrdfLut("lut", 8)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	if a.Hit {
		t.Error("corrupt table should be baked again")
	}
}

func TestLutShapeMismatch(t *testing.T) {
	f := newFixture(t)
	a, err := f.cache(t).BrdfLut("lut", 8)
	if err != nil {
		t.Fatal(err)
	}
	a.Destroy()

	_, err = f.cache(t, iblcache.WithPolicy(iblcache.MismatchFail)).BrdfLut("lut", 16)
	if !errors.Is(err, iblcache.ErrShapeMismatch) {
		t.Errorf("request should fail with %v but got %v", iblcache.ErrShapeMismatch, err)
	}
	b, err := f.cache(t, iblcache.WithPolicy(iblcache.MismatchKeepCached)).BrdfLut("lut", 16)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()
	if !b.Hit || b.Image.Desc().Width != 8 {
		t.Errorf("cached 8x8 table should be loaded, got hit=%v %v", b.Hit, b.Image)
	}
}

func TestFewerMipLevelsRemovesStaleFiles(t *testing.T) {
	f := newFixture(t)
	src := f.panorama(t, 64, 32)
	key := iblcache.Key{Name: "specular"}

	a, err := f.cache(t).Prefiltered(key, src, 16, 3)
	if err != nil {
		t.Fatal(err)
	}
	a.Destroy()

	b, err := f.cache(t).Prefiltered(key, src, 16, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()
	if b.Hit {
		t.Error("entry with another mip count should be baked again")
	}

	expected := []string{"specular.info"}
	for level := 0; level < 2; level++ {
		for layer := 0; layer < 6; layer++ {
			expected = append(expected, fmt.Sprintf("specular.layer%d.mipLevel%d.hdr", layer, level))
		}
	}
	sort.Strings(expected)
	if files := f.files(t); !reflect.DeepEqual(files, expected) {
		t.Errorf("cache should hold %v but holds %v", expected, files)
	}
	entries, err := f.cache(t).Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || len(entries[0].Files) != 13 {
		t.Errorf("cache should list one entry with 13 files but lists %+v", entries)
	}
}

func TestNameUsedByAnotherKind(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	src := f.panorama(t, 64, 32)
	key := iblcache.Key{Name: "env"}

	irr, err := c.Irradiance(key, src, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer irr.Destroy()
	images := f.arena.Len()

	_, err = c.Prefiltered(key, src, 8, 2)
	if !errors.Is(err, iblcache.ErrNameInUse) {
		t.Errorf("prefiltered entry should fail with %v but got %v", iblcache.ErrNameInUse, err)
	}
	if f.arena.Len() != images {
		t.Errorf("rejected request should not create images, arena holds %d instead of %d", f.arena.Len(), images)
	}
	info, err := os.ReadFile(f.path("env.info"))
	if err != nil {
		t.Fatal(err)
	}
	if string(info) != "8 " {
		t.Errorf("irradiance sidecar should be kept as %q but is %q", "8 ", info)
	}

	again, err := c.Irradiance(key, src, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Destroy()
	if !again.Hit {
		t.Error("irradiance entry should still hit")
	}

	// a source keeps the kinds apart
	pre, err := c.Prefiltered(iblcache.Key{Name: "env", Source: "panorama"}, src, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pre.Destroy()
}
