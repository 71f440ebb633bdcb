package libgpu_test

import (
	"errors"
	"testing"

	"iblbake/libgpu"
)

func TestViewStaleness(t *testing.T) {
	arena, dev := newArena(t)
	img := newImage(t, arena, rgba32("source", 4, 4))

	view := arena.NewView(img.Handle(), libgpu.ViewDesc{})
	defer view.Destroy()

	if !view.Outdated() {
		t.Error("view should be outdated before first use")
	}
	first, err := view.Handle()
	if err != nil {
		t.Fatal(err)
	}
	if view.Outdated() {
		t.Error("view should be fresh after Handle")
	}
	again, _ := view.Handle()
	if again != first {
		t.Error("fresh view should not be rebuilt")
	}

	mutations := []struct {
		name   string
		mutate func() error
	}{
		{"reallocate", func() error { return img.Reallocate(rgba32("source", 8, 8)) }},
		{"upload", func() error {
			if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
				return err
			}
			return img.UploadFloats(ramp(8*8*4), libgpu.Region{})
		}},
		{"mark", func() error { img.MarkModified(); return nil }},
		{"repoint", func() error {
			hw, err := dev.NewImage(&libgpu.ImageDesc{Format: libgpu.FormatRGBA32F, Width: 2, Height: 2, Layers: 1, MipLevels: 1, Samples: 1,
				Usage: libgpu.UsageSampled})
			if err != nil {
				return err
			}
			return img.Repoint(hw, libgpu.ImageDesc{Format: libgpu.FormatRGBA32F, Width: 2, Height: 2, Usage: libgpu.UsageSampled},
				libgpu.LayoutUndefined, true)
		}},
	}

	for _, m := range mutations {
		if err := m.mutate(); err != nil {
			t.Fatalf("%s: %v", m.name, err)
		}
		if !view.Outdated() {
			t.Errorf("view should be outdated after %s", m.name)
		}
		if !view.Outdated() {
			t.Errorf("Outdated should not rebuild the view (%s)", m.name)
		}
		if _, err := view.Handle(); err != nil {
			t.Fatalf("%s: %v", m.name, err)
		}
		if view.Outdated() {
			t.Errorf("view should be fresh after Handle following %s", m.name)
		}
	}

	if is := dev.Stats().Views; is != 1 {
		t.Errorf("exactly one device view should be alive, is %d", is)
	}
}

func TestViewSetSource(t *testing.T) {
	arena, _ := newArena(t)
	a := newImage(t, arena, rgba32("a", 4, 4))
	b := newImage(t, arena, rgba32("b", 4, 4))

	view := arena.NewView(a.Handle(), libgpu.ViewDesc{})
	defer view.Destroy()
	if _, err := view.Handle(); err != nil {
		t.Fatal(err)
	}

	view.SetSource(b.Handle())
	if !view.Outdated() {
		t.Error("view should be outdated after SetSource, even if versions match")
	}
	if _, err := view.Handle(); err != nil {
		t.Fatal(err)
	}
	if view.Source() != b.Handle() {
		t.Error("view should refer to the new source")
	}

	view.SetSource(a.Handle(), libgpu.FormatRGBA16F)
	if _, err := view.Handle(); !errors.Is(err, libgpu.ErrInvalid) {
		t.Errorf("view format of another texel size should fail with ErrInvalid, got %v", err)
	}
}

func TestViewOfDestroyedImage(t *testing.T) {
	arena, dev := newArena(t)
	img := newImage(t, arena, rgba32("gone", 4, 4))

	view := arena.NewView(img.Handle(), libgpu.ViewDesc{})
	if _, err := view.Handle(); err != nil {
		t.Fatal(err)
	}
	img.Destroy()

	if !view.Outdated() {
		t.Error("view of a destroyed image should be outdated")
	}
	if _, err := view.Handle(); !errors.Is(err, libgpu.ErrNotFound) {
		t.Errorf("view of a destroyed image should fail with ErrNotFound, got %v", err)
	}
	if is := dev.Stats().Views; is != 0 {
		t.Errorf("device view should be released once the source is gone, %d alive", is)
	}

	// the recycled slot must not resolve the old handle
	other := newImage(t, arena, rgba32("other", 4, 4))
	if _, err := arena.Lookup(img.Handle()); !errors.Is(err, libgpu.ErrNotFound) {
		t.Errorf("stale handle should not resolve, got %v", err)
	}
	if other.Handle() == img.Handle() {
		t.Error("recycled slot should get a new handle")
	}
}

func TestCubeView(t *testing.T) {
	arena, _ := newArena(t)
	desc := rgba32("cube", 8, 8)
	desc.Kind = libgpu.ImageCube
	cube := newImage(t, arena, desc)
	if is := cube.Desc().Layers; is != 6 {
		t.Fatalf("cube should have 6 layers, has %d", is)
	}

	face := arena.NewView(cube.Handle(), libgpu.ViewDesc{BaseLayer: 2, Layers: 1})
	defer face.Destroy()
	if _, err := face.Handle(); err != nil {
		t.Errorf("single face view: %v", err)
	}

	bad := arena.NewView(cube.Handle(), libgpu.ViewDesc{Kind: libgpu.ViewCube, Layers: 3})
	defer bad.Destroy()
	if _, err := bad.Handle(); !errors.Is(err, libgpu.ErrInvalid) {
		t.Errorf("cube view over 3 layers should fail with ErrInvalid, got %v", err)
	}
}
