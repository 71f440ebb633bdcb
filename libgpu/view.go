package libgpu

import "fmt"

// View is a derived, read-only view of an image. It refers to the image by
// handle and never keeps it alive. The device view is rebuilt on the next
// Handle call whenever the image changed since it was built.
type View struct {
	arena  *Arena
	source ImageHandle
	desc   ViewDesc
	cache  *Cached[HwView]
}

func (v *View) Source() ImageHandle {
	return v.source
}

func (v *View) Desc() ViewDesc {
	return v.desc
}

// Outdated reports whether the next Handle call rebuilds the device view.
// It is also true when the source image no longer exists.
func (v *View) Outdated() bool {
	img, err := v.arena.Lookup(v.source)
	if err != nil {
		return true
	}
	return v.cache.Outdated(img.Version())
}

// Handle returns the device view, rebuilding it first if it is outdated.
// It fails with ErrNotFound once the source image has been destroyed.
func (v *View) Handle() (HwView, error) {
	img, err := v.arena.Lookup(v.source)
	if err != nil {
		v.cache.Release()
		return nil, err
	}
	return v.cache.Get(img.Version(), func() (HwView, error) {
		desc, err := resolveViewDesc(v.desc, &img.desc)
		if err != nil {
			return nil, err
		}
		hv, err := v.arena.dev.NewView(img.hw, &desc)
		if err != nil {
			return nil, allocationError(fmt.Sprintf("create view of %v", img.handle), err)
		}
		Logger().Debug("view rebuilt", "image", img.handle, "version", img.Version(), "kind", desc.Kind)
		return hv, nil
	})
}

// SetSource binds the view to another image and optionally another
// format. The view is always outdated afterwards.
func (v *View) SetSource(h ImageHandle, format ...Format) {
	v.source = h
	if len(format) > 0 {
		v.desc.Format = format[0]
	}
	v.cache.Invalidate()
}

// Destroy releases the device view. The source image is not touched.
func (v *View) Destroy() {
	v.cache.Release()
}

func resolveViewDesc(desc ViewDesc, img *ImageDesc) (ViewDesc, error) {
	if desc.Format == FormatUndefined {
		desc.Format = img.Format
	}
	if desc.Format.Size() != img.Format.Size() {
		return desc, fmt.Errorf("view format %v is incompatible with image format %v: %w", desc.Format, img.Format, ErrInvalid)
	}
	if desc.BaseLevel < 0 || desc.BaseLevel >= img.MipLevels {
		return desc, fmt.Errorf("view base level %d of %d levels: %w", desc.BaseLevel, img.MipLevels, ErrInvalid)
	}
	if desc.Levels <= 0 || desc.BaseLevel+desc.Levels > img.MipLevels {
		desc.Levels = img.MipLevels - desc.BaseLevel
	}
	if desc.BaseLayer < 0 || desc.BaseLayer >= img.Layers {
		return desc, fmt.Errorf("view base layer %d of %d layers: %w", desc.BaseLayer, img.Layers, ErrInvalid)
	}
	if desc.Layers <= 0 || desc.BaseLayer+desc.Layers > img.Layers {
		desc.Layers = img.Layers - desc.BaseLayer
	}
	if desc.Kind == ViewDefault {
		switch {
		case img.Kind == ImageCube && desc.Layers == 6:
			desc.Kind = ViewCube
		case img.Kind == Image1D:
			desc.Kind = View1D
		case desc.Layers > 1:
			desc.Kind = View2DArray
		default:
			desc.Kind = View2D
		}
	}
	if desc.Kind == ViewCube && desc.Layers != 6 {
		return desc, fmt.Errorf("cube view over %d layers: %w", desc.Layers, ErrInvalid)
	}
	return desc, nil
}
