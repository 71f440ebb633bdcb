package libgpu

import (
	"fmt"
)

// Image owns one device image allocation and tracks its layout and
// version. Every operation that touches the device submits a one-shot
// command buffer and blocks until it has executed.
type Image struct {
	arena   *Arena
	handle  ImageHandle
	hw      HwImage
	desc    ImageDesc
	layout  Layout
	version uint64
	owned   bool
}

func (img *Image) Handle() ImageHandle {
	return img.handle
}

func (img *Image) Desc() ImageDesc {
	return img.desc
}

func (img *Image) Hw() HwImage {
	return img.hw
}

// Layout returns the layout all sub-resources are in between operations.
func (img *Image) Layout() Layout {
	return img.layout
}

// Version increases with every mutation of the image.
func (img *Image) Version() uint64 {
	return img.version
}

// Owned reports whether destroying the image frees its memory.
func (img *Image) Owned() bool {
	return img.owned
}

func (img *Image) Destroyed() bool {
	return img.hw == nil
}

func (img *Image) Extent(level int) (w, h int) {
	return img.desc.Extent(level)
}

func (img *Image) String() string {
	return fmt.Sprintf("%v %q (%v %v %dx%d, %d levels)", img.handle, img.desc.Label, img.desc.Kind,
		img.desc.Format, img.desc.Width, img.desc.Height, img.desc.MipLevels)
}

// TransitionLayout moves every sub-resource from one layout to another.
// from must be the current layout, or LayoutUndefined to discard the
// contents.
func (img *Image) TransitionLayout(from, to Layout) error {
	if err := img.check(); err != nil {
		return err
	}
	if from != LayoutUndefined && from != img.layout {
		return fmt.Errorf("transition %v from %v, image is in %v: %w", img.handle, from, img.layout, ErrLayout)
	}
	err := img.arena.Submit(func(cb CmdBuffer) error {
		cb.Transition([]Barrier{{Image: img.hw, Before: from, After: to}})
		return nil
	})
	if err != nil {
		return fmt.Errorf("transition %v: %w", img.handle, err)
	}
	img.layout = to
	return nil
}

// RecordTransition records a transition of every sub-resource into cb and
// updates the tracked layout. It is meant for operations that batch work
// into a single submission.
func (img *Image) RecordTransition(cb CmdBuffer, to Layout) {
	cb.Transition([]Barrier{{Image: img.hw, Before: img.layout, After: to}})
	img.layout = to
}

// ResetLayout sets the tracked layout without recording a transition. It
// undoes RecordTransition calls whose command buffer failed to submit.
func (img *Image) ResetLayout(layout Layout) {
	img.layout = layout
}

// MarkModified bumps the version after the image was written by commands
// recorded outside of Image.
func (img *Image) MarkModified() {
	img.version++
}

// Upload copies data into one region. The image must be in
// LayoutTransferDst.
func (img *Image) Upload(data []byte, region Region) error {
	if err := img.check(); err != nil {
		return err
	}
	if img.layout != LayoutTransferDst {
		return fmt.Errorf("upload to %v in %v: %w", img.handle, img.layout, ErrLayout)
	}
	region, err := img.resolveRegion(region)
	if err != nil {
		return err
	}
	if want := img.regionBytes(region); len(data) != want {
		return fmt.Errorf("upload to %v: %d bytes, region needs %d: %w", img.handle, len(data), want, ErrInvalid)
	}
	err = img.arena.Submit(func(cb CmdBuffer) error {
		cb.CopyToImage(img.hw, region, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upload to %v: %w", img.handle, err)
	}
	img.version++
	return nil
}

// Download reads one region back. The image must be in LayoutTransferSrc.
func (img *Image) Download(region Region) ([]byte, error) {
	if err := img.check(); err != nil {
		return nil, err
	}
	if img.layout != LayoutTransferSrc {
		return nil, fmt.Errorf("download from %v in %v: %w", img.handle, img.layout, ErrLayout)
	}
	region, err := img.resolveRegion(region)
	if err != nil {
		return nil, err
	}
	data := make([]byte, img.regionBytes(region))
	err = img.arena.Submit(func(cb CmdBuffer) error {
		cb.CopyFromImage(img.hw, region, data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download from %v: %w", img.handle, err)
	}
	return data, nil
}

// UploadFloats uploads RGBA float texels, converting them to the image format.
func (img *Image) UploadFloats(texels []float32, region Region) error {
	data, err := EncodeTexels(img.desc.Format, texels)
	if err != nil {
		return err
	}
	return img.Upload(data, region)
}

// DownloadFloats reads a region back as RGBA float texels.
func (img *Image) DownloadFloats(region Region) ([]float32, error) {
	data, err := img.Download(region)
	if err != nil {
		return nil, err
	}
	return DecodeTexels(img.desc.Format, data)
}

// GenerateMipmaps fills levels 1 and up by downsampling from level 0.
// current is the layout the image is in, every level ends up in it again.
func (img *Image) GenerateMipmaps(current Layout) error {
	if err := img.check(); err != nil {
		return err
	}
	levels := img.desc.MipLevels
	if levels <= 1 {
		return nil
	}
	if current != img.layout {
		return fmt.Errorf("generate mipmaps of %v from %v, image is in %v: %w", img.handle, current, img.layout, ErrLayout)
	}
	err := img.arena.Submit(func(cb CmdBuffer) error {
		cb.Transition([]Barrier{
			{Image: img.hw, BaseLevel: 0, Levels: 1, Before: current, After: LayoutTransferSrc},
			{Image: img.hw, BaseLevel: 1, Before: LayoutUndefined, After: LayoutTransferDst},
		})
		for level := 1; level < levels; level++ {
			cb.Blit(&Blit{Image: img.hw, SrcLevel: level - 1, DstLevel: level, Filter: FilterLinear})
			cb.Transition([]Barrier{
				{Image: img.hw, BaseLevel: level, Levels: 1, Before: LayoutTransferDst, After: LayoutTransferSrc},
			})
		}
		cb.Transition([]Barrier{{Image: img.hw, Before: LayoutTransferSrc, After: current}})
		return nil
	})
	if err != nil {
		return fmt.Errorf("generate mipmaps of %v: %w", img.handle, err)
	}
	img.version++
	return nil
}

// Reallocate replaces the allocation with a new one described by desc.
// The contents are lost and every view of the image becomes outdated.
func (img *Image) Reallocate(desc ImageDesc) error {
	if err := img.check(); err != nil {
		return err
	}
	desc, err := normalizeImageDesc(desc, img.arena.dev.Limits())
	if err != nil {
		return err
	}
	hw, err := img.arena.dev.NewImage(&desc)
	if err != nil {
		return allocationError(fmt.Sprintf("reallocate %v", img.handle), err)
	}
	if img.owned {
		img.hw.Destroy()
	}
	img.hw = hw
	img.desc = desc
	img.owned = true
	img.layout = LayoutUndefined
	img.version++
	return nil
}

// Repoint makes the image refer to a different allocation, for example the
// next presentation image. When owned is false hw is never destroyed.
func (img *Image) Repoint(hw HwImage, desc ImageDesc, layout Layout, owned bool) error {
	if err := img.check(); err != nil {
		return err
	}
	desc, err := normalizeImageDesc(desc, img.arena.dev.Limits())
	if err != nil {
		return err
	}
	if img.owned && img.hw != hw {
		img.hw.Destroy()
	}
	img.hw = hw
	img.desc = desc
	img.owned = owned
	img.layout = layout
	img.version++
	return nil
}

// Destroy frees the allocation if the image owns it and invalidates the
// handle. It is safe to call more than once.
func (img *Image) Destroy() {
	if img.hw == nil {
		return
	}
	if img.owned {
		img.hw.Destroy()
	}
	img.hw = nil
	img.arena.remove(img.handle)
	Logger().Debug("image destroyed", "handle", img.handle, "label", img.desc.Label)
}

func (img *Image) check() error {
	if img.hw == nil {
		return fmt.Errorf("%v: %w", img.handle, ErrNotFound)
	}
	return nil
}

func (img *Image) resolveRegion(r Region) (Region, error) {
	if r.Level < 0 || r.Level >= img.desc.MipLevels {
		return r, fmt.Errorf("%v has no mip level %d: %w", img.handle, r.Level, ErrInvalid)
	}
	if r.Layers <= 0 {
		r.Layers = 1
	}
	if r.Layer < 0 || r.Layer+r.Layers > img.desc.Layers {
		return r, fmt.Errorf("%v has no layers [%d, %d): %w", img.handle, r.Layer, r.Layer+r.Layers, ErrInvalid)
	}
	w, h := img.desc.Extent(r.Level)
	if r.Width == 0 || r.Height == 0 {
		r.X, r.Y, r.Width, r.Height = 0, 0, w, h
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > w || r.Y+r.Height > h {
		return r, fmt.Errorf("region %dx%d+%d+%d exceeds level %d of %v: %w", r.Width, r.Height, r.X, r.Y, r.Level, img.handle, ErrInvalid)
	}
	return r, nil
}

func (img *Image) regionBytes(r Region) int {
	return r.Width * r.Height * r.Layers * img.desc.Format.Size()
}
