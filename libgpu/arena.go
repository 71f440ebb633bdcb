package libgpu

import (
	"errors"
	"fmt"
)

// ImageHandle is a stable reference to an image in an Arena. Handles are
// never reused for a different image: a slot that is recycled gets a new
// generation, so a stale handle resolves to ErrNotFound.
type ImageHandle struct {
	index      uint32
	generation uint32
}

func (h ImageHandle) IsZero() bool {
	return h.generation == 0
}

func (h ImageHandle) String() string {
	return fmt.Sprintf("image#%d.%d", h.index, h.generation)
}

type arenaSlot struct {
	image      *Image
	generation uint32
}

// Arena owns the images of one device and hands out handles to them.
// It is not safe for concurrent use.
type Arena struct {
	dev   Device
	slots []arenaSlot
	free  []uint32
	live  int
}

func NewArena(dev Device) *Arena {
	return &Arena{dev: dev}
}

func (a *Arena) Device() Device {
	return a.dev
}

// Len returns the number of live images.
func (a *Arena) Len() int {
	return a.live
}

// Create allocates an image. On failure nothing is registered and the
// returned error wraps ErrAllocation or ErrInvalid.
func (a *Arena) Create(desc ImageDesc) (*Image, error) {
	desc, err := normalizeImageDesc(desc, a.dev.Limits())
	if err != nil {
		return nil, err
	}
	hw, err := a.dev.NewImage(&desc)
	if err != nil {
		return nil, allocationError(fmt.Sprintf("create image %q", desc.Label), err)
	}
	img := &Image{
		arena:   a,
		hw:      hw,
		desc:    desc,
		layout:  LayoutUndefined,
		version: 1,
		owned:   true,
	}
	img.handle = a.insert(img)
	Logger().Debug("image created", "handle", img.handle, "label", desc.Label, "kind", desc.Kind,
		"format", desc.Format, "width", desc.Width, "height", desc.Height, "levels", desc.MipLevels)
	return img, nil
}

// Adopt registers an image whose memory belongs to someone else, such as
// a presentation surface. Destroying the returned Image never destroys hw.
func (a *Arena) Adopt(hw HwImage, desc ImageDesc, layout Layout) (*Image, error) {
	desc, err := normalizeImageDesc(desc, a.dev.Limits())
	if err != nil {
		return nil, err
	}
	img := &Image{
		arena:   a,
		hw:      hw,
		desc:    desc,
		layout:  layout,
		version: 1,
	}
	img.handle = a.insert(img)
	return img, nil
}

// Lookup resolves a handle. It returns ErrNotFound for destroyed images.
func (a *Arena) Lookup(h ImageHandle) (*Image, error) {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil, fmt.Errorf("%v: %w", h, ErrNotFound)
	}
	slot := a.slots[h.index]
	if slot.generation != h.generation || slot.image == nil {
		return nil, fmt.Errorf("%v: %w", h, ErrNotFound)
	}
	return slot.image, nil
}

// NewView creates a view of the image behind h. The view is built lazily.
func (a *Arena) NewView(h ImageHandle, desc ViewDesc) *View {
	v := &View{
		arena:  a,
		source: h,
		desc:   desc,
	}
	v.cache = NewCached(func(hv HwView) { hv.Destroy() })
	return v
}

// Submit records a one-shot command buffer and waits for it to complete.
func (a *Arena) Submit(record func(cb CmdBuffer) error) error {
	return SubmitOneShot(a.dev, record)
}

// Destroy destroys every live image.
func (a *Arena) Destroy() {
	for _, slot := range a.slots {
		if slot.image != nil {
			slot.image.Destroy()
		}
	}
}

func (a *Arena) insert(img *Image) ImageHandle {
	a.live++
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		slot := &a.slots[index]
		slot.generation++
		slot.image = img
		return ImageHandle{index: index, generation: slot.generation}
	}
	a.slots = append(a.slots, arenaSlot{image: img, generation: 1})
	return ImageHandle{index: uint32(len(a.slots) - 1), generation: 1}
}

func (a *Arena) remove(h ImageHandle) {
	if _, err := a.Lookup(h); err != nil {
		return
	}
	a.slots[h.index].image = nil
	a.free = append(a.free, h.index)
	a.live--
}

// SubmitOneShot records a command buffer with record, submits it and waits.
// Errors from the device are wrapped with ErrSubmit.
func SubmitOneShot(dev Device, record func(cb CmdBuffer) error) error {
	cb, err := dev.NewCmdBuffer()
	if err != nil {
		return allocationError("create command buffer", err)
	}
	defer cb.Destroy()

	if err := record(cb); err != nil {
		return err
	}
	if err := dev.Submit(cb); err != nil {
		if errors.Is(err, ErrSubmit) || errors.Is(err, ErrLayout) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	return nil
}

func allocationError(what string, err error) error {
	if errors.Is(err, ErrAllocation) || errors.Is(err, ErrInvalid) || errors.Is(err, ErrUnsupported) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %w", what, ErrAllocation, err)
}

func normalizeImageDesc(desc ImageDesc, limits Limits) (ImageDesc, error) {
	if desc.Format == FormatUndefined {
		return desc, fmt.Errorf("image %q has no format: %w", desc.Label, ErrInvalid)
	}
	if desc.Width <= 0 {
		return desc, fmt.Errorf("image %q width %d: %w", desc.Label, desc.Width, ErrInvalid)
	}
	switch desc.Kind {
	case Image1D:
		desc.Height = 1
	case ImageCube:
		if desc.Height == 0 {
			desc.Height = desc.Width
		}
		if desc.Height != desc.Width {
			return desc, fmt.Errorf("cube image %q is %dx%d, faces must be square: %w", desc.Label, desc.Width, desc.Height, ErrInvalid)
		}
		desc.Layers = 6
	default:
		if desc.Height <= 0 {
			return desc, fmt.Errorf("image %q height %d: %w", desc.Label, desc.Height, ErrInvalid)
		}
	}
	if desc.Layers <= 0 {
		desc.Layers = 1
	}
	if desc.Samples <= 0 {
		desc.Samples = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	desc.MipLevels = ResolveMipLevels(desc.Width, desc.Height, desc.MipLevels)
	if desc.Samples > 1 && desc.MipLevels > 1 {
		return desc, fmt.Errorf("multisampled image %q can not have mip levels: %w", desc.Label, ErrInvalid)
	}

	max := limits.MaxImage2D
	if desc.Kind == ImageCube && limits.MaxImageCube > 0 {
		max = limits.MaxImageCube
	}
	if max > 0 && (desc.Width > max || desc.Height > max) {
		return desc, fmt.Errorf("image %q is %dx%d, device limit is %d: %w", desc.Label, desc.Width, desc.Height, max, ErrAllocation)
	}
	if limits.MaxLayers > 0 && desc.Layers > limits.MaxLayers {
		return desc, fmt.Errorf("image %q has %d layers, device limit is %d: %w", desc.Label, desc.Layers, limits.MaxLayers, ErrAllocation)
	}
	return desc, nil
}
