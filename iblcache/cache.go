// Package iblcache keeps baked image based lighting resources in a
// directory so that they are only rendered once per source.
//
// Cube maps are stored as one Radiance file per face and mip level next to
// a sidecar file with their shape. The sidecar is written last and marks an
// entry as complete. The BRDF lookup table is a single f32 file.
package iblcache

import (
	"errors"
	"fmt"
	"os"

	"iblbake/libgpu"
)

var (
	// ErrShapeMismatch is returned under MismatchFail when a cached entry
	// has a different size or mip count than requested.
	ErrShapeMismatch = errors.New("cached shape does not match request")
	// ErrCorrupt is returned under MismatchFail when a sidecar exists but
	// the entry can not be loaded.
	ErrCorrupt = errors.New("cache entry is corrupt")
	// ErrNameInUse is returned when an irradiance and a prefiltered entry
	// would share the same files.
	ErrNameInUse = errors.New("entry name is used by another kind")
)

// MismatchPolicy decides what happens with a cache entry whose shape
// differs from the requested one.
type MismatchPolicy int

const (
	// MismatchRebake renders the resource again and replaces the entry.
	MismatchRebake MismatchPolicy = iota
	// MismatchFail returns ErrShapeMismatch.
	MismatchFail
	// MismatchKeepCached loads the entry in its cached shape.
	MismatchKeepCached
)

func (p MismatchPolicy) String() string {
	switch p {
	case MismatchRebake:
		return "rebake"
	case MismatchFail:
		return "fail"
	case MismatchKeepCached:
		return "keep"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParseMismatchPolicy(s string) (MismatchPolicy, error) {
	for _, p := range []MismatchPolicy{MismatchRebake, MismatchFail, MismatchKeepCached} {
		if p.String() == s {
			return p, nil
		}
	}
	return MismatchRebake, fmt.Errorf("unknown mismatch policy %q: %w", s, libgpu.ErrInvalid)
}

// Quality holds the parameters of the passes run on a cache miss.
type Quality struct {
	BrdfSamples           int
	IrradianceSampleDelta float32
	PrefilterSamples      int
	// LutFormat is the format of the BRDF lookup table, CubeFormat that of
	// every cube map.
	LutFormat  libgpu.Format
	CubeFormat libgpu.Format
}

func DefaultQuality() Quality {
	return Quality{
		BrdfSamples:           1024,
		IrradianceSampleDelta: 0.025,
		PrefilterSamples:      512,
		LutFormat:             libgpu.FormatRG16F,
		CubeFormat:            libgpu.FormatRGBA16F,
	}
}

type Option func(c *Cache)

func WithPolicy(p MismatchPolicy) Option {
	return func(c *Cache) {
		c.Policy = p
	}
}

func WithQuality(q Quality) Option {
	return func(c *Cache) {
		c.Quality = q
	}
}

type Cache struct {
	Dir      string
	Arena    *libgpu.Arena
	Compiler libgpu.Compiler
	Policy   MismatchPolicy
	Quality  Quality
}

// New returns a cache in dir, creating the directory if needed.
func New(dir string, arena *libgpu.Arena, compiler libgpu.Compiler, options ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	c := &Cache{
		Dir:      dir,
		Arena:    arena,
		Compiler: compiler,
		Policy:   MismatchRebake,
		Quality:  DefaultQuality(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Artifact is a resource returned by the cache. The caller owns it.
type Artifact struct {
	Image *libgpu.Image
	View  *libgpu.View
	// Hit is true when the resource was loaded from disk.
	Hit bool
	// Files are the paths that were read or written.
	Files []string
}

func newArtifact(arena *libgpu.Arena, img *libgpu.Image, hit bool, files []string) *Artifact {
	return &Artifact{
		Image: img,
		View:  arena.NewView(img.Handle(), libgpu.ViewDesc{}),
		Hit:   hit,
		Files: files,
	}
}

func (a *Artifact) Destroy() {
	if a.View != nil {
		a.View.Destroy()
	}
	if a.Image != nil {
		a.Image.Destroy()
	}
}

// shape is the size and mip count of a cached resource.
type shape struct {
	Size      int
	MipLevels int
}

func (s shape) String() string {
	return fmt.Sprintf("%d/%d", s.Size, s.MipLevels)
}

// resolve decides how to continue after reading an entry of shape cached,
// when want was requested. It returns the shape to load, or false to bake.
func (c *Cache) resolve(name string, cached, want shape) (shape, bool, error) {
	if cached == want {
		return cached, true, nil
	}
	log := libgpu.Logger().With("entry", name, "cached", cached.String(), "requested", want.String(), "policy", c.Policy)
	switch c.Policy {
	case MismatchFail:
		log.Error("cache shape mismatch")
		return cached, false, fmt.Errorf("%s: cached %v, requested %v: %w", name, cached, want, ErrShapeMismatch)
	case MismatchKeepCached:
		log.Warn("cache shape mismatch, keeping cached entry")
		return cached, true, nil
	}
	log.Warn("cache shape mismatch, rebaking")
	return want, false, nil
}

// corrupt reports an entry that could not be loaded. Unless the policy is
// MismatchFail the entry is baked again.
func (c *Cache) corrupt(name string, err error) error {
	if c.Policy == MismatchFail {
		libgpu.Logger().Error("corrupt cache entry", "entry", name, "err", err)
		return fmt.Errorf("%s: %w: %w", name, ErrCorrupt, err)
	}
	libgpu.Logger().Warn("corrupt cache entry, rebaking", "entry", name, "err", err)
	return nil
}
