package iblcache

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"iblbake/libgpu"
	"iblbake/libutil"
)

// LoadPanorama reads the Radiance file at path into a 2D texture. b supplies
// the format, mip count and sampler and may be nil for a single level
// RGBA32F texture. The extent always comes from the file. Extra levels are
// generated by downsampling. The image is left in LayoutShaderRead.
func LoadPanorama(arena *libgpu.Arena, path string, b *libgpu.TextureBuilder) (tex *libgpu.Texture, err error) {
	hdr, err := readHdr(path)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = libgpu.NewTextureBuilder().Format(libgpu.FormatRGBA32F)
	}
	usage := b.ImageDesc().Usage | libgpu.UsageSampled | libgpu.UsageTransferDst | libgpu.UsageTransferSrc
	b.Label(filepath.Base(path)).Kind(libgpu.Image2D).Extent(hdr.Width, hdr.Height, 1).Usage(usage)

	tex, err = b.Build(arena)
	if err != nil {
		return nil, fmt.Errorf("panorama %s: %w", path, err)
	}
	var cleanup libutil.Cleanup
	cleanup.Add(tex)
	defer func() {
		if err != nil {
			cleanup.Destroy()
			tex = nil
		}
	}()

	img := tex.Image
	if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
		return nil, err
	}
	if err := img.UploadFloats(hdr.Pix, libgpu.Region{}); err != nil {
		return nil, fmt.Errorf("panorama %s: %w", path, err)
	}
	if err := img.GenerateMipmaps(libgpu.LayoutTransferDst); err != nil {
		return nil, err
	}
	if err := img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutShaderRead); err != nil {
		return nil, err
	}
	libgpu.Logger().Debug("panorama loaded", "path", path, "image", img)
	return tex, nil
}

// Entry is a complete cube map entry of the cache directory.
type Entry struct {
	Name      string
	Size      int
	MipLevels int
	Files     []string
}

// Entries lists the cube map entries that have a sidecar, ordered by name.
// Entries with an unreadable sidecar are skipped.
func (c *Cache) Entries() ([]Entry, error) {
	sidecars, err := filepath.Glob(filepath.Join(c.Dir, "*.info"))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, path := range sidecars {
		e := &cubeEntry{stem: strings.TrimSuffix(path, ".info")}
		s, err := readSidecar(path, true)
		if err != nil {
			// irradiance sidecars only hold the size
			s, err = readSidecar(path, false)
		} else {
			e.withMips = true
		}
		if err != nil {
			libgpu.Logger().Warn("skipping cache entry", "sidecar", path, "err", err)
			continue
		}
		entries = append(entries, Entry{
			Name:      filepath.Base(e.stem),
			Size:      s.Size,
			MipLevels: s.MipLevels,
			Files:     e.files(s),
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}
