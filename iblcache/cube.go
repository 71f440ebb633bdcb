package iblcache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"iblbake/ibl"
	"iblbake/libgpu"
	"iblbake/libio"
)

// cubeEntry describes a cube map entry of the cache.
type cubeEntry struct {
	kind string
	stem string
	// withMips selects the file naming and sidecar with a mip count.
	withMips bool
	want     shape
	bake     func(s shape) (*libgpu.Image, error)
}

func (c *Cache) cubeEntry(kind string, key Key, withMips bool, want shape, bake func(shape) (*libgpu.Image, error)) *cubeEntry {
	return &cubeEntry{
		kind:     kind,
		stem:     filepath.Join(c.Dir, key.stem(kind)),
		withMips: withMips,
		want:     want,
		bake:     bake,
	}
}

func (e *cubeEntry) sidecar() string {
	return e.stem + ".info"
}

func (e *cubeEntry) file(layer, level int) string {
	if e.withMips {
		return fmt.Sprintf("%s.layer%d.mipLevel%d.hdr", e.stem, layer, level)
	}
	return fmt.Sprintf("%s.layer%d.hdr", e.stem, layer)
}

// foreign returns the first face file an entry of the other kind would
// have under the same stem.
func (e *cubeEntry) foreign() string {
	if e.withMips {
		return e.stem + ".layer0.hdr"
	}
	return e.stem + ".layer0.mipLevel0.hdr"
}

func (e *cubeEntry) files(s shape) []string {
	files := make([]string, 0, 6*s.MipLevels+1)
	for level := 0; level < s.MipLevels; level++ {
		for layer := 0; layer < 6; layer++ {
			files = append(files, e.file(layer, level))
		}
	}
	return append(files, e.sidecar())
}

// cube loads the entry or bakes and stores it.
func (c *Cache) cube(e *cubeEntry) (*Artifact, error) {
	name := filepath.Base(e.stem)
	if _, err := os.Stat(e.foreign()); err == nil {
		return nil, fmt.Errorf("%s %s: %w", e.kind, name, ErrNameInUse)
	}
	cached, err := readSidecar(e.sidecar(), e.withMips)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		libgpu.Logger().Debug("cache miss", "entry", name, "kind", e.kind)
	case err != nil:
		if err := c.corrupt(name, err); err != nil {
			return nil, err
		}
	default:
		load, ok, err := c.resolve(name, cached, e.want)
		if err != nil {
			return nil, err
		}
		if ok {
			img, err := c.loadCube(e, load)
			if err == nil {
				libgpu.Logger().Info("cache hit", "entry", name, "kind", e.kind, "size", load.Size, "levels", load.MipLevels)
				return newArtifact(c.Arena, img, true, e.files(load)), nil
			}
			if err := c.corrupt(name, err); err != nil {
				return nil, err
			}
		}
	}

	img, err := e.bake(e.want)
	if err != nil {
		return nil, err
	}
	files, err := c.storeCube(e, img)
	if err != nil {
		libgpu.Logger().Warn("cache entry not stored", "entry", name, "err", err)
		files = nil
	}
	libgpu.Logger().Info("cache entry baked", "entry", name, "kind", e.kind, "size", e.want.Size, "levels", img.Desc().MipLevels)
	return newArtifact(c.Arena, img, false, files), nil
}

func (c *Cache) loadCube(e *cubeEntry, s shape) (*libgpu.Image, error) {
	img, err := c.Arena.Create(libgpu.ImageDesc{
		Label:     filepath.Base(e.stem),
		Kind:      libgpu.ImageCube,
		Format:    c.Quality.CubeFormat,
		Width:     s.Size,
		Height:    s.Size,
		MipLevels: s.MipLevels,
		Usage:     ibl.DestinationUsage,
	})
	if err != nil {
		return nil, err
	}
	if err := fillCube(e, s, img); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// fillCube uploads every face file of the entry and leaves img in
// LayoutShaderRead.
func fillCube(e *cubeEntry, s shape, img *libgpu.Image) error {
	if img.Desc().MipLevels != s.MipLevels {
		return fmt.Errorf("%d mip levels do not fit a %d cube map", s.MipLevels, s.Size)
	}

	if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
		return err
	}
	for level := 0; level < s.MipLevels; level++ {
		w, h := img.Extent(level)
		for layer := 0; layer < 6; layer++ {
			face, err := readHdr(e.file(layer, level))
			if err != nil {
				return err
			}
			if face.Width != w || face.Height != h {
				return fmt.Errorf("%s is %dx%d, want %dx%d", e.file(layer, level), face.Width, face.Height, w, h)
			}
			if err := img.UploadFloats(face.Pix, libgpu.Region{Level: level, Layer: layer}); err != nil {
				return err
			}
		}
	}
	return img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutShaderRead)
}

// storeCube writes every face and level of img and then the sidecar.
func (c *Cache) storeCube(e *cubeEntry, img *libgpu.Image) ([]string, error) {
	s := shape{Size: img.Desc().Width, MipLevels: img.Desc().MipLevels}
	if err := os.Remove(e.sidecar()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
		return nil, err
	}
	defer img.TransitionLayout(libgpu.LayoutTransferSrc, libgpu.LayoutShaderRead)

	for level := 0; level < s.MipLevels; level++ {
		w, h := img.Extent(level)
		for layer := 0; layer < 6; layer++ {
			pix, err := img.DownloadFloats(libgpu.Region{Level: level, Layer: layer})
			if err != nil {
				return nil, err
			}
			face := libio.NewFloatImage(pix, 4, w, h)
			if err := writeHdr(e.file(layer, level), face); err != nil {
				return nil, err
			}
		}
	}
	err := writeFile(e.sidecar(), func(f *os.File) error {
		_, err := f.WriteString(formatSidecar(s, e.withMips))
		return err
	})
	if err != nil {
		return nil, err
	}
	files := e.files(s)
	if e.withMips {
		if err := removeStale(e.stem, files); err != nil {
			libgpu.Logger().Warn("stale cache files not removed", "entry", filepath.Base(e.stem), "err", err)
		}
	}
	return files, nil
}

// removeStale deletes mip level files of stem that are not in keep, left
// behind by an entry with more levels.
func removeStale(stem string, keep []string) error {
	dir, base := filepath.Split(stem)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		rest, ok := strings.CutPrefix(de.Name(), base+".layer")
		if !ok || !strings.Contains(rest, ".mipLevel") || !strings.HasSuffix(rest, ".hdr") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if slices.Contains(keep, path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		libgpu.Logger().Debug("stale cache file removed", "file", path)
	}
	return nil
}

func readHdr(path string) (*libio.FloatImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := libio.DecodeHdr(bufio.NewReader(f), 4)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writeHdr(path string, img *libio.FloatImage) error {
	return writeFile(path, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		if err := libio.EncodeHdr(bw, img, nil); err != nil {
			return err
		}
		return bw.Flush()
	})
}
