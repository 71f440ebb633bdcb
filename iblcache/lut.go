package iblcache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"iblbake/ibl"
	"iblbake/libgpu"
	"iblbake/libio"
)

// BrdfLut returns the BRDF lookup table stored as name, baking it on a
// miss. The table does not depend on a source, its file has no sidecar.
func (c *Cache) BrdfLut(name string, size int) (*Artifact, error) {
	if size <= 0 {
		return nil, fmt.Errorf("brdf lut size %d: %w", size, libgpu.ErrInvalid)
	}
	path := filepath.Join(c.Dir, name)
	want := shape{Size: size, MipLevels: 1}

	lut, err := readLut(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		libgpu.Logger().Debug("cache miss", "entry", name, "kind", "brdf")
	case err != nil:
		if err := c.corrupt(name, err); err != nil {
			return nil, err
		}
	default:
		cached := shape{Size: lut.Width, MipLevels: 1}
		if lut.Width != lut.Height {
			// not a shape any request can match
			cached.MipLevels = 0
		}
		load, ok, err := c.resolve(name, cached, want)
		if err != nil {
			return nil, err
		}
		if ok {
			img, err := c.uploadLut(name, lut)
			if err == nil {
				libgpu.Logger().Info("cache hit", "entry", name, "kind", "brdf", "size", load.Size)
				return newArtifact(c.Arena, img, true, []string{path}), nil
			}
			if err := c.corrupt(name, err); err != nil {
				return nil, err
			}
		}
	}

	pass := ibl.NewBrdfLutPass(c.Arena, c.Compiler)
	pass.Samples = c.Quality.BrdfSamples
	pass.Format = c.Quality.LutFormat
	img, err := pass.Run(size)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if err := storeLut(path, img); err != nil {
		libgpu.Logger().Warn("cache entry not stored", "entry", name, "err", err)
		files = nil
	}
	libgpu.Logger().Info("cache entry baked", "entry", name, "kind", "brdf", "size", size)
	return newArtifact(c.Arena, img, false, files), nil
}

func readLut(path string) (*libio.FloatImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := libio.DecodeFloatImage(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if img.Channels != 2 {
		return nil, fmt.Errorf("%s has %d channels, want 2", path, img.Channels)
	}
	return img, nil
}

func (c *Cache) uploadLut(name string, lut *libio.FloatImage) (*libgpu.Image, error) {
	img, err := c.Arena.Create(libgpu.ImageDesc{
		Label:  name,
		Kind:   libgpu.Image2D,
		Format: c.Quality.LutFormat,
		Width:  lut.Width,
		Height: lut.Height,
		Usage:  ibl.DestinationUsage,
	})
	if err != nil {
		return nil, err
	}
	if err := fillLut(img, lut); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func fillLut(img *libgpu.Image, lut *libio.FloatImage) error {
	if err := img.TransitionLayout(libgpu.LayoutUndefined, libgpu.LayoutTransferDst); err != nil {
		return err
	}
	rgba := lut.ToChannels(4, 0, 0, 0, 1)
	if err := img.UploadFloats(rgba.Pix, libgpu.Region{}); err != nil {
		return err
	}
	return img.TransitionLayout(libgpu.LayoutTransferDst, libgpu.LayoutShaderRead)
}

func storeLut(path string, img *libgpu.Image) error {
	if err := img.TransitionLayout(libgpu.LayoutShaderRead, libgpu.LayoutTransferSrc); err != nil {
		return err
	}
	defer img.TransitionLayout(libgpu.LayoutTransferSrc, libgpu.LayoutShaderRead)

	pix, err := img.DownloadFloats(libgpu.Region{})
	if err != nil {
		return err
	}
	desc := img.Desc()
	lut := libio.NewFloatImage(pix, 4, desc.Width, desc.Height).ToChannels(2)
	return writeFile(path, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		if err := libio.EncodeFloatImage(bw, lut, libio.FloatImageCompressionFixedPoint16Lz4); err != nil {
			return err
		}
		return bw.Flush()
	})
}
