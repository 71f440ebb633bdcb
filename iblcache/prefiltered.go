package iblcache

import (
	"fmt"

	"iblbake/ibl"
	"iblbake/libgpu"
)

// Prefiltered returns the specular prefiltered cube map of src with
// mipLevels roughness levels, baking it on a miss. An equirectangular src
// is converted to a cube map of the same size first.
func (c *Cache) Prefiltered(key Key, src *libgpu.Image, size, mipLevels int) (*Artifact, error) {
	if size <= 0 {
		return nil, fmt.Errorf("prefiltered size %d: %w", size, libgpu.ErrInvalid)
	}
	want := shape{Size: size, MipLevels: libgpu.ResolveMipLevels(size, size, mipLevels)}
	e := c.cubeEntry("prefiltered", key, true, want, func(s shape) (*libgpu.Image, error) {
		env := src
		if src != nil && src.Desc().Kind == libgpu.Image2D {
			conv := ibl.NewEquirectPass(c.Arena, c.Compiler)
			conv.Format = c.Quality.CubeFormat
			var err error
			env, err = conv.Run(src, s.Size, libgpu.MipLevelsAuto)
			if err != nil {
				return nil, err
			}
			defer env.Destroy()
		}
		pass := ibl.NewPrefilterPass(c.Arena, c.Compiler)
		pass.Samples = c.Quality.PrefilterSamples
		pass.Format = c.Quality.CubeFormat
		return pass.Run(env, s.Size, s.MipLevels)
	})
	return c.cube(e)
}
