package iblcache

import (
	"iblbake/ibl"
	"iblbake/libgpu"
)

// Irradiance returns the diffuse irradiance cube map of the
// equirectangular image src, baking it on a miss.
func (c *Cache) Irradiance(key Key, src *libgpu.Image, size int) (*Artifact, error) {
	want := shape{Size: size, MipLevels: 1}
	e := c.cubeEntry("irradiance", key, false, want, func(s shape) (*libgpu.Image, error) {
		pass := ibl.NewIrradiancePass(c.Arena, c.Compiler)
		pass.SampleDelta = c.Quality.IrradianceSampleDelta
		pass.Format = c.Quality.CubeFormat
		return pass.Run(src, s.Size)
	})
	return c.cube(e)
}
