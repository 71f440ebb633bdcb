package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"iblbake/iblcache"
	"iblbake/libgpu"
	"iblbake/libgpu/clgpu"
	"iblbake/libgpu/glgpu"
	"iblbake/libgpu/soft"
	"iblbake/libgpu/wgpuhal"
)

const programCacheDir = ".programs"

func openDevice(kind deviceKind) (libgpu.Device, libgpu.Compiler, error) {
	switch kind {
	case deviceGl:
		dev, err := glgpu.Open(cargs.verbose)
		if err != nil {
			return nil, nil, err
		}
		return dev, glgpu.NewCompiler(filepath.Join(cargs.cache, programCacheDir)), nil
	case deviceHal:
		dev, err := wgpuhal.New()
		if err != nil {
			return nil, nil, err
		}
		return dev, wgpuhal.NewCompiler(), nil
	case deviceCl:
		dev, compiler, err := clgpu.New(clgpu.DeviceTypeGPU)
		if err != nil {
			return nil, nil, err
		}
		return dev, compiler, nil
	}
	return soft.New(), soft.NewCompiler(), nil
}

// session is the device, arena and cache shared by the files of one run.
type session struct {
	dev   libgpu.Device
	arena *libgpu.Arena
	cache *iblcache.Cache
}

func openSession(quality iblcache.Quality) *session {
	// the gl context is bound to this thread
	runtime.LockOSThread()

	dev, compiler, err := openDevice(cargs.device)
	if err != nil {
		softerr(err)
		if !cargs.quiet {
			fmt.Println("Falling back to software implementation")
		}
		dev, compiler = soft.New(), soft.NewCompiler()
	}
	if !cargs.quiet {
		fmt.Printf("Using %s device\n", dev.Name())
	}

	arena := libgpu.NewArena(dev)
	cache, err := iblcache.New(cargs.cache, arena, compiler,
		iblcache.WithPolicy(cargs.policy.policy),
		iblcache.WithQuality(quality))
	if err != nil {
		arena.Destroy()
		dev.Destroy()
		harderr(err)
	}
	return &session{dev: dev, arena: arena, cache: cache}
}

func (s *session) Destroy() {
	s.arena.Destroy()
	s.dev.Destroy()
}

// loadSource loads the panorama at p and returns it with its cache key.
func (s *session) loadSource(p string, opts textureOpts) (*libgpu.Texture, iblcache.Key, error) {
	key, err := iblcache.FileKey(entryName(p), p)
	if err != nil {
		return nil, key, err
	}
	b, err := opts.builder()
	if err != nil {
		return nil, key, err
	}
	if !cargs.quiet {
		fmt.Printf("Loading %q ...\n", filepath.ToSlash(filepath.Clean(p)))
	}
	tex, err := iblcache.LoadPanorama(s.arena, p, b)
	return tex, key, err
}

func (s *session) report(what string, a *iblcache.Artifact) {
	if cargs.quiet {
		return
	}
	desc := a.Image.Desc()
	state := "Baked"
	if a.Hit {
		state = "Loaded cached"
	}
	fmt.Printf("%s %s %dx%d with %d levels\n", state, what, desc.Width, desc.Height, desc.MipLevels)
	for _, f := range a.Files {
		fmt.Printf("    %s\n", filepath.ToSlash(f))
	}
}
