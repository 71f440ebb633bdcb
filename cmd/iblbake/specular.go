package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"iblbake/iblcache"
	"iblbake/libgpu"
)

type specularArgs struct {
	commonArgs
	sourceArgs
	size    int
	levels  int
	samples int
}

func createSpecularCommand() *command {
	args := specularArgs{
		commonArgs: defaultCommonArgs(),
		size:       128,
		levels:     5,
		samples:    512,
	}

	flags := flag.NewFlagSet("specular", flag.ExitOnError)

	registerCommonFlags(flags, &args.commonArgs)
	registerSourceFlags(flags, &args.sourceArgs)

	flags.IntVar(&args.size, "size", args.size, "the cube map face resolution")
	flags.IntVar(&args.size, "s", args.size, "shorthand for size")
	flags.IntVar(&args.levels, "levels", args.levels, "the number of roughness levels, 0 for a full mip chain")
	flags.IntVar(&args.samples, "samples", args.samples, "number of samples used for convolution")

	return &command{
		Name: "specular",
		Help: "bake roughness prefiltered cube maps from hdr panoramas",
		Run: func(self *command) {
			if self.Flags.NArg() < 1 || args.size <= 0 || args.levels < 0 || args.samples <= 0 {
				printCommandUsage(self, " file-glob...")
			}
			setCommonArgs(&args.commonArgs)

			runSpecular(args, gatherInputFiles(self.Flags.Args()))
		},
		Flags: flags,
	}
}

func runSpecular(args specularArgs, inputFiles []string) {
	quality := iblcache.DefaultQuality()
	quality.PrefilterSamples = args.samples
	s := openSession(quality)
	defer s.Destroy()

	success := 0
	start := time.Now()
	for i, p := range inputFiles {
		if !cargs.quiet {
			fmt.Printf("Processing file %d/%d %q ...\n", i+1, len(inputFiles), filepath.ToSlash(filepath.Clean(p)))
		}
		err := specularFile(s, args, p)
		softerr(err)
		if err == nil {
			success++
		}
	}
	if !cargs.quiet {
		took := float32(time.Since(start).Milliseconds()) / 1000
		fmt.Printf("Prefiltered %d/%d files in %.3f seconds\n", success, len(inputFiles), took)
	}
}

func specularFile(s *session, args specularArgs, p string) error {
	src, key, err := s.loadSource(p, args.opts)
	if err != nil {
		return err
	}
	defer src.Destroy()
	return bakeSpecular(s, key, src.Image, args.size, args.levels)
}

func bakeSpecular(s *session, key iblcache.Key, src *libgpu.Image, size, levels int) error {
	key.Name += "_specular"
	pre, err := s.cache.Prefiltered(key, src, size, levels)
	if err != nil {
		return err
	}
	defer pre.Destroy()
	s.report("prefiltered map", pre)
	return writePreview(key.Name, pre.Image)
}
