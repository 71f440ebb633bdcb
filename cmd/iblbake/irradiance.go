package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"iblbake/iblcache"
	"iblbake/libgpu"
)

type irradianceArgs struct {
	commonArgs
	sourceArgs
	size  int
	delta float64
}

func createIrradianceCommand() *command {
	args := irradianceArgs{
		commonArgs: defaultCommonArgs(),
		size:       32,
		delta:      0.025,
	}

	flags := flag.NewFlagSet("irradiance", flag.ExitOnError)

	registerCommonFlags(flags, &args.commonArgs)
	registerSourceFlags(flags, &args.sourceArgs)

	flags.IntVar(&args.size, "size", args.size, "the cube map face resolution")
	flags.IntVar(&args.size, "s", args.size, "shorthand for size")
	flags.Float64Var(&args.delta, "delta", args.delta, "the angular step of the hemisphere integration in radians")

	return &command{
		Name: "irradiance",
		Help: "bake diffuse irradiance cube maps from hdr panoramas",
		Run: func(self *command) {
			if self.Flags.NArg() < 1 || args.size <= 0 || args.delta <= 0 {
				printCommandUsage(self, " file-glob...")
			}
			setCommonArgs(&args.commonArgs)

			runIrradiance(args, gatherInputFiles(self.Flags.Args()))
		},
		Flags: flags,
	}
}

func runIrradiance(args irradianceArgs, inputFiles []string) {
	quality := iblcache.DefaultQuality()
	quality.IrradianceSampleDelta = float32(args.delta)
	s := openSession(quality)
	defer s.Destroy()

	success := 0
	start := time.Now()
	for i, p := range inputFiles {
		if !cargs.quiet {
			fmt.Printf("Processing file %d/%d %q ...\n", i+1, len(inputFiles), filepath.ToSlash(filepath.Clean(p)))
		}
		err := irradianceFile(s, args, p)
		softerr(err)
		if err == nil {
			success++
		}
	}
	if !cargs.quiet {
		took := float32(time.Since(start).Milliseconds()) / 1000
		fmt.Printf("Convolved %d/%d files in %.3f seconds\n", success, len(inputFiles), took)
	}
}

func irradianceFile(s *session, args irradianceArgs, p string) error {
	src, key, err := s.loadSource(p, args.opts)
	if err != nil {
		return err
	}
	defer src.Destroy()
	return bakeIrradiance(s, key, src.Image, args.size)
}

func bakeIrradiance(s *session, key iblcache.Key, src *libgpu.Image, size int) error {
	key.Name += "_irradiance"
	irr, err := s.cache.Irradiance(key, src, size)
	if err != nil {
		return err
	}
	defer irr.Destroy()
	s.report("irradiance map", irr)
	return writePreview(key.Name, irr.Image)
}
