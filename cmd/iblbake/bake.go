package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"iblbake/iblcache"
)

type bakeArgs struct {
	commonArgs
	sourceArgs
	lut        string
	lutSize    int
	irrSize    int
	specSize   int
	specLevels int
}

func createBakeCommand() *command {
	args := bakeArgs{
		commonArgs: defaultCommonArgs(),
		lut:        "brdf_lut.f32",
		lutSize:    128,
		irrSize:    32,
		specSize:   128,
		specLevels: 5,
	}

	flags := flag.NewFlagSet("bake", flag.ExitOnError)

	registerCommonFlags(flags, &args.commonArgs)
	registerSourceFlags(flags, &args.sourceArgs)

	flags.StringVar(&args.lut, "lut", args.lut, "the file name of the brdf lookup table in the cache")
	flags.IntVar(&args.lutSize, "lut-size", args.lutSize, "the lookup table resolution")
	flags.IntVar(&args.irrSize, "irradiance-size", args.irrSize, "the irradiance cube map face resolution")
	flags.IntVar(&args.specSize, "specular-size", args.specSize, "the prefiltered cube map face resolution")
	flags.IntVar(&args.specLevels, "specular-levels", args.specLevels, "the number of roughness levels")

	return &command{
		Name: "bake",
		Help: "bake the lookup table and both cube maps of hdr panoramas",
		Run: func(self *command) {
			if self.Flags.NArg() < 1 || args.lutSize <= 0 || args.irrSize <= 0 || args.specSize <= 0 || args.specLevels < 0 {
				printCommandUsage(self, " file-glob...")
			}
			setCommonArgs(&args.commonArgs)

			runBake(args, gatherInputFiles(self.Flags.Args()))
		},
		Flags: flags,
	}
}

func runBake(args bakeArgs, inputFiles []string) {
	s := openSession(iblcache.DefaultQuality())
	defer s.Destroy()

	start := time.Now()
	lut, err := s.cache.BrdfLut(args.lut, args.lutSize)
	harderr(err)
	s.report("brdf lookup table", lut)
	softerr(writePreview(entryName(args.lut), lut.Image))
	lut.Destroy()

	success := 0
	for i, p := range inputFiles {
		if !cargs.quiet {
			fmt.Printf("Processing file %d/%d %q ...\n", i+1, len(inputFiles), filepath.ToSlash(filepath.Clean(p)))
		}
		err := bakeFile(s, args, p)
		softerr(err)
		if err == nil {
			success++
		}
	}
	if !cargs.quiet {
		took := float32(time.Since(start).Milliseconds()) / 1000
		fmt.Printf("Baked %d/%d files in %.3f seconds\n", success, len(inputFiles), took)
	}
}

func bakeFile(s *session, args bakeArgs, p string) error {
	src, key, err := s.loadSource(p, args.opts)
	if err != nil {
		return err
	}
	defer src.Destroy()
	if err := bakeIrradiance(s, key, src.Image, args.irrSize); err != nil {
		return err
	}
	return bakeSpecular(s, key, src.Image, args.specSize, args.specLevels)
}
