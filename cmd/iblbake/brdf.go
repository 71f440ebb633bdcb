package main

import (
	"flag"
	"fmt"
	"time"

	"iblbake/iblcache"
)

type brdfArgs struct {
	commonArgs
	size    int
	samples int
	name    string
}

func createBrdfCommand() *command {
	args := brdfArgs{
		commonArgs: defaultCommonArgs(),
		size:       128,
		samples:    1024,
		name:       "brdf_lut.f32",
	}

	flags := flag.NewFlagSet("brdf", flag.ExitOnError)

	registerCommonFlags(flags, &args.commonArgs)

	flags.IntVar(&args.size, "size", args.size, "the lookup table resolution")
	flags.IntVar(&args.size, "s", args.size, "shorthand for size")
	flags.IntVar(&args.samples, "samples", args.samples, "number of samples per texel")
	flags.StringVar(&args.name, "name", args.name, "the file name of the table in the cache")

	return &command{
		Name: "brdf",
		Help: "bake the split sum brdf lookup table",
		Run: func(self *command) {
			if self.Flags.NArg() > 0 || args.size <= 0 || args.samples <= 0 {
				printCommandUsage(self, "")
			}
			setCommonArgs(&args.commonArgs)

			runBrdf(args)
		},
		Flags: flags,
	}
}

func runBrdf(args brdfArgs) {
	quality := iblcache.DefaultQuality()
	quality.BrdfSamples = args.samples
	s := openSession(quality)
	defer s.Destroy()

	start := time.Now()
	lut, err := s.cache.BrdfLut(args.name, args.size)
	harderr(err)
	defer lut.Destroy()
	s.report("brdf lookup table", lut)
	softerr(writePreview(entryName(args.name), lut.Image))

	if !cargs.quiet {
		took := float32(time.Since(start).Milliseconds()) / 1000
		fmt.Printf("Done in %.3f seconds\n", took)
	}
}
