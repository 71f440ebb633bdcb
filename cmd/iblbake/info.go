package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"iblbake/iblcache"
)

type infoArgs struct {
	commonArgs
	files bool
}

func createInfoCommand() *command {
	args := infoArgs{
		commonArgs: defaultCommonArgs(),
	}

	flags := flag.NewFlagSet("info", flag.ExitOnError)

	flags.StringVar(&args.cache, "cache", args.cache, "the cache directory, defaults to $"+cacheEnv)
	flags.StringVar(&args.cache, "c", args.cache, "shorthand for cache")
	flags.BoolVar(&args.files, "files", args.files, "list the files of every entry")

	return &command{
		Name: "info",
		Help: "list the cube map entries of a cache directory",
		Run: func(self *command) {
			if self.Flags.NArg() > 0 {
				printCommandUsage(self, "")
			}
			setCommonArgs(&args.commonArgs)

			runInfo(args)
		},
		Flags: flags,
	}
}

func runInfo(args infoArgs) {
	// listing does not need a device
	cache := &iblcache.Cache{Dir: cargs.cache}
	entries, err := cache.Entries()
	harderr(err)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tLEVELS\tFILES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", e.Name, e.Size, e.MipLevels, len(e.Files))
		if args.files {
			for _, f := range e.Files {
				fmt.Fprintf(tw, "\t\t\t%s\n", filepath.Base(f))
			}
		}
	}
	tw.Flush()
}
