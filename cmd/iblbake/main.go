package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"iblbake/iblcache"
	"iblbake/libgpu"
)

const cacheEnv = "IBLBAKE_CACHE"

type deviceKind string

const (
	deviceSoft deviceKind = "soft"
	deviceGl   deviceKind = "gl"
	deviceHal  deviceKind = "hal"
	deviceCl   deviceKind = "cl"
)

func (d *deviceKind) String() string {
	return string(*d)
}

func (d *deviceKind) Set(s string) error {
	switch kind := deviceKind(strings.ToLower(s)); kind {
	case deviceSoft, deviceGl, deviceHal, deviceCl:
		*d = kind
	default:
		return fmt.Errorf("%s is not a valid device; soft, gl, hal or cl", s)
	}
	return nil
}

type policyValue struct {
	policy iblcache.MismatchPolicy
}

func (p *policyValue) String() string {
	return p.policy.String()
}

func (p *policyValue) Set(s string) (err error) {
	p.policy, err = iblcache.ParseMismatchPolicy(s)
	return err
}

// textureOpts collects repeated key=value flags.
type textureOpts [][2]string

func (o *textureOpts) String() string {
	opts := make([]string, len(*o))
	for i, kv := range *o {
		opts[i] = kv[0] + "=" + kv[1]
	}
	return strings.Join(opts, ",")
}

func (o *textureOpts) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("%q is not a key=value pair", s)
	}
	*o = append(*o, [2]string{key, value})
	return nil
}

// builder returns a texture builder with every option applied.
func (o textureOpts) builder() (*libgpu.TextureBuilder, error) {
	b := libgpu.NewTextureBuilder().Format(libgpu.FormatRGBA32F)
	for _, kv := range o {
		if err := b.Set(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

type commonArgs struct {
	cache       string
	device      deviceKind
	policy      policyValue
	quiet       bool
	verbose     bool
	supress     bool
	preview     string
	previewSize int
	gamma       float64
	scale       float64
}

type sourceArgs struct {
	opts textureOpts
}

var cargs *commonArgs

type command struct {
	Run   func(self *command)
	Name  string
	Help  string
	Flags *flag.FlagSet
}

var commands = []*command{}

func printGeneralUsage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [arguments]\n\n", exe)
	fmt.Fprintf(os.Stderr, "The commands are:\n\n")
	longest := slices.MaxFunc(commands, func(a, b *command) int {
		return len(a.Name) - len(b.Name)
	})
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "    %*s%s\n", -len(longest.Name)-4, c.Name, c.Help)
	}
	fmt.Fprintln(os.Stderr, "")
	os.Exit(1)
}

func printCommandUsage(cmd *command, suffix string) {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s %s [arguments]%s\n\n", exe, cmd.Name, suffix)
	fmt.Fprintf(os.Stderr, "The arguments are:\n\n")
	cmd.Flags.SetOutput(os.Stderr)
	cmd.Flags.PrintDefaults()
	os.Exit(1)
}

func main() {
	commands = append(commands, createBrdfCommand())
	commands = append(commands, createIrradianceCommand())
	commands = append(commands, createSpecularCommand())
	commands = append(commands, createBakeCommand())
	commands = append(commands, createInfoCommand())

	slices.SortFunc(commands, func(a, b *command) int {
		return strings.Compare(a.Name, b.Name)
	})

	if len(os.Args) < 2 {
		printGeneralUsage()
	}

	var cmd *command
	for _, c := range commands {
		if strings.EqualFold(c.Name, os.Args[1]) {
			cmd = c
			break
		}
	}
	if cmd == nil {
		printGeneralUsage()
	}

	err := cmd.Flags.Parse(os.Args[2:])
	harderr(err)

	cmd.Run(cmd)
}

func defaultCommonArgs() commonArgs {
	return commonArgs{
		cache:  os.Getenv(cacheEnv),
		device: deviceSoft,
		gamma:  2.2,
		scale:  1.0,
	}
}

func registerCommonFlags(flags *flag.FlagSet, args *commonArgs) {
	flags.StringVar(&args.cache, "cache", args.cache, "the cache directory, defaults to $"+cacheEnv)
	flags.StringVar(&args.cache, "c", args.cache, "shorthand for cache")
	flags.Var(&args.device, "device", "the device that runs the passes; soft, gl, hal or cl")
	flags.Var(&args.device, "d", "shorthand for device")
	flags.Var(&args.policy, "policy", "what to do when a cached entry has another shape; rebake, fail or keep")
	flags.BoolVar(&args.quiet, "quiet", args.quiet, "disables informational logging")
	flags.BoolVar(&args.quiet, "q", args.quiet, "shorthand for quiet")
	flags.BoolVar(&args.verbose, "verbose", args.verbose, "enables debug logging")
	flags.BoolVar(&args.verbose, "v", args.verbose, "shorthand for verbose")
	flags.BoolVar(&args.supress, "supress", args.supress, "disables soft error logging")
	flags.StringVar(&args.preview, "preview", args.preview, "a directory to write png previews of the results to")
	flags.IntVar(&args.previewSize, "preview-size", args.previewSize, "the preview face width, 0 keeps the baked size")
	flags.Float64Var(&args.gamma, "gamma", args.gamma, "preview gamma correction value")
	flags.Float64Var(&args.scale, "scale", args.scale, "preview brightness scale factor")
}

func registerSourceFlags(flags *flag.FlagSet, args *sourceArgs) {
	flags.Var(&args.opts, "opt", "a key=value texture option for the loaded panorama, may be repeated")
}

func setCommonArgs(args *commonArgs) {
	cargs = args

	level := slog.LevelInfo
	if args.verbose {
		level = slog.LevelDebug
	} else if args.quiet {
		level = slog.LevelWarn
	}
	libgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if args.cache == "" {
		var err error
		args.cache, err = os.Getwd()
		harderr(err)
	}
	if err := os.MkdirAll(args.cache, 0o755); err != nil {
		harderr(fmt.Errorf("cannot create cache directory: %w", err))
	}
	if args.preview != "" {
		if err := os.MkdirAll(args.preview, 0o755); err != nil {
			harderr(fmt.Errorf("cannot create preview directory: %w", err))
		}
	}
}

func gatherInputFiles(globs []string) []string {
	matched := []string{}

	for _, g := range globs {
		m, err := filepath.Glob(g)
		softerr(err)
		matched = append(matched, m...)
	}

	return matched
}

func entryName(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}

func close(closer io.Closer) {
	closer.Close()
}

func softerr(err error) bool {
	if err != nil && !cargs.supress {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return true
	}
	return false
}

func harderr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
