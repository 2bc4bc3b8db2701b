package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kwv/kdmatch/match"
	"github.com/paulmach/orb"
)

// MatchOptions configures one run of an asterism matcher.
type MatchOptions struct {
	Kind         match.Kind
	File1, File2 string
	Load1, Load2 match.LoadOptions
	Params       match.Params
	Verbosity    int
	Plot         match.PlotConfig
	MQTT         match.MQTTConfig
	CommandLine  []string
}

// NearestOptions configures the nearest-neighbour cross-match tool.
type NearestOptions struct {
	File1, File2 string
	Load1, Load2 match.LoadOptions
	Match        match.NearestOptions
	Verbosity    int
	CommandLine  []string
}

// ReprojectOptions configures the transform tool.
type ReprojectOptions struct {
	File      string
	Reproject match.ReprojectOptions
}

// CalcTransOptions configures the direct fit tool.
type CalcTransOptions struct {
	File1, File2 string
	Load1, Load2 match.LoadOptions
	// Point, when set, is mapped through both fitted transforms.
	Point       *orb.Point
	Verbosity   int
	CommandLine []string
}

// ServeOptions configures the HTTP service.
type ServeOptions struct {
	HttpPort int
	// MaxPoints overrides serve.maxPoints from the config file when set.
	MaxPoints int
	Config    *match.Config
}

// optionSet wraps a flag.FlagSet. Values are recorded in command-line
// order and applied once the configuration file has been read, so flags
// override the file and the last occurrence of a flag wins.
type optionSet struct {
	fs         *flag.FlagSet
	pending    []func()
	configPath string
}

func newOptionSet(name, synopsis string, out io.Writer) *optionSet {
	fs := flag.NewFlagSet("kdmatch "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage of kdmatch %s:\n\n   %s %s\n\n", name, name, synopsis)
		fs.PrintDefaults()
	}
	return &optionSet{fs: fs}
}

func (o *optionSet) later(apply func()) {
	o.pending = append(o.pending, apply)
}

func (o *optionSet) intOpt(name, usage string, apply func(int)) {
	o.fs.Func(name, usage, func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not an integer: %q", s)
		}
		o.later(func() { apply(v) })
		return nil
	})
}

func (o *optionSet) columnOpt(name, usage string, apply func(int)) {
	o.fs.Func(name, usage, func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return fmt.Errorf("columns are numbered from 1, got %q", s)
		}
		o.later(func() { apply(v) })
		return nil
	})
}

func (o *optionSet) floatOpt(name, usage string, apply func(float64)) {
	o.fs.Func(name, usage, func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		o.later(func() { apply(v) })
		return nil
	})
}

func (o *optionSet) stringOpt(name, usage string, apply func(string)) {
	o.fs.Func(name, usage, func(s string) error {
		o.later(func() { apply(s) })
		return nil
	})
}

func (o *optionSet) switchOpt(name, usage string, apply func(bool)) {
	o.fs.BoolFunc(name, usage, func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		o.later(func() { apply(v) })
		return nil
	})
}

// counter adds step to *n for every occurrence of the flag.
func (o *optionSet) counter(name, usage string, n *int, step int) {
	o.fs.BoolFunc(name, usage, func(s string) error {
		if v, err := strconv.ParseBool(s); err != nil {
			return err
		} else if v {
			*n += step
		}
		return nil
	})
}

func (o *optionSet) configOpt() {
	o.fs.StringVar(&o.configPath, "config", "", "YAML configuration file (default $KDMATCH_CONFIG)")
}

// catalogueOpts registers the column and separator flags of a two
// catalogue tool.
func (o *optionSet) catalogueOpts(load1, load2 *match.LoadOptions) {
	o.columnOpt("x1", "column to read x-coordinate from file 1 (default 1)", func(v int) { load1.XCol = v })
	o.columnOpt("y1", "column to read y-coordinate from file 1 (default 2)", func(v int) { load1.YCol = v })
	o.columnOpt("x2", "column to read x-coordinate from file 2 (default 1)", func(v int) { load2.XCol = v })
	o.columnOpt("y2", "column to read y-coordinate from file 2 (default 2)", func(v int) { load2.YCol = v })
	o.stringOpt("fs", "field separators for both files (default space/TAB)", func(s string) {
		load1.Separators, load2.Separators = s, s
	})
	o.stringOpt("fs1", "field separators for file 1", func(s string) { load1.Separators = s })
	o.stringOpt("fs2", "field separators for file 2", func(s string) { load2.Separators = s })
}

// loadConfig reads the file named by -config or $KDMATCH_CONFIG. No file
// yields a nil config, whose accessors return the built-in defaults.
func (o *optionSet) loadConfig() (*match.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("KDMATCH_CONFIG")
	}
	if path == "" {
		return nil, nil
	}
	cfg, err := match.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func (o *optionSet) apply() {
	for _, fn := range o.pending {
		fn()
	}
	o.pending = nil
}

// parse accepts flags and positional arguments in any order. Everything
// after "--" is positional.
func (o *optionSet) parse(args []string) ([]string, error) {
	var positional []string
	for {
		if err := o.fs.Parse(args); err != nil {
			return nil, err
		}
		rest := o.fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// extractTuple removes every "-name v1 ... vn" group from args and returns
// the values of the last one. Multi-value options cannot go through the
// flag package because their values may look like flags ("-t 0 -2 5 ...").
func extractTuple(args []string, name string, n int) (rest, values []string, err error) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			rest = append(rest, args[i:]...)
			break
		}
		if a != "-"+name && a != "--"+name {
			rest = append(rest, a)
			continue
		}
		if i+n >= len(args) {
			return nil, nil, fmt.Errorf("-%s needs %d values", name, n)
		}
		values = args[i+1 : i+1+n]
		i += n
	}
	return rest, values, nil
}

func extractTransform(args []string, name string) ([]string, *match.AffineMatrix, error) {
	rest, values, err := extractTuple(args, name, 6)
	if err != nil || values == nil {
		return rest, nil, err
	}
	t, err := match.ParseTransform(values)
	if err != nil {
		return nil, nil, fmt.Errorf("-%s: %w", name, err)
	}
	return rest, &t, nil
}

func parseMatchOptions(kind match.Kind, name string, args []string, out io.Writer) (MatchOptions, error) {
	opts := MatchOptions{Kind: kind}
	set := newOptionSet(name, "file1 file2 [options]", out)
	set.catalogueOpts(&opts.Load1, &opts.Load2)
	set.floatOpt("d", "match distance in invariant space", func(v float64) { opts.Params.DistCut = v })
	set.floatOpt("t", "match distance in transform space", func(v float64) { opts.Params.TransCut = v })
	if kind == match.KindPair {
		set.floatOpt("xf", "scale x of file 1 by this factor before matching", func(v float64) { opts.Params.XFactor = v })
		set.floatOpt("yf", "scale y of file 1 by this factor before matching", func(v float64) { opts.Params.YFactor = v })
	} else {
		set.floatOpt("p", "divide the offset by this factor in transform space", func(v float64) { opts.Params.Param2Factor = v })
	}
	set.intOpt("m", "stop once a transform has this many supporting matches (0 never stops)", func(v int) { opts.Params.MaxMatches = v })
	set.switchOpt("ns", "do not index the smaller catalogue first", func(v bool) { opts.Params.NoSwap = v })
	set.stringOpt("plot", "write an overlay of the result (.svg or .png)", func(s string) { opts.Plot.Output = s })
	set.counter("v", "more diagnostics (repeatable)", &opts.Verbosity, 1)
	set.counter("q", "fewer diagnostics (repeatable)", &opts.Verbosity, -1)
	set.configOpt()

	files, err := set.parse(args)
	if err != nil {
		return opts, err
	}
	if len(files) < 2 {
		set.fs.Usage()
		return opts, errUsage
	}

	cfg, err := set.loadConfig()
	if err != nil {
		return opts, err
	}
	opts.Params = cfg.Params(kind)
	opts.Load1, opts.Load2 = cfg.LoadOptions(1), cfg.LoadOptions(2)
	if cfg != nil {
		opts.Plot, opts.MQTT = cfg.Plot, cfg.MQTT
	}
	set.apply()

	if err := opts.Params.Validate(kind); err != nil {
		return opts, fmt.Errorf("%s: %w", name, err)
	}
	opts.File1, opts.File2 = files[0], files[1]
	return opts, nil
}

func parseNearestOptions(name string, args []string, out io.Writer) (NearestOptions, error) {
	var opts NearestOptions
	args, t1, err := extractTransform(args, "t")
	if err != nil {
		return opts, err
	}
	args, t2, err := extractTransform(args, "t2")
	if err != nil {
		return opts, err
	}

	set := newOptionSet(name, "file1 file2 [-t a b c d e f] [-t2 a b c d e f] [options]", out)
	set.catalogueOpts(&opts.Load1, &opts.Load2)
	set.floatOpt("d", "list every object in file 2 within this distance", func(v float64) { opts.Match.Radius = v })
	set.switchOpt("s", "do not output the nearest object", func(v bool) { opts.Match.SkipNearest = v })
	set.switchOpt("n", "only list objects in file 2 outside the -d distance of every object in file 1", func(v bool) { opts.Match.Unique = v })
	set.switchOpt("eq", "coordinates are RA/Dec in degrees on the sphere", func(v bool) { opts.Match.Sphere = v })
	set.counter("v", "more diagnostics (repeatable)", &opts.Verbosity, 1)
	set.counter("q", "fewer diagnostics (repeatable)", &opts.Verbosity, -1)
	set.configOpt()

	files, err := set.parse(args)
	if err != nil {
		return opts, err
	}
	if len(files) < 2 {
		set.fs.Usage()
		fmt.Fprintln(out, "  -t a b c d e f\n    \tsix parameter transformation applied to file 1")
		fmt.Fprintln(out, "  -t2 a b c d e f\n    \tsix parameter transformation applied to file 2")
		return opts, errUsage
	}

	cfg, err := set.loadConfig()
	if err != nil {
		return opts, err
	}
	opts.Load1, opts.Load2 = cfg.LoadOptions(1), cfg.LoadOptions(2)
	set.apply()

	opts.Match.Transform1, opts.Match.Transform2 = t1, t2
	if opts.Match.Unique && !(opts.Match.Radius > 0) {
		return opts, fmt.Errorf("%s: -n needs a positive -d distance", name)
	}
	opts.File1, opts.File2 = files[0], files[1]
	return opts, nil
}

func parseReprojectOptions(name string, args []string, out io.Writer) (ReprojectOptions, error) {
	var opts ReprojectOptions
	args, t, err := extractTransform(args, "t")
	if err != nil {
		return opts, err
	}
	args, centre, err := extractTuple(args, "c", 2)
	if err != nil {
		return opts, err
	}

	load := match.DefaultLoadOptions()
	set := newOptionSet(name, "file [-t a b c d e f] [-c RA Dec] [options]", out)
	set.columnOpt("x", "column to read x-coordinate from (default 1)", func(v int) { load.XCol = v })
	set.columnOpt("y", "column to read y-coordinate from (default 2)", func(v int) { load.YCol = v })
	set.stringOpt("fs", "field separators (default space/TAB)", func(s string) { load.Separators = s })

	files, err := set.parse(args)
	if err != nil {
		return opts, err
	}
	if len(files) < 1 {
		set.fs.Usage()
		fmt.Fprintln(out, "  -t a b c d e f\n    \tsix parameter transformation to apply")
		fmt.Fprintln(out, "  -c RA Dec\n    \tproject RA/Dec degrees onto the tangent plane at this centre (arcsec)")
		return opts, errUsage
	}
	set.apply()

	opts.File = files[0]
	opts.Reproject = match.ReprojectOptions{Load: load, Transform: t}
	if centre != nil {
		ra, errRA := strconv.ParseFloat(centre[0], 64)
		dec, errDec := strconv.ParseFloat(centre[1], 64)
		if errRA != nil || errDec != nil {
			return opts, fmt.Errorf("-c needs a numeric RA and Dec, got %q %q", centre[0], centre[1])
		}
		opts.Reproject.Centre = &orb.Point{ra, dec}
	}
	return opts, nil
}

func parseCalcTransOptions(name string, args []string, out io.Writer) (CalcTransOptions, error) {
	var opts CalcTransOptions
	var x, y float64
	var hasPoint bool

	set := newOptionSet(name, "file1 [file2] [options]", out)
	set.catalogueOpts(&opts.Load1, &opts.Load2)
	set.floatOpt("x", "x-coordinate of a point to transform", func(v float64) { x, hasPoint = v, true })
	set.floatOpt("y", "y-coordinate of a point to transform", func(v float64) { y, hasPoint = v, true })
	set.counter("v", "more diagnostics (repeatable)", &opts.Verbosity, 1)
	set.configOpt()

	files, err := set.parse(args)
	if err != nil {
		return opts, err
	}
	if len(files) < 1 {
		set.fs.Usage()
		return opts, errUsage
	}

	cfg, err := set.loadConfig()
	if err != nil {
		return opts, err
	}
	opts.Load1, opts.Load2 = cfg.LoadOptions(1), cfg.LoadOptions(2)
	set.apply()

	opts.File1, opts.File2 = files[0], files[0]
	if len(files) > 1 {
		opts.File2 = files[1]
	}
	if hasPoint {
		opts.Point = &orb.Point{x, y}
	}
	return opts, nil
}

func parseServeOptions(name string, args []string, out io.Writer) (ServeOptions, error) {
	opts := ServeOptions{HttpPort: 8080}
	set := newOptionSet(name, "[options]", out)
	set.intOpt("http-port", "HTTP server port (default 8080)", func(v int) { opts.HttpPort = v })
	set.intOpt("max-points", fmt.Sprintf("points allowed per catalogue in a match request, negative for no limit (default %d)", match.DefaultMaxPoints),
		func(v int) { opts.MaxPoints = v })
	set.configOpt()

	if _, err := set.parse(args); err != nil {
		return opts, err
	}
	cfg, err := set.loadConfig()
	if err != nil {
		return opts, err
	}
	set.apply()

	if opts.HttpPort <= 0 || opts.HttpPort > 65535 {
		return opts, fmt.Errorf("%s: invalid -http-port %d", name, opts.HttpPort)
	}
	if opts.MaxPoints != 0 {
		if cfg == nil {
			cfg = &match.Config{}
		}
		cfg.Serve.MaxPoints = opts.MaxPoints
	}
	opts.Config = cfg
	return opts, nil
}
