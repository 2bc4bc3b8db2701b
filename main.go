package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kwv/kdmatch/match"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Runner executes the individual tools. The CLI front end only parses
// arguments; App does the work.
type Runner interface {
	RunMatch(opts MatchOptions) error
	RunNearest(opts NearestOptions) error
	RunReproject(opts ReprojectOptions) error
	RunCalcTrans(opts CalcTransOptions) error
	RunServe(opts ServeOptions) error
}

// errUsage is returned when a tool is invoked without its required
// arguments. The usage text has already been printed.
var errUsage = errors.New("usage")

// tools maps executable base names to subcommands, so the binary can be
// installed under the historical tool names via symlinks.
var tools = map[string]string{
	"quad_kd":     "quad",
	"triangle_kd": "triangle",
	"pair_kd":     "pair",
	"match_kd":    "match",
	"transform":   "transform",
	"calctrans":   "calctrans",
}

func main() {
	app := NewApp(os.Stdin, os.Stdout)
	err := run(os.Args, os.Stdout, app)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var reported *reportedError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.As(err, &reported):
		return 1
	default:
		log.Printf("Error: %v", err)
		return 1
	}
}

// run dispatches on the executable name or, for the kdmatch binary, on the
// first argument. args includes the program name.
func run(args []string, out io.Writer, app Runner) error {
	if len(args) == 0 {
		args = []string{"kdmatch"}
	}
	tool, rest := tools[filepath.Base(args[0])], args[1:]
	if tool == "" {
		if len(rest) == 0 {
			printUsage(out)
			return errUsage
		}
		tool, rest = rest[0], rest[1:]
	}
	commandLine := append([]string{filepath.Base(args[0])}, args[1:]...)

	switch tool {
	case "quad", "triangle", "pair":
		kind, err := match.ParseKind(tool)
		if err != nil {
			return err
		}
		opts, err := parseMatchOptions(kind, tool, rest, out)
		if err != nil {
			return err
		}
		opts.CommandLine = commandLine
		return app.RunMatch(opts)
	case "match":
		opts, err := parseNearestOptions(tool, rest, out)
		if err != nil {
			return err
		}
		opts.CommandLine = commandLine
		return app.RunNearest(opts)
	case "transform":
		opts, err := parseReprojectOptions(tool, rest, out)
		if err != nil {
			return err
		}
		return app.RunReproject(opts)
	case "calctrans":
		opts, err := parseCalcTransOptions(tool, rest, out)
		if err != nil {
			return err
		}
		opts.CommandLine = commandLine
		return app.RunCalcTrans(opts)
	case "serve":
		opts, err := parseServeOptions(tool, rest, out)
		if err != nil {
			return err
		}
		return app.RunServe(opts)
	case "version", "-version", "--version":
		fmt.Fprintf(out, "kdmatch version: %s\n", Version)
		return nil
	case "help", "-h", "-help", "--help":
		printUsage(out)
		return flag.ErrHelp
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", tool)
		printUsage(out)
		return errUsage
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintf(out, `Usage of kdmatch:

  kdmatch quad     file1 file2 [options]   match with quadrilateral asterisms
  kdmatch triangle file1 file2 [options]   match with triangle asterisms
  kdmatch pair     file1 file2 [options]   match with point pairs (translation only)
  kdmatch match    file1 file2 [options]   nearest-neighbour cross-match
  kdmatch transform file [options]         apply a transform to a catalogue
  kdmatch calctrans file1 [file2] [options] fit a transform to matched rows
  kdmatch serve    [options]               run the HTTP matching service
  kdmatch version

The tools can also be invoked as %s.
Options may appear anywhere; the last occurrence wins. Use "-" to read
a catalogue from standard input. Run "kdmatch <command> -h" for options.
`, strings.Join([]string{"quad_kd", "triangle_kd", "pair_kd", "match_kd", "transform", "calctrans"}, ", "))
}
