package match

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultSeparators splits fields on spaces and tabs.
const DefaultSeparators = " \t"

// LoadOptions selects the columns of a catalogue file.
type LoadOptions struct {
	XCol       int // 1-based
	YCol       int // 1-based
	Separators string
	// Passthrough receives comment lines, toggle lines and excluded rows
	// verbatim. Nil discards them.
	Passthrough io.Writer
}

// DefaultLoadOptions reads x and y from the first two columns.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{XCol: 1, YCol: 2, Separators: DefaultSeparators}
}

// LoadCatalogue reads a column-oriented point list.
//
// Lines starting with '#' are passed through. Lines starting with '*'
// toggle whether following rows are read and are passed through as well.
// Rows with a missing or unparsable column get NaN for that coordinate.
func LoadCatalogue(r io.Reader, opts LoadOptions) (*Catalogue, error) {
	cat := &Catalogue{}
	err := ScanCatalogue(r, opts, func(line string, p orb.Point, data bool) error {
		if !data {
			passthrough(opts.Passthrough, line)
			return nil
		}
		cat.Points = append(cat.Points, p)
		cat.Lines = append(cat.Lines, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// ScanCatalogue streams r line by line. fn sees data rows with their
// position and data=false for comment, toggle and excluded lines. Blank
// lines are dropped. An error from fn stops the scan.
func ScanCatalogue(r io.Reader, opts LoadOptions, fn func(line string, p orb.Point, data bool) error) error {
	if opts.XCol < 1 || opts.YCol < 1 {
		return fmt.Errorf("columns are 1-based, got x=%d y=%d", opts.XCol, opts.YCol)
	}
	seps := opts.Separators
	if seps == "" {
		seps = DefaultSeparators
	}
	isSep := func(r rune) bool { return strings.ContainsRune(seps, r) }

	include := true
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		var err error
		switch {
		case strings.HasPrefix(line, "#"):
			err = fn(line, orb.Point{}, false)
		case strings.HasPrefix(line, "*"):
			include = !include
			err = fn(line, orb.Point{}, false)
		case !include:
			err = fn(line, orb.Point{}, false)
		default:
			fields := strings.FieldsFunc(line, isSep)
			if len(fields) == 0 {
				continue
			}
			err = fn(line, orb.Point{column(fields, opts.XCol), column(fields, opts.YCol)}, true)
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading catalogue: %w", err)
	}
	return nil
}

// OpenCatalogue loads a catalogue from path, or from stdin when path is "-".
func OpenCatalogue(path string, stdin io.Reader, opts LoadOptions) (*Catalogue, error) {
	if path == "-" {
		cat, err := LoadCatalogue(stdin, opts)
		if err != nil {
			return nil, err
		}
		cat.Name = "-"
		return cat, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cat, err := LoadCatalogue(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cat.Name = path
	return cat, nil
}

func column(fields []string, col int) float64 {
	if col > len(fields) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(fields[col-1], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func passthrough(w io.Writer, line string) {
	if w != nil {
		fmt.Fprintln(w, line)
	}
}
