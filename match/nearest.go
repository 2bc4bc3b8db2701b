package match

import (
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"
)

// NearestOptions configures a positional cross-match of two catalogues
// that are already (nearly) in the same frame.
type NearestOptions struct {
	// Transform1 maps catalogue 1 positions before matching.
	Transform1 *AffineMatrix
	// Transform2 maps catalogue 2 positions before indexing.
	Transform2 *AffineMatrix
	// Radius, when positive, lists every catalogue 2 row within it.
	Radius float64
	// SkipNearest suppresses the nearest-neighbour line.
	SkipNearest bool
	// Unique reports only catalogue 2 rows never within Radius of a
	// catalogue 1 row.
	Unique bool
	// Sphere treats coordinates as RA/Dec in degrees; distances and
	// Radius are then angles in degrees.
	Sphere bool
}

// Neighbour is one catalogue 2 row found for a catalogue 1 row.
type Neighbour struct {
	Row  int
	Pos  orb.Point
	Dist float64
}

// NearestRow holds the matches of one catalogue 1 row.
type NearestRow struct {
	Row     int
	Pos     orb.Point
	Nearest *Neighbour
	Within  []Neighbour
}

// NearestReport is the outcome of MatchNearest.
type NearestReport struct {
	Rows []NearestRow
	// Unmatched lists catalogue 2 rows no catalogue 1 row came within
	// Radius of. Only filled in Unique mode.
	Unmatched []int
	// Skipped counts catalogue 2 rows with unusable coordinates.
	Skipped int
}

// MatchNearest indexes catalogue 2 and looks up every catalogue 1 row.
func MatchNearest(cat1, cat2 *Catalogue, opts NearestOptions) (*NearestReport, error) {
	if opts.Unique && !(opts.Radius > 0) {
		return nil, fmt.Errorf("unique matching needs a positive radius")
	}

	dim := 2
	if opts.Sphere {
		dim = 3
	}
	pos2 := cat2.Points
	if opts.Transform2 != nil {
		pos2 = TransformPoints(pos2, *opts.Transform2)
	}

	ix := NewIndex[int](dim)
	defer ix.Close()

	report := &NearestReport{}
	for row, p := range pos2 {
		if err := ix.Insert(nearestKey(p, opts.Sphere), row); err != nil {
			report.Skipped++
		}
	}

	radius := opts.Radius
	if opts.Sphere && radius > 0 {
		radius = chordOf(radius)
	}
	used := make([]bool, len(pos2))

	for row, p := range cat1.Points {
		if opts.Transform1 != nil {
			p = TransformPoint(p, *opts.Transform1)
		}
		key := nearestKey(p, opts.Sphere)
		out := NearestRow{Row: row, Pos: p}

		if h, ok := ix.Nearest(key); ok && !opts.SkipNearest {
			out.Nearest = &Neighbour{Row: h.Payload, Pos: pos2[h.Payload], Dist: distanceOf(h.Dist, opts.Sphere)}
		}
		if radius > 0 {
			for _, h := range ix.Within(key, radius) {
				used[h.Payload] = true
				out.Within = append(out.Within, Neighbour{Row: h.Payload, Pos: pos2[h.Payload], Dist: distanceOf(h.Dist, opts.Sphere)})
			}
		}
		report.Rows = append(report.Rows, out)
	}

	if opts.Unique {
		for row, u := range used {
			if !u && isFinitePoint(pos2[row]) {
				report.Unmatched = append(report.Unmatched, row)
			}
		}
	}
	return report, nil
}

// WriteNearest prints a report in the column layout of the match tool.
func WriteNearest(w io.Writer, cat1, cat2 *Catalogue, report *NearestReport, opts NearestOptions) error {
	if opts.Unique {
		for _, row := range report.Unmatched {
			if _, err := fmt.Fprintln(w, cat2.Lines[row]); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range report.Rows {
		prefix := cat1.Lines[r.Row]
		if opts.Transform1 != nil {
			prefix += fmt.Sprintf(" %8.4f %8.4f", r.Pos[0], r.Pos[1])
		}
		if r.Nearest != nil {
			line := prefix
			if opts.Transform2 != nil {
				line += fmt.Sprintf(" %8.4f %8.4f", r.Nearest.Pos[0], r.Nearest.Pos[1])
			}
			if _, err := fmt.Fprintf(w, "%s %12.4e %s\n", line, r.Nearest.Dist, cat2.Lines[r.Nearest.Row]); err != nil {
				return err
			}
		}
		for _, n := range r.Within {
			if _, err := fmt.Fprintf(w, "%s %8.4f %s\n", prefix, n.Dist, cat2.Lines[n.Row]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary returns the count, mean and standard deviation of the nearest
// neighbour distances.
func (r *NearestReport) Summary() (n int, mean, std float64) {
	var d []float64
	for _, row := range r.Rows {
		if row.Nearest != nil {
			d = append(d, row.Nearest.Dist)
		}
	}
	if len(d) == 0 {
		return 0, math.NaN(), math.NaN()
	}
	if len(d) == 1 {
		return 1, d[0], 0
	}
	mean, std = stat.MeanStdDev(d, nil)
	return len(d), mean, std
}

func nearestKey(p orb.Point, sphere bool) []float64 {
	if !sphere {
		return []float64{p[0], p[1]}
	}
	ra, dec := p[0]*math.Pi/180, p[1]*math.Pi/180
	return []float64{math.Cos(dec) * math.Cos(ra), math.Cos(dec) * math.Sin(ra), math.Sin(dec)}
}

// chordOf converts an angle in degrees to a unit-sphere chord length.
func chordOf(deg float64) float64 {
	return 2 * math.Sin(deg*math.Pi/360)
}

func distanceOf(d float64, sphere bool) float64 {
	if !sphere {
		return d
	}
	return 360 / math.Pi * math.Asin(math.Min(d/2, 1))
}
