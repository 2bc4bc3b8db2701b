package match

import (
	"fmt"
	"io"
	"strings"
)

// Verbosity levels for Reporter.
const (
	LevelSummary = 0 // consensus hits
	LevelDetail  = 1 // per-hit correspondences and candidates
	LevelDebug   = 2 // parameters, asterism measures, reverse maps
)

// Reporter writes "#"-prefixed diagnostics. A nil Reporter is silent.
type Reporter struct {
	w         io.Writer
	Verbosity int
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer, verbosity int) *Reporter {
	return &Reporter{w: w, Verbosity: verbosity}
}

func (r *Reporter) enabled(level int) bool {
	return r != nil && r.w != nil && r.Verbosity >= level
}

func (r *Reporter) printf(level int, format string, args ...any) {
	if !r.enabled(level) {
		return
	}
	fmt.Fprintf(r.w, "# "+format+"\n", args...)
}

// Comment writes a free-form diagnostic line at the given level.
func (r *Reporter) Comment(level int, format string, args ...any) {
	r.printf(level, format, args...)
}

func (r *Reporter) start(kind Kind, p Params, res *Result) {
	r.printf(LevelDebug, "%s matcher: distCut=%g transCut=%g param2Factor=%g xFactor=%g yFactor=%g maxMatches=%d noSwap=%t",
		kind, p.DistCut, p.TransCut, p.Param2Factor, p.XFactor, p.YFactor, p.MaxMatches, p.NoSwap)
	r.printf(LevelDetail, "Catalogue 1: %d points, catalogue 2: %d points", res.N1, res.N2)
	if res.Swapped {
		r.printf(LevelDetail, "Catalogue 2 has fewer points and is indexed; results are still reported as 1 -> 2")
	}
}

func (r *Reporter) indexed(a Asterism) {
	r.printf(LevelDebug, "indexed %v measures %s invariant %s %s",
		a.Order, joinNumbers(a.Measures), formatNumber(a.Invariant[0]), formatNumber(a.Invariant[1]))
}

func (r *Reporter) indexSummary(res *Result) {
	r.printf(LevelDetail, "Indexed %d asterisms (%d degenerate skipped)", res.Indexed, res.Skipped)
}

func (r *Reporter) hit(probe Asterism, h Hit[Asterism], pairs []Correspondence) {
	if !r.enabled(LevelDetail) {
		return
	}
	r.printf(LevelDetail, "probe %v matches indexed %v, invariant distance %s",
		probe.Order, h.Payload.Order, formatNumber(h.Dist))
	for _, c := range pairs {
		r.printf(LevelDetail, "  %d -> %d", c.I1, c.I2)
	}
}

func (r *Reporter) candidate(c *Candidate) {
	r.printf(LevelDetail, "candidate %s", c.Transform)
	if r.enabled(LevelDebug) {
		if inv, err := InvertMatrix(c.Transform); err == nil {
			r.printf(LevelDebug, "reverse   %s", inv)
		}
	}
}

func (r *Reporter) degenerate(pairs []Correspondence, err error) {
	r.printf(LevelDetail, "rejected %v: %v", pairs, err)
}

func (r *Reporter) cluster(kind Kind, rep ClusterReport) {
	if rep.Matches == 0 || !r.enabled(LevelSummary) {
		return
	}
	key := rep.Candidate.Key
	r.printf(LevelSummary, "transform key: %s", joinNumbers(key))
	r.printf(LevelSummary, "Number of matching %s pairs: %d", kind, rep.Matches)
	for _, m := range rep.Members {
		r.printf(LevelSummary, "  %s", joinNumbers(m.Key))
	}
	if rep.RefitErr != nil {
		r.printf(LevelSummary, "refit failed: %v", rep.RefitErr)
		return
	}
	t := rep.Refined
	r.printf(LevelSummary, "x2 = %s * x1 + %s * y1 + %s", formatNumber(t.A), formatNumber(t.B), formatNumber(t.Tx))
	r.printf(LevelSummary, "y2 = %s * x1 + %s * y1 + %s", formatNumber(t.C), formatNumber(t.D), formatNumber(t.Ty))
	r.printf(LevelSummary, "%s", t)
	if rep.Improved {
		r.printf(LevelDetail, "new best cluster with %d matches", rep.Matches)
	}
}

func (r *Reporter) finish(res *Result) {
	r.printf(LevelDetail, "Probed %d asterisms, %d candidates, %d rejected fits", res.Probed, res.Candidates, res.Degenerate)
	if res.EarlyExit {
		r.printf(LevelDetail, "Stopped early after reaching the match ceiling")
	}
}

// WriteResult prints the final verdict of a matcher run.
func WriteResult(w io.Writer, res *Result) error {
	if !res.Found() {
		_, err := fmt.Fprintln(w, "No transformations with multiple asterisms found.")
		return err
	}
	_, err := fmt.Fprintf(w, "# Transformation that fits the most asterisms:\n%s\n", res.Best)
	return err
}

func joinNumbers(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatNumber(v)
	}
	return strings.Join(parts, " ")
}
