package match

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
//
// The field order matches the six numbers of a "-t a b c d e f" line.
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// Coefficients returns the matrix in "-t" order.
func (m AffineMatrix) Coefficients() [6]float64 {
	return [6]float64{m.A, m.B, m.Tx, m.C, m.D, m.Ty}
}

// String formats the matrix as a "-t" argument list.
func (m AffineMatrix) String() string {
	c := m.Coefficients()
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = formatNumber(v)
	}
	return "-t " + strings.Join(parts, " ")
}

// formatNumber prints a coefficient with six significant digits.
func formatNumber(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

// Kind selects the asterism size and transform class of a matcher.
type Kind int

const (
	KindPair     Kind = 2
	KindTriangle Kind = 3
	KindQuad     Kind = 4
)

// ParseKind maps a tool or variant name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSuffix(name, "_kd")) {
	case "pair", "pairs":
		return KindPair, nil
	case "triangle", "triangles", "tri":
		return KindTriangle, nil
	case "quad", "quads":
		return KindQuad, nil
	}
	return 0, fmt.Errorf("unknown matcher variant %q", name)
}

// Size is the number of points per asterism.
func (k Kind) Size() int { return int(k) }

func (k Kind) String() string {
	switch k {
	case KindPair:
		return "pair"
	case KindTriangle:
		return "triangle"
	case KindQuad:
		return "quad"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Correspondence pairs a point of catalogue 1 with a point of catalogue 2.
// Indices always refer to the catalogues in the order the caller supplied
// them, regardless of which one was indexed.
type Correspondence struct {
	I1 int `json:"i1"`
	I2 int `json:"i2"`
}

// Candidate is the transform implied by a single invariant hit.
type Candidate struct {
	Transform AffineMatrix
	Pairs     []Correspondence
	Key       []float64
}

// Result is the outcome of one matcher run.
type Result struct {
	Kind       Kind             `json:"-"`
	Variant    string           `json:"variant"`
	Swapped    bool             `json:"swapped"`
	N1         int              `json:"n1"`
	N2         int              `json:"n2"`
	Indexed    int              `json:"indexedAsterisms"`
	Probed     int              `json:"probedAsterisms"`
	Skipped    int              `json:"skippedAsterisms"`
	Candidates int              `json:"candidates"`
	Degenerate int              `json:"degenerateFits"`
	NBest      int              `json:"nbest"`
	Best       AffineMatrix     `json:"transform"`
	Support    []Correspondence `json:"support,omitempty"`
	EarlyExit  bool             `json:"earlyExit"`
}

// Found reports whether at least two asterism matches agreed on a transform.
func (r *Result) Found() bool { return r.NBest > 0 }

// Catalogue is a loaded point list. Lines holds the raw text of every data
// row so tools can echo matched rows.
type Catalogue struct {
	Name   string
	Points []orb.Point
	Lines  []string
}

// Len returns the number of data rows.
func (c *Catalogue) Len() int { return len(c.Points) }

// Bound returns the extent of all finite points.
func (c *Catalogue) Bound() orb.Bound {
	return boundOf(c.Points)
}
