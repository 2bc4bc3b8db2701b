package match

import "fmt"

// Params tunes one matcher run.
type Params struct {
	DistCut      float64 `json:"distCut" yaml:"distCut"`
	TransCut     float64 `json:"transCut" yaml:"transCut"`
	Param2Factor float64 `json:"param2Factor,omitempty" yaml:"param2Factor,omitempty"`
	XFactor      float64 `json:"xFactor,omitempty" yaml:"xFactor,omitempty"`
	YFactor      float64 `json:"yFactor,omitempty" yaml:"yFactor,omitempty"`
	MaxMatches   int     `json:"maxMatches" yaml:"maxMatches"`
	NoSwap       bool    `json:"noSwap,omitempty" yaml:"noSwap,omitempty"`
}

// DefaultParams returns the stock cutoffs for each asterism size.
func DefaultParams(kind Kind) Params {
	switch kind {
	case KindPair:
		return Params{DistCut: 0.2, TransCut: 0.2, XFactor: 1, YFactor: 1, MaxMatches: 20}
	case KindTriangle:
		return Params{DistCut: 1e-5, TransCut: 1e-3, Param2Factor: 1000, XFactor: 1, YFactor: 1, MaxMatches: 20}
	default:
		return Params{DistCut: 3e-3, TransCut: 1e-3, Param2Factor: 1000, XFactor: 1, YFactor: 1, MaxMatches: 20}
	}
}

// Validate rejects parameter sets the matcher cannot run with.
func (p Params) Validate(kind Kind) error {
	if !(p.DistCut > 0) {
		return fmt.Errorf("distCut must be positive, got %g", p.DistCut)
	}
	if !(p.TransCut > 0) {
		return fmt.Errorf("transCut must be positive, got %g", p.TransCut)
	}
	if kind != KindPair && p.Param2Factor == 0 {
		return fmt.Errorf("param2Factor must be non-zero")
	}
	if kind == KindPair && (p.XFactor == 0 || p.YFactor == 0) {
		return fmt.Errorf("xFactor and yFactor must be non-zero")
	}
	if p.MaxMatches < 0 {
		return fmt.Errorf("maxMatches must not be negative, got %d", p.MaxMatches)
	}
	return nil
}

// keyDims is the dimension of the transform-space key.
func keyDims(kind Kind) int {
	if kind == KindPair {
		return 2
	}
	return 6
}

// transformKey places a candidate in transform space. Pairs use the
// translation; larger asterisms use both rows with the offsets scaled down
// by Param2Factor.
func transformKey(kind Kind, p Params, m AffineMatrix) []float64 {
	if kind == KindPair {
		return []float64{m.Tx, m.Ty}
	}
	return []float64{m.A, m.B, m.Tx / p.Param2Factor, m.C, m.D, m.Ty / p.Param2Factor}
}
