package match

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrTooFewPoints is returned when a fit has fewer correspondences than
	// unknowns per axis.
	ErrTooFewPoints = errors.New("at least three correspondences are required")
	// ErrDegenerateConfiguration is returned when the source points are
	// collinear (or coincident) and the normal equations are singular.
	ErrDegenerateConfiguration = errors.New("degenerate point configuration")
)

// conditionTolerance bounds |det(G)| / (G11*G22*G33). Hadamard's inequality
// keeps that ratio in [0, 1] for the Gram matrix G of the normal equations.
const conditionTolerance = 1e-10

// normalEquations holds the Gram sums of one source point set. Sums are
// taken about origin so that distant but compact point sets stay well
// conditioned.
type normalEquations struct {
	origin orb.Point
	n      int

	s11, s12, s13 float64 // Σx², Σxy, Σx
	s22, s23      float64 // Σy², Σy
}

func newNormalEquations(src []orb.Point) normalEquations {
	e := normalEquations{n: len(src)}
	if len(src) == 0 {
		return e
	}
	e.origin = src[0]
	for _, p := range src {
		x, y := p[0]-e.origin[0], p[1]-e.origin[1]
		e.s11 += x * x
		e.s12 += x * y
		e.s13 += x
		e.s22 += y * y
		e.s23 += y
	}
	return e
}

// rhs returns Σx·v, Σy·v and Σv.
func (e *normalEquations) rhs(src []orb.Point, v []float64) (s01, s02, s03 float64) {
	for i, p := range src {
		x, y := p[0]-e.origin[0], p[1]-e.origin[1]
		s01 += x * v[i]
		s02 += y * v[i]
		s03 += v[i]
	}
	return s01, s02, s03
}

// solve expands the 3x3 system by cofactors and returns (a, b, c) in the
// caller's frame.
func (e *normalEquations) solve(s01, s02, s03 float64) ([3]float64, error) {
	s11, s12, s13, s22, s23 := e.s11, e.s12, e.s13, e.s22, e.s23
	s33 := float64(e.n)

	d := s13*s13*s22 - 2*s12*s13*s23 + s11*s23*s23 + s12*s12*s33 - s11*s22*s33
	if !(math.Abs(d) > conditionTolerance*s11*s22*s33) {
		return [3]float64{}, ErrDegenerateConfiguration
	}

	a := (s03*s13*s22 - s03*s12*s23 - s02*s13*s23 + s01*s23*s23 + s02*s12*s33 - s01*s22*s33) / d
	b := (-s03*s12*s13 + s02*s13*s13 + s03*s11*s23 - s01*s13*s23 - s02*s11*s33 + s01*s12*s33) / d
	c := (s03*s12*s12 - s02*s12*s13 - s03*s11*s22 + s01*s13*s22 + s02*s11*s23 - s01*s12*s23) / d

	c -= a*e.origin[0] + b*e.origin[1]
	out := [3]float64{a, b, c}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return [3]float64{}, ErrDegenerateConfiguration
		}
	}
	return out, nil
}

// FitAxis finds (a, b, c) minimising Σ(a·xᵢ + b·yᵢ + c − targetᵢ)². On
// error coeff is left untouched.
func FitAxis(src []orb.Point, target []float64, coeff *[3]float64) error {
	if len(src) != len(target) {
		return fmt.Errorf("fit axis: %d source points but %d targets", len(src), len(target))
	}
	if len(src) < 3 {
		return ErrTooFewPoints
	}
	e := newNormalEquations(src)
	s01, s02, s03 := e.rhs(src, target)
	out, err := e.solve(s01, s02, s03)
	if err != nil {
		return err
	}
	*coeff = out
	return nil
}

// FitAffine computes the least-squares affine map taking src onto dst.
func FitAffine(src, dst []orb.Point) (AffineMatrix, error) {
	if len(src) != len(dst) {
		return AffineMatrix{}, fmt.Errorf("fit affine: %d source points but %d targets", len(src), len(dst))
	}
	if len(src) < 3 {
		return AffineMatrix{}, ErrTooFewPoints
	}

	xs := make([]float64, len(dst))
	ys := make([]float64, len(dst))
	for i, p := range dst {
		xs[i], ys[i] = p[0], p[1]
	}

	e := newNormalEquations(src)
	cx, err := e.solve(e.rhs(src, xs))
	if err != nil {
		return AffineMatrix{}, err
	}
	cy, err := e.solve(e.rhs(src, ys))
	if err != nil {
		return AffineMatrix{}, err
	}
	return AffineMatrix{A: cx[0], B: cx[1], Tx: cx[2], C: cy[0], D: cy[1], Ty: cy[2]}, nil
}

// FitTranslation returns the mean displacement from src to dst.
func FitTranslation(src, dst []orb.Point) (AffineMatrix, error) {
	if len(src) != len(dst) {
		return AffineMatrix{}, fmt.Errorf("fit translation: %d source points but %d targets", len(src), len(dst))
	}
	if len(src) == 0 {
		return AffineMatrix{}, ErrTooFewPoints
	}
	var tx, ty float64
	for i := range src {
		tx += dst[i][0] - src[i][0]
		ty += dst[i][1] - src[i][1]
	}
	n := float64(len(src))
	tx, ty = tx/n, ty/n
	if math.IsNaN(tx+ty) || math.IsInf(tx+ty, 0) {
		return AffineMatrix{}, ErrDegenerateConfiguration
	}
	return Translation(tx, ty), nil
}

// FitRows fits the affine map between catalogues whose rows already
// correspond, using the first min(len(cat1), len(cat2)) rows. Rows with a
// non-finite coordinate on either side are ignored.
func FitRows(cat1, cat2 []orb.Point) (AffineMatrix, int, error) {
	n := min(len(cat1), len(cat2))
	src := make([]orb.Point, 0, n)
	dst := make([]orb.Point, 0, n)
	for i := 0; i < n; i++ {
		if isFinitePoint(cat1[i]) && isFinitePoint(cat2[i]) {
			src = append(src, cat1[i])
			dst = append(dst, cat2[i])
		}
	}
	m, err := FitAffine(src, dst)
	return m, len(src), err
}
