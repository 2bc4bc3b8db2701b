package match

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrSingularTransform is returned when a matrix has no inverse.
var ErrSingularTransform = errors.New("transform is singular")

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p orb.Point, m AffineMatrix) orb.Point {
	return orb.Point{
		m.A*p.X() + m.B*p.Y() + m.Tx,
		m.C*p.X() + m.D*p.Y() + m.Ty,
	}
}

// TransformPoints applies an affine transform to multiple points
func TransformPoints(points []orb.Point, m AffineMatrix) []orb.Point {
	result := make([]orb.Point, len(points))
	for i, p := range points {
		result[i] = TransformPoint(p, m)
	}
	return result
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// InvertMatrix computes the inverse of an affine transform.
func InvertMatrix(m AffineMatrix) (AffineMatrix, error) {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-10 || math.IsNaN(det) {
		return AffineMatrix{}, ErrSingularTransform
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}, nil
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Rotation creates a rotation transform (angle in radians, around origin)
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Ty: 0}
}

// RotationDeg creates a rotation transform (angle in degrees, around origin)
func RotationDeg(degrees float64) AffineMatrix {
	return Rotation(degrees * math.Pi / 180.0)
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sy, Ty: 0}
}

// ParseTransform reads the six numbers that follow a "-t" flag.
func ParseTransform(args []string) (AffineMatrix, error) {
	if len(args) != 6 {
		return AffineMatrix{}, fmt.Errorf("transform needs 6 coefficients, got %d", len(args))
	}
	var c [6]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return AffineMatrix{}, fmt.Errorf("transform coefficient %d: %w", i+1, err)
		}
		c[i] = v
	}
	return AffineMatrix{A: c[0], B: c[1], Tx: c[2], C: c[3], D: c[4], Ty: c[5]}, nil
}

// Residuals returns the distance between each mapped source point and its
// target.
func Residuals(m AffineMatrix, src, dst []orb.Point) []float64 {
	n := min(len(src), len(dst))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = planar.Distance(TransformPoint(src[i], m), dst[i])
	}
	return out
}

// isFinitePoint reports whether both coordinates are usable numbers.
func isFinitePoint(p orb.Point) bool {
	return finite(p[0]) && finite(p[1])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// boundOf returns the extent of the finite points; empty input yields a
// zero bound.
func boundOf(points []orb.Point) orb.Bound {
	var b orb.Bound
	first := true
	for _, p := range points {
		if !isFinitePoint(p) {
			continue
		}
		if first {
			b = orb.Bound{Min: p, Max: p}
			first = false
			continue
		}
		b = b.Extend(p)
	}
	return b
}
