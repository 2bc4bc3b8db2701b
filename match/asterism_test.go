package match

import (
	"math"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pairPoints     = []orb.Point{{0, 0}, {5, 3}}
	trianglePoints = []orb.Point{{0, 0}, {10, 0}, {3, 7}}
	quadPoints     = []orb.Point{{0, 0}, {10, 0}, {0, 10}, {7, 4}}
)

func invariantNear(a, b Asterism, tol float64) bool {
	return math.Abs(a.Invariant[0]-b.Invariant[0]) <= tol &&
		math.Abs(a.Invariant[1]-b.Invariant[1]) <= tol &&
		slices.Equal(a.Order, b.Order)
}

func TestNewAsterism_Pair(t *testing.T) {
	a, ok := NewAsterism(KindPair, pairPoints, []int{0, 1})
	require.True(t, ok)
	assert.Equal(t, [2]float64{-5, -3}, a.Invariant)
	assert.Equal(t, []int{0, 1}, a.Order)

	b, ok := NewAsterism(KindPair, pairPoints, []int{1, 0})
	require.True(t, ok)
	assert.Equal(t, a.Invariant, b.Invariant, "pair invariant is independent of input order")
	assert.Equal(t, a.Order, b.Order)
}

func TestNewAsterism_Quad(t *testing.T) {
	a, ok := NewAsterism(KindQuad, quadPoints, []int{0, 1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 0.7, a.Invariant[0], 1e-12)
	assert.InDelta(t, 0.4, a.Invariant[1], 1e-12)
	assert.Equal(t, []int{3, 1, 2, 0}, a.Order)
	assert.Equal(t, []float64{100, 70, 40, 10}, a.Measures)
}

// permutations calls fn with every ordering of 0..n-1.
func permutations(n int, fn func([]int)) {
	var walk func(idx []int, k int)
	walk = func(idx []int, k int) {
		if k == len(idx) {
			fn(idx)
			return
		}
		for i := k; i < len(idx); i++ {
			idx[k], idx[i] = idx[i], idx[k]
			walk(idx, k+1)
			idx[k], idx[i] = idx[i], idx[k]
		}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	walk(idx, 0)
}

func TestNewAsterism_InputOrder(t *testing.T) {
	tests := []struct {
		kind  Kind
		pts   []orb.Point
		perms int
	}{
		{KindTriangle, trianglePoints, 6},
		{KindQuad, quadPoints, 24},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var want Asterism
			seen := 0
			permutations(tt.kind.Size(), func(idx []int) {
				if seen == 0 {
					var ok bool
					want, ok = NewAsterism(tt.kind, tt.pts, idx)
					require.True(t, ok)
				}
				seen++
				got, ok := NewAsterism(tt.kind, tt.pts, idx)
				require.True(t, ok, "order %v", idx)
				assert.True(t, invariantNear(want, got, 1e-12), "order %v: got %v %v, want %v %v",
					idx, got.Invariant, got.Order, want.Invariant, want.Order)
				assert.Equal(t, want.Measures, got.Measures, "order %v", idx)
			})
			assert.Equal(t, tt.perms, seen)
		})
	}
}

func TestNewAsterism_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		pts  []orb.Point
	}{
		{"pair with tiny dx", KindPair, []orb.Point{{0, 0}, {0.5, 40}}},
		{"pair with nan", KindPair, []orb.Point{{0, 0}, {5, math.NaN()}}},
		{"pair with inf", KindPair, []orb.Point{{0, 0}, {math.Inf(1), 2}}},
		{"pair with inf dy", KindPair, []orb.Point{{0, 0}, {5, math.Inf(-1)}}},
		{"triangle with inf", KindTriangle, []orb.Point{{0, 0}, {10, 0}, {math.Inf(1), 7}}},
		{"collinear triangle", KindTriangle, []orb.Point{{0, 0}, {10, 0}, {20, 0}}},
		{"triangle with short side", KindTriangle, []orb.Point{{0, 0}, {10, 0}, {10.5, 0.5}}},
		{"quad with collinear triple", KindQuad, []orb.Point{{0, 0}, {10, 0}, {20, 0}, {5, 5}}},
		{"quad with nan", KindQuad, []orb.Point{{0, 0}, {10, 0}, {0, 10}, {math.NaN(), 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := make([]int, tt.kind.Size())
			for i := range idx {
				idx[i] = i
			}
			_, ok := NewAsterism(tt.kind, tt.pts, idx)
			assert.False(t, ok)
		})
	}

	_, ok := NewAsterism(KindQuad, quadPoints, []int{0, 1, 2})
	assert.False(t, ok, "wrong subset size")
}

func TestPairInvariant_Translation(t *testing.T) {
	want, _ := NewAsterism(KindPair, pairPoints, []int{0, 1})
	properties := gopter.NewProperties(nil)

	properties.Property("pair invariant survives translation", prop.ForAll(
		func(tx, ty float64) bool {
			got, ok := NewAsterism(KindPair, TransformPoints(pairPoints, Translation(tx, ty)), []int{0, 1})
			return ok && invariantNear(want, got, 1e-6)
		},
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-1e4, 1e4),
	))

	properties.TestingRun(t)
}

func TestTriangleInvariant_Similarity(t *testing.T) {
	want, _ := NewAsterism(KindTriangle, trianglePoints, []int{0, 1, 2})
	properties := gopter.NewProperties(nil)

	properties.Property("triangle invariant survives rotation, scale and shift", prop.ForAll(
		func(scale, angle, tx, ty float64) bool {
			m := MultiplyMatrices(Translation(tx, ty), MultiplyMatrices(Rotation(angle), Scale(scale, scale)))
			got, ok := NewAsterism(KindTriangle, TransformPoints(trianglePoints, m), []int{0, 1, 2})
			return ok && invariantNear(want, got, 1e-9)
		},
		gen.Float64Range(0.5, 5),
		gen.Float64Range(0, 2*math.Pi),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.TestingRun(t)
}

func TestQuadInvariant_Affine(t *testing.T) {
	want, _ := NewAsterism(KindQuad, quadPoints, []int{0, 1, 2, 3})
	properties := gopter.NewProperties(nil)

	properties.Property("quad invariant survives any non-singular affine map", prop.ForAll(
		func(a, b, c, d, tx, ty float64) bool {
			if math.Abs(a*d-b*c) < 0.2 {
				return true
			}
			m := AffineMatrix{A: a, B: b, Tx: tx, C: c, D: d, Ty: ty}
			got, ok := NewAsterism(KindQuad, TransformPoints(quadPoints, m), []int{0, 1, 2, 3})
			return ok && invariantNear(want, got, 1e-9)
		},
		gen.Float64Range(-3, 3),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-3, 3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.TestingRun(t)
}

func TestCombinations(t *testing.T) {
	var got [][]int
	completed := Combinations(6, 3, func(idx []int) bool {
		got = append(got, slices.Clone(idx))
		return true
	})
	assert.True(t, completed)
	require.Len(t, got, 20)
	assert.Equal(t, []int{0, 1, 2}, got[0])
	assert.Equal(t, []int{0, 1, 3}, got[1])
	assert.Equal(t, []int{3, 4, 5}, got[19])
	for i := 1; i < len(got); i++ {
		assert.Negative(t, slices.Compare(got[i-1], got[i]), "not lexicographic at %d", i)
	}
}

func TestCombinations_EarlyStop(t *testing.T) {
	calls := 0
	completed := Combinations(10, 4, func([]int) bool {
		calls++
		return calls < 5
	})
	assert.False(t, completed)
	assert.Equal(t, 5, calls)
}

func TestCombinations_TooFewPoints(t *testing.T) {
	calls := 0
	completed := Combinations(3, 4, func([]int) bool {
		calls++
		return true
	})
	assert.True(t, completed)
	assert.Zero(t, calls)
}

func TestAsterisms_CountsDegenerate(t *testing.T) {
	pts := []orb.Point{{0, 0}, {10, 0}, {20, 0}, {0, 10}}
	var seen int
	degenerate, completed := Asterisms(KindTriangle, pts, func(Asterism) bool {
		seen++
		return true
	})
	assert.True(t, completed)
	assert.Equal(t, 1, degenerate)
	assert.Equal(t, 3, seen)
}
