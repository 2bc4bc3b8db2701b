package match

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// minMeasure is the smallest side length or doubled area, in catalogue
// units, that an asterism may have before it is treated as degenerate.
const minMeasure = 1.0

// Asterism is a subset of catalogue points reduced to its invariant.
type Asterism struct {
	// Order lists catalogue indices in canonical vertex order: slot s of
	// two asterisms with matching invariants correspond.
	Order []int
	// Invariant is unchanged by the transform class of the asterism size.
	Invariant [2]float64
	// Measures are the sorted quantities the invariant was built from:
	// (dx, dy) for pairs, side lengths for triangles, doubled areas for
	// quads.
	Measures []float64
}

// Key returns the invariant as an index key.
func (a Asterism) Key() []float64 {
	return []float64{a.Invariant[0], a.Invariant[1]}
}

// NewAsterism builds the asterism of the points at idx. It reports false
// for degenerate subsets.
func NewAsterism(kind Kind, pts []orb.Point, idx []int) (Asterism, bool) {
	if len(idx) != kind.Size() {
		return Asterism{}, false
	}
	switch kind {
	case KindPair:
		return pairAsterism(pts, idx[0], idx[1])
	case KindTriangle:
		return triangleAsterism(pts, idx[0], idx[1], idx[2])
	case KindQuad:
		return quadAsterism(pts, idx[0], idx[1], idx[2], idx[3])
	}
	return Asterism{}, false
}

// pairAsterism uses the displacement p_first - p_second with dx <= 0.
func pairAsterism(pts []orb.Point, i, j int) (Asterism, bool) {
	dx := pts[i][0] - pts[j][0]
	dy := pts[i][1] - pts[j][1]
	if !finite(dx) || !finite(dy) || !(math.Abs(dx) >= minMeasure) {
		return Asterism{}, false
	}
	order := []int{i, j}
	if dx > 0 {
		dx, dy = -dx, -dy
		order = []int{j, i}
	}
	return Asterism{
		Order:     order,
		Invariant: [2]float64{dx, dy},
		Measures:  []float64{dx, dy},
	}, true
}

// measure is a side length or area tagged with the vertex it is opposite
// to (or leaves out).
type measure struct {
	value  float64
	vertex int
}

func sortMeasures(ms []measure) {
	slices.SortStableFunc(ms, func(a, b measure) int {
		return cmp.Compare(b.value, a.value)
	})
}

func triangleAsterism(pts []orb.Point, i, j, k int) (Asterism, bool) {
	ms := []measure{
		{planar.Distance(pts[i], pts[j]), k},
		{planar.Distance(pts[j], pts[k]), i},
		{planar.Distance(pts[i], pts[k]), j},
	}
	sortMeasures(ms)

	longest, mid, short := ms[0].value, ms[1].value, ms[2].value
	if !(short >= minMeasure) || math.IsInf(longest, 0) {
		return Asterism{}, false
	}
	if !(doubledArea(pts[i], pts[j], pts[k]) >= minMeasure) {
		return Asterism{}, false
	}
	return Asterism{
		Order:     []int{ms[0].vertex, ms[1].vertex, ms[2].vertex},
		Invariant: [2]float64{mid / longest, short / longest},
		Measures:  []float64{longest, mid, short},
	}, true
}

func quadAsterism(pts []orb.Point, i, j, k, l int) (Asterism, bool) {
	ms := []measure{
		{doubledArea(pts[i], pts[j], pts[k]), l},
		{doubledArea(pts[i], pts[j], pts[l]), k},
		{doubledArea(pts[i], pts[k], pts[l]), j},
		{doubledArea(pts[j], pts[k], pts[l]), i},
	}
	sortMeasures(ms)

	if !(ms[3].value >= minMeasure) || math.IsInf(ms[0].value, 0) {
		return Asterism{}, false
	}
	return Asterism{
		Order:     []int{ms[0].vertex, ms[1].vertex, ms[2].vertex, ms[3].vertex},
		Invariant: [2]float64{ms[1].value / ms[0].value, ms[2].value / ms[0].value},
		Measures:  []float64{ms[0].value, ms[1].value, ms[2].value, ms[3].value},
	}, true
}

// doubledArea is |cross(b-a, c-b)|, twice the triangle area.
func doubledArea(a, b, c orb.Point) float64 {
	return math.Abs((a[0]-b[0])*(b[1]-c[1]) - (b[0]-c[0])*(a[1]-b[1]))
}

// Combinations calls fn with every k-subset of 0..n-1 in lexicographic
// order. The slice is reused between calls. Enumeration stops when fn
// returns false; the return value reports whether it ran to completion.
func Combinations(n, k int, fn func(idx []int) bool) bool {
	if k <= 0 || k > n {
		return true
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return false
		}
		// Advance the rightmost index that still has room.
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return true
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// Asterisms enumerates every non-degenerate asterism of pts. It returns the
// number of degenerate subsets skipped and whether enumeration completed.
func Asterisms(kind Kind, pts []orb.Point, fn func(Asterism) bool) (degenerate int, completed bool) {
	completed = Combinations(len(pts), kind.Size(), func(idx []int) bool {
		a, ok := NewAsterism(kind, pts, idx)
		if !ok {
			degenerate++
			return true
		}
		return fn(a)
	})
	return degenerate, completed
}
