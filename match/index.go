package match

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

var (
	// ErrDimension is returned for a key whose length differs from the
	// index dimension.
	ErrDimension = errors.New("key dimension mismatch")
	// ErrNonFinite is returned for keys containing NaN or Inf.
	ErrNonFinite = errors.New("key is not finite")
	// ErrIndexClosed is returned by Insert after Close.
	ErrIndexClosed = errors.New("index is closed")
)

// entry is the tree element: a key with the payload it locates.
type entry[T any] struct {
	key     kdtree.Point
	payload T
}

func (e entry[T]) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return e.key[d] - c.(entry[T]).key[d]
}

func (e entry[T]) Dims() int { return len(e.key) }

// Distance is the squared Euclidean distance, as kdtree expects.
func (e entry[T]) Distance(c kdtree.Comparable) float64 {
	return e.key.Distance(c.(entry[T]).key)
}

// Hit is one query result.
type Hit[T any] struct {
	Key     []float64
	Payload T
	Dist    float64
}

// Index is an n-dimensional point index mapping keys to payloads. The index
// owns inserted payloads: Close hands each one to the release callback
// exactly once.
type Index[T any] struct {
	dim     int
	tree    *kdtree.Tree
	release func(T)
	closed  bool
}

// NewIndex creates an empty index over dim-dimensional keys.
func NewIndex[T any](dim int) *Index[T] {
	return &Index[T]{dim: dim, tree: &kdtree.Tree{}}
}

// OnRelease registers the callback run for every payload at teardown.
func (ix *Index[T]) OnRelease(fn func(T)) {
	ix.release = fn
}

// Dims returns the key dimension.
func (ix *Index[T]) Dims() int { return ix.dim }

// Len returns the number of stored entries.
func (ix *Index[T]) Len() int {
	if ix.tree == nil {
		return 0
	}
	return ix.tree.Count
}

// Insert stores payload under key. The key is copied.
func (ix *Index[T]) Insert(key []float64, payload T) error {
	if ix.closed {
		return ErrIndexClosed
	}
	if len(key) != ix.dim {
		return fmt.Errorf("insert %d-d key into %d-d index: %w", len(key), ix.dim, ErrDimension)
	}
	for _, v := range key {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("insert %v: %w", key, ErrNonFinite)
		}
	}
	k := make(kdtree.Point, len(key))
	copy(k, key)
	ix.tree.Insert(entry[T]{key: k, payload: payload}, false)
	return nil
}

// Within returns every entry whose key lies within radius of key, nearest
// first. Malformed queries match nothing.
func (ix *Index[T]) Within(key []float64, radius float64) []Hit[T] {
	if ix.closed || ix.tree.Root == nil || !ix.validQuery(key) || !(radius >= 0) {
		return nil
	}
	keep := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keep, entry[T]{key: kdtree.Point(key)})

	hits := make([]Hit[T], 0, keep.Len())
	for _, cd := range keep.Heap {
		e, ok := cd.Comparable.(entry[T])
		if !ok {
			continue
		}
		hits = append(hits, Hit[T]{Key: e.key, Payload: e.payload, Dist: math.Sqrt(cd.Dist)})
	}
	slices.SortStableFunc(hits, func(a, b Hit[T]) int { return cmp.Compare(a.Dist, b.Dist) })
	return hits
}

// Nearest returns the closest entry to key.
func (ix *Index[T]) Nearest(key []float64) (Hit[T], bool) {
	if ix.closed || ix.tree.Root == nil || !ix.validQuery(key) {
		return Hit[T]{}, false
	}
	c, d := ix.tree.Nearest(entry[T]{key: kdtree.Point(key)})
	e, ok := c.(entry[T])
	if !ok {
		return Hit[T]{}, false
	}
	return Hit[T]{Key: e.key, Payload: e.payload, Dist: math.Sqrt(d)}, true
}

// Close releases every payload and empties the index. Calling Close again is
// a no-op.
func (ix *Index[T]) Close() {
	if ix.closed {
		return
	}
	ix.closed = true
	if ix.release != nil && ix.tree.Root != nil {
		ix.tree.Do(func(c kdtree.Comparable, _ *kdtree.Bounding, _ int) bool {
			ix.release(c.(entry[T]).payload)
			return false
		})
	}
	ix.tree = &kdtree.Tree{}
}

func (ix *Index[T]) validQuery(key []float64) bool {
	if len(key) != ix.dim {
		return false
	}
	for _, v := range key {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
