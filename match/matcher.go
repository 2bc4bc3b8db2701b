package match

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
)

// Matcher cross-matches two catalogues with one asterism size.
type Matcher struct {
	Kind   Kind
	Params Params
	// Report receives diagnostics; nil disables them.
	Report *Reporter
}

// NewMatcher creates a matcher with the default parameters for kind.
func NewMatcher(kind Kind) *Matcher {
	return &Matcher{Kind: kind, Params: DefaultParams(kind)}
}

// Run finds the affine map taking cat1 onto cat2 that the most asterism
// matches agree on. The catalogue with fewer points is indexed unless
// Params.NoSwap is set; the result is always expressed as cat1 -> cat2.
func (m *Matcher) Run(cat1, cat2 []orb.Point) (*Result, error) {
	return m.RunContext(context.Background(), cat1, cat2)
}

// RunContext is Run with cancellation, checked before each asterism.
func (m *Matcher) RunContext(ctx context.Context, cat1, cat2 []orb.Point) (*Result, error) {
	kind := m.Kind
	if err := m.Params.Validate(kind); err != nil {
		return nil, fmt.Errorf("%s matcher: %w", kind, err)
	}

	res := &Result{Kind: kind, Variant: kind.String(), N1: len(cat1), N2: len(cat2), Best: Identity()}

	// Pairs only see translations, so any known scale is applied up front.
	prescale := Identity()
	src, dst := cat1, cat2
	if kind == KindPair && (m.Params.XFactor != 1 || m.Params.YFactor != 1) {
		prescale = Scale(m.Params.XFactor, m.Params.YFactor)
		src = TransformPoints(cat1, prescale)
	}

	indexed, probe := src, dst
	if len(src) > len(dst) && !m.Params.NoSwap {
		indexed, probe = dst, src
		res.Swapped = true
	}
	m.Report.start(kind, m.Params, res)

	invariants := NewIndex[Asterism](2)
	defer invariants.Close()

	var runErr error
	res.Skipped, _ = Asterisms(kind, indexed, func(a Asterism) bool {
		if err := ctx.Err(); err != nil {
			runErr = err
			return false
		}
		if err := invariants.Insert(a.Key(), a); err != nil {
			runErr = fmt.Errorf("indexing asterism %v: %w", a.Order, err)
			return false
		}
		res.Indexed++
		m.Report.indexed(a)
		return true
	})
	if runErr != nil {
		return nil, runErr
	}
	m.Report.indexSummary(res)

	fit := fitter(kind, src, dst)
	clusters := NewClusterer(kind, m.Params, fit)
	defer clusters.Close()

	_, completed := Asterisms(kind, probe, func(b Asterism) bool {
		if err := ctx.Err(); err != nil {
			runErr = err
			return false
		}
		res.Probed++
		for _, h := range invariants.Within(b.Key(), m.Params.DistCut) {
			pairs := correspond(h.Payload, b, res.Swapped)
			m.Report.hit(b, h, pairs)

			t, err := fit(pairs)
			if err != nil {
				res.Degenerate++
				m.Report.degenerate(pairs, err)
				continue
			}
			res.Candidates++
			cand := &Candidate{Transform: t, Pairs: pairs}
			m.Report.candidate(cand)

			rep, err := clusters.Add(cand)
			if err != nil {
				runErr = err
				return false
			}
			m.Report.cluster(kind, rep)
			if m.Params.MaxMatches > 0 && rep.Matches >= m.Params.MaxMatches {
				return false
			}
		}
		return true
	})
	if runErr != nil {
		return nil, runErr
	}
	res.EarlyExit = !completed

	best, nbest, support := clusters.Best()
	res.NBest = nbest
	if nbest > 0 {
		res.Best = MultiplyMatrices(best, prescale)
		res.Support = support
	}
	m.Report.finish(res)
	return res, nil
}

// correspond pairs the canonical vertices of an indexed and a probing
// asterism slot by slot, in catalogue 1 -> catalogue 2 order.
func correspond(indexed, probe Asterism, swapped bool) []Correspondence {
	pairs := make([]Correspondence, len(indexed.Order))
	for s := range indexed.Order {
		if swapped {
			pairs[s] = Correspondence{I1: probe.Order[s], I2: indexed.Order[s]}
		} else {
			pairs[s] = Correspondence{I1: indexed.Order[s], I2: probe.Order[s]}
		}
	}
	return pairs
}

// fitter returns the estimator for kind over the given catalogues.
func fitter(kind Kind, src, dst []orb.Point) RefitFunc {
	return func(pairs []Correspondence) (AffineMatrix, error) {
		from := make([]orb.Point, len(pairs))
		to := make([]orb.Point, len(pairs))
		for i, c := range pairs {
			from[i] = src[c.I1]
			to[i] = dst[c.I2]
		}
		if kind == KindPair {
			return FitTranslation(from, to)
		}
		return FitAffine(from, to)
	}
}

// CrossMatch is a convenience wrapper running a matcher with explicit
// parameters.
func CrossMatch(kind Kind, params Params, cat1, cat2 []orb.Point) (*Result, error) {
	m := &Matcher{Kind: kind, Params: params}
	return m.Run(cat1, cat2)
}
