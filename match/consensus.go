package match

import (
	"fmt"
	"slices"
)

// ClusterState tracks whether the clusterer has seen a candidate yet.
type ClusterState int

const (
	ClusterEmpty ClusterState = iota
	ClusterAccumulating
)

func (s ClusterState) String() string {
	if s == ClusterEmpty {
		return "empty"
	}
	return "accumulating"
}

// RefitFunc fits a transform to pooled correspondences.
type RefitFunc func(pairs []Correspondence) (AffineMatrix, error)

// ClusterReport describes what happened to one candidate.
type ClusterReport struct {
	Candidate *Candidate
	// Members are the earlier candidates within the consensus cutoff
	// that are independent of Candidate, nearest first.
	Members []*Candidate
	// Matches is len(Members).
	Matches int
	// Refined is the fit over the pooled correspondences of the candidate
	// and its members. Only set when RefitErr is nil and Matches > 0.
	Refined  AffineMatrix
	RefitErr error
	// Improved is set when this candidate's cluster became the best one.
	Improved bool
}

// Clusterer groups candidate transforms that agree within a cutoff in
// transform space and remembers the best supported one.
type Clusterer struct {
	kind   Kind
	params Params
	refit  RefitFunc
	index  *Index[*Candidate]
	state  ClusterState

	nbest   int
	best    AffineMatrix
	support []Correspondence
}

// NewClusterer creates an empty clusterer.
func NewClusterer(kind Kind, params Params, refit RefitFunc) *Clusterer {
	return &Clusterer{
		kind:   kind,
		params: params,
		refit:  refit,
		index:  NewIndex[*Candidate](keyDims(kind)),
		best:   Identity(),
	}
}

// OnRelease registers a callback for every stored candidate at Close.
func (c *Clusterer) OnRelease(fn func(*Candidate)) {
	c.index.OnRelease(fn)
}

// State returns the current state.
func (c *Clusterer) State() ClusterState { return c.state }

// Len returns the number of candidates stored.
func (c *Clusterer) Len() int { return c.index.Len() }

// Add files a candidate. The first candidate is only stored; later ones
// are compared with every stored candidate before being stored
// themselves. An error means the transform index rejected the candidate.
func (c *Clusterer) Add(cand *Candidate) (ClusterReport, error) {
	if cand.Key == nil {
		cand.Key = transformKey(c.kind, c.params, cand.Transform)
	}
	report := ClusterReport{Candidate: cand}

	if c.state == ClusterAccumulating {
		pool := slices.Clone(cand.Pairs)
		for _, h := range c.index.Within(cand.Key, c.params.TransCut) {
			if !c.independent(cand, h.Payload) {
				continue
			}
			report.Members = append(report.Members, h.Payload)
			pool = append(pool, h.Payload.Pairs...)
		}
		report.Matches = len(report.Members)
		if report.Matches > 0 {
			refined, err := c.refit(pool)
			if err != nil {
				report.RefitErr = err
			} else {
				report.Refined = refined
				if report.Matches > c.nbest {
					c.nbest = report.Matches
					c.best = refined
					c.support = pool
					report.Improved = true
				}
			}
		}
	}

	if err := c.index.Insert(cand.Key, cand); err != nil {
		return report, fmt.Errorf("storing candidate transform: %w", err)
	}
	c.state = ClusterAccumulating
	return report, nil
}

// independent reports whether two candidates share fewer than k-1
// correspondences. Candidates overlapping in all but one vertex do not
// count as agreement.
func (c *Clusterer) independent(a, b *Candidate) bool {
	shared := 0
	for _, p := range a.Pairs {
		if slices.Contains(b.Pairs, p) {
			shared++
		}
	}
	return shared < c.kind.Size()-1
}

// Best returns the best transform, its support count and the pooled
// correspondences behind it. A count of zero means no two candidates
// agreed.
func (c *Clusterer) Best() (AffineMatrix, int, []Correspondence) {
	return c.best, c.nbest, c.support
}

// Close releases all stored candidates.
func (c *Clusterer) Close() {
	c.index.Close()
}
