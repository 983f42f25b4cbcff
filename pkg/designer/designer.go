// Package designer recommends which pairs of graph nodes to link next.
//
// The designer reads snapshots of the graph store and scores every
// unconnected node pair on three axes: temporal span, semantic distance and
// cross-contributor origin. It never writes to the store — a recommendation
// is advice, and only the contributors (or the surrounding orchestration)
// turn advice into edges. The one piece of state the designer owns is its
// coefficient set, which drifts as recorded outcomes accumulate.
package designer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cokac/emergent/pkg/graph"
	"github.com/cokac/emergent/pkg/metrics"
)

// Options configures a Designer.
type Options struct {
	// Coefficients are the starting sub-score weights. Zero value means
	// DefaultCoefficients.
	Coefficients Coefficients

	// Weights and Markers parameterize the emergence computation behind
	// delta simulation. Zero values mean the metric defaults.
	Weights metrics.Weights
	Markers metrics.Markers

	// MinSpan drops candidate pairs whose cycle distance is below this
	// value. 0 disables the filter.
	MinSpan int

	// MinSemantic drops candidate pairs whose semantic sub-score is below
	// this value. 0 disables the filter.
	MinSemantic float64
}

// wideGapSpan is the cycle distance past which a pair counts as wide-gap
// for relation suggestion.
const wideGapSpan = 20

// Designer scores and recommends node pairs over a graph store.
//
// Safe for concurrent use: the store is only read through snapshots and the
// mutable coefficient state sits behind a mutex.
type Designer struct {
	store graph.Store
	opts  Options

	mu      sync.Mutex
	coeffs  Coefficients
	journal []Outcome
}

// New creates a Designer over the given store.
func New(store graph.Store, opts Options) *Designer {
	if opts.Coefficients == (Coefficients{}) {
		opts.Coefficients = DefaultCoefficients()
	}
	if opts.Weights == (metrics.Weights{}) {
		opts.Weights = metrics.DefaultWeights()
	}
	if opts.Markers.QuestionTags == nil && opts.Markers.DelayedTags == nil {
		opts.Markers = metrics.DefaultMarkers()
	}
	return &Designer{
		store:  store,
		opts:   opts,
		coeffs: opts.Coefficients,
	}
}

// Coefficients returns the current coefficient set.
func (d *Designer) Coefficients() Coefficients {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coeffs
}

// PairScore is the decomposed score of one candidate pair.
type PairScore struct {
	From        graph.NodeID `json:"from"`
	To          graph.NodeID `json:"to"`
	Span        float64      `json:"span"`
	Semantic    float64      `json:"semantic"`
	CrossSource float64      `json:"cross_source"`
	Combined    float64      `json:"combined"`
}

// ScorePair scores one candidate pair against a snapshot.
//
// Sub-scores, each in [0, 1]:
//   - span:     cycle distance over the snapshot's span normalizer;
//   - semantic: half tag dissimilarity, half type affinity;
//   - cross:    1 when the contributors differ, else 0.
//
// Combined is the coefficient-weighted sum, so it is non-decreasing in span
// when the other two sub-scores are held fixed. Fails with
// graph.ErrNotFound when either node is absent.
func (d *Designer) ScorePair(s *graph.Snapshot, a, b graph.NodeID) (PairScore, error) {
	na, ok := s.Node(a)
	if !ok {
		return PairScore{}, fmt.Errorf("%w: node %q", graph.ErrNotFound, a)
	}
	nb, ok := s.Node(b)
	if !ok {
		return PairScore{}, fmt.Errorf("%w: node %q", graph.ErrNotFound, b)
	}
	return d.scoreNodes(s, na, nb), nil
}

func (d *Designer) scoreNodes(s *graph.Snapshot, a, b *graph.Node) PairScore {
	span := math.Abs(float64(b.Cycle-a.Cycle)) / s.SpanNormalizer()
	if span > 1 {
		span = 1
	}
	semantic := 0.5*(1.0-graph.TagJaccard(a.Tags, b.Tags)) + 0.5*typeAffinity(a.Type, b.Type)
	cross := 0.0
	if a.Source != b.Source {
		cross = 1.0
	}

	c := d.Coefficients()
	return PairScore{
		From:        a.ID,
		To:          b.ID,
		Span:        span,
		Semantic:    semantic,
		CrossSource: cross,
		Combined:    c.Span*span + c.Semantic*semantic + c.CrossSource*cross,
	}
}

// Recommendation is one suggested edge.
type Recommendation struct {
	Score          PairScore      `json:"score"`
	Relation       graph.Relation `json:"relation"`
	PredictedDelta float64        `json:"predicted_delta"`
}

// Recommend returns the topN highest-scoring unconnected pairs, each with a
// suggested relation and the emergence delta a link would produce.
//
// Self-pairs and pairs already linked in either direction are excluded.
// From is always the older node. Ordering is deterministic: combined score
// descending, ties broken by the lexically lower (from, to) pair. Fewer
// than two nodes yields an empty result and no error.
func (d *Designer) Recommend(topN int) ([]Recommendation, error) {
	if topN <= 0 {
		topN = 5
	}
	snap, err := d.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if len(snap.Nodes) < 2 {
		return nil, nil
	}

	var recs []Recommendation
	for i := range snap.Nodes {
		for j := i + 1; j < len(snap.Nodes); j++ {
			from, to := &snap.Nodes[i], &snap.Nodes[j]
			if to.Cycle < from.Cycle {
				from, to = to, from
			}
			if snap.Connected(from.ID, to.ID) {
				continue
			}

			score := d.scoreNodes(snap, from, to)
			rawSpan := math.Abs(float64(to.Cycle - from.Cycle))
			if d.opts.MinSpan > 0 && rawSpan < float64(d.opts.MinSpan) {
				continue
			}
			if d.opts.MinSemantic > 0 && score.Semantic < d.opts.MinSemantic {
				continue
			}

			relation := suggestRelation(snap, from, to)
			delta, err := d.simulateOn(snap, from.ID, to.ID, relation)
			if err != nil {
				return nil, err
			}
			recs = append(recs, Recommendation{
				Score:          score,
				Relation:       relation,
				PredictedDelta: delta,
			})
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Score, recs[j].Score
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	if len(recs) > topN {
		recs = recs[:topN]
	}
	return recs, nil
}

// suggestRelation picks the relation a recommended edge should carry. The
// rules are deterministic and ordered: the first match wins.
func suggestRelation(s *graph.Snapshot, from, to *graph.Node) graph.Relation {
	rawSpan := math.Abs(float64(to.Cycle - from.Cycle))

	if from.Source != to.Source && rawSpan >= s.SpanNormalizer()/2 {
		return graph.RelationClosesLoop
	}
	if rawSpan >= wideGapSpan && tagsSubset(from, to) {
		return graph.RelationGrounds
	}
	if from.Type == graph.TypeInsight && to.Type == graph.TypeInsight {
		return graph.RelationExtends
	}
	if (from.Type == graph.TypeDecision && to.Type == graph.TypeQuestion) ||
		(from.Type == graph.TypeQuestion && to.Type == graph.TypeDecision) ||
		from.HasTag("challenge") || to.HasTag("challenge") {
		return graph.RelationChallenges
	}
	return graph.RelationRelatesTo
}

// tagsSubset reports whether either node's non-empty tag set is contained
// in the other's.
func tagsSubset(a, b *graph.Node) bool {
	return subset(a.Tags, b.Tags) || subset(b.Tags, a.Tags)
}

func subset(inner, outer []string) bool {
	if len(inner) == 0 || len(inner) > len(outer) {
		return false
	}
	set := make(map[string]struct{}, len(outer))
	for _, t := range outer {
		set[t] = struct{}{}
	}
	for _, t := range inner {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// SimulateDelta computes the signed emergence change a hypothetical edge
// would produce, without any store write. Fewer than two nodes yields 0 and
// no error; a missing endpoint fails with graph.ErrNotFound.
func (d *Designer) SimulateDelta(from, to graph.NodeID, relation graph.Relation) (float64, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return 0, err
	}
	return d.simulateOn(snap, from, to, relation)
}

func (d *Designer) simulateOn(snap *graph.Snapshot, from, to graph.NodeID, relation graph.Relation) (float64, error) {
	if len(snap.Nodes) < 2 {
		return 0, nil
	}
	if _, ok := snap.Node(from); !ok {
		return 0, fmt.Errorf("%w: node %q", graph.ErrNotFound, from)
	}
	if _, ok := snap.Node(to); !ok {
		return 0, fmt.Errorf("%w: node %q", graph.ErrNotFound, to)
	}

	before := metrics.Emergence(snap, d.opts.Weights, d.opts.Markers)
	after := metrics.Emergence(snap.WithEdge(from, to, relation), d.opts.Weights, d.opts.Markers)
	return after - before, nil
}

// Outcome is one journaled prediction-versus-reality record.
type Outcome struct {
	ID         string       `json:"id"`
	EdgeID     graph.EdgeID `json:"edge_id"`
	Predicted  float64      `json:"predicted"`
	Actual     float64      `json:"actual"`
	Error      float64      `json:"error"` // predicted − actual
	RecordedAt time.Time    `json:"recorded_at"`
}

// RecordOutcome journals the realized emergence delta of an edge that was
// created from a recommendation and nudges the coefficients toward better
// span calibration. Fails with graph.ErrNotFound when the edge does not
// exist. A prediction error within 1e-9 leaves the coefficients untouched.
func (d *Designer) RecordOutcome(edgeID graph.EdgeID, predicted, actual float64) error {
	if _, err := d.store.Edge(edgeID); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	predictionError := predicted - actual
	d.journal = append(d.journal, Outcome{
		ID:         uuid.NewString(),
		EdgeID:     edgeID,
		Predicted:  predicted,
		Actual:     actual,
		Error:      predictionError,
		RecordedAt: time.Now().UTC(),
	})
	if math.Abs(predictionError) <= 1e-9 {
		return nil
	}
	d.coeffs = d.coeffs.adjusted(predictionError)
	return nil
}

// Journal returns a copy of all recorded outcomes, in record order.
func (d *Designer) Journal() []Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Outcome, len(d.journal))
	copy(out, d.journal)
	return out
}
