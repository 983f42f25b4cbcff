package metrics

import (
	"fmt"
	"math"

	"github.com/cokac/emergent/pkg/graph"
)

// Weights are the component weights of the composite emergence index.
// They are configuration, not constants: experiments tune them through
// the config file, but the defaults below are the calibrated values.
type Weights struct {
	CSER       float64 `yaml:"cser" json:"cser"`
	DCI        float64 `yaml:"dci" json:"dci"`
	EdgeSpan   float64 `yaml:"edge_span" json:"edge_span"`
	NodeAgeDiv float64 `yaml:"node_age_div" json:"node_age_div"`
}

// DefaultWeights returns the calibrated component weights.
func DefaultWeights() Weights {
	return Weights{
		CSER:       0.35,
		DCI:        0.25,
		EdgeSpan:   0.25,
		NodeAgeDiv: 0.15,
	}
}

// Validate checks that every weight is non-negative and that the weights
// sum to 1 within 1e-9.
func (w Weights) Validate() error {
	for _, v := range []float64{w.CSER, w.DCI, w.EdgeSpan, w.NodeAgeDiv} {
		if v < 0 {
			return fmt.Errorf("%w: emergence weight %v is negative", graph.ErrValidation, v)
		}
	}
	sum := w.CSER + w.DCI + w.EdgeSpan + w.NodeAgeDiv
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: emergence weights sum to %v, want 1", graph.ErrValidation, sum)
	}
	return nil
}

// Emergence is the composite index E: the weighted sum of the four
// component metrics. With valid weights and DCI ≤ 1 the result stays in
// [0, 1]; a DCI above 1 (delays outnumbering questions) can push it higher.
func Emergence(s *graph.Snapshot, w Weights, m Markers) float64 {
	return w.CSER*CSER(s) +
		w.DCI*DCI(s, m) +
		w.EdgeSpan*EdgeSpanNorm(s) +
		w.NodeAgeDiv*NodeAgeDiversity(s)
}

// PES is the pair emergence score of a prospective edge between two nodes:
//
//	spanNorm × crossSource × (1 − tagJaccard)
//
// where spanNorm is the pair's cycle distance over the snapshot's span
// normalizer (clamped to [0,1]), crossSource is 1 when the sources differ
// and 0 otherwise, and tagJaccard is the tag overlap (0 for two empty tag
// sets). Fails with graph.ErrNotFound when either node is absent.
func PES(s *graph.Snapshot, a, b graph.NodeID) (float64, error) {
	na, ok := s.Node(a)
	if !ok {
		return 0, fmt.Errorf("%w: node %q", graph.ErrNotFound, a)
	}
	nb, ok := s.Node(b)
	if !ok {
		return 0, fmt.Errorf("%w: node %q", graph.ErrNotFound, b)
	}

	spanNorm := clamp01(math.Abs(float64(nb.Cycle-na.Cycle)) / s.SpanNormalizer())
	cross := 0.0
	if na.Source != nb.Source {
		cross = 1.0
	}
	return spanNorm * cross * (1.0 - graph.TagJaccard(na.Tags, nb.Tags)), nil
}

// Report is the full metric surface of one snapshot, computed in one pass.
type Report struct {
	Nodes             int           `json:"nodes"`
	Edges             int           `json:"edges"`
	CSER              float64       `json:"cser"`
	DCI               float64       `json:"dci"`
	EdgeSpan          EdgeSpanStats `json:"edge_span"`
	NodeAgeDiversity  float64       `json:"node_age_diversity"`
	TagConvergence    float64       `json:"tag_convergence"`
	ConvergenceHealth float64       `json:"convergence_health"`
	E                 float64       `json:"e"`
}

// Compute evaluates every metric against one snapshot.
func Compute(s *graph.Snapshot, w Weights, m Markers) Report {
	spans := ComputeEdgeSpanStats(s)
	tagConv := TagConvergence(s)
	return Report{
		Nodes:             len(s.Nodes),
		Edges:             len(s.Edges),
		CSER:              CSER(s),
		DCI:               DCI(s, m),
		EdgeSpan:          spans,
		NodeAgeDiversity:  NodeAgeDiversity(s),
		TagConvergence:    tagConv,
		ConvergenceHealth: 1.0 - tagConv,
		E: w.CSER*CSER(s) +
			w.DCI*DCI(s, m) +
			w.EdgeSpan*spans.Normalized +
			w.NodeAgeDiv*NodeAgeDiversity(s),
	}
}
