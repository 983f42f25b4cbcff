// Package metrics computes the emergence indices of a collaboration graph.
//
// Every function here is pure and deterministic: input is an immutable
// *graph.Snapshot, output is a float or a Report, and no call writes
// anywhere. Degenerate inputs (empty graph, no edges, no question nodes)
// produce 0.0, never a division failure. That contract is what lets the
// pair designer re-run these computations on hypothetical snapshots at
// scoring time.
package metrics

import (
	"math"
	"sort"

	"github.com/cokac/emergent/pkg/graph"
)

// CSER is the cross-source edge ratio: the fraction of edges whose
// endpoints were created by different contributors. Ranges over [0, 1];
// 0.0 for an empty edge set.
func CSER(s *graph.Snapshot) float64 {
	if len(s.Edges) == 0 {
		return 0.0
	}
	cross := 0
	total := 0
	for i := range s.Edges {
		from, okFrom := s.Node(s.Edges[i].From)
		to, okTo := s.Node(s.Edges[i].To)
		if !okFrom || !okTo {
			continue
		}
		total++
		if from.Source != to.Source {
			cross++
		}
	}
	if total == 0 {
		return 0.0
	}
	return float64(cross) / float64(total)
}

// Markers configures which tags flag a node as question-like or as
// delayed/open for the DCI computation.
type Markers struct {
	// QuestionTags mark a node as question-like even when its type is not
	// "question".
	QuestionTags []string `yaml:"question_tags" json:"question_tags"`

	// DelayedTags mark a node as delayed or still open.
	DelayedTags []string `yaml:"delayed_tags" json:"delayed_tags"`
}

// DefaultMarkers returns the standard marker tag sets.
func DefaultMarkers() Markers {
	return Markers{
		QuestionTags: []string{"question", "open-question"},
		DelayedTags:  []string{"delayed", "open", "revisited"},
	}
}

func hasAnyTag(n *graph.Node, tags []string) bool {
	for _, t := range tags {
		if n.HasTag(t) {
			return true
		}
	}
	return false
}

// DCI is the delayed-closure index: delayed-or-open nodes divided by
// question-like nodes. A node is question-like when its type is
// graph.TypeQuestion or it carries a question marker tag; it counts as
// delayed when it carries a delayed marker tag. 0.0 when no node is
// question-like. DCI can exceed 1 when delays outnumber questions.
func DCI(s *graph.Snapshot, m Markers) float64 {
	questions := 0
	delayed := 0
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.Type == graph.TypeQuestion || hasAnyTag(n, m.QuestionTags) {
			questions++
		}
		if hasAnyTag(n, m.DelayedTags) {
			delayed++
		}
	}
	if questions == 0 {
		return 0.0
	}
	return float64(delayed) / float64(questions)
}

// EdgeSpan is the temporal distance an edge covers: the absolute cycle
// difference of its endpoints. 0.0 when either endpoint is unresolvable.
func EdgeSpan(s *graph.Snapshot, e *graph.Edge) float64 {
	from, okFrom := s.Node(e.From)
	to, okTo := s.Node(e.To)
	if !okFrom || !okTo {
		return 0.0
	}
	return math.Abs(float64(to.Cycle - from.Cycle))
}

// EdgeSpanStats is the distribution of edge spans across a snapshot.
type EdgeSpanStats struct {
	Mean       float64 `json:"mean"`
	Normalized float64 `json:"normalized"`
	Max        float64 `json:"max"`
	Min        float64 `json:"min"`
	Median     float64 `json:"median"`
	Stdev      float64 `json:"stdev"`
}

// ComputeEdgeSpanStats summarizes the span distribution. All fields are
// 0.0 for an empty edge set. Normalized is the mean span divided by the
// snapshot's span normalizer, clamped to [0, 1].
func ComputeEdgeSpanStats(s *graph.Snapshot) EdgeSpanStats {
	if len(s.Edges) == 0 {
		return EdgeSpanStats{}
	}
	spans := make([]float64, 0, len(s.Edges))
	for i := range s.Edges {
		spans = append(spans, EdgeSpan(s, &s.Edges[i]))
	}
	sort.Float64s(spans)

	sum := 0.0
	for _, v := range spans {
		sum += v
	}
	mean := sum / float64(len(spans))

	variance := 0.0
	for _, v := range spans {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(spans))

	median := spans[len(spans)/2]
	if len(spans)%2 == 0 {
		median = (spans[len(spans)/2-1] + spans[len(spans)/2]) / 2
	}

	return EdgeSpanStats{
		Mean:       mean,
		Normalized: clamp01(mean / s.SpanNormalizer()),
		Max:        spans[len(spans)-1],
		Min:        spans[0],
		Median:     median,
		Stdev:      math.Sqrt(variance),
	}
}

// EdgeSpanNorm is the normalized mean edge span, in [0, 1]. 0.0 for an
// empty edge set.
func EdgeSpanNorm(s *graph.Snapshot) float64 {
	return ComputeEdgeSpanStats(s).Normalized
}

// NodeAgeDiversity measures how spread out node creation is: population
// standard deviation of node cycles divided by the maximum node cycle.
// 0.0 with fewer than two nodes or when the maximum cycle is 0. In [0, 1].
func NodeAgeDiversity(s *graph.Snapshot) float64 {
	if len(s.Nodes) < 2 {
		return 0.0
	}
	sum := 0.0
	maxCycle := 0
	for i := range s.Nodes {
		sum += float64(s.Nodes[i].Cycle)
		if s.Nodes[i].Cycle > maxCycle {
			maxCycle = s.Nodes[i].Cycle
		}
	}
	if maxCycle == 0 {
		return 0.0
	}
	mean := sum / float64(len(s.Nodes))
	variance := 0.0
	for i := range s.Nodes {
		d := float64(s.Nodes[i].Cycle) - mean
		variance += d * d
	}
	variance /= float64(len(s.Nodes))
	return clamp01(math.Sqrt(variance) / float64(maxCycle))
}

// TagConvergence is the fraction of distinct tags shared by at least three
// nodes. High convergence means the vocabulary is collapsing onto a few
// tags. 0.0 when no node carries any tag.
func TagConvergence(s *graph.Snapshot) float64 {
	counts := make(map[string]int)
	for i := range s.Nodes {
		for _, t := range s.Nodes[i].Tags {
			counts[t]++
		}
	}
	if len(counts) == 0 {
		return 0.0
	}
	shared := 0
	for _, c := range counts {
		if c >= 3 {
			shared++
		}
	}
	return float64(shared) / float64(len(counts))
}

// ConvergenceHealth is the complement of TagConvergence: 1.0 means the tag
// vocabulary is still diverse, 0.0 means every tag has converged.
func ConvergenceHealth(s *graph.Snapshot) float64 {
	return 1.0 - TagConvergence(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
