// Package gate decides whether a macro/technical section pair is diverse
// enough to execute.
//
// The gate is the opposite check from the graph metrics: where CSER rewards
// cross-source connection, the gate demands that the two sections of one
// work item do NOT restate each other. It is pure and memoryless: one
// verdict per input pair, no retries, no state between calls.
package gate

import "github.com/cokac/emergent/pkg/graph"

// DefaultThreshold is the minimum local CSER to pass.
const DefaultThreshold = 0.30

// Verdict is the gate's terminal decision.
type Verdict string

const (
	// VerdictPass means the sections are diverse enough to execute.
	VerdictPass Verdict = "PASS"

	// VerdictBlocked means the sections overlap too much. Blocking is a
	// normal outcome, not an error: the caller revises and resubmits a new
	// pair.
	VerdictBlocked Verdict = "BLOCKED"
)

// Result is one gate evaluation.
type Result struct {
	Verdict   Verdict `json:"verdict"`
	LocalCSER float64 `json:"local_cser"`
	Threshold float64 `json:"threshold"`

	// CrossPairs counts the possible cross-section tag pairings:
	// tags only in the macro section times tags only in the tech section.
	CrossPairs int `json:"cross_pairs"`
}

// Passed reports whether the verdict is PASS.
func (r Result) Passed() bool { return r.Verdict == VerdictPass }

// Gate evaluates section pairs against a fixed threshold. The zero value is
// not useful; construct with New.
type Gate struct {
	threshold float64
}

// New creates a gate. A non-positive threshold falls back to
// DefaultThreshold.
func New(threshold float64) Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Gate{threshold: threshold}
}

// Threshold returns the configured minimum local CSER.
func (g Gate) Threshold() float64 { return g.threshold }

// Check computes the local CSER of a macro/tech tag pair and renders the
// verdict. Idempotent and safe for concurrent use: equal inputs always
// produce equal results.
//
// localCSER = 1 − |macro ∩ tech| / |macro ∪ tech|. An empty union counts
// as overlap 0, so two empty sections score 1.0 and pass.
func (g Gate) Check(macroTags, techTags []string) Result {
	macro := tagSet(macroTags)
	tech := tagSet(techTags)

	inter := 0
	for t := range macro {
		if _, ok := tech[t]; ok {
			inter++
		}
	}
	union := len(macro) + len(tech) - inter

	overlap := 0.0
	if union > 0 {
		overlap = float64(inter) / float64(union)
	}
	localCSER := 1.0 - overlap

	verdict := VerdictBlocked
	if localCSER >= g.threshold {
		verdict = VerdictPass
	}
	return Result{
		Verdict:    verdict,
		LocalCSER:  localCSER,
		Threshold:  g.threshold,
		CrossPairs: (len(macro) - inter) * (len(tech) - inter),
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range graph.NormalizeTags(tags) {
		set[t] = struct{}{}
	}
	return set
}
