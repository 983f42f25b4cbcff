package designer

import "github.com/cokac/emergent/pkg/graph"

// defaultAffinity applies to type pairings without an explicit entry.
const defaultAffinity = 0.30

// typePair is an unordered node type pairing.
type typePair struct {
	a, b graph.NodeType
}

// affinityTable scores how productive a link between two node types tends
// to be. Cross-category pairings (a question grounded by an insight, code
// answering a question) score high; like-typed pairings score low, since
// they rarely close anything.
var affinityTable = map[typePair]float64{
	{graph.TypeInsight, graph.TypeQuestion}:        0.85,
	{graph.TypeObservation, graph.TypeQuestion}:    0.80,
	{graph.TypeInsight, graph.TypeDecision}:        0.72,
	{graph.TypeCode, graph.TypeQuestion}:           0.70,
	{graph.TypeDecision, graph.TypeQuestion}:       0.68,
	{graph.TypeInsight, graph.TypeObservation}:     0.65,
	{graph.TypeDecision, graph.TypeObservation}:    0.65,
	{graph.TypeCode, graph.TypeInsight}:            0.65,
	{graph.TypeArtifact, graph.TypeQuestion}:       0.60,
	{graph.TypeArtifact, graph.TypeObservation}:    0.60,
	{graph.TypeCode, graph.TypeObservation}:        0.60,
	{graph.TypeCode, graph.TypeArtifact}:           0.60,
	{graph.TypeInsight, graph.TypeInsight}:         0.60,
	{graph.TypeArtifact, graph.TypeInsight}:        0.55,
	{graph.TypeCode, graph.TypeDecision}:           0.55,
	{graph.TypeObservation, graph.TypeObservation}: 0.45,
}

// typeAffinity looks up the symmetric affinity of two node types.
func typeAffinity(a, b graph.NodeType) float64 {
	if v, ok := affinityTable[typePair{a, b}]; ok {
		return v
	}
	if v, ok := affinityTable[typePair{b, a}]; ok {
		return v
	}
	return defaultAffinity
}
