// Package graph provides the append-only collaboration graph store for
// emergent.
//
// The store holds the nodes and edges produced by two (or more) independent
// contributors. It is the only stateful component in the core: the metric
// engine and the pair designer read immutable snapshots of it and never
// write back.
//
// Design principles:
//   - Append-only: no update or delete operation exists. A later node may
//     supersede an earlier one only through an explicit "challenges" edge.
//   - Write-time validation: enum values, cycle monotonicity and edge
//     endpoint resolution are checked synchronously before any state change.
//   - Snapshot isolation: readers operate on deep copies and can run
//     concurrently with pending writes.
//
// Example Usage:
//
//	store := graph.NewMemoryStore(graph.DefaultSources())
//	defer store.Close()
//
//	q, _ := store.AppendNode("cokac", graph.TypeQuestion,
//		"does cross-source linking raise emergence?",
//		[]string{"emergence", "question"}, 1)
//	a, _ := store.AppendNode("rocky", graph.TypeInsight,
//		"wide-span edges dominate the composite index",
//		[]string{"emergence", "span"}, 2)
//
//	if _, err := store.AppendEdge(q, a, graph.RelationGrounds, 1); err != nil {
//		log.Fatal(err)
//	}
//
//	snap, _ := store.Snapshot()
//	fmt.Println(len(snap.Nodes), len(snap.Edges))
package graph

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NodeID is a strongly-typed unique identifier for graph nodes.
//
// IDs are assigned by the store at append time ("n-001", "n-002", ...) and
// are never reused, even across export/import round trips. Using a custom
// type keeps NodeID and EdgeID from being swapped by accident.
type NodeID string

// EdgeID is a strongly-typed unique identifier for graph edges
// ("e-001", "e-002", ...). Same contract as NodeID.
type EdgeID string

// Source identifies the contributor that created a node. It is an enum,
// not free text: a store is constructed with its recognized source set and
// rejects appends that name anything else.
type Source string

// Default contributor identities. The two agent contributors plus the two
// machine writers from the surrounding orchestration.
const (
	SourceCokac        Source = "cokac"
	SourceRocky        Source = "rocky"
	SourcePairDesigner Source = "pair_designer"
	SourceExecLoop     Source = "execution_loop"
)

// DefaultSources returns the default recognized contributor set.
func DefaultSources() []Source {
	return []Source{SourceCokac, SourceRocky, SourcePairDesigner, SourceExecLoop}
}

// NodeType classifies a node's role in the collaboration.
type NodeType string

// The closed node type enumeration.
const (
	TypeDecision    NodeType = "decision"
	TypeObservation NodeType = "observation"
	TypeInsight     NodeType = "insight"
	TypeArtifact    NodeType = "artifact"
	TypeQuestion    NodeType = "question"
	TypeCode        NodeType = "code"
)

// NodeTypes lists every recognized node type in canonical order.
func NodeTypes() []NodeType {
	return []NodeType{
		TypeDecision, TypeObservation, TypeInsight,
		TypeArtifact, TypeQuestion, TypeCode,
	}
}

// ParseNodeType converts a string to a NodeType, or fails with a
// validation error naming the recognized values.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range NodeTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown node type %q (want one of %v)", ErrValidation, s, NodeTypes())
}

// Valid reports whether t is a member of the node type enumeration.
func (t NodeType) Valid() bool {
	_, err := ParseNodeType(string(t))
	return err == nil
}

// Relation classifies an edge.
type Relation string

// The closed relation enumeration.
const (
	RelationRelatesTo  Relation = "relates_to"
	RelationGrounds    Relation = "grounds"
	RelationExtends    Relation = "extends"
	RelationChallenges Relation = "challenges"
	RelationClosesLoop Relation = "closes_loop"
)

// Relations lists every recognized relation in canonical order.
func Relations() []Relation {
	return []Relation{
		RelationRelatesTo, RelationGrounds, RelationExtends,
		RelationChallenges, RelationClosesLoop,
	}
}

// ParseRelation converts a string to a Relation, or fails with a
// validation error naming the recognized values.
func ParseRelation(s string) (Relation, error) {
	r := Relation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Relations() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown relation %q (want one of %v)", ErrValidation, s, Relations())
}

// Valid reports whether r is a member of the relation enumeration.
func (r Relation) Valid() bool {
	_, err := ParseRelation(string(r))
	return err == nil
}

// Node is a single immutable entry in the collaboration graph.
//
// Cycle is the creation ordinal: it reflects append order and is strictly
// increasing across the store's history (nodes and edges keep independent
// counters). CreatedAt is informational only — no invariant or metric reads
// it.
type Node struct {
	ID        NodeID    `json:"id"`
	Source    Source    `json:"source"`
	Type      NodeType  `json:"type"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Cycle     int       `json:"cycle"`
	CreatedAt time.Time `json:"created_at"`
}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TagSet returns the node's tags as a set.
func (n *Node) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(n.Tags))
	for _, t := range n.Tags {
		set[t] = struct{}{}
	}
	return set
}

// Edge is a directed, immutable link between two nodes. From and To must
// resolve to nodes already present in the same store at creation time.
// Self-loops (From == To) are permitted but discouraged.
type Edge struct {
	ID        EdgeID    `json:"id"`
	From      NodeID    `json:"from"`
	To        NodeID    `json:"to"`
	Relation  Relation  `json:"relation"`
	Cycle     int       `json:"cycle"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeTags trims, deduplicates and sorts a tag list into canonical
// set form. Empty entries are dropped; a nil result means no tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// TagJaccard computes the Jaccard overlap of two tag lists. Two empty sets
// overlap 0.0 by definition, never a division failure.
func TagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	inter := 0
	union := len(setA)
	seenB := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seenB[t]; dup {
			continue
		}
		seenB[t] = struct{}{}
		if _, ok := setA[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}
