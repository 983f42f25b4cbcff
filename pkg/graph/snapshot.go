package graph

import (
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Snapshot is an immutable view of the store at a point in time.
//
// Nodes and Edges are ordered by ascending cycle. The metric engine and the
// pair designer consume snapshots exclusively, which is what lets them run
// concurrently with pending writes and repeat simulations without ever
// touching shared state. Treat a Snapshot as read-only; nothing in this
// package mutates one after construction.
type Snapshot struct {
	Nodes []Node
	Edges []Edge

	nodeByID  map[NodeID]int
	edgeByID  map[EdgeID]int
	connected map[NodeID]map[NodeID]struct{}
}

// newSnapshot indexes the given (already copied) nodes and edges.
func newSnapshot(nodes []Node, edges []Edge) *Snapshot {
	s := &Snapshot{
		Nodes:     nodes,
		Edges:     edges,
		nodeByID:  make(map[NodeID]int, len(nodes)),
		edgeByID:  make(map[EdgeID]int, len(edges)),
		connected: make(map[NodeID]map[NodeID]struct{}),
	}
	for i := range nodes {
		s.nodeByID[nodes[i].ID] = i
	}
	for i := range edges {
		s.edgeByID[edges[i].ID] = i
		s.link(edges[i].From, edges[i].To)
		s.link(edges[i].To, edges[i].From)
	}
	return s
}

func (s *Snapshot) link(a, b NodeID) {
	if s.connected[a] == nil {
		s.connected[a] = make(map[NodeID]struct{})
	}
	s.connected[a][b] = struct{}{}
}

// Node returns the node with the given id, if present.
func (s *Snapshot) Node(id NodeID) (*Node, bool) {
	i, ok := s.nodeByID[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

// Edge returns the edge with the given id, if present.
func (s *Snapshot) Edge(id EdgeID) (*Edge, bool) {
	i, ok := s.edgeByID[id]
	if !ok {
		return nil, false
	}
	return &s.Edges[i], true
}

// Connected reports whether any edge, in either direction, links a and b.
func (s *Snapshot) Connected(a, b NodeID) bool {
	if set, ok := s.connected[a]; ok {
		if _, ok := set[b]; ok {
			return true
		}
	}
	return false
}

// CycleRange returns the minimum and maximum node cycles. ok is false when
// the snapshot holds no nodes.
func (s *Snapshot) CycleRange() (min, max int, ok bool) {
	if len(s.Nodes) == 0 {
		return 0, 0, false
	}
	min, max = s.Nodes[0].Cycle, s.Nodes[0].Cycle
	for _, n := range s.Nodes[1:] {
		if n.Cycle < min {
			min = n.Cycle
		}
		if n.Cycle > max {
			max = n.Cycle
		}
	}
	return min, max, true
}

// SpanNormalizer is the maximum possible edge span in the current graph:
// max node cycle minus min node cycle, or 1 when the graph has fewer than
// two distinct cycles. Always positive, so span ratios never divide by zero.
func (s *Snapshot) SpanNormalizer() float64 {
	min, max, ok := s.CycleRange()
	if !ok || max == min {
		return 1.0
	}
	return float64(max - min)
}

// WithEdge returns a new snapshot with one hypothetical edge appended.
//
// The receiver is not modified: node and edge slices are re-copied, so the
// pair designer can simulate candidate edges any number of times without a
// store write. The hypothetical edge gets a synthetic id and the next edge
// cycle.
func (s *Snapshot) WithEdge(from, to NodeID, relation Relation) *Snapshot {
	nodes := make([]Node, len(s.Nodes))
	for i := range s.Nodes {
		nodes[i] = *copyNode(&s.Nodes[i])
	}
	edges := make([]Edge, 0, len(s.Edges)+1)
	maxCycle := -1
	for _, e := range s.Edges {
		edges = append(edges, e)
		if e.Cycle > maxCycle {
			maxCycle = e.Cycle
		}
	}
	edges = append(edges, Edge{
		ID:       EdgeID(fmt.Sprintf("e-hypothetical-%d", len(edges)+1)),
		From:     from,
		To:       to,
		Relation: relation,
		Cycle:    maxCycle + 1,
	})
	return newSnapshot(nodes, edges)
}

// Fingerprint returns a BLAKE2b-256 digest over the snapshot's canonical
// content (ids, sources, types, content, tags, cycles, endpoints and
// relations, in cycle order). Two snapshots of identical stores produce
// identical fingerprints; any append changes the digest. Timestamps are
// excluded because no invariant reads them.
func (s *Snapshot) Fingerprint() [32]byte {
	h, _ := blake2b.New256(nil)

	writeInt := func(v int) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeStr := func(v string) {
		writeInt(len(v))
		h.Write([]byte(v))
	}

	writeInt(len(s.Nodes))
	for _, n := range s.Nodes {
		writeStr(string(n.ID))
		writeStr(string(n.Source))
		writeStr(string(n.Type))
		writeStr(n.Content)
		tags := make([]string, len(n.Tags))
		copy(tags, n.Tags)
		sort.Strings(tags)
		writeInt(len(tags))
		for _, t := range tags {
			writeStr(t)
		}
		writeInt(n.Cycle)
	}
	writeInt(len(s.Edges))
	for _, e := range s.Edges {
		writeStr(string(e.ID))
		writeStr(string(e.From))
		writeStr(string(e.To))
		writeStr(string(e.Relation))
		writeInt(e.Cycle)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
