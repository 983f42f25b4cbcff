package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store implementation.
//
// It is the default engine: the whole collaboration graph is small (hundreds
// of nodes), so everything fits in RAM and persistence happens through the
// versioned document (WriteDocument/LoadStore) or the BadgerStore.
//
// Concurrency model: a single RWMutex guards all state. Appends take the
// write lock; Query and Snapshot take the read lock and return deep copies,
// so readers may run concurrently with each other and with pending writes.
// The cycle high-water marks are the sole concurrency-conflict defense: two
// near-simultaneous writers that computed the same next cycle collide, and
// the second one is rejected with ErrValidation.
type MemoryStore struct {
	mu sync.RWMutex

	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Append order doubles as ascending-cycle order.
	nodeOrder []NodeID
	edgeOrder []EdgeID

	sources map[Source]struct{}

	nextNodeSeq  int // numeric part of the next assigned node id
	nextEdgeSeq  int
	maxNodeCycle int // -1 while no node exists
	maxEdgeCycle int

	closed bool
}

// NewMemoryStore creates an empty in-memory store that recognizes the given
// contributor set. At least two sources are required; pass
// DefaultSources() for the standard set.
func NewMemoryStore(sources []Source) *MemoryStore {
	set := make(map[Source]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &MemoryStore{
		nodes:        make(map[NodeID]*Node),
		edges:        make(map[EdgeID]*Edge),
		sources:      set,
		nextNodeSeq:  1,
		nextEdgeSeq:  1,
		maxNodeCycle: -1,
		maxEdgeCycle: -1,
	}
}

// AppendNode validates and appends a node.
//
// Validation order: store open, recognized source, recognized type, cycle
// strictly above the node high-water mark. Nothing is written unless every
// check passes.
func (m *MemoryStore) AppendNode(source Source, typ NodeType, content string, tags []string, cycle int) (NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}
	if _, ok := m.sources[source]; !ok {
		return "", fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}
	if !typ.Valid() {
		return "", fmt.Errorf("%w: unknown node type %q", ErrValidation, typ)
	}
	if err := checkCycle(cycle, m.maxNodeCycle, "node"); err != nil {
		return "", err
	}

	id := NodeID(fmt.Sprintf("n-%03d", m.nextNodeSeq))
	node := &Node{
		ID:        id,
		Source:    source,
		Type:      typ,
		Content:   content,
		Tags:      NormalizeTags(tags),
		Cycle:     cycle,
		CreatedAt: time.Now().UTC(),
	}

	m.nodes[id] = node
	m.nodeOrder = append(m.nodeOrder, id)
	m.nextNodeSeq++
	m.maxNodeCycle = cycle
	return id, nil
}

// AppendEdge validates and appends an edge. Both endpoints must already be
// present; self-loops are permitted but discouraged.
func (m *MemoryStore) AppendEdge(from, to NodeID, relation Relation, cycle int) (EdgeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}
	if !relation.Valid() {
		return "", fmt.Errorf("%w: unknown relation %q", ErrValidation, relation)
	}
	if _, ok := m.nodes[from]; !ok {
		return "", fmt.Errorf("%w: from node %q", ErrDanglingReference, from)
	}
	if _, ok := m.nodes[to]; !ok {
		return "", fmt.Errorf("%w: to node %q", ErrDanglingReference, to)
	}
	if err := checkCycle(cycle, m.maxEdgeCycle, "edge"); err != nil {
		return "", err
	}

	id := EdgeID(fmt.Sprintf("e-%03d", m.nextEdgeSeq))
	edge := &Edge{
		ID:        id,
		From:      from,
		To:        to,
		Relation:  relation,
		Cycle:     cycle,
		CreatedAt: time.Now().UTC(),
	}

	m.edges[id] = edge
	m.edgeOrder = append(m.edgeOrder, id)
	m.nextEdgeSeq++
	m.maxEdgeCycle = cycle
	return id, nil
}

// Node returns a deep copy of the node with the given id.
func (m *MemoryStore) Node(id NodeID) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	return copyNode(node), nil
}

// Edge returns a deep copy of the edge with the given id.
func (m *MemoryStore) Edge(id EdgeID) (*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	edge, ok := m.edges[id]
	if !ok {
		return nil, fmt.Errorf("%w: edge %q", ErrNotFound, id)
	}
	e := *edge
	return &e, nil
}

// Query returns all matching nodes ordered by ascending cycle. The
// zero-value filter matches every node.
func (m *MemoryStore) Query(f Filter) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		n := m.nodes[id]
		if f.matches(n) {
			out = append(out, *copyNode(n))
		}
	}
	return out, nil
}

// Snapshot returns an immutable deep copy of all nodes and edges, each
// ordered by ascending cycle.
func (m *MemoryStore) Snapshot() (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	nodes := make([]Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		nodes = append(nodes, *copyNode(m.nodes[id]))
	}
	edges := make([]Edge, 0, len(m.edgeOrder))
	for _, id := range m.edgeOrder {
		edges = append(edges, *m.edges[id])
	}
	return newSnapshot(nodes, edges), nil
}

// MaxNodeCycle reports the node cycle high-water mark (-1 when empty).
func (m *MemoryStore) MaxNodeCycle() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxNodeCycle
}

// MaxEdgeCycle reports the edge cycle high-water mark (-1 when empty).
func (m *MemoryStore) MaxEdgeCycle() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxEdgeCycle
}

// NodeCount returns the number of nodes.
func (m *MemoryStore) NodeCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.nodes), nil
}

// EdgeCount returns the number of edges.
func (m *MemoryStore) EdgeCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.edges), nil
}

// Stats summarizes the store contents by type, source and relation.
func (m *MemoryStore) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	st := &Stats{
		Nodes:           len(m.nodes),
		Edges:           len(m.edges),
		NodesByType:     make(map[NodeType]int),
		NodesBySource:   make(map[Source]int),
		EdgesByRelation: make(map[Relation]int),
		MaxNodeCycle:    m.maxNodeCycle,
		MaxEdgeCycle:    m.maxEdgeCycle,
	}
	for _, n := range m.nodes {
		st.NodesByType[n.Type]++
		st.NodesBySource[n.Source]++
	}
	for _, e := range m.edges {
		st.EdgesByRelation[e.Relation]++
	}
	return st, nil
}

// Close releases the store. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.nodes = nil
	m.edges = nil
	m.nodeOrder = nil
	m.edgeOrder = nil
	return nil
}

// checkCycle enforces strict per-kind cycle monotonicity. Equal cycles are
// the two-writer collision case: the second writer must re-read the maximum
// and retry with a corrected value.
func checkCycle(cycle, max int, kind string) error {
	if cycle < 0 {
		return fmt.Errorf("%w: %s cycle %d is negative", ErrValidation, kind, cycle)
	}
	if max >= 0 && cycle <= max {
		return fmt.Errorf("%w: %s cycle %d not above current maximum %d", ErrValidation, kind, cycle, max)
	}
	return nil
}

// copyNode deep-copies a node (the tag slice is the only reference field).
func copyNode(n *Node) *Node {
	copied := *n
	if n.Tags != nil {
		copied.Tags = make([]string, len(n.Tags))
		copy(copied.Tags, n.Tags)
	}
	return &copied
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
