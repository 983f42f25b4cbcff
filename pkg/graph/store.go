package graph

// Store is the append-only graph store contract.
//
// All implementations must be thread-safe, must validate every invariant
// synchronously at write time, and must reject a failing write atomically
// (no partial state). There is deliberately no update or delete: history is
// immutable and supersession happens through explicit edges.
//
// Implementations:
//   - MemoryStore: in-memory, index-backed; the default engine.
//   - BadgerStore: persistent disk storage over BadgerDB.
type Store interface {
	// AppendNode validates and appends a node, returning its assigned id.
	// Fails with ErrValidation if the source or type is not recognized or
	// if cycle is not strictly greater than the current node cycle
	// high-water mark.
	AppendNode(source Source, typ NodeType, content string, tags []string, cycle int) (NodeID, error)

	// AppendEdge validates and appends an edge. Fails with
	// ErrDanglingReference if either endpoint is absent, ErrValidation for
	// a bad relation or cycle. Pure append: no recomputation happens here.
	AppendEdge(from, to NodeID, relation Relation, cycle int) (EdgeID, error)

	// Node and Edge return deep copies; ErrNotFound on a miss.
	Node(id NodeID) (*Node, error)
	Edge(id EdgeID) (*Edge, error)

	// Query returns all nodes matching the filter, ordered by ascending
	// cycle. The result is fully materialized and restartable.
	Query(f Filter) ([]Node, error)

	// Snapshot returns an immutable view of all current nodes and edges.
	// Readers never observe the store mid-mutation.
	Snapshot() (*Snapshot, error)

	// MaxNodeCycle and MaxEdgeCycle report the per-kind cycle high-water
	// marks (-1 when the kind is empty). A writer that lost a cycle
	// conflict re-reads these and retries with a corrected value.
	MaxNodeCycle() int
	MaxEdgeCycle() int

	NodeCount() (int, error)
	EdgeCount() (int, error)

	// Stats summarizes the store by type, source and relation.
	Stats() (*Stats, error)

	// Close releases the store. Idempotent; later operations return
	// ErrStoreClosed.
	Close() error
}

// Filter selects nodes in Query. Zero-value fields are ignored; the
// zero-value filter matches everything. Contains is a case-insensitive
// substring match on content.
type Filter struct {
	Source   Source
	Type     NodeType
	Tag      string
	Contains string
}

// matches applies the filter to a single node.
func (f Filter) matches(n *Node) bool {
	if f.Source != "" && n.Source != f.Source {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Tag != "" && !n.HasTag(f.Tag) {
		return false
	}
	if f.Contains != "" && !containsFold(n.Content, f.Contains) {
		return false
	}
	return true
}

// Stats is the per-type / per-source / per-relation breakdown behind the
// CLI stats command.
type Stats struct {
	Nodes           int              `json:"nodes"`
	Edges           int              `json:"edges"`
	NodesByType     map[NodeType]int `json:"nodes_by_type"`
	NodesBySource   map[Source]int   `json:"nodes_by_source"`
	EdgesByRelation map[Relation]int `json:"edges_by_relation"`
	MaxNodeCycle    int              `json:"max_node_cycle"`
	MaxEdgeCycle    int              `json:"max_edge_cycle"`
}
