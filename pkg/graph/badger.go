package graph

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep iteration cheap.
const (
	prefixNode = byte(0x01) // 0x01 + nodeID -> JSON(Node)
	prefixEdge = byte(0x02) // 0x02 + edgeID -> JSON(Edge)
	prefixMeta = byte(0x0F) // 0x0F + name   -> uint64 counter
)

// Meta key names for the persisted counters.
var (
	metaNextNodeSeq  = metaKey("next_node_seq")
	metaNextEdgeSeq  = metaKey("next_edge_seq")
	metaMaxNodeCycle = metaKey("max_node_cycle")
	metaMaxEdgeCycle = metaKey("max_edge_cycle")
)

// BadgerStore is a persistent Store implementation over BadgerDB.
//
// It enforces exactly the same invariants as MemoryStore but survives
// restarts: records are JSON-encoded under prefixed keys and the id/cycle
// counters live under meta keys, restored at open. Every append runs inside
// a single badger update transaction, so a failing write is atomic.
//
// The counters are additionally cached in memory under a mutex — the cycle
// high-water mark check and the counter bump must be one critical section,
// which is also what rejects the second of two same-cycle writers.
type BadgerStore struct {
	db *badger.DB

	mu           sync.Mutex
	sources      map[Source]struct{}
	nextNodeSeq  int
	nextEdgeSeq  int
	maxNodeCycle int
	maxEdgeCycle int
	closed       bool
}

// BadgerOptions configures the persistent store.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs badger without disk files. For tests.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower, more durable.
	SyncWrites bool
}

// OpenBadgerStore opens (or creates) a persistent store at dataDir that
// recognizes the given contributor set.
func OpenBadgerStore(dataDir string, sources []Source) (*BadgerStore, error) {
	return OpenBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir}, sources)
}

// OpenBadgerStoreWithOptions opens a persistent store with custom options.
func OpenBadgerStoreWithOptions(opts BadgerOptions, sources []Source) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// The collaboration graph is small; keep badger's buffers modest.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	set := make(map[Source]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	store := &BadgerStore{
		db:           db,
		sources:      set,
		nextNodeSeq:  1,
		nextEdgeSeq:  1,
		maxNodeCycle: -1,
		maxEdgeCycle: -1,
	}
	if err := store.restoreCounters(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// restoreCounters loads the persisted counters, keeping the fresh-store
// defaults when a key is absent.
func (b *BadgerStore) restoreCounters() error {
	return b.db.View(func(txn *badger.Txn) error {
		read := func(key []byte, dst *int) error {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				*dst = int(int64(binary.BigEndian.Uint64(val)))
				return nil
			})
		}
		if err := read(metaNextNodeSeq, &b.nextNodeSeq); err != nil {
			return err
		}
		if err := read(metaNextEdgeSeq, &b.nextEdgeSeq); err != nil {
			return err
		}
		if err := read(metaMaxNodeCycle, &b.maxNodeCycle); err != nil {
			return err
		}
		return read(metaMaxEdgeCycle, &b.maxEdgeCycle)
	})
}

// AppendNode validates and appends a node. Same contract as
// MemoryStore.AppendNode.
func (b *BadgerStore) AppendNode(source Source, typ NodeType, content string, tags []string, cycle int) (NodeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrStoreClosed
	}
	if _, ok := b.sources[source]; !ok {
		return "", fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}
	if !typ.Valid() {
		return "", fmt.Errorf("%w: unknown node type %q", ErrValidation, typ)
	}
	if err := checkCycle(cycle, b.maxNodeCycle, "node"); err != nil {
		return "", err
	}

	id := NodeID(fmt.Sprintf("n-%03d", b.nextNodeSeq))
	node := &Node{
		ID:        id,
		Source:    source,
		Type:      typ,
		Content:   content,
		Tags:      NormalizeTags(tags),
		Cycle:     cycle,
		CreatedAt: time.Now().UTC(),
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("encoding node: %w", err)
		}
		if err := txn.Set(nodeKey(id), data); err != nil {
			return err
		}
		if err := setCounter(txn, metaNextNodeSeq, b.nextNodeSeq+1); err != nil {
			return err
		}
		return setCounter(txn, metaMaxNodeCycle, cycle)
	})
	if err != nil {
		return "", err
	}

	b.nextNodeSeq++
	b.maxNodeCycle = cycle
	return id, nil
}

// AppendEdge validates and appends an edge. Same contract as
// MemoryStore.AppendEdge.
func (b *BadgerStore) AppendEdge(from, to NodeID, relation Relation, cycle int) (EdgeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrStoreClosed
	}
	if !relation.Valid() {
		return "", fmt.Errorf("%w: unknown relation %q", ErrValidation, relation)
	}
	if err := checkCycle(cycle, b.maxEdgeCycle, "edge"); err != nil {
		return "", err
	}

	id := EdgeID(fmt.Sprintf("e-%03d", b.nextEdgeSeq))
	edge := &Edge{
		ID:        id,
		From:      from,
		To:        to,
		Relation:  relation,
		Cycle:     cycle,
		CreatedAt: time.Now().UTC(),
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		// Endpoint resolution happens in the same transaction as the write.
		if _, err := txn.Get(nodeKey(from)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: from node %q", ErrDanglingReference, from)
		} else if err != nil {
			return err
		}
		if _, err := txn.Get(nodeKey(to)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: to node %q", ErrDanglingReference, to)
		} else if err != nil {
			return err
		}

		data, err := json.Marshal(edge)
		if err != nil {
			return fmt.Errorf("encoding edge: %w", err)
		}
		if err := txn.Set(edgeKey(id), data); err != nil {
			return err
		}
		if err := setCounter(txn, metaNextEdgeSeq, b.nextEdgeSeq+1); err != nil {
			return err
		}
		return setCounter(txn, metaMaxEdgeCycle, cycle)
	})
	if err != nil {
		return "", err
	}

	b.nextEdgeSeq++
	b.maxEdgeCycle = cycle
	return id, nil
}

// Node retrieves a node by id.
func (b *BadgerStore) Node(id NodeID) (*Node, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var node Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: node %q", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// Edge retrieves an edge by id.
func (b *BadgerStore) Edge(id EdgeID) (*Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var edge Edge
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: edge %q", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &edge)
		})
	})
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// Query returns all matching nodes ordered by ascending cycle.
func (b *BadgerStore) Query(f Filter) ([]Node, error) {
	nodes, err := b.allNodes()
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for i := range nodes {
		if f.matches(&nodes[i]) {
			out = append(out, nodes[i])
		}
	}
	return out, nil
}

// Snapshot returns an immutable view of all nodes and edges.
func (b *BadgerStore) Snapshot() (*Snapshot, error) {
	nodes, err := b.allNodes()
	if err != nil {
		return nil, err
	}
	edges, err := b.allEdges()
	if err != nil {
		return nil, err
	}
	return newSnapshot(nodes, edges), nil
}

func (b *BadgerStore) allNodes() ([]Node, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var nodes []Node
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixNode}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var n Node
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Cycle < nodes[j].Cycle })
	return nodes, nil
}

func (b *BadgerStore) allEdges() ([]Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	var edges []Edge
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte{prefixEdge}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Edge
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			edges = append(edges, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Cycle < edges[j].Cycle })
	return edges, nil
}

// MaxNodeCycle reports the node cycle high-water mark (-1 when empty).
func (b *BadgerStore) MaxNodeCycle() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxNodeCycle
}

// MaxEdgeCycle reports the edge cycle high-water mark (-1 when empty).
func (b *BadgerStore) MaxEdgeCycle() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxEdgeCycle
}

// NodeCount returns the number of nodes.
func (b *BadgerStore) NodeCount() (int, error) {
	nodes, err := b.allNodes()
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// EdgeCount returns the number of edges.
func (b *BadgerStore) EdgeCount() (int, error) {
	edges, err := b.allEdges()
	if err != nil {
		return 0, err
	}
	return len(edges), nil
}

// Stats summarizes the store contents.
func (b *BadgerStore) Stats() (*Stats, error) {
	nodes, err := b.allNodes()
	if err != nil {
		return nil, err
	}
	edges, err := b.allEdges()
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	maxNode, maxEdge := b.maxNodeCycle, b.maxEdgeCycle
	b.mu.Unlock()

	st := &Stats{
		Nodes:           len(nodes),
		Edges:           len(edges),
		NodesByType:     make(map[NodeType]int),
		NodesBySource:   make(map[Source]int),
		EdgesByRelation: make(map[Relation]int),
		MaxNodeCycle:    maxNode,
		MaxEdgeCycle:    maxEdge,
	}
	for i := range nodes {
		st.NodesByType[nodes[i].Type]++
		st.NodesBySource[nodes[i].Source]++
	}
	for i := range edges {
		st.EdgesByRelation[edges[i].Relation]++
	}
	return st, nil
}

// Close flushes and closes the underlying badger database. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// ImportDocument bulk-loads a validated document into an empty badger
// store. Fails with ErrValidation if the store already holds data, so an
// import can never interleave with existing history.
func (b *BadgerStore) ImportDocument(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	count, err := b.NodeCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: import requires an empty store", ErrValidation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	nextNode, nextEdge := 1, 1
	maxNodeCycle, maxEdgeCycle := -1, -1
	err = b.db.Update(func(txn *badger.Txn) error {
		for i := range doc.Nodes {
			n := doc.Nodes[i]
			if _, ok := b.sources[n.Source]; !ok {
				return fmt.Errorf("%w: node %q has unrecognized source %q", ErrMalformed, n.ID, n.Source)
			}
			data, err := json.Marshal(&n)
			if err != nil {
				return err
			}
			if err := txn.Set(nodeKey(n.ID), data); err != nil {
				return err
			}
			if seq := idSeq(string(n.ID)); seq >= nextNode {
				nextNode = seq + 1
			}
			maxNodeCycle = n.Cycle
		}
		for i := range doc.Edges {
			e := doc.Edges[i]
			data, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			if err := txn.Set(edgeKey(e.ID), data); err != nil {
				return err
			}
			if seq := idSeq(string(e.ID)); seq >= nextEdge {
				nextEdge = seq + 1
			}
			maxEdgeCycle = e.Cycle
		}
		if err := setCounter(txn, metaNextNodeSeq, nextNode); err != nil {
			return err
		}
		if err := setCounter(txn, metaNextEdgeSeq, nextEdge); err != nil {
			return err
		}
		if err := setCounter(txn, metaMaxNodeCycle, maxNodeCycle); err != nil {
			return err
		}
		return setCounter(txn, metaMaxEdgeCycle, maxEdgeCycle)
	})
	if err != nil {
		return err
	}

	b.nextNodeSeq = nextNode
	b.nextEdgeSeq = nextEdge
	b.maxNodeCycle = maxNodeCycle
	b.maxEdgeCycle = maxEdgeCycle
	return nil
}

func (b *BadgerStore) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

// Key encoding helpers.

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, []byte(name)...)
}

func setCounter(txn *badger.Txn, key []byte, v int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(int64(v)))
	return txn.Set(key, buf[:])
}

// Verify BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)
