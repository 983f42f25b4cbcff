package graph

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// DocumentVersion is the current persisted format version.
const DocumentVersion = 1

// Document is the single versioned persisted representation of a store:
// two ordered collections plus metadata. It round-trips through JSON and
// carries a content checksum so a truncated or hand-edited file is caught
// before any record reaches a store.
type Document struct {
	Version int          `json:"version"`
	Meta    DocumentMeta `json:"meta"`
	Nodes   []Node       `json:"nodes"`
	Edges   []Edge       `json:"edges"`
}

// DocumentMeta describes the export.
type DocumentMeta struct {
	ExportedAt time.Time `json:"exported_at"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	Checksum   string    `json:"checksum"` // BLAKE2b-256 over the canonical body
}

// NewDocument builds a Document from a snapshot.
func NewDocument(s *Snapshot) *Document {
	doc := &Document{
		Version: DocumentVersion,
		Nodes:   s.Nodes,
		Edges:   s.Edges,
	}
	sum := s.Fingerprint()
	doc.Meta = DocumentMeta{
		ExportedAt: time.Now().UTC(),
		NodeCount:  len(s.Nodes),
		EdgeCount:  len(s.Edges),
		Checksum:   hex.EncodeToString(sum[:]),
	}
	return doc
}

// WriteDocument serializes a snapshot to w as an indented JSON document.
func WriteDocument(w io.Writer, s *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(s)); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return nil
}

// ReadDocument decodes and validates a document from r. Validation covers
// the format version, the checksum, id uniqueness, endpoint resolution,
// enum membership and per-kind strict cycle monotonicity in file order.
// Any violation fails the whole read: partial documents are not supported.
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks every store invariant against the document contents.
func (d *Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("%w: unsupported version %d (want %d)", ErrMalformed, d.Version, DocumentVersion)
	}

	nodeIDs := make(map[NodeID]struct{}, len(d.Nodes))
	maxNodeCycle := -1
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has empty id", ErrMalformed, i)
		}
		if _, dup := nodeIDs[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrMalformed, n.ID)
		}
		if !n.Type.Valid() {
			return fmt.Errorf("%w: node %q has unknown type %q", ErrMalformed, n.ID, n.Type)
		}
		if n.Source == "" {
			return fmt.Errorf("%w: node %q has empty source", ErrMalformed, n.ID)
		}
		if err := checkCycle(n.Cycle, maxNodeCycle, "node"); err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrMalformed, n.ID, err)
		}
		nodeIDs[n.ID] = struct{}{}
		maxNodeCycle = n.Cycle
	}

	edgeIDs := make(map[EdgeID]struct{}, len(d.Edges))
	maxEdgeCycle := -1
	for i := range d.Edges {
		e := &d.Edges[i]
		if e.ID == "" {
			return fmt.Errorf("%w: edge %d has empty id", ErrMalformed, i)
		}
		if _, dup := edgeIDs[e.ID]; dup {
			return fmt.Errorf("%w: duplicate edge id %q", ErrMalformed, e.ID)
		}
		if !e.Relation.Valid() {
			return fmt.Errorf("%w: edge %q has unknown relation %q", ErrMalformed, e.ID, e.Relation)
		}
		if _, ok := nodeIDs[e.From]; !ok {
			return fmt.Errorf("%w: edge %q references missing node %q", ErrMalformed, e.ID, e.From)
		}
		if _, ok := nodeIDs[e.To]; !ok {
			return fmt.Errorf("%w: edge %q references missing node %q", ErrMalformed, e.ID, e.To)
		}
		if err := checkCycle(e.Cycle, maxEdgeCycle, "edge"); err != nil {
			return fmt.Errorf("%w: edge %q: %v", ErrMalformed, e.ID, err)
		}
		edgeIDs[e.ID] = struct{}{}
		maxEdgeCycle = e.Cycle
	}

	if d.Meta.Checksum != "" {
		snap := newSnapshot(d.Nodes, d.Edges)
		sum := snap.Fingerprint()
		if hex.EncodeToString(sum[:]) != d.Meta.Checksum {
			return fmt.Errorf("%w: checksum mismatch", ErrMalformed)
		}
	}
	return nil
}

// LoadStore materializes a validated document into a fresh MemoryStore.
//
// The load is atomic by construction: validation finishes before the store
// is created, so a malformed document never produces a partially-populated
// store. Node and edge ids, cycles and timestamps are preserved exactly,
// and the id counters resume above the highest imported id.
func LoadStore(doc *Document, sources []Source) (*MemoryStore, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	store := NewMemoryStore(sources)
	for i := range doc.Nodes {
		n := doc.Nodes[i]
		if _, ok := store.sources[n.Source]; !ok {
			return nil, fmt.Errorf("%w: node %q has unrecognized source %q", ErrMalformed, n.ID, n.Source)
		}
		n.Tags = NormalizeTags(n.Tags)
		store.nodes[n.ID] = &n
		store.nodeOrder = append(store.nodeOrder, n.ID)
		store.maxNodeCycle = n.Cycle
		if seq := idSeq(string(n.ID)); seq >= store.nextNodeSeq {
			store.nextNodeSeq = seq + 1
		}
	}
	for i := range doc.Edges {
		e := doc.Edges[i]
		store.edges[e.ID] = &e
		store.edgeOrder = append(store.edgeOrder, e.ID)
		store.maxEdgeCycle = e.Cycle
		if seq := idSeq(string(e.ID)); seq >= store.nextEdgeSeq {
			store.nextEdgeSeq = seq + 1
		}
	}
	return store, nil
}

// LoadStoreFile reads, validates and materializes a document from disk.
func LoadStoreFile(path string, sources []Source) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	doc, err := ReadDocument(f)
	if err != nil {
		return nil, err
	}
	return LoadStore(doc, sources)
}

// SaveStoreFile exports a store snapshot to disk. The file is written to a
// temporary sibling first and renamed into place so a crash mid-write never
// clobbers the previous export.
func SaveStoreFile(path string, store Store) error {
	snap, err := store.Snapshot()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := WriteDocument(f, snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// idSeq extracts the numeric suffix from an "n-001"/"e-042" style id.
// Returns 0 when the id has no parsable suffix.
func idSeq(id string) int {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '-' {
			seq := 0
			for _, c := range id[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				seq = seq*10 + int(c-'0')
			}
			return seq
		}
	}
	return 0
}
