// Package emergent provides the main API for embedded emergent usage.
//
// This package wires the graph store, the metric engine, the pair designer
// and the execution gate behind one DB handle. External collaborators —
// the CLI, the surrounding orchestration, tests — talk to a DB and never
// construct the inner components themselves.
//
// Key Features:
//   - Append-only collaboration graph (memory or badger persistence)
//   - Emergence metrics computed over immutable snapshots
//   - Pair recommendations with predicted emergence deltas
//   - Outcome feedback that tunes the designer's coefficients
//   - Execution gating on macro/tech section diversity
//   - Versioned JSON export and atomic import
//
// Example Usage:
//
//	cfg := config.Default()
//	db, err := emergent.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	q, _ := db.AppendNode("cokac", graph.TypeQuestion,
//		"does cross-source linking raise emergence?",
//		[]string{"emergence"}, db.NextNodeCycle())
//	a, _ := db.AppendNode("rocky", graph.TypeInsight,
//		"wide-span edges dominate the composite index",
//		[]string{"span"}, db.NextNodeCycle())
//	db.AppendEdge(q, a, graph.RelationGrounds, db.NextEdgeCycle())
//
//	report, _ := db.ComputeMetrics()
//	fmt.Printf("E = %.3f\n", report.E)
//
// There is no singleton: every DB owns its store and designer, and two DBs
// never share state unless they share a badger data directory.
package emergent

import (
	"fmt"
	"os"

	"github.com/cokac/emergent/pkg/config"
	"github.com/cokac/emergent/pkg/designer"
	"github.com/cokac/emergent/pkg/gate"
	"github.com/cokac/emergent/pkg/graph"
	"github.com/cokac/emergent/pkg/metrics"
)

// DB is the assembled emergence core.
type DB struct {
	cfg      *config.Config
	store    graph.Store
	designer *designer.Designer
	gate     gate.Gate
}

// Open assembles a DB from a validated config. The engine is chosen by
// cfg.Engine: "memory" holds everything in RAM, "badger" persists to
// cfg.DataDir.
func Open(cfg *config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store graph.Store
	switch cfg.Engine {
	case config.EngineBadger:
		s, err := graph.OpenBadgerStore(cfg.DataDir, cfg.Sources)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = graph.NewMemoryStore(cfg.Sources)
	}

	return &DB{
		cfg:   cfg,
		store: store,
		designer: designer.New(store, designer.Options{
			Coefficients: cfg.Designer.Coefficients,
			Weights:      cfg.Weights,
			Markers:      cfg.Markers,
			MinSpan:      cfg.Designer.MinSpan,
			MinSemantic:  cfg.Designer.MinSemantic,
		}),
		gate: gate.New(cfg.Gate.Threshold),
	}, nil
}

// Store exposes the underlying graph store.
func (db *DB) Store() graph.Store { return db.store }

// AppendNode appends a node. See graph.Store.AppendNode.
func (db *DB) AppendNode(source graph.Source, typ graph.NodeType, content string, tags []string, cycle int) (graph.NodeID, error) {
	return db.store.AppendNode(source, typ, content, tags, cycle)
}

// AppendEdge appends an edge. See graph.Store.AppendEdge.
func (db *DB) AppendEdge(from, to graph.NodeID, relation graph.Relation, cycle int) (graph.EdgeID, error) {
	return db.store.AppendEdge(from, to, relation, cycle)
}

// Node retrieves a node by id.
func (db *DB) Node(id graph.NodeID) (*graph.Node, error) { return db.store.Node(id) }

// Edge retrieves an edge by id.
func (db *DB) Edge(id graph.EdgeID) (*graph.Edge, error) { return db.store.Edge(id) }

// Query returns matching nodes in ascending cycle order.
func (db *DB) Query(f graph.Filter) ([]graph.Node, error) { return db.store.Query(f) }

// Stats summarizes the store.
func (db *DB) Stats() (*graph.Stats, error) { return db.store.Stats() }

// NextNodeCycle returns the smallest cycle the next node append will
// accept. After a cycle-conflict validation failure the caller re-reads
// this and retries; the core never retries on its own.
func (db *DB) NextNodeCycle() int { return db.store.MaxNodeCycle() + 1 }

// NextEdgeCycle is NextNodeCycle for edges.
func (db *DB) NextEdgeCycle() int { return db.store.MaxEdgeCycle() + 1 }

// ComputeMetrics evaluates the full metric report on a fresh snapshot.
func (db *DB) ComputeMetrics() (metrics.Report, error) {
	snap, err := db.store.Snapshot()
	if err != nil {
		return metrics.Report{}, err
	}
	return metrics.Compute(snap, db.cfg.Weights, db.cfg.Markers), nil
}

// Recommend returns the designer's topN suggested pairs.
func (db *DB) Recommend(topN int) ([]designer.Recommendation, error) {
	return db.designer.Recommend(topN)
}

// SimulateDelta predicts the emergence change of a hypothetical edge
// without writing anything.
func (db *DB) SimulateDelta(from, to graph.NodeID, relation graph.Relation) (float64, error) {
	return db.designer.SimulateDelta(from, to, relation)
}

// RecordOutcome journals a realized delta against a prediction and lets the
// designer adjust its coefficients. Coefficients survive across calls for
// the lifetime of the DB.
func (db *DB) RecordOutcome(edgeID graph.EdgeID, predicted, actual float64) error {
	return db.designer.RecordOutcome(edgeID, predicted, actual)
}

// Coefficients returns the designer's current coefficient set.
func (db *DB) Coefficients() designer.Coefficients { return db.designer.Coefficients() }

// Journal returns the designer's outcome journal.
func (db *DB) Journal() []designer.Outcome { return db.designer.Journal() }

// GateCheck runs the execution gate on one macro/tech tag pair.
func (db *DB) GateCheck(macroTags, techTags []string) gate.Result {
	return db.gate.Check(macroTags, techTags)
}

// Export writes the whole graph to path as a versioned JSON document. The
// write is atomic (temp file plus rename).
func (db *DB) Export(path string) error {
	return graph.SaveStoreFile(path, db.store)
}

// Import loads a versioned JSON document into this DB's store. The current
// store must be empty; validation failures leave it untouched.
func (db *DB) Import(path string) error {
	count, err := db.store.NodeCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: import requires an empty store", graph.ErrValidation)
	}

	switch s := db.store.(type) {
	case *graph.BadgerStore:
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening document: %w", err)
		}
		defer f.Close()
		doc, err := graph.ReadDocument(f)
		if err != nil {
			return err
		}
		return s.ImportDocument(doc)
	default:
		loaded, err := graph.LoadStoreFile(path, db.cfg.Sources)
		if err != nil {
			return err
		}
		old := db.store
		db.store = loaded
		db.designer = designer.New(loaded, designer.Options{
			Coefficients: db.designer.Coefficients(),
			Weights:      db.cfg.Weights,
			Markers:      db.cfg.Markers,
			MinSpan:      db.cfg.Designer.MinSpan,
			MinSemantic:  db.cfg.Designer.MinSemantic,
		})
		return old.Close()
	}
}

// Close releases the store. For badger this is the final flush.
func (db *DB) Close() error { return db.store.Close() }
