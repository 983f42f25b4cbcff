package emergent

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cokac/emergent/pkg/config"
	"github.com/cokac/emergent/pkg/gate"
	"github.com/cokac/emergent/pkg/graph"
)

func openMemoryDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedDB(t *testing.T, db *DB) (graph.NodeID, graph.NodeID, graph.EdgeID) {
	t.Helper()
	q, err := db.AppendNode(graph.SourceCokac, graph.TypeQuestion, "why does span matter?",
		[]string{"span"}, db.NextNodeCycle())
	require.NoError(t, err)
	i, err := db.AppendNode(graph.SourceRocky, graph.TypeInsight, "wide edges close loops",
		[]string{"loops"}, db.NextNodeCycle())
	require.NoError(t, err)
	e, err := db.AppendEdge(q, i, graph.RelationGrounds, db.NextEdgeCycle())
	require.NoError(t, err)
	return q, i, e
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = "postgres"
	_, err := Open(cfg)
	require.ErrorIs(t, err, graph.ErrValidation)
}

func TestOpenBadgerEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = config.EngineBadger
	cfg.DataDir = t.TempDir()

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	seedDB(t, db)
	count, err := db.Store().NodeCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppendAndQuery(t *testing.T) {
	db := openMemoryDB(t)
	q, _, _ := seedDB(t, db)

	node, err := db.Node(q)
	require.NoError(t, err)
	assert.Equal(t, graph.TypeQuestion, node.Type)

	nodes, err := db.Query(graph.Filter{Source: graph.SourceRocky})
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 1, stats.Edges)
}

func TestNextCycleRetry(t *testing.T) {
	db := openMemoryDB(t)
	seedDB(t, db)

	// A stale cycle is rejected; re-reading NextNodeCycle recovers.
	stale := db.NextNodeCycle() - 1
	_, err := db.AppendNode(graph.SourceCokac, graph.TypeInsight, "stale", nil, stale)
	require.ErrorIs(t, err, graph.ErrValidation)

	_, err = db.AppendNode(graph.SourceCokac, graph.TypeInsight, "fresh", nil, db.NextNodeCycle())
	require.NoError(t, err)
}

func TestComputeMetrics(t *testing.T) {
	db := openMemoryDB(t)

	t.Run("empty graph scores zero", func(t *testing.T) {
		report, err := db.ComputeMetrics()
		require.NoError(t, err)
		assert.Equal(t, 0.0, report.E)
	})

	t.Run("cross-source edge raises E", func(t *testing.T) {
		seedDB(t, db)
		report, err := db.ComputeMetrics()
		require.NoError(t, err)
		assert.Equal(t, 1.0, report.CSER)
		assert.Greater(t, report.E, 0.0)
	})
}

func TestRecommendAndSimulate(t *testing.T) {
	db := openMemoryDB(t)
	q, _, _ := seedDB(t, db)
	o, err := db.AppendNode(graph.SourceRocky, graph.TypeObservation, "unlinked", nil, db.NextNodeCycle())
	require.NoError(t, err)

	recs, err := db.Recommend(5)
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	delta, err := db.SimulateDelta(q, o, graph.RelationRelatesTo)
	require.NoError(t, err)

	edges, err := db.Store().EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, 1, edges) // simulation wrote nothing
	_ = delta
}

func TestRecordOutcomePersistsAcrossCalls(t *testing.T) {
	db := openMemoryDB(t)
	_, _, e := seedDB(t, db)

	before := db.Coefficients()
	require.NoError(t, db.RecordOutcome(e, 0.6, 0.1))
	mid := db.Coefficients()
	assert.Less(t, mid.Span, before.Span)

	require.NoError(t, db.RecordOutcome(e, 0.6, 0.1))
	after := db.Coefficients()
	assert.Less(t, after.Span, mid.Span)
	assert.Len(t, db.Journal(), 2)
}

func TestGateCheck(t *testing.T) {
	db := openMemoryDB(t)
	r := db.GateCheck([]string{"strategy"}, []string{"badger"})
	assert.Equal(t, gate.VerdictPass, r.Verdict)
}

func TestExportImport(t *testing.T) {
	db := openMemoryDB(t)
	seedDB(t, db)
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, db.Export(path))

	t.Run("memory import round-trips", func(t *testing.T) {
		fresh := openMemoryDB(t)
		require.NoError(t, fresh.Import(path))

		stats, err := fresh.Stats()
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Nodes)
		assert.Equal(t, 1, stats.Edges)

		// Metrics agree with the exporter's.
		want, err := db.ComputeMetrics()
		require.NoError(t, err)
		got, err := fresh.ComputeMetrics()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("badger import round-trips", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine = config.EngineBadger
		cfg.DataDir = t.TempDir()
		fresh, err := Open(cfg)
		require.NoError(t, err)
		defer fresh.Close()

		require.NoError(t, fresh.Import(path))
		stats, err := fresh.Stats()
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Nodes)
	})

	t.Run("import into non-empty store fails", func(t *testing.T) {
		require.ErrorIs(t, db.Import(path), graph.ErrValidation)
	})
}
