package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(DefaultSources())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryStoreAppendNode(t *testing.T) {
	store := newTestStore(t)

	t.Run("assigns sequential ids", func(t *testing.T) {
		id1, err := store.AppendNode(SourceCokac, TypeQuestion, "first", nil, 1)
		require.NoError(t, err)
		assert.Equal(t, NodeID("n-001"), id1)

		id2, err := store.AppendNode(SourceRocky, TypeInsight, "second", nil, 2)
		require.NoError(t, err)
		assert.Equal(t, NodeID("n-002"), id2)
	})

	t.Run("normalizes tags", func(t *testing.T) {
		id, err := store.AppendNode(SourceCokac, TypeObservation, "tagged",
			[]string{"zeta", " alpha ", "zeta", ""}, 3)
		require.NoError(t, err)

		node, err := store.Node(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta"}, node.Tags)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		_, err := store.AppendNode("intruder", TypeInsight, "x", nil, 10)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := store.AppendNode(SourceCokac, "opinion", "x", nil, 10)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects negative cycle", func(t *testing.T) {
		_, err := store.AppendNode(SourceCokac, TypeInsight, "x", nil, -1)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("failed append leaves no trace", func(t *testing.T) {
		before, err := store.NodeCount()
		require.NoError(t, err)

		_, err = store.AppendNode("intruder", TypeInsight, "x", nil, 10)
		require.Error(t, err)

		after, err := store.NodeCount()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestMemoryStoreCycleMonotonicity(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendNode(SourceCokac, TypeQuestion, "a", nil, 5)
	require.NoError(t, err)

	t.Run("same cycle rejected", func(t *testing.T) {
		_, err := store.AppendNode(SourceRocky, TypeInsight, "b", nil, 5)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("lower cycle rejected", func(t *testing.T) {
		_, err := store.AppendNode(SourceRocky, TypeInsight, "b", nil, 3)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("retry above high-water mark succeeds", func(t *testing.T) {
		retry := store.MaxNodeCycle() + 1
		_, err := store.AppendNode(SourceRocky, TypeInsight, "b", nil, retry)
		require.NoError(t, err)
		assert.Equal(t, 6, store.MaxNodeCycle())
	})

	t.Run("node and edge cycles are independent", func(t *testing.T) {
		// Node high-water mark is 6; an edge at cycle 1 is still fine.
		a, err := store.AppendNode(SourceCokac, TypeObservation, "c", nil, 7)
		require.NoError(t, err)
		b, err := store.AppendNode(SourceRocky, TypeObservation, "d", nil, 8)
		require.NoError(t, err)

		_, err = store.AppendEdge(a, b, RelationRelatesTo, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, store.MaxEdgeCycle())
		assert.Equal(t, 8, store.MaxNodeCycle())
	})
}

func TestMemoryStoreAppendEdge(t *testing.T) {
	store := newTestStore(t)

	a, err := store.AppendNode(SourceCokac, TypeQuestion, "q", nil, 1)
	require.NoError(t, err)
	b, err := store.AppendNode(SourceRocky, TypeInsight, "i", nil, 2)
	require.NoError(t, err)

	t.Run("links existing nodes", func(t *testing.T) {
		id, err := store.AppendEdge(a, b, RelationGrounds, 1)
		require.NoError(t, err)
		assert.Equal(t, EdgeID("e-001"), id)

		edge, err := store.Edge(id)
		require.NoError(t, err)
		assert.Equal(t, a, edge.From)
		assert.Equal(t, b, edge.To)
		assert.Equal(t, RelationGrounds, edge.Relation)
	})

	t.Run("rejects dangling endpoints", func(t *testing.T) {
		_, err := store.AppendEdge(a, "n-999", RelationRelatesTo, 2)
		require.ErrorIs(t, err, ErrDanglingReference)

		_, err = store.AppendEdge("n-999", b, RelationRelatesTo, 2)
		require.ErrorIs(t, err, ErrDanglingReference)
	})

	t.Run("rejects unknown relation", func(t *testing.T) {
		_, err := store.AppendEdge(a, b, "contradicts", 2)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("permits self-loop", func(t *testing.T) {
		_, err := store.AppendEdge(a, a, RelationRelatesTo, 2)
		require.NoError(t, err)
	})
}

func TestMemoryStoreLookupMisses(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Node("n-404")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Edge("e-404")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQuery(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendNode(SourceCokac, TypeQuestion, "Does span matter?",
		[]string{"span", "question"}, 1)
	require.NoError(t, err)
	_, err = store.AppendNode(SourceRocky, TypeInsight, "Wide spans dominate",
		[]string{"span"}, 2)
	require.NoError(t, err)
	_, err = store.AppendNode(SourceRocky, TypeObservation, "CSER dipped today",
		[]string{"metrics"}, 3)
	require.NoError(t, err)

	t.Run("empty filter matches all in cycle order", func(t *testing.T) {
		nodes, err := store.Query(Filter{})
		require.NoError(t, err)
		require.Len(t, nodes, 3)
		assert.Equal(t, 1, nodes[0].Cycle)
		assert.Equal(t, 3, nodes[2].Cycle)
	})

	t.Run("by source", func(t *testing.T) {
		nodes, err := store.Query(Filter{Source: SourceRocky})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("by type", func(t *testing.T) {
		nodes, err := store.Query(Filter{Type: TypeQuestion})
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("by tag", func(t *testing.T) {
		nodes, err := store.Query(Filter{Tag: "span"})
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("contains is case-insensitive", func(t *testing.T) {
		nodes, err := store.Query(Filter{Contains: "cser"})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, TypeObservation, nodes[0].Type)
	})

	t.Run("conjunctive filters", func(t *testing.T) {
		nodes, err := store.Query(Filter{Source: SourceRocky, Tag: "span"})
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AppendNode(SourceCokac, TypeInsight, "original",
		[]string{"alpha"}, 1)
	require.NoError(t, err)

	node, err := store.Node(id)
	require.NoError(t, err)
	node.Content = "mutated"
	node.Tags[0] = "mutated"

	fresh, err := store.Node(id)
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Content)
	assert.Equal(t, []string{"alpha"}, fresh.Tags)
}

func TestMemoryStoreStats(t *testing.T) {
	store := newTestStore(t)

	a, _ := store.AppendNode(SourceCokac, TypeQuestion, "q", nil, 1)
	b, _ := store.AppendNode(SourceRocky, TypeInsight, "i", nil, 2)
	_, _ = store.AppendNode(SourceRocky, TypeInsight, "i2", nil, 3)
	_, err := store.AppendEdge(a, b, RelationGrounds, 1)
	require.NoError(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, 2, stats.NodesByType[TypeInsight])
	assert.Equal(t, 2, stats.NodesBySource[SourceRocky])
	assert.Equal(t, 1, stats.EdgesByRelation[RelationGrounds])
	assert.Equal(t, 3, stats.MaxNodeCycle)
	assert.Equal(t, 1, stats.MaxEdgeCycle)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore(DefaultSources())
	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	_, err := store.AppendNode(SourceCokac, TypeInsight, "x", nil, 1)
	require.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Query(Filter{})
	require.ErrorIs(t, err, ErrStoreClosed)
}

func TestEmptyStoreHighWaterMarks(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, -1, store.MaxNodeCycle())
	assert.Equal(t, -1, store.MaxEdgeCycle())
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Nil(t, NormalizeTags([]string{"", "  "}))
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"b", "a", "b"}))
}

func TestTagJaccard(t *testing.T) {
	assert.Equal(t, 0.0, TagJaccard(nil, nil))
	assert.Equal(t, 1.0, TagJaccard([]string{"a", "b"}, []string{"b", "a"}))
	assert.Equal(t, 0.5, TagJaccard([]string{"a", "b"}, []string{"a"}))
	assert.Equal(t, 0.0, TagJaccard([]string{"a"}, []string{"b"}))
}
