package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshot(t *testing.T) (*MemoryStore, *Snapshot) {
	t.Helper()
	store := newTestStore(t)

	a, err := store.AppendNode(SourceCokac, TypeQuestion, "q", []string{"x"}, 1)
	require.NoError(t, err)
	b, err := store.AppendNode(SourceRocky, TypeInsight, "i", []string{"y"}, 5)
	require.NoError(t, err)
	c, err := store.AppendNode(SourceCokac, TypeObservation, "o", nil, 9)
	require.NoError(t, err)
	_, err = store.AppendEdge(a, b, RelationGrounds, 1)
	require.NoError(t, err)
	_ = c

	snap, err := store.Snapshot()
	require.NoError(t, err)
	return store, snap
}

func TestSnapshotIsolation(t *testing.T) {
	store, snap := seedSnapshot(t)

	// Later writes must not show up in an earlier snapshot.
	_, err := store.AppendNode(SourceRocky, TypeInsight, "late", nil, 10)
	require.NoError(t, err)

	assert.Len(t, snap.Nodes, 3)
	assert.Len(t, snap.Edges, 1)
}

func TestSnapshotConnected(t *testing.T) {
	_, snap := seedSnapshot(t)

	assert.True(t, snap.Connected("n-001", "n-002"))
	assert.True(t, snap.Connected("n-002", "n-001")) // undirected membership
	assert.False(t, snap.Connected("n-001", "n-003"))
}

func TestSnapshotSpanNormalizer(t *testing.T) {
	t.Run("max minus min cycle", func(t *testing.T) {
		_, snap := seedSnapshot(t)
		assert.Equal(t, 8.0, snap.SpanNormalizer())
	})

	t.Run("degenerate graphs fall back to one", func(t *testing.T) {
		empty := newSnapshot(nil, nil)
		assert.Equal(t, 1.0, empty.SpanNormalizer())

		store := newTestStore(t)
		_, err := store.AppendNode(SourceCokac, TypeInsight, "solo", nil, 4)
		require.NoError(t, err)
		snap, err := store.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, 1.0, snap.SpanNormalizer())
	})
}

func TestSnapshotWithEdge(t *testing.T) {
	_, snap := seedSnapshot(t)

	hyp := snap.WithEdge("n-001", "n-003", RelationRelatesTo)

	assert.Len(t, hyp.Edges, 2)
	assert.True(t, hyp.Connected("n-001", "n-003"))

	// The receiver is untouched.
	assert.Len(t, snap.Edges, 1)
	assert.False(t, snap.Connected("n-001", "n-003"))

	// Hypothetical edge follows the edge cycle high-water mark.
	assert.Equal(t, 2, hyp.Edges[1].Cycle)
}

func TestSnapshotFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		_, snap := seedSnapshot(t)
		assert.Equal(t, snap.Fingerprint(), snap.Fingerprint())
	})

	t.Run("append changes digest", func(t *testing.T) {
		store, snap := seedSnapshot(t)
		before := snap.Fingerprint()

		_, err := store.AppendNode(SourceRocky, TypeInsight, "late", nil, 10)
		require.NoError(t, err)
		after, err := store.Snapshot()
		require.NoError(t, err)

		assert.NotEqual(t, before, after.Fingerprint())
	})

	t.Run("hypothetical edge changes digest", func(t *testing.T) {
		_, snap := seedSnapshot(t)
		hyp := snap.WithEdge("n-001", "n-003", RelationRelatesTo)
		assert.NotEqual(t, snap.Fingerprint(), hyp.Fingerprint())
	})
}
