package graph

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	a, _ := store.AppendNode(SourceCokac, TypeQuestion, "q", []string{"x"}, 1)
	b, _ := store.AppendNode(SourceRocky, TypeInsight, "i", []string{"x", "y"}, 4)
	_, err := store.AppendEdge(a, b, RelationGrounds, 1)
	require.NoError(t, err)

	snap, err := store.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, snap))

	doc, err := ReadDocument(&buf)
	require.NoError(t, err)

	loaded, err := LoadStore(doc, DefaultSources())
	require.NoError(t, err)
	defer loaded.Close()

	t.Run("preserves records exactly", func(t *testing.T) {
		node, err := loaded.Node(a)
		require.NoError(t, err)
		assert.Equal(t, "q", node.Content)
		assert.Equal(t, 1, node.Cycle)
		assert.Equal(t, []string{"x"}, node.Tags)

		got, err := loaded.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, snap.Fingerprint(), got.Fingerprint())
	})

	t.Run("resumes counters above imported ids", func(t *testing.T) {
		id, err := loaded.AppendNode(SourceCokac, TypeObservation, "new", nil, 5)
		require.NoError(t, err)
		assert.Equal(t, NodeID("n-003"), id)
	})

	t.Run("resumes cycle high-water marks", func(t *testing.T) {
		_, err := loaded.AppendNode(SourceCokac, TypeObservation, "stale", nil, 2)
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestDocumentValidate(t *testing.T) {
	base := func() *Document {
		return &Document{
			Version: DocumentVersion,
			Nodes: []Node{
				{ID: "n-001", Source: SourceCokac, Type: TypeQuestion, Content: "q", Cycle: 1},
				{ID: "n-002", Source: SourceRocky, Type: TypeInsight, Content: "i", Cycle: 2},
			},
			Edges: []Edge{
				{ID: "e-001", From: "n-001", To: "n-002", Relation: RelationGrounds, Cycle: 1},
			},
		}
	}

	t.Run("valid document passes", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("wrong version", func(t *testing.T) {
		doc := base()
		doc.Version = 99
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})

	t.Run("duplicate node id", func(t *testing.T) {
		doc := base()
		doc.Nodes[1].ID = "n-001"
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})

	t.Run("unknown node type", func(t *testing.T) {
		doc := base()
		doc.Nodes[0].Type = "opinion"
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})

	t.Run("dangling edge endpoint", func(t *testing.T) {
		doc := base()
		doc.Edges[0].To = "n-999"
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})

	t.Run("non-increasing node cycles", func(t *testing.T) {
		doc := base()
		doc.Nodes[1].Cycle = 1
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		doc := base()
		doc.Meta.Checksum = strings.Repeat("ab", 32)
		require.ErrorIs(t, doc.Validate(), ErrMalformed)
	})
}

func TestReadDocumentMalformedJSON(t *testing.T) {
	_, err := ReadDocument(strings.NewReader(`{"version": 1, "nodes": [`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLoadStoreRejectsUnknownSource(t *testing.T) {
	doc := &Document{
		Version: DocumentVersion,
		Nodes: []Node{
			{ID: "n-001", Source: "stranger", Type: TypeInsight, Content: "x", Cycle: 1},
		},
	}
	_, err := LoadStore(doc, DefaultSources())
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSaveAndLoadStoreFile(t *testing.T) {
	store := newTestStore(t)
	a, _ := store.AppendNode(SourceCokac, TypeQuestion, "q", nil, 1)
	b, _ := store.AppendNode(SourceRocky, TypeInsight, "i", nil, 2)
	_, err := store.AppendEdge(a, b, RelationExtends, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, SaveStoreFile(path, store))

	loaded, err := LoadStoreFile(path, DefaultSources())
	require.NoError(t, err)
	defer loaded.Close()

	count, err := loaded.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	edges, err := loaded.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, 1, edges)
}

func TestLoadStoreFileCorruptLeavesNothing(t *testing.T) {
	// A document whose tail violates validation must not produce a store at
	// all, even though its head is fine.
	doc := &Document{
		Version: DocumentVersion,
		Nodes: []Node{
			{ID: "n-001", Source: SourceCokac, Type: TypeQuestion, Content: "ok", Cycle: 1},
			{ID: "n-002", Source: SourceRocky, Type: "bogus", Content: "bad", Cycle: 2},
		},
	}
	loaded, err := LoadStore(doc, DefaultSources())
	require.ErrorIs(t, err, ErrMalformed)
	assert.Nil(t, loaded)
}
