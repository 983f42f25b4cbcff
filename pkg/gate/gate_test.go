package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cokac/emergent/pkg/graph"
)

func TestGateCheck(t *testing.T) {
	g := New(DefaultThreshold)

	t.Run("disjoint sections pass with full score", func(t *testing.T) {
		r := g.Check([]string{"strategy", "emergence"}, []string{"badger", "storage"})
		assert.Equal(t, VerdictPass, r.Verdict)
		assert.Equal(t, 1.0, r.LocalCSER)
		assert.True(t, r.Passed())
		assert.Equal(t, 4, r.CrossPairs)
	})

	t.Run("identical sections block with zero score", func(t *testing.T) {
		r := g.Check([]string{"a", "b"}, []string{"a", "b"})
		assert.Equal(t, VerdictBlocked, r.Verdict)
		assert.Equal(t, 0.0, r.LocalCSER)
		assert.False(t, r.Passed())
		assert.Equal(t, 0, r.CrossPairs)
	})

	t.Run("half overlap passes", func(t *testing.T) {
		r := g.Check([]string{"a"}, []string{"a", "b"})
		assert.Equal(t, VerdictPass, r.Verdict)
		assert.InDelta(t, 0.5, r.LocalCSER, 1e-12)
	})

	t.Run("empty sections pass", func(t *testing.T) {
		r := g.Check(nil, nil)
		assert.Equal(t, VerdictPass, r.Verdict)
		assert.Equal(t, 1.0, r.LocalCSER)
	})

	t.Run("exactly at threshold passes", func(t *testing.T) {
		// overlap 7/10 -> localCSER 0.30 == threshold
		macro := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		tech := []string{"a", "b", "c", "d", "e", "f", "g", "i", "j"}
		r := g.Check(macro, tech)
		assert.InDelta(t, 0.30, r.LocalCSER, 1e-12)
		assert.Equal(t, VerdictPass, r.Verdict)
	})

	t.Run("idempotent", func(t *testing.T) {
		macro := []string{"a", "b"}
		tech := []string{"b", "c"}
		assert.Equal(t, g.Check(macro, tech), g.Check(macro, tech))
	})

	t.Run("duplicates and whitespace normalized", func(t *testing.T) {
		r := g.Check([]string{" a ", "a"}, []string{"a", "a "})
		assert.Equal(t, 0.0, r.LocalCSER)
	})
}

func TestGateNew(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold())
	assert.Equal(t, 0.5, New(0.5).Threshold())

	t.Run("stricter threshold blocks more", func(t *testing.T) {
		macro := []string{"a"}
		tech := []string{"a", "b"}
		assert.Equal(t, VerdictPass, New(0.30).Check(macro, tech).Verdict)
		assert.Equal(t, VerdictBlocked, New(0.60).Check(macro, tech).Verdict)
	})
}

func TestParseSections(t *testing.T) {
	t.Run("parses labeled blocks", func(t *testing.T) {
		s, err := ParseSections("macro: strategy, emergence\ntech: badger, go\n")
		require.NoError(t, err)
		assert.Equal(t, []string{"emergence", "strategy"}, s.Macro)
		assert.Equal(t, []string{"badger", "go"}, s.Tech)
	})

	t.Run("ignores noise lines and case", func(t *testing.T) {
		text := "work item 42\n\nMACRO: a, b\nnotes follow\nTech: c\n"
		s, err := ParseSections(text)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, s.Macro)
		assert.Equal(t, []string{"c"}, s.Tech)
	})

	t.Run("missing section fails", func(t *testing.T) {
		_, err := ParseSections("macro: a, b\n")
		require.ErrorIs(t, err, graph.ErrMalformed)
	})

	t.Run("duplicate section fails", func(t *testing.T) {
		_, err := ParseSections("macro: a\nmacro: b\ntech: c\n")
		require.ErrorIs(t, err, graph.ErrMalformed)
	})
}
