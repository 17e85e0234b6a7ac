package sample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cpfiffer/outlines/grammar"
)

func TestTrackerRecordsRawAndMasked(t *testing.T) {
	vocab := testVocab("a", "b")
	s := testSession(t, grammar.Regex(`ab`), vocab)
	tr := NewTracker(s)

	logits := []float32{0, 0, 2, 1}
	tr.Process(logits)
	require.Equal(t, 1, tr.Steps())

	// The raw snapshot predates masking; the masked snapshot has -Inf
	// where the constraint removed a token.
	require.Equal(t, float32(1), tr.Raw(0)[vocab.Encode("b")])
	require.True(t, math.IsInf(float64(tr.Masked(0)[vocab.Encode("b")]), -1))
	require.Equal(t, float32(2), tr.Masked(0)[vocab.Encode("a")])

	a := vocab.Encode("a")
	require.NoError(t, s.Advance(a))
	tr.Observe(a)
	require.Equal(t, []int32{a}, tr.Chosen())
}

func TestTrackerTopTokens(t *testing.T) {
	vocab := testVocab("a", "b")
	s := testSession(t, grammar.Regex(`a`), vocab)
	tr := NewTracker(s)

	logits := []float32{0, 0, 1, 3}
	tr.Process(logits)
	a := vocab.Encode("a")
	require.NoError(t, s.Advance(a))
	tr.Observe(a)

	top := tr.TopTokens(0, 2)
	require.Len(t, top, 2)

	// "a" holds the whole masked distribution, which outranks "b"'s
	// raw probability; "b" still shows up for comparison even though
	// the mask removed it.
	require.Equal(t, "a", top[0].Token)
	require.Greater(t, top[0].MaskedProb, float32(0.99))
	require.True(t, top[0].Chosen)

	require.Equal(t, "b", top[1].Token)
	require.Zero(t, top[1].MaskedProb)
	require.False(t, top[1].Chosen)
	require.Greater(t, top[1].RawProb, top[0].RawProb)
}

func TestTrackerSequence(t *testing.T) {
	vocab := testVocab("a", "b")
	s := testSession(t, grammar.Regex(`ab`), vocab)
	tr := NewTracker(s)

	for _, tok := range []string{"a", "b"} {
		logits := make([]float32, len(vocab.Values))
		tr.Process(logits)
		id := vocab.Encode(tok)
		require.NoError(t, s.Advance(id))
		tr.Observe(id)
	}

	require.Equal(t, "", tr.Sequence(0))
	require.Equal(t, "a", tr.Sequence(1))
	require.Equal(t, "ab", tr.Sequence(tr.Steps()))
}

func TestTrackerClear(t *testing.T) {
	vocab := testVocab("a")
	s := testSession(t, grammar.Regex(`a`), vocab)
	tr := NewTracker(s)

	tr.Process(make([]float32, len(vocab.Values)))
	tr.Clear()
	require.Zero(t, tr.Steps())
	require.Empty(t, tr.Chosen())
	require.Nil(t, tr.TopTokens(0, 5))
}
