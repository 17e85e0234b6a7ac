package outlines_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cpfiffer/outlines"
	"github.com/cpfiffer/outlines/cache"
	"github.com/cpfiffer/outlines/grammar"
	"github.com/cpfiffer/outlines/model"
	"github.com/cpfiffer/outlines/sample"
)

func testVocab(values ...string) *model.Vocabulary {
	v := &model.Vocabulary{
		Values: append([]string{"<s>", "</s>"}, values...),
		Types:  []int32{model.TOKEN_TYPE_CONTROL, model.TOKEN_TYPE_CONTROL},
		BOS:    []int32{0},
		EOS:    []int32{1},
	}
	for range values {
		v.Types = append(v.Types, model.TOKEN_TYPE_NORMAL)
	}
	return v
}

// run drives a session greedily, always taking the first allowed
// token, until the constraint is satisfied.
func run(t *testing.T, s *sample.Session, vocab *model.Vocabulary, maxSteps int) string {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		mask := s.Mask()
		require.NotEmpty(t, mask, "live session with an empty mask")
		id := mask[0]
		if vocab.Is(id, model.SpecialEOS) {
			require.NoError(t, s.Advance(id))
			break
		}
		require.NoError(t, s.Advance(id))
		if s.Status() != sample.Active {
			break
		}
	}
	require.Equal(t, sample.Accepted, s.Status())
	return s.Text()
}

func TestRegexSessionEndToEnd(t *testing.T) {
	vocab := testVocab("a", "ab", "b", "c")
	s, err := outlines.NewSession(grammar.Regex(`ab`), vocab, nil)
	require.NoError(t, err)

	got := run(t, s, vocab, 10)
	require.Equal(t, "ab", got)
}

func TestSchemaSessionEndToEnd(t *testing.T) {
	doc := `{"type": "object", "properties": {"n": {"type": "integer", "minimum": 1, "maximum": 3}}, "required": ["n"]}`
	vocab := testVocab(`{"n":`, `1`, `2`, `3`, `}`, `x`)
	s, err := outlines.NewSession(grammar.Schema(doc), vocab, nil)
	require.NoError(t, err)

	got := run(t, s, vocab, 10)
	require.Contains(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, got)
}

func TestCFGSessionEndToEnd(t *testing.T) {
	vocab := testVocab("(", ")", "x")
	s, err := outlines.NewSession(grammar.CFG(`root ::= "(" root ")" | "x"`), vocab, nil)
	require.NoError(t, err)

	require.NoError(t, s.Advance(vocab.Encode("(")))
	require.NoError(t, s.Advance(vocab.Encode("x")))
	require.NoError(t, s.Advance(vocab.Encode(")")))
	require.Contains(t, s.Mask(), vocab.EOS[0])
}

func TestNewSessionSharesCachedIndex(t *testing.T) {
	c, err := cache.New()
	require.NoError(t, err)

	vocab := testVocab("a")
	_, err = outlines.NewSession(grammar.Regex(`a+`), vocab, c)
	require.NoError(t, err)
	_, err = outlines.NewSession(grammar.Regex(`a+`), vocab, c)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
}

func TestNewSessionCompileError(t *testing.T) {
	vocab := testVocab("a")
	_, err := outlines.NewSession(grammar.Regex(`a(`), vocab, nil)
	require.Error(t, err)

	var ce *grammar.CompileError
	require.ErrorAs(t, err, &ce)
}

func TestNewSampler(t *testing.T) {
	vocab := testVocab("a", "b")
	sampler, session, err := outlines.NewSampler(grammar.Regex(`a+`), vocab, nil, 0, 0, 0, 0, -1)
	require.NoError(t, err)

	logits := make([]float32, len(vocab.Values))
	logits[vocab.Encode("b")] = 5

	id, err := sampler.Sample(logits)
	require.NoError(t, err)
	require.Equal(t, vocab.Encode("a"), id)
	require.Equal(t, []int32{id}, session.Emitted())
}
