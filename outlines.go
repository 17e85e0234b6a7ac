// Package outlines turns a structural constraint, a regular
// expression, a JSON Schema, or a context-free grammar, into a
// per-step token mask for language model decoding. A constraint is
// compiled once into an automaton over the tokenizer's vocabulary;
// each generation step then reads off the set of tokens that keep the
// output on an accepting path, so the finished text is guaranteed to
// match the constraint.
package outlines

import (
	"fmt"

	"github.com/cpfiffer/outlines/cache"
	"github.com/cpfiffer/outlines/grammar"
	"github.com/cpfiffer/outlines/index"
	"github.com/cpfiffer/outlines/model"
	"github.com/cpfiffer/outlines/sample"
)

// NewSession compiles spec against vocab and opens a generation
// session. Finite constraints are served from a precomputed token
// index, fetched through c when one is supplied; recursive grammars
// compute masks per step instead, since their configuration space is
// unbounded.
func NewSession(spec grammar.Spec, vocab *model.Vocabulary, c *cache.Cache) (*sample.Session, error) {
	m, err := grammar.Compile(spec)
	if err != nil {
		return nil, err
	}

	switch m := m.(type) {
	case *grammar.Automaton:
		x, err := buildIndex(spec, m, vocab, c)
		if err != nil {
			return nil, err
		}
		return sample.NewSession(x, vocab), nil
	case *grammar.Pushdown:
		return sample.NewPushdownSession(m, vocab), nil
	default:
		return nil, fmt.Errorf("outlines: unknown machine type %T", m)
	}
}

func buildIndex(spec grammar.Spec, a *grammar.Automaton, vocab *model.Vocabulary, c *cache.Cache) (*index.Index, error) {
	if c == nil {
		return index.Build(a, vocab)
	}

	key := cache.Key{Grammar: spec.Hash(), Vocabulary: vocab.Fingerprint()}
	return c.GetOrCompile(key, func() (*grammar.Automaton, *index.Index, error) {
		x, err := index.Build(a, vocab)
		if err != nil {
			return nil, nil, err
		}
		return a, x, nil
	})
}

// NewSampler compiles spec and wires the resulting session into a
// token sampler, the common case for a decoding loop.
func NewSampler(spec grammar.Spec, vocab *model.Vocabulary, c *cache.Cache, temperature float32, topK int, topP, minP float32, seed int) (sample.Sampler, *sample.Session, error) {
	s, err := NewSession(spec, vocab, c)
	if err != nil {
		return sample.Sampler{}, nil, err
	}
	return sample.NewSampler(temperature, topK, topP, minP, seed, s), s, nil
}
