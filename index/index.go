// Package index precomputes, for every state of a compiled automaton,
// the set of vocabulary tokens that keep an accepting path reachable.
// The build is the dominant cost of constraint compilation, which is
// why indices are cached and optionally persisted.
package index

import (
	"errors"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/cpfiffer/outlines/envconfig"
	"github.com/cpfiffer/outlines/grammar"
	"github.com/cpfiffer/outlines/model"
)

// ErrEmptyVocabulary reports a vocabulary with no tokens.
var ErrEmptyVocabulary = errors.New("index: empty vocabulary")

// Index maps automaton states to the token ids safe to emit from
// them. No entry ever leads into a state from which acceptance is
// unreachable. Immutable once built; safe to share across any number
// of concurrent sessions.
type Index struct {
	start StateID

	// entries[s] holds the allowed token ids in ascending order;
	// nexts[s] the resulting state for each, index-aligned.
	entries [][]int32
	nexts   [][]StateID

	// eos[s] reports whether s is accepting, where end-of-sequence
	// is additionally permitted.
	eos []bool
}

type StateID = grammar.StateID

// Build simulates every vocabulary token from every reachable state of
// a and records the ones whose consumption stays on a live path.
// End-of-sequence is permitted exactly at accepting states. Per-state
// work is independent and runs in parallel.
func Build(a *grammar.Automaton, vocab *model.Vocabulary) (*Index, error) {
	if len(vocab.Values) == 0 {
		return nil, ErrEmptyVocabulary
	}

	n := a.NumStates()
	idx := &Index{
		start:   a.Start,
		entries: make([][]int32, n),
		nexts:   make([][]StateID, n),
		eos:     make([]bool, n),
	}

	workers := int(envconfig.Workers())
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for s := 0; s < n; s++ {
		s := s
		g.Go(func() error {
			st := StateID(s)
			idx.eos[s] = a.Accepting(st)
			if !a.Live(st) {
				return nil
			}

			var toks []int32
			var tos []StateID
			for id, text := range vocab.Values {
				id := int32(id)
				if text == "" || vocab.IsControl(id) ||
					vocab.Is(id, model.SpecialBOS) || vocab.Is(id, model.SpecialEOS) {
					continue
				}
				cur := st
				for _, r := range text {
					if cur = a.Step(cur, r); cur == grammar.NoState {
						break
					}
				}
				if cur != grammar.NoState && a.Live(cur) {
					toks = append(toks, id)
					tos = append(tos, cur)
				}
			}
			idx.entries[s] = toks
			idx.nexts[s] = tos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Start returns the automaton's start state.
func (x *Index) Start() StateID { return x.start }

func (x *Index) NumStates() int { return len(x.entries) }

// Allowed returns the token ids safe to emit from s, ascending. The
// returned slice is shared and must not be mutated.
func (x *Index) Allowed(s StateID) []int32 { return x.entries[s] }

// Next returns the state reached from s by emitting token, and
// whether token is allowed there at all.
func (x *Index) Next(s StateID, token int32) (StateID, bool) {
	i, ok := slices.BinarySearch(x.entries[s], token)
	if !ok {
		return grammar.NoState, false
	}
	return x.nexts[s][i], true
}

// EOSAllowed reports whether end-of-sequence may be emitted at s.
func (x *Index) EOSAllowed(s StateID) bool { return x.eos[s] }
