package index

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/cpfiffer/outlines/grammar"
)

// ErrStale reports a persisted record whose content hashes do not
// match the requested grammar and vocabulary.
var ErrStale = errors.New("index: persisted record does not match")

const recordVersion = 1

// record is the persisted index format: the automaton (states,
// transitions, accepting set) plus the per-state token lists, keyed by
// content hashes of the originating grammar and vocabulary.
type record struct {
	Version     int
	GrammarHash uint64
	VocabHash   uint64

	States      int
	Start       grammar.StateID
	Accepting   []grammar.StateID
	Transitions []grammar.Transition

	Entries [][]int32
	Nexts   [][]grammar.StateID
	EOS     []bool
}

// Save writes the automaton and its index to path atomically.
func Save(path string, grammarHash, vocabHash uint64, a *grammar.Automaton, x *Index) error {
	rec := record{
		Version:     recordVersion,
		GrammarHash: grammarHash,
		VocabHash:   vocabHash,
		States:      a.NumStates(),
		Start:       a.Start,
		Accepting:   a.AcceptingStates(),
		Transitions: a.Transitions(),
		Entries:     x.entries,
		Nexts:       x.nexts,
		EOS:         x.eos,
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a persisted record, verifying the content hashes before
// trusting it. A matching record skips recompilation entirely.
func Load(path string, grammarHash, vocabHash uint64) (*grammar.Automaton, *Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, nil, err
	}
	if rec.Version != recordVersion {
		return nil, nil, fmt.Errorf("index: unsupported record version %d", rec.Version)
	}
	if rec.GrammarHash != grammarHash || rec.VocabHash != vocabHash {
		return nil, nil, ErrStale
	}
	if rec.States != len(rec.Entries) || rec.States != len(rec.Nexts) || rec.States != len(rec.EOS) {
		return nil, nil, fmt.Errorf("index: corrupt record: state count mismatch")
	}

	a := grammar.NewAutomaton(rec.States, rec.Start, rec.Accepting, rec.Transitions)
	x := &Index{
		start:   rec.Start,
		entries: rec.Entries,
		nexts:   rec.Nexts,
		eos:     rec.EOS,
	}
	return a, x, nil
}
