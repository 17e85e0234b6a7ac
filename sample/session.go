// Package sample restricts a model's sampling distribution so that
// every emitted token keeps the output on a path accepted by a
// compiled constraint.
package sample

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/cpfiffer/outlines/grammar"
	"github.com/cpfiffer/outlines/index"
	"github.com/cpfiffer/outlines/model"
)

// Status is a session's lifecycle state.
type Status int

const (
	// Active sessions accept further tokens.
	Active Status = iota
	// Accepted sessions saw end-of-sequence at an accepting state.
	Accepted
	// Stuck sessions reached a state with no valid continuation,
	// which signals an index defect, not a grammar failure.
	Stuck
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Accepted:
		return "accepted"
	case Stuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// StuckError reports a token outside the session's current mask. The
// caller violated the mask; the session is left untouched.
type StuckError struct {
	Token int32
	State grammar.StateID
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("sample: token %d is not permitted in state %d", e.Token, e.State)
}

// ErrDeadEnd reports an internal index defect: a live state whose mask
// is empty. It must be surfaced, never worked around.
var ErrDeadEnd = errors.New("sample: no valid continuation from live state")

// masker tracks position within a compiled machine.
type masker interface {
	allowed() []int32
	accepting() bool
	advance(id int32) bool // false leaves the masker unchanged
	cur() grammar.StateID
}

// Session tracks one in-flight generation against a shared read-only
// constraint. It is owned by a single decoding loop; concurrent
// generations each get their own session over the same index.
type Session struct {
	id      string
	vocab   *model.Vocabulary
	m       masker
	emitted []int32
	status  Status
}

// NewSession opens a generation session over a precomputed index.
func NewSession(idx *index.Index, vocab *model.Vocabulary) *Session {
	return &Session{
		id:    uuid.NewString(),
		vocab: vocab,
		m:     &dfaMasker{idx: idx, state: idx.Start()},
	}
}

// NewPushdownSession opens a session over a pushdown machine. Masks
// are computed per configuration (state plus stack) and memoized,
// since recursion makes the configuration space unbounded.
func NewPushdownSession(p *grammar.Pushdown, vocab *model.Vocabulary) *Session {
	return &Session{
		id:    uuid.NewString(),
		vocab: vocab,
		m:     newPushdownMasker(p, vocab),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Status() Status { return s.status }

// Emitted returns the tokens accepted so far.
func (s *Session) Emitted() []int32 { return slices.Clone(s.emitted) }

// Text decodes the emitted tokens, excluding end-of-sequence.
func (s *Session) Text() string {
	var out []byte
	for _, id := range s.emitted {
		if s.vocab.Is(id, model.SpecialEOS) {
			continue
		}
		out = append(out, s.vocab.Decode(id)...)
	}
	return string(out)
}

// Mask returns the token ids allowed at the current step, including
// end-of-sequence when the constraint is already satisfied here.
func (s *Session) Mask() []int32 {
	if s.status != Active {
		return nil
	}
	ids := slices.Clone(s.m.allowed())
	if s.m.accepting() {
		ids = append(ids, s.vocab.EOS...)
	}
	return ids
}

// Apply masks logits in place, setting disallowed entries to -Inf.
// The caller renormalizes and samples as usual afterwards.
func (s *Session) Apply(logits []float32) {
	keep := make([]bool, len(logits))
	for _, id := range s.m.allowed() {
		if int(id) < len(keep) {
			keep[id] = true
		}
	}
	if s.m.accepting() {
		for _, id := range s.vocab.EOS {
			if int(id) < len(keep) {
				keep[id] = true
			}
		}
	}

	neg := float32(math.Inf(-1))
	for i := range logits {
		if !keep[i] {
			logits[i] = neg
		}
	}
}

// Advance consumes the token the caller sampled. A token outside the
// current mask is a caller bug: the session returns StuckError with
// its state unchanged, never silently corrected.
func (s *Session) Advance(id int32) error {
	if s.status != Active {
		return fmt.Errorf("sample: session %s is %s, not active", s.id, s.status)
	}

	if s.m.accepting() && s.vocab.Is(id, model.SpecialEOS) {
		s.emitted = append(s.emitted, id)
		s.status = Accepted
		return nil
	}

	if !s.m.advance(id) {
		return &StuckError{Token: id, State: s.m.cur()}
	}
	s.emitted = append(s.emitted, id)

	if len(s.m.allowed()) == 0 && !s.m.accepting() {
		s.status = Stuck
		slog.Error("generation stuck in live state", "session", s.id, "state", s.m.cur())
		return fmt.Errorf("sample: session %s: %w", s.id, ErrDeadEnd)
	}
	return nil
}

// dfaMasker walks a precomputed index: mask lookup is O(1) per step.
type dfaMasker struct {
	idx   *index.Index
	state grammar.StateID
}

func (m *dfaMasker) allowed() []int32 { return m.idx.Allowed(m.state) }

func (m *dfaMasker) accepting() bool { return m.idx.EOSAllowed(m.state) }

func (m *dfaMasker) advance(id int32) bool {
	to, ok := m.idx.Next(m.state, id)
	if ok {
		m.state = to
	}
	return ok
}

func (m *dfaMasker) cur() grammar.StateID { return m.state }

// pushdownMasker simulates candidate tokens from the current pushdown
// configuration. Masks are memoized per configuration key, so loops in
// the generated structure pay for simulation once.
type pushdownMasker struct {
	vocab *model.Vocabulary
	run   *grammar.Runner
	memo  map[string][]int32
}

func newPushdownMasker(p *grammar.Pushdown, vocab *model.Vocabulary) *pushdownMasker {
	return &pushdownMasker{
		vocab: vocab,
		run:   p.NewRunner(),
		memo:  make(map[string][]int32),
	}
}

func (m *pushdownMasker) allowed() []int32 {
	key := m.run.Key()
	if ids, ok := m.memo[key]; ok {
		return ids
	}

	ids := []int32{}
	for id, text := range m.vocab.Values {
		id := int32(id)
		if text == "" || m.vocab.IsControl(id) ||
			m.vocab.Is(id, model.SpecialBOS) || m.vocab.Is(id, model.SpecialEOS) {
			continue
		}
		if m.run.Clone().ConsumeString(text) {
			ids = append(ids, id)
		}
	}
	m.memo[key] = ids
	return ids
}

func (m *pushdownMasker) accepting() bool { return m.run.Accepting() }

func (m *pushdownMasker) advance(id int32) bool {
	if id < 0 || int(id) >= len(m.vocab.Values) {
		return false
	}
	text := m.vocab.Decode(id)
	if text == "" || m.vocab.IsControl(id) {
		return false
	}
	c := m.run.Clone()
	if !c.ConsumeString(text) {
		return false
	}
	m.run = c
	return true
}

func (m *pushdownMasker) cur() grammar.StateID { return m.run.State() }
