package sample

import (
	"math"
	"slices"
)

// TokenProb describes one candidate token at a generation step, with
// the model's raw weight next to the weight after masking.
type TokenProb struct {
	Token      string
	ID         int32
	RawProb    float32
	MaskedProb float32
	RawLogit   float32
	Chosen     bool
}

// Tracker records, per generation step, the raw logits the model
// produced and the logits after the constraint mask was applied. It
// is a debugging aid for inspecting how much a constraint bends the
// model's distribution.
type Tracker struct {
	session *Session
	raw     [][]float32
	masked  [][]float32
	chosen  []int32
}

// NewTracker wraps a session so that every step's distributions are
// retained. The tracker does not change what the session permits.
func NewTracker(session *Session) *Tracker {
	return &Tracker{session: session}
}

// Process records the raw logits, applies the session's mask in
// place, and records the masked result. Call once per step, before
// sampling.
func (t *Tracker) Process(logits []float32) {
	t.raw = append(t.raw, slices.Clone(logits))
	t.session.Apply(logits)
	t.masked = append(t.masked, slices.Clone(logits))
}

// Observe records the token the caller sampled for the most recent
// processed step.
func (t *Tracker) Observe(id int32) {
	t.chosen = append(t.chosen, id)
}

// Steps returns how many positions have been processed.
func (t *Tracker) Steps() int { return len(t.raw) }

// Raw returns the unmasked logits recorded at pos.
func (t *Tracker) Raw(pos int) []float32 { return t.raw[pos] }

// Masked returns the post-mask logits recorded at pos.
func (t *Tracker) Masked(pos int) []float32 { return t.masked[pos] }

// Chosen returns the sampled token ids observed so far.
func (t *Tracker) Chosen() []int32 { return slices.Clone(t.chosen) }

// Sequence decodes the chosen tokens up to but excluding pos. Pass
// Steps() for the full text.
func (t *Tracker) Sequence(pos int) string {
	if pos > len(t.chosen) {
		pos = len(t.chosen)
	}
	var out []byte
	for _, id := range t.chosen[:pos] {
		out = append(out, t.session.vocab.Decode(id)...)
	}
	return string(out)
}

// TopTokens returns the k tokens with the highest probability at pos,
// ranked by the larger of the raw and masked probabilities so that
// tokens the mask removed still show up for comparison.
func (t *Tracker) TopTokens(pos, k int) []TokenProb {
	if pos < 0 || pos >= len(t.raw) {
		return nil
	}

	rawProbs := probs(t.raw[pos])
	maskedProbs := probs(t.masked[pos])

	ids := make([]int32, len(rawProbs))
	for i := range ids {
		ids[i] = int32(i)
	}
	slices.SortFunc(ids, func(a, b int32) int {
		pa := max(rawProbs[a], maskedProbs[a])
		pb := max(rawProbs[b], maskedProbs[b])
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		default:
			return int(a - b)
		}
	})
	if k < len(ids) {
		ids = ids[:k]
	}

	var chosen int32 = -1
	if pos < len(t.chosen) {
		chosen = t.chosen[pos]
	}

	out := make([]TokenProb, len(ids))
	for i, id := range ids {
		out[i] = TokenProb{
			Token:      t.session.vocab.Decode(id),
			ID:         id,
			RawProb:    rawProbs[id],
			MaskedProb: maskedProbs[id],
			RawLogit:   t.raw[pos][id],
			Chosen:     id == chosen,
		}
	}
	return out
}

// Clear drops all recorded steps but keeps the session attached.
func (t *Tracker) Clear() {
	t.raw = nil
	t.masked = nil
	t.chosen = nil
}

func probs(logits []float32) []float32 {
	maxLogit := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		out[i] = float32(math.Exp(float64(v - maxLogit)))
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
