package sample

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func toTokens(logits []float32) []token {
	ts := make([]token, len(logits))
	for i, v := range logits {
		ts[i] = token{id: int32(i), value: v}
	}
	return ts
}

func values(ts []token) []float32 {
	out := make([]float32, len(ts))
	for i, t := range ts {
		out[i] = t.value
	}
	return out
}

func TestTemperature(t *testing.T) {
	ts := toTokens([]float32{2, -1, 4, -3, 1, -2, 0})
	temperature(ts, 0.5)
	want := []float32{-4, -10, 0, -14, -6, -12, -8}
	if diff := cmp.Diff(want, values(ts)); diff != "" {
		t.Errorf("temperature mismatch (-want +got):\n%s", diff)
	}
}

func TestSoftmax(t *testing.T) {
	ts := toTokens([]float32{1, 2, 3})
	softmax(ts)

	var sum float32
	for _, tok := range ts {
		sum += tok.value
	}
	if math.Abs(float64(sum-1)) > 1e-6 {
		t.Errorf("probabilities sum to %f, want 1", sum)
	}
	if !(ts[2].value > ts[1].value && ts[1].value > ts[0].value) {
		t.Errorf("softmax should preserve ordering: %v", values(ts))
	}
}

func TestTopK(t *testing.T) {
	ts := toTokens([]float32{0.026, 0.103, 0.105, 0.588, 0.030, 0.093, 0.004, 0.051})
	ts = topK(ts, 3)
	if len(ts) != 3 {
		t.Fatalf("topK kept %d tokens, want 3", len(ts))
	}
	want := []float32{0.588, 0.105, 0.103}
	if diff := cmp.Diff(want, values(ts)); diff != "" {
		t.Errorf("topK mismatch (-want +got):\n%s", diff)
	}

	// k >= len is a no-op apart from ordering.
	ts = toTokens([]float32{1, 3, 2})
	ts = topK(ts, 10)
	if diff := cmp.Diff([]float32{3, 2, 1}, values(ts)); diff != "" {
		t.Errorf("topK full sort mismatch (-want +got):\n%s", diff)
	}
}

func TestTopP(t *testing.T) {
	ts := toTokens([]float32{-3, -2, -1, 0, 1, 2, 4})
	ts = topK(ts, len(ts)) // sort descending
	softmax(ts)

	ts = topP(ts, 0.9)
	if len(ts) == 0 || len(ts) == 7 {
		t.Fatalf("topP kept %d tokens", len(ts))
	}
	var sum float32
	for _, tok := range ts {
		sum += tok.value
	}
	if sum <= 0.9 {
		t.Errorf("kept mass %f should exceed the threshold", sum)
	}
}

func TestMinP(t *testing.T) {
	ts := toTokens([]float32{-3, -2, -1, 0, 1, 2, 4, 3})
	ts = topK(ts, len(ts))
	softmax(ts)

	ts = minP(ts, 0.2)
	for _, tok := range ts {
		if tok.value < ts[0].value*0.2 {
			t.Errorf("token %d below the min-p threshold survived", tok.id)
		}
	}
	if len(ts) >= 8 {
		t.Errorf("minP filtered nothing")
	}
}

func TestSortStability(t *testing.T) {
	for trial := 0; trial < 10; trial++ {
		logits := make([]float32, 100)
		for i := range logits {
			logits[i] = rand.Float32()
		}
		ts := topK(toTokens(logits), 20)
		for i := 1; i < len(ts); i++ {
			if ts[i].value > ts[i-1].value {
				t.Fatalf("topK output not descending at %d: %f > %f", i, ts[i].value, ts[i-1].value)
			}
		}
	}
}
