package sample

import "math"

func temperature(ts []token, t float32) {
	if t == 1 {
		return
	}

	temp := max(t, 1e-7)

	// subtracting max logit to avoid under/overflow
	maxLogit := float32(math.Inf(-1))
	for _, t := range ts {
		if t.value > maxLogit {
			maxLogit = t.value
		}
	}

	for i := range ts {
		ts[i].value = (ts[i].value - maxLogit) / temp
	}
}

// softmax normalizes logits into probabilities in place.
func softmax(ts []token) {
	var sum float32
	for i, v := range ts {
		ts[i].value = float32(math.Exp(float64(v.value)))
		sum += ts[i].value
	}

	for i := range ts {
		ts[i].value /= sum
	}
}

// siftDown implements the sift-down operation for a heap
func siftDown(data []token, start, end int, cmp func(a, b token) bool) {
	root := start
	for {
		child := 2*root + 1
		if child >= end {
			break
		}
		if child+1 < end && cmp(data[child], data[child+1]) {
			child++
		}
		if !cmp(data[root], data[child]) {
			break
		}
		data[root], data[child] = data[child], data[root]
		root = child
	}
}

// topK limits the number of tokens considered to the k highest logits.
// It also sorts the surviving tokens in descending order of logits.
func topK(ts []token, k int) []token {
	if k >= len(ts) || k <= 0 {
		k = len(ts)
	}

	// build a min-heap of the first k tokens
	less := func(a, b token) bool { return a.value > b.value }
	for i := k/2 - 1; i >= 0; i-- {
		siftDown(ts, i, k, less)
	}

	// replace the root with any remaining token that beats it
	for i := k; i < len(ts); i++ {
		if ts[i].value > ts[0].value {
			ts[0] = ts[i]
			siftDown(ts, 0, k, less)
		}
	}

	ts = ts[:k]

	// sort the heap in place, descending
	for i := k - 1; i > 0; i-- {
		ts[0], ts[i] = ts[i], ts[0]
		siftDown(ts, 0, i, less)
	}

	return ts
}

// topP limits tokens to the smallest prefix whose cumulative
// probability exceeds p. Requires tokens sorted descending.
func topP(ts []token, p float32) []token {
	if p == 1.0 {
		return ts
	}

	var sum float32
	for i, t := range ts {
		sum += t.value
		if sum > p {
			return ts[:i+1]
		}
	}

	return ts
}

// minP filters out tokens with probability below p times the largest
// probability. Requires tokens sorted descending.
func minP(ts []token, p float32) []token {
	if p == 1.0 || len(ts) == 0 {
		return ts
	}

	threshold := ts[0].value * p
	for i, t := range ts {
		if t.value < threshold {
			return ts[:i]
		}
	}

	return ts
}
