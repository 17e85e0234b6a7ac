package grammar

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// StateID indexes a state in a machine's flat state arena.
type StateID int32

// NoState marks the absence of a transition.
const NoState StateID = -1

// edge is an inclusive rune range [Lo, Hi] leading to To. A state's
// edges are sorted by Lo and pairwise disjoint once determinized.
type edge struct {
	Lo, Hi rune
	To     StateID
}

// Transition is an exported rune-range edge, used by the persisted
// index format to round-trip an automaton.
type Transition struct {
	From   StateID
	Lo, Hi rune
	To     StateID
}

// Automaton is a deterministic finite automaton over runes. It accepts
// exactly the language of the specification it was compiled from. It
// is immutable after construction and safe for concurrent readers.
type Automaton struct {
	Start     StateID
	accepting []bool
	edges     [][]edge
	live      []bool
}

func (a *Automaton) StartState() StateID { return a.Start }

func (a *Automaton) NumStates() int { return len(a.edges) }

// Step returns the state reached from s on r, or NoState.
func (a *Automaton) Step(s StateID, r rune) StateID {
	i, ok := slices.BinarySearchFunc(a.edges[s], r, func(e edge, r rune) int {
		switch {
		case e.Hi < r:
			return -1
		case e.Lo > r:
			return 1
		}
		return 0
	})
	if !ok {
		return NoState
	}
	return a.edges[s][i].To
}

// Accepting reports whether s is an accepting state.
func (a *Automaton) Accepting(s StateID) bool { return a.accepting[s] }

// Live reports whether an accepting state is still reachable from s.
func (a *Automaton) Live(s StateID) bool { return a.live[s] }

// Match reports whether the automaton accepts text in its entirety.
func (a *Automaton) Match(text string) bool {
	s := a.Start
	for _, r := range text {
		if s = a.Step(s, r); s == NoState {
			return false
		}
	}
	return a.accepting[s]
}

// AcceptingStates returns the sorted set of accepting states.
func (a *Automaton) AcceptingStates() []StateID {
	var out []StateID
	for s, ok := range a.accepting {
		if ok {
			out = append(out, StateID(s))
		}
	}
	return out
}

// Transitions returns every edge in the automaton, ordered by source
// state then by range start.
func (a *Automaton) Transitions() []Transition {
	var out []Transition
	for s, es := range a.edges {
		for _, e := range es {
			out = append(out, Transition{StateID(s), e.Lo, e.Hi, e.To})
		}
	}
	return out
}

// NewAutomaton rebuilds an automaton from its persisted parts. Live
// states are recomputed rather than trusted from the record.
func NewAutomaton(states int, start StateID, accepting []StateID, transitions []Transition) *Automaton {
	a := &Automaton{
		Start:     start,
		accepting: make([]bool, states),
		edges:     make([][]edge, states),
	}
	for _, s := range accepting {
		a.accepting[s] = true
	}
	for _, t := range transitions {
		a.edges[t.From] = append(a.edges[t.From], edge{t.Lo, t.Hi, t.To})
	}
	for s := range a.edges {
		slices.SortFunc(a.edges[s], func(x, y edge) int { return cmp.Compare(x.Lo, y.Lo) })
	}
	a.computeLive()
	return a
}

// computeLive marks every state from which an accepting state remains
// reachable, as a fixed point over reversed edges.
func (a *Automaton) computeLive() {
	rev := make([][]StateID, len(a.edges))
	for s, es := range a.edges {
		for _, e := range es {
			rev[e.To] = append(rev[e.To], StateID(s))
		}
	}

	a.live = make([]bool, len(a.edges))
	var stack []StateID
	for s, ok := range a.accepting {
		if ok {
			a.live[s] = true
			stack = append(stack, StateID(s))
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range rev[s] {
			if !a.live[p] {
				a.live[p] = true
				stack = append(stack, p)
			}
		}
	}
}

// nfa is a nondeterministic automaton under construction. Compiler
// fragments share a single arena of states.
type nfa struct {
	eps   [][]StateID
	edges [][]edge
}

// frag is a Thompson fragment with a single entry and a single exit.
type frag struct {
	start, end StateID
}

func (n *nfa) state() StateID {
	n.eps = append(n.eps, nil)
	n.edges = append(n.edges, nil)
	return StateID(len(n.edges) - 1)
}

func (n *nfa) edge(from StateID, lo, hi rune, to StateID) {
	n.edges[from] = append(n.edges[from], edge{lo, hi, to})
}

func (n *nfa) epsilon(from, to StateID) {
	n.eps[from] = append(n.eps[from], to)
}

// closure expands set with every state reachable through epsilon
// transitions and returns the result sorted.
func (n *nfa) closure(set []StateID) []StateID {
	seen := make(map[StateID]bool, len(set))
	stack := slices.Clone(set)
	for _, s := range set {
		seen[s] = true
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range n.eps[s] {
			if !seen[t] {
				seen[t] = true
				stack = append(stack, t)
			}
		}
	}

	out := make([]StateID, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// determinize runs subset construction from start and returns a DFA
// accepting the same language. Only reachable subsets materialize, so
// every DFA state is reachable from its start.
func (n *nfa) determinize(start, accept StateID) *Automaton {
	type pending struct {
		id  StateID
		set []StateID
	}

	key := func(set []StateID) string {
		var b strings.Builder
		for _, s := range set {
			b.WriteString(strconv.Itoa(int(s)))
			b.WriteByte(',')
		}
		return b.String()
	}

	a := &Automaton{Start: 0}
	ids := make(map[string]StateID)
	var work []pending

	add := func(set []StateID) StateID {
		k := key(set)
		if id, ok := ids[k]; ok {
			return id
		}
		id := StateID(len(a.edges))
		ids[k] = id
		a.edges = append(a.edges, nil)
		a.accepting = append(a.accepting, slices.Contains(set, accept))
		work = append(work, pending{id, set})
		return id
	}
	add(n.closure([]StateID{start}))

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		var es []edge
		for _, s := range cur.set {
			es = append(es, n.edges[s]...)
		}
		if len(es) == 0 {
			continue
		}

		// Split the candidate edges into disjoint intervals at every
		// range boundary. An edge either covers a whole interval or
		// none of it.
		points := make([]rune, 0, 2*len(es))
		for _, e := range es {
			points = append(points, e.Lo, e.Hi+1)
		}
		slices.Sort(points)
		points = slices.Compact(points)

		for i := 0; i+1 < len(points); i++ {
			lo, hi := points[i], points[i+1]-1
			var targets []StateID
			for _, e := range es {
				if e.Lo <= lo && hi <= e.Hi {
					targets = append(targets, e.To)
				}
			}
			if len(targets) == 0 {
				continue
			}
			slices.Sort(targets)
			to := add(n.closure(slices.Compact(targets)))
			a.edges[cur.id] = append(a.edges[cur.id], edge{lo, hi, to})
		}
		a.edges[cur.id] = mergeEdges(a.edges[cur.id])
	}

	a.computeLive()
	return a
}

// mergeEdges coalesces adjacent ranges with the same target. Edges must
// already be sorted and disjoint.
func mergeEdges(es []edge) []edge {
	if len(es) < 2 {
		return es
	}
	out := es[:1]
	for _, e := range es[1:] {
		last := &out[len(out)-1]
		if e.To == last.To && e.Lo == last.Hi+1 {
			last.Hi = e.Hi
			continue
		}
		out = append(out, e)
	}
	return out
}

// stepEdges is Step over a raw edge slice, used by the pushdown runner.
func stepEdges(es []edge, r rune) StateID {
	i, ok := slices.BinarySearchFunc(es, r, func(e edge, r rune) int {
		switch {
		case e.Hi < r:
			return -1
		case e.Lo > r:
			return 1
		}
		return 0
	})
	if !ok {
		return NoState
	}
	return es[i].To
}
