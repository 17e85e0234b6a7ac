package grammar

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/emirpasic/gods/stacks/arraystack"
)

// callBase is the first pseudo-rune encoding a rule reference inside a
// per-rule fragment. The gap above utf8.MaxRune keeps pseudo-runes
// from coalescing with real character ranges.
const callBase rune = utf8.MaxRune + 2

// call is a pushdown transition: enter rule, resume at ret on return.
type call struct {
	rule int32
	ret  StateID
}

// Pushdown is a deterministic pushdown automaton for a recursive
// grammar. Each rule's body is a DFA fragment in a shared flat state
// arena; a reference to another rule is a call edge, and recursion
// depth lives in an explicit stack of return StateIDs rather than in
// any recursive data structure, so grammar recursion depth is bounded
// only by memory. Immutable after construction.
type Pushdown struct {
	start StateID
	edges [][]edge
	calls [][]call

	final    []bool // rule-final states
	finalEps []bool // can reach a rule-final state consuming no input

	stateRule []int32
	ruleStart []StateID
	names     []string

	first      []runeSet // per rule
	nullable   []bool    // per rule
	stateFirst []runeSet // per state, runes consumable without returning
}

func (p *Pushdown) StartState() StateID { return p.start }

func (p *Pushdown) NumStates() int { return len(p.edges) }

// newPushdown compiles each rule body to a DFA fragment (references
// encoded as pseudo-runes), glues the fragments with call edges, and
// verifies the grammar is deterministically convertible: productive,
// not left-recursive, and free of FIRST/FIRST and FIRST/FOLLOW
// conflicts. Anything else is a CompileError.
func newPushdown(prods []production, rules map[string]cfgExpr) (*Pushdown, error) {
	names := make([]string, len(prods))
	ruleIdx := make(map[string]int32, len(prods))
	for i, prod := range prods {
		names[i] = prod.name
		ruleIdx[prod.name] = int32(i)
	}

	p := &Pushdown{names: names}
	rootIdx := ruleIdx["root"]

	for i, prod := range prods {
		n := &nfa{}
		f, err := n.cfgFrag(prod.expr, rules, func(name string) rune {
			return callBase + rune(ruleIdx[name])
		})
		if err != nil {
			return nil, err
		}
		a := n.determinize(f.start, f.end)

		offset := StateID(len(p.edges))
		p.ruleStart = append(p.ruleStart, offset+a.Start)
		for s := range a.edges {
			var es []edge
			var cs []call
			for _, e := range a.edges[s] {
				if e.Lo >= callBase {
					for r := e.Lo; r <= e.Hi; r++ {
						cs = append(cs, call{rule: int32(r - callBase), ret: offset + e.To})
					}
					continue
				}
				es = append(es, edge{e.Lo, e.Hi, offset + e.To})
			}
			p.edges = append(p.edges, es)
			p.calls = append(p.calls, cs)
			p.final = append(p.final, a.accepting[s])
			p.stateRule = append(p.stateRule, int32(i))
		}
	}
	p.start = p.ruleStart[rootIdx]

	p.computeFirst()

	if err := p.checkLeftRecursion(); err != nil {
		return nil, err
	}
	if err := p.checkProductive(rootIdx); err != nil {
		return nil, err
	}
	if err := p.checkConflicts(); err != nil {
		return nil, err
	}
	return p, nil
}

// computeFirst runs a fixed point for per-rule FIRST sets and
// nullability, and per-state lookahead sets and epsilon-to-final
// reachability.
func (p *Pushdown) computeFirst() {
	n := len(p.edges)
	nr := len(p.ruleStart)

	fs := make([]runeSet, n) // runes consumable from a state without returning
	p.finalEps = make([]bool, n)
	copy(p.finalEps, p.final)
	p.first = make([]runeSet, nr)
	p.nullable = make([]bool, nr)

	for changed := true; changed; {
		changed = false
		for s := 0; s < n; s++ {
			ns := fs[s]
			for _, e := range p.edges[s] {
				ns = ns.union(runeSet{{e.Lo, e.Hi}})
			}
			for _, c := range p.calls[s] {
				ns = ns.union(p.first[c.rule])
				if p.nullable[c.rule] {
					ns = ns.union(fs[c.ret])
					if p.finalEps[c.ret] && !p.finalEps[s] {
						p.finalEps[s] = true
						changed = true
					}
				}
			}
			if !ns.equal(fs[s]) {
				fs[s] = ns
				changed = true
			}
		}
		for i := 0; i < nr; i++ {
			start := p.ruleStart[i]
			if !fs[start].equal(p.first[i]) {
				p.first[i] = fs[start]
				changed = true
			}
			if p.finalEps[start] && !p.nullable[i] {
				p.nullable[i] = true
				changed = true
			}
		}
	}

	p.stateFirst = fs
}

// checkLeftRecursion rejects rules that can call themselves before
// consuming any input, directly or through nullable prefixes.
func (p *Pushdown) checkLeftRecursion() error {
	nr := len(p.ruleStart)

	// headCalls[i] lists the rules callable from rule i's start
	// without consuming input.
	headCalls := make([][]int32, nr)
	for i := 0; i < nr; i++ {
		seen := map[StateID]bool{}
		stack := []StateID{p.ruleStart[i]}
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[s] {
				continue
			}
			seen[s] = true
			for _, c := range p.calls[s] {
				headCalls[i] = append(headCalls[i], c.rule)
				if p.nullable[c.rule] {
					stack = append(stack, c.ret)
				}
			}
		}
	}

	const (
		white = iota
		gray
		black
	)
	color := make([]int, nr)
	var visit func(i int32) error
	visit = func(i int32) error {
		color[i] = gray
		for _, j := range headCalls[i] {
			switch color[j] {
			case gray:
				return &CompileError{Err: fmt.Errorf("cfg: rule %q is left-recursive", p.names[j])}
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		color[i] = black
		return nil
	}
	for i := int32(0); i < int32(nr); i++ {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkProductive rejects reachable rules that derive no terminal
// string; allowing one would let the index offer tokens with no
// accepting continuation.
func (p *Pushdown) checkProductive(root int32) error {
	nr := len(p.ruleStart)
	prod := make([]bool, nr)

	for changed := true; changed; {
		changed = false
		for i := 0; i < nr; i++ {
			if prod[i] {
				continue
			}
			seen := map[StateID]bool{}
			stack := []StateID{p.ruleStart[i]}
			for len(stack) > 0 {
				s := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if seen[s] {
					continue
				}
				seen[s] = true
				if p.final[s] {
					prod[i] = true
					changed = true
					break
				}
				for _, e := range p.edges[s] {
					stack = append(stack, e.To)
				}
				for _, c := range p.calls[s] {
					if prod[c.rule] {
						stack = append(stack, c.ret)
					}
				}
			}
		}
	}

	seen := map[int32]bool{root: true}
	stack := []int32{root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !prod[i] {
			return &CompileError{Err: fmt.Errorf("cfg: rule %q derives no terminal string", p.names[i])}
		}
		for _, cs := range p.callsOfRule(i) {
			if !seen[cs] {
				seen[cs] = true
				stack = append(stack, cs)
			}
		}
	}
	return nil
}

func (p *Pushdown) callsOfRule(i int32) []int32 {
	var out []int32
	for s := range p.calls {
		if p.stateRule[s] != i {
			continue
		}
		for _, c := range p.calls[s] {
			out = append(out, c.rule)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// checkConflicts enforces that every runtime choice (shift within the
// rule, descend into a call, or return to the caller) is decided by
// the next rune alone.
func (p *Pushdown) checkConflicts() error {
	nr := len(p.ruleStart)

	// FOLLOW per rule: the runes that may legally appear right after
	// the rule returns.
	follow := make([]runeSet, nr)
	for changed := true; changed; {
		changed = false
		for s := range p.calls {
			for _, c := range p.calls[s] {
				ns := follow[c.rule].union(p.stateFirst[c.ret])
				if p.finalEps[c.ret] {
					ns = ns.union(follow[p.stateRule[s]])
				}
				if !ns.equal(follow[c.rule]) {
					follow[c.rule] = ns
					changed = true
				}
			}
		}
	}

	for s := range p.edges {
		var shift runeSet
		for _, e := range p.edges[s] {
			shift = shift.union(runeSet{{e.Lo, e.Hi}})
		}
		for i, c := range p.calls[s] {
			if p.first[c.rule].intersects(shift) {
				return &CompileError{Err: fmt.Errorf("cfg: ambiguous grammar: rule %q conflicts with terminals in rule %q",
					p.names[c.rule], p.names[p.stateRule[s]])}
			}
			for _, d := range p.calls[s][i+1:] {
				if p.first[c.rule].intersects(p.first[d.rule]) {
					return &CompileError{Err: fmt.Errorf("cfg: ambiguous grammar: rules %q and %q share a FIRST set in rule %q",
						p.names[c.rule], p.names[d.rule], p.names[p.stateRule[s]])}
				}
			}
		}
		if p.finalEps[s] && p.stateFirst[s].intersects(follow[p.stateRule[s]]) {
			return &CompileError{Err: fmt.Errorf("cfg: ambiguous grammar: rule %q cannot decide between continuing and returning",
				p.names[p.stateRule[s]])}
		}
	}
	return nil
}

// callOn returns the call edge from s whose rule can start with c.
func (p *Pushdown) callOn(s StateID, c rune) (StateID, StateID, bool) {
	for _, ce := range p.calls[s] {
		if p.first[ce.rule].contains(c) {
			return p.ruleStart[ce.rule], ce.ret, true
		}
	}
	return NoState, NoState, false
}

// skipNullable returns the resume state of a nullable call from s
// whose rule cannot start with c, treating the call as deriving the
// empty string.
func (p *Pushdown) skipNullable(s StateID, c rune) (StateID, bool) {
	for _, ce := range p.calls[s] {
		if p.nullable[ce.rule] && !p.first[ce.rule].contains(c) {
			return ce.ret, true
		}
	}
	return NoState, false
}

// Runner simulates a Pushdown one rune at a time. A Runner is owned by
// a single goroutine; the underlying Pushdown may be shared freely.
type Runner struct {
	p     *Pushdown
	state StateID
	stack *arraystack.Stack // of return StateIDs
}

// NewRunner returns a runner positioned at the start configuration.
func (p *Pushdown) NewRunner() *Runner {
	return &Runner{p: p, state: p.start, stack: arraystack.New()}
}

func (r *Runner) State() StateID { return r.state }

func (r *Runner) Depth() int { return r.stack.Size() }

// Clone copies the configuration. The stack values come back in LIFO
// order and are re-pushed bottom-up.
func (r *Runner) Clone() *Runner {
	c := &Runner{p: r.p, state: r.state, stack: arraystack.New()}
	vals := r.stack.Values()
	for i := len(vals) - 1; i >= 0; i-- {
		c.stack.Push(vals[i])
	}
	return c
}

// Key identifies the configuration, for memoizing per-step masks.
func (r *Runner) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(r.state)))
	for _, v := range r.stack.Values() {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(v.(StateID))))
	}
	return b.String()
}

// Step consumes one rune, descending into calls and returning to
// callers as needed. On failure the configuration is left partially
// advanced; callers that must survive a failed step should Clone
// first.
func (r *Runner) Step(c rune) bool {
	type visit struct {
		s     StateID
		depth int
	}
	seen := map[visit]bool{}

	s := r.state
	for {
		if t := stepEdges(r.p.edges[s], c); t != NoState {
			r.state = t
			return true
		}
		v := visit{s, r.stack.Size()}
		if seen[v] {
			return false
		}
		seen[v] = true

		if start, ret, ok := r.p.callOn(s, c); ok {
			r.stack.Push(ret)
			s = start
			continue
		}
		if ret, ok := r.p.skipNullable(s, c); ok {
			s = ret
			continue
		}
		if r.p.final[s] {
			if v, ok := r.stack.Pop(); ok {
				s = v.(StateID)
				continue
			}
		}
		return false
	}
}

// ConsumeString steps through every rune of text.
func (r *Runner) ConsumeString(text string) bool {
	for _, c := range text {
		if !r.Step(c) {
			return false
		}
	}
	return true
}

// Accepting reports whether the configuration can finish here: the
// current state and every pending return point reach a rule-final
// state without consuming input.
func (r *Runner) Accepting() bool {
	if !r.p.finalEps[r.state] {
		return false
	}
	for _, v := range r.stack.Values() {
		if !r.p.finalEps[v.(StateID)] {
			return false
		}
	}
	return true
}
