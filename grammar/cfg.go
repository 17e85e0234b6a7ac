package grammar

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The CFG syntax is EBNF-like, one production per "name ::= expr":
//
//	root  ::= "{" pair ("," pair)* "}"
//	pair  ::= key ":" value
//	key   ::= [a-z]+
//
// Terminals are double-quoted strings (escapes: \" \\ \n \r \t) and
// bracketed character classes with ranges and ^ negation. Postfix
// *, +, ? and grouping parentheses follow the usual meaning. Comments
// run from # to end of line. "root" is the entry production.

type cfgExpr interface{ isExpr() }

type cfgLit string

type cfgClass []rune // inclusive lo,hi pairs

type cfgRef string

type cfgSeq []cfgExpr

type cfgAlt []cfgExpr

type cfgRep struct {
	sub      cfgExpr
	min, max int // max -1 for unbounded
}

func (cfgLit) isExpr()   {}
func (cfgClass) isExpr() {}
func (cfgRef) isExpr()   {}
func (cfgSeq) isExpr()   {}
func (cfgAlt) isExpr()   {}
func (cfgRep) isExpr()   {}

type production struct {
	name string
	expr cfgExpr
}

// compileCFG parses src and compiles it. Grammars whose reachable
// rules are non-recursive are inlined and determinized to a finite
// Automaton; recursive grammars become a Pushdown.
func compileCFG(src string) (Machine, error) {
	prods, err := parseCFG(src)
	if err != nil {
		return nil, err
	}

	rules := make(map[string]cfgExpr, len(prods))
	for _, p := range prods {
		rules[p.name] = p.expr
	}
	if _, ok := rules["root"]; !ok {
		return nil, fmt.Errorf(`cfg: missing entry rule "root"`)
	}

	if err := checkRefs(prods, rules); err != nil {
		return nil, err
	}

	if !recursive(prods, rules) {
		n := &nfa{}
		f, err := n.cfgFrag(rules["root"], rules, nil)
		if err != nil {
			return nil, err
		}
		return n.determinize(f.start, f.end), nil
	}
	return newPushdown(prods, rules)
}

func checkRefs(prods []production, rules map[string]cfgExpr) error {
	var walk func(e cfgExpr) error
	walk = func(e cfgExpr) error {
		switch e := e.(type) {
		case cfgRef:
			if _, ok := rules[string(e)]; !ok {
				return fmt.Errorf("cfg: undefined rule %q", string(e))
			}
		case cfgSeq:
			for _, sub := range e {
				if err := walk(sub); err != nil {
					return err
				}
			}
		case cfgAlt:
			for _, sub := range e {
				if err := walk(sub); err != nil {
					return err
				}
			}
		case cfgRep:
			return walk(e.sub)
		}
		return nil
	}
	for _, p := range prods {
		if err := walk(p.expr); err != nil {
			return err
		}
	}
	return nil
}

// recursive reports whether any rule reachable from root can derive
// itself.
func recursive(prods []production, rules map[string]cfgExpr) bool {
	refs := func(e cfgExpr) []string {
		var out []string
		var walk func(e cfgExpr)
		walk = func(e cfgExpr) {
			switch e := e.(type) {
			case cfgRef:
				out = append(out, string(e))
			case cfgSeq:
				for _, sub := range e {
					walk(sub)
				}
			case cfgAlt:
				for _, sub := range e {
					walk(sub)
				}
			case cfgRep:
				walk(e.sub)
			}
		}
		walk(e)
		return out
	}

	adj := make(map[string][]string, len(prods))
	for _, p := range prods {
		adj[p.name] = refs(p.expr)
	}

	reach := func(from string) map[string]bool {
		seen := map[string]bool{}
		stack := []string{from}
		for len(stack) > 0 {
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, t := range adj[name] {
				if !seen[t] {
					seen[t] = true
					stack = append(stack, t)
				}
			}
		}
		return seen
	}

	fromRoot := reach("root")
	fromRoot["root"] = true
	for name := range fromRoot {
		if reach(name)[name] {
			return true
		}
	}
	return false
}

// cfgFrag builds a Thompson fragment for e. When callRune is non-nil,
// rule references become single pseudo-rune edges for the pushdown
// construction; otherwise references are inlined (the caller must have
// verified the grammar is non-recursive).
func (n *nfa) cfgFrag(e cfgExpr, rules map[string]cfgExpr, callRune func(string) rune) (frag, error) {
	switch e := e.(type) {
	case cfgLit:
		start := n.state()
		cur := start
		for _, r := range string(e) {
			next := n.state()
			n.edge(cur, r, r, next)
			cur = next
		}
		return frag{start, cur}, nil

	case cfgClass:
		start, end := n.state(), n.state()
		for i := 0; i+1 < len(e); i += 2 {
			n.edge(start, e[i], e[i+1], end)
		}
		return frag{start, end}, nil

	case cfgRef:
		if callRune != nil {
			start, end := n.state(), n.state()
			r := callRune(string(e))
			n.edge(start, r, r, end)
			return frag{start, end}, nil
		}
		return n.cfgFrag(rules[string(e)], rules, nil)

	case cfgSeq:
		start := n.state()
		cur := start
		for _, sub := range e {
			f, err := n.cfgFrag(sub, rules, callRune)
			if err != nil {
				return frag{}, err
			}
			n.epsilon(cur, f.start)
			cur = f.end
		}
		return frag{start, cur}, nil

	case cfgAlt:
		start, end := n.state(), n.state()
		for _, sub := range e {
			f, err := n.cfgFrag(sub, rules, callRune)
			if err != nil {
				return frag{}, err
			}
			n.epsilon(start, f.start)
			n.epsilon(f.end, end)
		}
		return frag{start, end}, nil

	case cfgRep:
		f, err := n.cfgFrag(e.sub, rules, callRune)
		if err != nil {
			return frag{}, err
		}
		switch {
		case e.min == 0 && e.max == -1: // *
			start, end := n.state(), n.state()
			n.epsilon(start, f.start)
			n.epsilon(start, end)
			n.epsilon(f.end, f.start)
			n.epsilon(f.end, end)
			return frag{start, end}, nil
		case e.min == 1 && e.max == -1: // +
			end := n.state()
			n.epsilon(f.end, f.start)
			n.epsilon(f.end, end)
			return frag{f.start, end}, nil
		default: // ?
			n.epsilon(f.start, f.end)
			return f, nil
		}

	default:
		return frag{}, fmt.Errorf("cfg: unknown expression %T", e)
	}
}

// --- parsing ---

type cfgTokKind int

const (
	tokEOF cfgTokKind = iota
	tokIdent
	tokDefine
	tokString
	tokClass
	tokPipe
	tokLParen
	tokRParen
	tokStar
	tokPlus
	tokQuest
)

type cfgTok struct {
	kind   cfgTokKind
	text   string
	ranges []rune
	line   int
}

func lexCFG(src string) ([]cfgTok, error) {
	var toks []cfgTok
	line := 1
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '#':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == ':' && i+2 < len(rs) && rs[i+1] == ':' && rs[i+2] == '=':
			toks = append(toks, cfgTok{kind: tokDefine, line: line})
			i += 3
		case r == '|':
			toks = append(toks, cfgTok{kind: tokPipe, line: line})
			i++
		case r == '(':
			toks = append(toks, cfgTok{kind: tokLParen, line: line})
			i++
		case r == ')':
			toks = append(toks, cfgTok{kind: tokRParen, line: line})
			i++
		case r == '*':
			toks = append(toks, cfgTok{kind: tokStar, line: line})
			i++
		case r == '+':
			toks = append(toks, cfgTok{kind: tokPlus, line: line})
			i++
		case r == '?':
			toks = append(toks, cfgTok{kind: tokQuest, line: line})
			i++
		case r == '"':
			text, next, err := lexString(rs, i, line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, cfgTok{kind: tokString, text: text, line: line})
			i = next
		case r == '[':
			ranges, next, err := lexClass(rs, i, line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, cfgTok{kind: tokClass, ranges: ranges, line: line})
			i = next
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '-') {
				j++
			}
			toks = append(toks, cfgTok{kind: tokIdent, text: string(rs[i:j]), line: line})
			i = j
		default:
			return nil, fmt.Errorf("cfg: line %d: unexpected character %q", line, r)
		}
	}
	return append(toks, cfgTok{kind: tokEOF, line: line}), nil
}

func lexString(rs []rune, i, line int) (string, int, error) {
	var b strings.Builder
	i++ // opening quote
	for i < len(rs) {
		switch r := rs[i]; r {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			i++
			if i >= len(rs) {
				break
			}
			switch rs[i] {
			case '"', '\\':
				b.WriteRune(rs[i])
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				return "", 0, fmt.Errorf("cfg: line %d: unknown escape \\%c", line, rs[i])
			}
			i++
		case '\n':
			return "", 0, fmt.Errorf("cfg: line %d: unterminated string", line)
		default:
			b.WriteRune(r)
			i++
		}
	}
	return "", 0, fmt.Errorf("cfg: line %d: unterminated string", line)
}

func lexClass(rs []rune, i, line int) ([]rune, int, error) {
	i++ // opening bracket
	negate := false
	if i < len(rs) && rs[i] == '^' {
		negate = true
		i++
	}

	next := func() (rune, error) {
		if rs[i] != '\\' {
			r := rs[i]
			i++
			return r, nil
		}
		i++
		if i >= len(rs) {
			return 0, fmt.Errorf("cfg: line %d: unterminated class", line)
		}
		r := rs[i]
		i++
		switch r {
		case 'n':
			return '\n', nil
		case 'r':
			return '\r', nil
		case 't':
			return '\t', nil
		case '\\', ']', '^', '-':
			return r, nil
		}
		return 0, fmt.Errorf("cfg: line %d: unknown escape \\%c", line, r)
	}

	var pairs []rune
	for i < len(rs) && rs[i] != ']' {
		lo, err := next()
		if err != nil {
			return nil, 0, err
		}
		hi := lo
		if i+1 < len(rs) && rs[i] == '-' && rs[i+1] != ']' {
			i++
			if hi, err = next(); err != nil {
				return nil, 0, err
			}
			if hi < lo {
				return nil, 0, fmt.Errorf("cfg: line %d: inverted range %c-%c", line, lo, hi)
			}
		}
		pairs = append(pairs, lo, hi)
	}
	if i >= len(rs) {
		return nil, 0, fmt.Errorf("cfg: line %d: unterminated class", line)
	}
	i++ // closing bracket

	if len(pairs) == 0 {
		return nil, 0, fmt.Errorf("cfg: line %d: empty class", line)
	}
	if negate {
		pairs = complementRanges(pairs)
	}
	return pairs, i, nil
}

// complementRanges inverts lo,hi pairs over the full rune alphabet.
func complementRanges(pairs []rune) []rune {
	type pair struct{ lo, hi rune }
	ps := make([]pair, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ps = append(ps, pair{pairs[i], pairs[i+1]})
	}
	slices.SortFunc(ps, func(a, b pair) int { return int(a.lo - b.lo) })

	var out []rune
	next := rune(0)
	for _, p := range ps {
		if p.lo > next {
			out = append(out, next, p.lo-1)
		}
		if p.hi+1 > next {
			next = p.hi + 1
		}
	}
	if next <= utf8.MaxRune {
		out = append(out, next, utf8.MaxRune)
	}
	return out
}

type cfgParser struct {
	toks []cfgTok
	pos  int
}

func parseCFG(src string) ([]production, error) {
	toks, err := lexCFG(src)
	if err != nil {
		return nil, err
	}
	p := &cfgParser{toks: toks}

	var prods []production
	seen := map[string]bool{}
	for p.peek(0).kind != tokEOF {
		if p.peek(0).kind != tokIdent || p.peek(1).kind != tokDefine {
			return nil, fmt.Errorf("cfg: line %d: expected rule definition", p.peek(0).line)
		}
		name := p.peek(0).text
		if seen[name] {
			return nil, fmt.Errorf("cfg: duplicate rule %q", name)
		}
		seen[name] = true
		p.pos += 2

		expr, err := p.alternation()
		if err != nil {
			return nil, err
		}
		prods = append(prods, production{name, expr})
	}
	if len(prods) == 0 {
		return nil, fmt.Errorf("cfg: no productions")
	}
	return prods, nil
}

func (p *cfgParser) peek(k int) cfgTok {
	if p.pos+k >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+k]
}

func (p *cfgParser) alternation() (cfgExpr, error) {
	first, err := p.sequence()
	if err != nil {
		return nil, err
	}
	alt := cfgAlt{first}
	for p.peek(0).kind == tokPipe {
		p.pos++
		next, err := p.sequence()
		if err != nil {
			return nil, err
		}
		alt = append(alt, next)
	}
	if len(alt) == 1 {
		return first, nil
	}
	return alt, nil
}

func (p *cfgParser) sequence() (cfgExpr, error) {
	var seq cfgSeq
	for {
		switch t := p.peek(0); t.kind {
		case tokEOF, tokPipe, tokRParen:
			goto done
		case tokIdent:
			// An identifier followed by ::= starts the next rule.
			if p.peek(1).kind == tokDefine {
				goto done
			}
		case tokString, tokClass, tokLParen:
		default:
			return nil, fmt.Errorf("cfg: line %d: unexpected token", t.line)
		}
		item, err := p.repetition()
		if err != nil {
			return nil, err
		}
		seq = append(seq, item)
	}
done:
	if len(seq) == 0 {
		return nil, fmt.Errorf("cfg: line %d: empty sequence", p.peek(0).line)
	}
	if len(seq) == 1 {
		return seq[0], nil
	}
	return seq, nil
}

func (p *cfgParser) repetition() (cfgExpr, error) {
	sub, err := p.primary()
	if err != nil {
		return nil, err
	}
	switch p.peek(0).kind {
	case tokStar:
		p.pos++
		return cfgRep{sub, 0, -1}, nil
	case tokPlus:
		p.pos++
		return cfgRep{sub, 1, -1}, nil
	case tokQuest:
		p.pos++
		return cfgRep{sub, 0, 1}, nil
	}
	return sub, nil
}

func (p *cfgParser) primary() (cfgExpr, error) {
	switch t := p.peek(0); t.kind {
	case tokString:
		p.pos++
		return cfgLit(t.text), nil
	case tokClass:
		p.pos++
		return cfgClass(t.ranges), nil
	case tokIdent:
		p.pos++
		return cfgRef(t.text), nil
	case tokLParen:
		p.pos++
		expr, err := p.alternation()
		if err != nil {
			return nil, err
		}
		if p.peek(0).kind != tokRParen {
			return nil, fmt.Errorf("cfg: line %d: missing )", t.line)
		}
		p.pos++
		return expr, nil
	default:
		return nil, fmt.Errorf("cfg: line %d: expected terminal, class, group or rule", t.line)
	}
}
