package grammar

import (
	"fmt"
	"regexp/syntax"
	"unicode"
	"unicode/utf8"
)

// compileRegex builds a DFA accepting exactly the language of pattern:
// a Thompson construction from the parsed syntax tree followed by
// subset-construction determinization. The whole input must match;
// there are no backtracking-engine semantics to approximate.
func compileRegex(pattern string) (*Automaton, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}

	n := &nfa{}
	f, err := n.regexFrag(stripAnchors(re.Simplify()))
	if err != nil {
		return nil, err
	}
	return n.determinize(f.start, f.end), nil
}

// stripAnchors drops anchors that are redundant under whole-input
// matching: a leading ^ or trailing $ at the top level, including
// alternation branches. Anchors anywhere else survive and are
// rejected by regexFrag, since "a$b" cannot match any input when the
// pattern must consume all of it.
func stripAnchors(re *syntax.Regexp) *syntax.Regexp {
	switch re.Op {
	case syntax.OpBeginText, syntax.OpBeginLine, syntax.OpEndText, syntax.OpEndLine:
		return &syntax.Regexp{Op: syntax.OpEmptyMatch}

	case syntax.OpCapture:
		re.Sub[0] = stripAnchors(re.Sub[0])
		return re

	case syntax.OpAlternate:
		for i, sub := range re.Sub {
			re.Sub[i] = stripAnchors(sub)
		}
		return re

	case syntax.OpConcat:
		subs := re.Sub
		for len(subs) > 0 && isAnchor(subs[0], syntax.OpBeginText, syntax.OpBeginLine) {
			subs = subs[1:]
		}
		for len(subs) > 0 && isAnchor(subs[len(subs)-1], syntax.OpEndText, syntax.OpEndLine) {
			subs = subs[:len(subs)-1]
		}
		if len(subs) == 0 {
			return &syntax.Regexp{Op: syntax.OpEmptyMatch}
		}
		re.Sub = subs
		return re

	default:
		return re
	}
}

func isAnchor(re *syntax.Regexp, ops ...syntax.Op) bool {
	for _, op := range ops {
		if re.Op == op {
			return true
		}
	}
	return false
}

func (n *nfa) regexFrag(re *syntax.Regexp) (frag, error) {
	switch re.Op {
	case syntax.OpEmptyMatch:
		s := n.state()
		return frag{s, s}, nil

	case syntax.OpBeginText, syntax.OpBeginLine:
		// Only anchors stripAnchors could not remove reach here. A ^
		// anywhere but the start of the pattern can never hold when
		// the whole input must match, so refuse rather than compile
		// something that ignores it.
		return frag{}, &UnsupportedError{Keyword: "^"}

	case syntax.OpEndText, syntax.OpEndLine:
		return frag{}, &UnsupportedError{Keyword: "$"}

	case syntax.OpLiteral:
		start := n.state()
		cur := start
		for _, r := range re.Rune {
			next := n.state()
			n.edge(cur, r, r, next)
			if re.Flags&syntax.FoldCase != 0 {
				for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
					n.edge(cur, f, f, next)
				}
			}
			cur = next
		}
		return frag{start, cur}, nil

	case syntax.OpCharClass:
		start, end := n.state(), n.state()
		for i := 0; i+1 < len(re.Rune); i += 2 {
			n.edge(start, re.Rune[i], re.Rune[i+1], end)
		}
		return frag{start, end}, nil

	case syntax.OpAnyChar:
		start, end := n.state(), n.state()
		n.edge(start, 0, utf8.MaxRune, end)
		return frag{start, end}, nil

	case syntax.OpAnyCharNotNL:
		start, end := n.state(), n.state()
		n.edge(start, 0, '\n'-1, end)
		n.edge(start, '\n'+1, utf8.MaxRune, end)
		return frag{start, end}, nil

	case syntax.OpNoMatch:
		return frag{n.state(), n.state()}, nil

	case syntax.OpCapture:
		return n.regexFrag(re.Sub[0])

	case syntax.OpConcat:
		start := n.state()
		cur := start
		for _, sub := range re.Sub {
			f, err := n.regexFrag(sub)
			if err != nil {
				return frag{}, err
			}
			n.epsilon(cur, f.start)
			cur = f.end
		}
		return frag{start, cur}, nil

	case syntax.OpAlternate:
		start, end := n.state(), n.state()
		for _, sub := range re.Sub {
			f, err := n.regexFrag(sub)
			if err != nil {
				return frag{}, err
			}
			n.epsilon(start, f.start)
			n.epsilon(f.end, end)
		}
		return frag{start, end}, nil

	case syntax.OpStar:
		f, err := n.regexFrag(re.Sub[0])
		if err != nil {
			return frag{}, err
		}
		start, end := n.state(), n.state()
		n.epsilon(start, f.start)
		n.epsilon(start, end)
		n.epsilon(f.end, f.start)
		n.epsilon(f.end, end)
		return frag{start, end}, nil

	case syntax.OpPlus:
		f, err := n.regexFrag(re.Sub[0])
		if err != nil {
			return frag{}, err
		}
		end := n.state()
		n.epsilon(f.end, f.start)
		n.epsilon(f.end, end)
		return frag{f.start, end}, nil

	case syntax.OpQuest:
		f, err := n.regexFrag(re.Sub[0])
		if err != nil {
			return frag{}, err
		}
		n.epsilon(f.start, f.end)
		return f, nil

	case syntax.OpRepeat:
		// Simplify usually rewrites bounded repeats, but handle the
		// op anyway: min required copies, then optional ones.
		start := n.state()
		end := n.state()
		cur := start
		var skips []StateID
		for i := 0; i < re.Min; i++ {
			f, err := n.regexFrag(re.Sub[0])
			if err != nil {
				return frag{}, err
			}
			n.epsilon(cur, f.start)
			cur = f.end
		}
		if re.Max == -1 {
			f, err := n.regexFrag(re.Sub[0])
			if err != nil {
				return frag{}, err
			}
			n.epsilon(cur, f.start)
			n.epsilon(f.end, f.start)
			cur = f.end
			skips = append(skips, f.start)
		} else {
			for i := re.Min; i < re.Max; i++ {
				skips = append(skips, cur)
				f, err := n.regexFrag(re.Sub[0])
				if err != nil {
					return frag{}, err
				}
				n.epsilon(cur, f.start)
				cur = f.end
			}
		}
		n.epsilon(cur, end)
		for _, s := range skips {
			n.epsilon(s, end)
		}
		return frag{start, end}, nil

	case syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return frag{}, &UnsupportedError{Keyword: `\b`}

	default:
		return frag{}, fmt.Errorf("regex: unsupported op %v", re.Op)
	}
}
