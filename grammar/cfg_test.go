package grammar

import (
	"errors"
	"strings"
	"testing"
)

func TestCFGNonRecursive(t *testing.T) {
	src := `
		# a tiny key-value line
		root  ::= key ":" value
		key   ::= [a-z]+
		value ::= "yes" | "no" | digits
		digits ::= [0-9]+
	`
	m, err := Compile(CFG(src))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	a, ok := m.(*Automaton)
	if !ok {
		t.Fatalf("non-recursive grammar compiled to %T, want *Automaton", m)
	}

	for _, s := range []string{"a:yes", "key:no", "x:123"} {
		if !a.Match(s) {
			t.Errorf("should match %q", s)
		}
	}
	for _, s := range []string{"", "a:", ":yes", "a:maybe", "A:yes"} {
		if a.Match(s) {
			t.Errorf("should not match %q", s)
		}
	}
}

func TestCFGGroupingAndRepetition(t *testing.T) {
	src := `root ::= "a" ("b" | "c")* "d"?`
	a := compileAutomaton(t, CFG(src))

	for _, s := range []string{"a", "ab", "acbc", "ad", "abcd"} {
		if !a.Match(s) {
			t.Errorf("should match %q", s)
		}
	}
	for _, s := range []string{"", "b", "abd d", "adb"} {
		if a.Match(s) {
			t.Errorf("should not match %q", s)
		}
	}
}

func TestCFGNegatedClass(t *testing.T) {
	src := `root ::= "<" [^>]+ ">"`
	a := compileAutomaton(t, CFG(src))

	if !a.Match("<tag>") {
		t.Error("should match <tag>")
	}
	if a.Match("<>") || a.Match("<a>b>") {
		t.Error("negated class leaked past the closing terminal")
	}
}

func compilePushdown(t *testing.T, src string) *Pushdown {
	t.Helper()
	m, err := Compile(CFG(src))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p, ok := m.(*Pushdown)
	if !ok {
		t.Fatalf("recursive grammar compiled to %T, want *Pushdown", m)
	}
	return p
}

func TestCFGRecursiveBalancedParens(t *testing.T) {
	src := `root ::= "(" root ")" | "x"`
	p := compilePushdown(t, src)

	cases := []struct {
		in   string
		want bool
	}{
		{"x", true},
		{"(x)", true},
		{"((x))", true},
		{"(((((x)))))", true},
		{"", false},
		{"()", false},
		{"(x", false},
		{"x)", false},
		{"((x)", false},
		{"xx", false},
	}
	for _, tt := range cases {
		r := p.NewRunner()
		got := r.ConsumeString(tt.in) && r.Accepting()
		if got != tt.want {
			t.Errorf("accepts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCFGRecursiveList(t *testing.T) {
	// A LISP-ish nested list of atoms.
	src := `
		root ::= list
		list ::= "[" items? "]"
		items ::= item ("," item)*
		item ::= atom | list
		atom ::= [a-z]+
	`
	p := compilePushdown(t, src)

	for _, s := range []string{"[]", "[a]", "[a,b]", "[[a],[b,[c]]]", "[[[]]]"} {
		r := p.NewRunner()
		if !r.ConsumeString(s) || !r.Accepting() {
			t.Errorf("should accept %q", s)
		}
	}
	for _, s := range []string{"", "[", "[a,]", "[a b]", "]a["} {
		r := p.NewRunner()
		if r.ConsumeString(s) && r.Accepting() {
			t.Errorf("should not accept %q", s)
		}
	}
}

func TestCFGRunnerPrefixNotAccepting(t *testing.T) {
	p := compilePushdown(t, `root ::= "(" root ")" | "x"`)
	r := p.NewRunner()
	if !r.ConsumeString("(x") {
		t.Fatal("(x is a valid prefix")
	}
	if r.Accepting() {
		t.Error("(x should not be accepting with an open paren pending")
	}
	if r.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", r.Depth())
	}
}

func TestCFGRunnerClone(t *testing.T) {
	p := compilePushdown(t, `root ::= "(" root ")" | "x"`)
	r := p.NewRunner()
	if !r.ConsumeString("((") {
		t.Fatal("(( is a valid prefix")
	}

	c := r.Clone()
	if c.Key() != r.Key() {
		t.Fatalf("clone key %q differs from original %q", c.Key(), r.Key())
	}
	if !c.ConsumeString("x))") || !c.Accepting() {
		t.Error("clone should finish the string")
	}
	// The original is untouched by the clone's steps.
	if r.Key() == c.Key() {
		t.Error("advancing the clone moved the original")
	}
	if !r.ConsumeString("x))") || !r.Accepting() {
		t.Error("original should still finish independently")
	}
}

func TestCFGCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"missing root", `start ::= "a"`, `missing entry rule "root"`},
		{"undefined rule", `root ::= missing`, "undefined rule"},
		{"duplicate rule", "root ::= \"a\"\nroot ::= \"b\"", "duplicate rule"},
		{"no productions", ``, "no productions"},
		{"unterminated string", `root ::= "a`, "unterminated string"},
		{"left recursion", `root ::= root "a" | "b"`, "left-recursive"},
		{"indirect left recursion", "root ::= a \"x\"\na ::= b\nb ::= a \"y\" | \"z\"", "left-recursive"},
		{"unproductive", `root ::= "(" root ")"`, "derives no terminal string"},
		{"first conflict", "root ::= a | b\na ::= \"x\" root \"!\"\nb ::= \"x\"", "ambiguous"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(CFG(tt.src))
			if err == nil {
				t.Fatal("Compile succeeded, want error")
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("Compile = %v, want *CompileError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
