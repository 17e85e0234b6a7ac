// Package grammar compiles structural constraints (regular
// expressions, JSON schemas, and context-free grammars) into
// automata over a model's output alphabet.
package grammar

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Machine is a compiled constraint: either a finite *Automaton or,
// for recursive context-free grammars, a *Pushdown.
type Machine interface {
	StartState() StateID
}

// Spec is a constraint specification. Each kind lowers to a Machine
// through Compile.
type Spec interface {
	// Hash is a content hash of the specification, stable across
	// processes, used to key compiled indices.
	Hash() uint64

	compile() (Machine, error)
}

// Regex is a regular expression in RE2 syntax. Backreferences and
// lookaround do not exist in RE2 and therefore cannot be expressed;
// word boundaries are rejected at compile time.
type Regex string

// Schema is a JSON Schema document. See compileSchema for the
// supported keyword subset; anything else is rejected with
// UnsupportedError.
type Schema []byte

// CFG is a context-free grammar in an EBNF-like production syntax,
// with "root" as the entry rule. Non-recursive grammars determinize
// to an Automaton; recursive grammars compile to a Pushdown.
type CFG string

func (r Regex) Hash() uint64  { return specHash("regex", string(r)) }
func (s Schema) Hash() uint64 { return specHash("schema", string(s)) }
func (g CFG) Hash() uint64    { return specHash("cfg", string(g)) }

func specHash(kind, text string) uint64 {
	h := xxhash.New()
	h.WriteString(kind)
	h.WriteString("\x00")
	h.WriteString(text)
	return h.Sum64()
}

func (r Regex) compile() (Machine, error) {
	a, err := compileRegex(string(r))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s Schema) compile() (Machine, error) {
	a, err := compileSchema([]byte(s))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (g CFG) compile() (Machine, error) {
	return compileCFG(string(g))
}

// Compile translates a specification into a machine. All failures,
// including unsupported constructs, surface here at compile time and
// are never deferred to generation time.
func Compile(spec Spec) (Machine, error) {
	m, err := spec.compile()
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CompileError{Err: err}
	}
	return m, nil
}

// CompileError reports a malformed or unconvertible specification.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string { return fmt.Sprintf("grammar: %v", e.Err) }

func (e *CompileError) Unwrap() error { return e.Err }

// UnsupportedError reports a specification construct outside the
// supported subset. It is always explicit: unsupported keywords are
// never silently ignored.
type UnsupportedError struct {
	Keyword string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("grammar: unsupported construct %q", e.Keyword)
}
