package grammar

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/cpfiffer/outlines/grammar/jsonschema"
)

// Regex fragments for the JSON terminal grammar (RFC 8259). Generated
// text uses the canonical compact form: no insignificant whitespace.
const (
	jsonString = `"(?:[^"\\\x00-\x1f]|\\(?:["\\/bfnrt]|u[0-9a-fA-F]{4}))*"`
	jsonInt    = `-?(?:0|[1-9][0-9]*)`
	jsonNumber = `-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`
)

var supportedKeywords = map[string]bool{
	"type":       true,
	"properties": true,
	"required":   true,
	"items":      true,
	"minItems":   true,
	"maxItems":   true,
	"pattern":    true,
	"enum":       true,
	"minimum":    true,
	"maximum":    true,
}

// compileSchema lowers a JSON Schema document to a regular expression
// and compiles it through the regex path. Keywords outside the
// supported subset fail with UnsupportedError naming the keyword.
func compileSchema(doc []byte) (*Automaton, error) {
	if err := checkKeywords(doc); err != nil {
		return nil, err
	}

	var s *jsonschema.Schema
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, err
	}
	s.Name = "root"

	pattern, err := schemaFragment(s)
	if err != nil {
		return nil, err
	}
	return compileRegex(pattern)
}

// checkKeywords walks the raw document and rejects any keyword the
// compiler does not implement. Silently ignoring a keyword would relax
// the constraint without the caller noticing.
func checkKeywords(doc []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return err
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if !supportedKeywords[k] {
			return &UnsupportedError{Keyword: k}
		}
		switch v := m[k]; k {
		case "properties":
			var props map[string]json.RawMessage
			if err := json.Unmarshal(v, &props); err != nil {
				return err
			}
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				if err := checkKeywords(props[name]); err != nil {
					return err
				}
			}
		case "items":
			if len(v) > 0 && v[0] == '{' {
				if err := checkKeywords(v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func schemaFragment(s *jsonschema.Schema) (string, error) {
	switch typ := s.EffectiveType(); typ {
	case "object":
		return objectFragment(s)
	case "array":
		return arrayFragment(s)
	case "string":
		return stringFragment(s)
	case "integer":
		lo, err := intBound(s.Minimum)
		if err != nil {
			return "", err
		}
		hi, err := intBound(s.Maximum)
		if err != nil {
			return "", err
		}
		return intRangeFragment(lo, hi)
	case "number":
		if s.Minimum != nil || s.Maximum != nil {
			// Bounding arbitrary decimals is not expressible as a
			// finite pattern; only integer bounds are implemented.
			return "", &UnsupportedError{Keyword: "minimum/maximum on number"}
		}
		return jsonNumber, nil
	case "boolean":
		return `(?:true|false)`, nil
	case "null":
		return `null`, nil
	case "enum":
		return enumFragment(s)
	default:
		return "", fmt.Errorf("%s: unsupported type %q", s.Name, typ)
	}
}

// objectFragment enforces "{", the required keys each followed by ":"
// and their value fragment, "," separators, and "}". Keys are emitted
// in lexicographic order: a deterministic compiler tie-break, not the
// schema declaration order. Properties not listed in "required" are
// not generated; when "required" is absent every declared property is
// treated as required.
func objectFragment(s *jsonschema.Schema) (string, error) {
	names := slices.Clone(s.Required)
	if len(names) == 0 {
		for _, p := range s.Properties {
			names = append(names, p.Name)
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)

	var b strings.Builder
	b.WriteString(`\{`)
	for i, name := range names {
		p := s.Property(name)
		if p == nil {
			return "", fmt.Errorf("%s: required property %q is not declared", s.Name, name)
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(quoteLiteral(`"` + name + `":`))
		f, err := schemaFragment(p)
		if err != nil {
			return "", err
		}
		b.WriteString("(?:" + f + ")")
	}
	b.WriteString(`\}`)
	return b.String(), nil
}

func arrayFragment(s *jsonschema.Schema) (string, error) {
	if s.Items == nil {
		return "", &UnsupportedError{Keyword: "array without items"}
	}
	item, err := schemaFragment(s.Items)
	if err != nil {
		return "", err
	}
	item = "(?:" + item + ")"

	if s.MaxItems != nil {
		if *s.MaxItems < s.MinItems {
			return "", fmt.Errorf("%s: maxItems %d < minItems %d", s.Name, *s.MaxItems, s.MinItems)
		}
		if *s.MaxItems == 0 {
			return `\[\]`, nil
		}
	}

	var more string
	if s.MaxItems == nil {
		more = fmt.Sprintf(`(?:,%s){%d,}`, item, max(s.MinItems-1, 0))
	} else {
		more = fmt.Sprintf(`(?:,%s){%d,%d}`, item, max(s.MinItems-1, 0), *s.MaxItems-1)
	}

	body := item + more
	if s.MinItems == 0 {
		body = "(?:" + body + ")?"
	}
	return `\[` + body + `\]`, nil
}

func stringFragment(s *jsonschema.Schema) (string, error) {
	if len(s.Enum) > 0 {
		return enumFragment(s)
	}
	if s.Pattern == "" {
		return jsonString, nil
	}
	// The pattern constrains the string's content; anchors are
	// implied by the automaton.
	pat := strings.TrimSuffix(strings.TrimPrefix(s.Pattern, "^"), "$")
	return `"(?:` + pat + `)"`, nil
}

// enumFragment is an alternation of the literal JSON texts.
func enumFragment(s *jsonschema.Schema) (string, error) {
	if len(s.Enum) == 0 {
		return "", fmt.Errorf("%s: empty enum", s.Name)
	}
	parts := make([]string, len(s.Enum))
	for i, e := range s.Enum {
		parts[i] = quoteLiteral(string(e))
	}
	return "(?:" + strings.Join(parts, "|") + ")", nil
}

func quoteLiteral(s string) string { return regexp.QuoteMeta(s) }

func intBound(f *float64) (*int64, error) {
	if f == nil {
		return nil, nil
	}
	if *f != math.Trunc(*f) {
		return nil, &UnsupportedError{Keyword: "non-integer bound on integer"}
	}
	v := int64(*f)
	return &v, nil
}

