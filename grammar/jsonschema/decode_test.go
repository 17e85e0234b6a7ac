package jsonschema

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalPreservesPropertyOrder(t *testing.T) {
	var s *Schema
	err := json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {
			"c": {"type": "string"},
			"a": {"type": "integer"},
			"b": {"type": "boolean"}
		}
	}`), &s)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"c", "a", "b"}
	if len(s.Properties) != len(want) {
		t.Fatalf("got %d properties, want %d", len(s.Properties), len(want))
	}
	for i, name := range want {
		if s.Properties[i].Name != name {
			t.Errorf("Properties[%d].Name = %q, want %q", i, s.Properties[i].Name, name)
		}
	}
	if p := s.Property("a"); p == nil || p.Type != "integer" {
		t.Errorf("Property(a) = %+v", p)
	}
	if s.Property("z") != nil {
		t.Error("Property(z) should be nil")
	}
}

func TestEffectiveType(t *testing.T) {
	cases := []struct {
		doc  string
		want string
	}{
		{`{"type": "string"}`, "string"},
		{`{"properties": {"a": {}}}`, "object"},
		{`{"items": {"type": "integer"}}`, "array"},
		{`{"enum": [1, 2]}`, "enum"},
		{`{}`, "value"},
	}
	for _, tt := range cases {
		var s *Schema
		if err := json.Unmarshal([]byte(tt.doc), &s); err != nil {
			t.Fatalf("%s: %v", tt.doc, err)
		}
		if got := s.EffectiveType(); got != tt.want {
			t.Errorf("EffectiveType(%s) = %q, want %q", tt.doc, got, tt.want)
		}
	}
}

func TestItemsVariants(t *testing.T) {
	for doc, wantSet := range map[string]bool{
		`{"items": true}`:              true,
		`{"items": {"type": "null"}}`:  true,
		`{"items": false}`:             false,
		`{"items": null}`:              false,
		`{"type": "array"}`:            false,
	} {
		var s *Schema
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			t.Fatalf("%s: %v", doc, err)
		}
		if got := s.Items != nil; got != wantSet {
			t.Errorf("%s: Items set = %v, want %v", doc, got, wantSet)
		}
	}
}

func TestMaxItemsPresence(t *testing.T) {
	var s *Schema
	if err := json.Unmarshal([]byte(`{"type": "array", "maxItems": 0}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.MaxItems == nil || *s.MaxItems != 0 {
		t.Errorf("MaxItems = %v, want explicit 0", s.MaxItems)
	}

	s = nil
	if err := json.Unmarshal([]byte(`{"type": "array"}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.MaxItems != nil {
		t.Errorf("MaxItems = %v, want nil when absent", *s.MaxItems)
	}
}

func TestNumericBounds(t *testing.T) {
	var s *Schema
	if err := json.Unmarshal([]byte(`{"type": "integer", "minimum": -3, "maximum": 7}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Minimum == nil || *s.Minimum != -3 {
		t.Errorf("Minimum = %v", s.Minimum)
	}
	if s.Maximum == nil || *s.Maximum != 7 {
		t.Errorf("Maximum = %v", s.Maximum)
	}

	s = nil
	if err := json.Unmarshal([]byte(`{"type": "integer"}`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Minimum != nil || s.Maximum != nil {
		t.Error("absent bounds should stay nil")
	}
}
