// Package jsonschema decodes the subset of JSON Schema the grammar
// compiler understands.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Schema holds a JSON schema.
type Schema struct {
	// Name is the name of the property. For the parent/root property,
	// this is "root". For child properties, this is the key under
	// which the schema was declared.
	Name string `json:"-"`

	// Type is the type of the property.
	Type string

	// Properties is the schema for each property of an object, in
	// declaration order.
	Properties []*Schema

	// Required lists the object property names that must be present.
	Required []string

	// Items is the schema for each item in a list.
	//
	// If it is missing, or its JSON value is "null" or "false", it is
	// nil. If the JSON value is "true", it is set to the empty Schema.
	// If the JSON value is an object, it is decoded as a Schema.
	Items *Schema

	// MinItems specifies the minimum number of items allowed in a list.
	MinItems int

	// MaxItems specifies the maximum number of items allowed in a
	// list, nil when unset. An explicit zero permits only the empty
	// list.
	MaxItems *int

	// Pattern is a regular expression a string value must match.
	Pattern string

	// Minimum is the inclusive lower bound for numeric properties,
	// nil when unset.
	Minimum *float64

	// Maximum is the inclusive upper bound for numeric properties,
	// nil when unset.
	Maximum *float64

	// Enum is a list of valid values for the property, each kept as
	// its literal JSON text.
	Enum []json.RawMessage
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type S Schema
	w := struct {
		Properties props
		Items      items
		*S
	}{
		S: (*S)(s),
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Items.set {
		s.Items = &w.Items.Schema
	}
	s.Properties = w.Properties
	return nil
}

type items struct {
	Schema
	set bool
}

func (s *items) UnmarshalJSON(data []byte) error {
	switch b := data[0]; b {
	case 't':
		*s = items{set: true}
	case '{':
		type I items
		if err := json.Unmarshal(data, (*I)(s)); err != nil {
			return err
		}
		s.set = true
	case 'n', 'f':
	default:
		return errors.New("invalid Items")
	}
	return nil
}

// EffectiveType returns the effective type of the schema. If the Type
// field is not empty, it is returned; otherwise:
//
//   - If the schema has Properties, it returns "object".
//   - If the schema has Items, it returns "array".
//   - If the schema has an Enum, it returns "enum".
//   - Otherwise it returns "value".
//
// The returned string is never empty.
func (s *Schema) EffectiveType() string {
	if s.Type == "" {
		if len(s.Properties) > 0 {
			return "object"
		}
		if s.Items != nil {
			return "array"
		}
		if len(s.Enum) > 0 {
			return "enum"
		}
		return "value"
	}
	return s.Type
}

// Property returns the schema declared under name, or nil.
func (s *Schema) Property(name string) *Schema {
	for _, p := range s.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// props is an ordered list of properties. The order of the properties
// is the order in which they were defined in the schema.
type props []*Schema

var _ json.Unmarshaler = (*props)(nil)

func (v *props) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] != '{' {
		return errors.New("expected object")
	}

	d := json.NewDecoder(bytes.NewReader(data))

	t, err := d.Token()
	if err != nil {
		return err
	}
	if t != json.Delim('{') {
		return errors.New("expected object")
	}
	for d.More() {
		// Use the first token (map key) as the property name, then
		// decode the rest of the object fields into a Schema and
		// append.
		t, err := d.Token()
		if err != nil {
			return err
		}
		if t == json.Delim('}') {
			return nil
		}
		s := &Schema{
			Name: t.(string),
		}
		if err := d.Decode(s); err != nil {
			return err
		}
		*v = append(*v, s)
	}
	return nil
}
