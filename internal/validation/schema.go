package validation

import (
	"encoding/json"
	"fmt"
)

// Field types understood by the checker. An empty type accepts any value.
const (
	TypeAny     = "any"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Schema maps the keys of an object to their field definitions.
type Schema map[string]Field

// Field is a declarative rule set for one value.
//
// Rules uses go-playground/validator tag syntax ("required,alpha", "min=2,max=64").
// Props describes the keys of a nested object and Items the elements of an array.
// Check names a custom check registered with Service.Alias.
type Field struct {
	Type         string         `json:"type,omitempty"`
	Rules        string         `json:"rules,omitempty"`
	Optional     bool           `json:"optional,omitempty"`
	Props        Schema         `json:"props,omitempty"`
	AllowUnknown bool           `json:"allowUnknown,omitempty"`
	Items        *Field         `json:"items,omitempty"`
	Check        string         `json:"check,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// FieldError describes one failed rule.
type FieldError struct {
	Type     string `json:"type"`
	Field    string `json:"field"`
	Message  string `json:"message"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
}

// key returns the canonical serialization of a schema. encoding/json writes map
// keys in sorted order, so structurally equal schemas produce equal keys.
func (s Schema) key() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to serialize schema: %w", err)
	}
	return string(b), nil
}

func knownType(t string) bool {
	switch t {
	case "", TypeAny, TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}
