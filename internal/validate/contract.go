// Package validate checks inbound scan batches against field contracts.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the JSON shape a field must have.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

// Field describes one entry of a keyed record.
type Field struct {
	Name     string
	Required bool
	Kind     Kind
	// Check runs after the kind matched. Optional.
	Check func(json.RawMessage) error
}

// Contract is an ordered list of field rules.
type Contract []Field

// Missing returns the names of required fields that are absent, null or,
// for strings, empty.
func (c Contract) Missing(rec map[string]json.RawMessage) []string {
	var out []string
	for _, f := range c {
		if !f.Required {
			continue
		}
		raw, ok := rec[f.Name]
		if !ok || isNull(raw) {
			out = append(out, f.Name)
			continue
		}
		if f.Kind == KindString && bytes.Equal(bytes.TrimSpace(raw), []byte(`""`)) {
			out = append(out, f.Name)
		}
	}
	return out
}

// CheckKinds returns the name of the first field whose shape or
// post-condition fails, with the cause.
func (c Contract) CheckKinds(rec map[string]json.RawMessage) (string, error) {
	for _, f := range c {
		raw, ok := rec[f.Name]
		if !ok || isNull(raw) {
			if f.Required {
				return f.Name, fmt.Errorf("required %s", f.Kind)
			}
			continue
		}
		if !hasKind(raw, f.Kind) {
			return f.Name, fmt.Errorf("expected %s", f.Kind)
		}
		if f.Check != nil {
			if err := f.Check(raw); err != nil {
				return f.Name, err
			}
		}
	}
	return "", nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func hasKind(raw json.RawMessage, k Kind) bool {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return false
	}
	switch k {
	case KindString:
		return t[0] == '"'
	case KindArray:
		return t[0] == '['
	case KindObject:
		return t[0] == '{'
	case KindNumber:
		return t[0] == '-' || (t[0] >= '0' && t[0] <= '9')
	default:
		return true
	}
}
