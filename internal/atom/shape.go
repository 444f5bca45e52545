package atom

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/hyperdb/internal/hashing"
)

// TypeShape is a link's composite type: its named type hash followed by the
// shape of each target. A node target is a leaf holding the node's type hash;
// a link target contributes its own full shape.
//
// JSON form is the nested list [type_hash, child, ...] with leaves as strings.
type TypeShape struct {
	Hash    string
	Targets []TypeShape
}

// IsLeaf reports whether the shape describes a node type.
func (s TypeShape) IsLeaf() bool {
	return len(s.Targets) == 0
}

// FlatHash folds the shape into a single hash. For a link shape this equals
// the link's CompositeTypeHash.
func (s TypeShape) FlatHash() string {
	if s.IsLeaf() {
		return s.Hash
	}
	parts := make([]string, 0, len(s.Targets)+1)
	parts = append(parts, s.Hash)
	for _, t := range s.Targets {
		parts = append(parts, t.FlatHash())
	}
	return hashing.CompositeHash(parts)
}

// Equal reports structural equality.
func (s TypeShape) Equal(o TypeShape) bool {
	if s.Hash != o.Hash || len(s.Targets) != len(o.Targets) {
		return false
	}
	for i := range s.Targets {
		if !s.Targets[i].Equal(o.Targets[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (s TypeShape) MarshalJSON() ([]byte, error) {
	if s.IsLeaf() {
		return json.Marshal(s.Hash)
	}
	items := make([]any, 0, len(s.Targets)+1)
	items = append(items, s.Hash)
	for _, t := range s.Targets {
		items = append(items, t)
	}
	return json.Marshal(items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TypeShape) UnmarshalJSON(data []byte) error {
	head, rest, err := decodeNested(data)
	if err != nil {
		return fmt.Errorf("composite type: %w", err)
	}
	s.Hash = head
	s.Targets = nil
	for i, raw := range rest {
		var child TypeShape
		if err := json.Unmarshal(raw, &child); err != nil {
			return fmt.Errorf("composite type[%d]: %w", i+1, err)
		}
		s.Targets = append(s.Targets, child)
	}
	return nil
}

// Template is a nested list of type names used to query links by the shape
// of their composite type, e.g. ["Evaluation", "Predicate", ["Set",
// "Concept", "Concept"]].
type Template struct {
	Type    string
	Targets []Template
}

// NewTemplate builds a template; with no targets it is a single type name.
func NewTemplate(typ string, targets ...Template) Template {
	return Template{Type: typ, Targets: targets}
}

// Hash resolves type names to hashes and folds them the same way a link's
// CompositeTypeHash is computed, so it can be looked up in the template index.
func (t Template) Hash() string {
	return t.Shape().FlatHash()
}

// Shape resolves the template's type names to their hashes.
func (t Template) Shape() TypeShape {
	s := TypeShape{Hash: hashing.NamedTypeHash(t.Type)}
	for _, c := range t.Targets {
		s.Targets = append(s.Targets, c.Shape())
	}
	return s
}

// Validate checks that no type name is empty.
func (t Template) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("template type name is empty")
	}
	for i, c := range t.Targets {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("template[%d]: %w", i+1, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Template) MarshalJSON() ([]byte, error) {
	if len(t.Targets) == 0 {
		return json.Marshal(t.Type)
	}
	items := make([]any, 0, len(t.Targets)+1)
	items = append(items, t.Type)
	for _, c := range t.Targets {
		items = append(items, c)
	}
	return json.Marshal(items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Template) UnmarshalJSON(data []byte) error {
	head, rest, err := decodeNested(data)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	t.Type = head
	t.Targets = nil
	for i, raw := range rest {
		var child Template
		if err := json.Unmarshal(raw, &child); err != nil {
			return fmt.Errorf("template[%d]: %w", i+1, err)
		}
		t.Targets = append(t.Targets, child)
	}
	return nil
}

// ParseTemplate converts a decoded nested list (string or []any whose first
// element is a string) into a Template.
func ParseTemplate(v any) (Template, error) {
	switch val := v.(type) {
	case string:
		return Template{Type: val}, nil
	case []string:
		if len(val) == 0 {
			return Template{}, fmt.Errorf("template list is empty")
		}
		t := Template{Type: val[0]}
		for _, name := range val[1:] {
			t.Targets = append(t.Targets, Template{Type: name})
		}
		return t, nil
	case []any:
		if len(val) == 0 {
			return Template{}, fmt.Errorf("template list is empty")
		}
		head, ok := val[0].(string)
		if !ok {
			return Template{}, fmt.Errorf("template list must start with a type name, got %T", val[0])
		}
		t := Template{Type: head}
		for i, elem := range val[1:] {
			child, err := ParseTemplate(elem)
			if err != nil {
				return Template{}, fmt.Errorf("template[%d]: %w", i+1, err)
			}
			t.Targets = append(t.Targets, child)
		}
		return t, nil
	default:
		return Template{}, fmt.Errorf("unsupported template element %T", v)
	}
}

// decodeNested splits a JSON string or a non-empty list headed by a string.
func decodeNested(data []byte) (string, []json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", nil, err
		}
		return s, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, fmt.Errorf("expected string or list: %w", err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("list is empty")
	}
	var head string
	if err := json.Unmarshal(items[0], &head); err != nil {
		return "", nil, fmt.Errorf("list must start with a string: %w", err)
	}
	return head, items[1:], nil
}
