package atom

import (
	"fmt"

	"github.com/roach88/hyperdb/internal/hashing"
)

// Kind discriminates the members of the Atom union.
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindLink
	KindType
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindLink:
		return "link"
	case KindType:
		return "type"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "node":
		return KindNode, nil
	case "link":
		return KindLink, nil
	case "type":
		return KindType, nil
	default:
		return 0, fmt.Errorf("unknown atom kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindNode, KindLink, KindType:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid atom kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Atom is a stored unit: a *Node, *Link or *TypeEntry.
type Atom interface {
	Handle() string
	Kind() Kind
	isAtom()
}

// Node is a typed symbol.
type Node struct {
	ID                string         `json:"handle"`
	Type              string         `json:"type"`
	Name              string         `json:"name"`
	CompositeTypeHash string         `json:"composite_type_hash"`
	Fields            map[string]any `json:"fields,omitempty"`
}

func (n *Node) Handle() string { return n.ID }
func (*Node) Kind() Kind { return KindNode }
func (*Node) isAtom() {}

// NewNode builds a node from its type and name.
// Fields are normalized as described on NormalizeFields; the caller's map is
// not retained.
func NewNode(typ, name string, fields map[string]any) (*Node, error) {
	if typ == "" {
		return nil, NewAddNodeError("node type is required")
	}
	if name == "" {
		return nil, NewAddNodeError(fmt.Sprintf("node name is required (type %q)", typ))
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return nil, &Error{Code: CodeAddNode, Message: fmt.Sprintf("invalid fields for %s %q", typ, name), Err: err}
	}
	return &Node{
		ID:                hashing.TerminalHash(typ, name),
		Type:              typ,
		Name:              name,
		CompositeTypeHash: hashing.NamedTypeHash(typ),
		Fields:            normalized,
	}, nil
}

// Link is a typed, ordered relation over other atoms.
type Link struct {
	ID                string         `json:"handle"`
	Type              string         `json:"type"`
	TypeHash          string         `json:"named_type_hash"`
	Targets           []string       `json:"targets"`
	CompositeType     TypeShape      `json:"composite_type"`
	CompositeTypeHash string         `json:"composite_type_hash"`
	IsToplevel        bool           `json:"is_toplevel"`
	Fields            map[string]any `json:"fields,omitempty"`
}

func (l *Link) Handle() string { return l.ID }
func (*Link) Kind() Kind { return KindLink }
func (*Link) isAtom() {}

// Arity is the number of targets.
func (l *Link) Arity() int { return len(l.Targets) }

// NewLink builds a link over already-resolved targets.
//
// Each target contributes its handle, its composite type hash and its type
// shape: a leaf for a node, the full nested shape for a link.
func NewLink(typ string, targets []Atom, toplevel bool, fields map[string]any) (*Link, error) {
	if typ == "" {
		return nil, NewAddLinkError("link type is required", nil)
	}
	if len(targets) == 0 {
		return nil, NewAddLinkError(fmt.Sprintf("link targets are required (type %q)", typ), nil)
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return nil, NewAddLinkError(fmt.Sprintf("invalid fields for %q", typ), err)
	}

	typeHash := hashing.NamedTypeHash(typ)
	handles := make([]string, len(targets))
	shapes := make([]TypeShape, len(targets))
	typeHashes := make([]string, 0, len(targets)+1)
	typeHashes = append(typeHashes, typeHash)

	for i, target := range targets {
		switch t := target.(type) {
		case *Node:
			handles[i] = t.ID
			shapes[i] = TypeShape{Hash: t.CompositeTypeHash}
			typeHashes = append(typeHashes, t.CompositeTypeHash)
		case *Link:
			handles[i] = t.ID
			shapes[i] = t.CompositeType
			typeHashes = append(typeHashes, t.CompositeTypeHash)
		default:
			return nil, NewAddLinkError(fmt.Sprintf("target %d of %q is not a node or link", i, typ), nil)
		}
	}

	return &Link{
		ID:                hashing.ExpressionHash(typeHash, handles),
		Type:              typ,
		TypeHash:          typeHash,
		Targets:           handles,
		CompositeType:     TypeShape{Hash: typeHash, Targets: shapes},
		CompositeTypeHash: hashing.CompositeHash(typeHashes),
		IsToplevel:        toplevel,
		Fields:            normalized,
	}, nil
}

// TypeEntry records that a named type exists ("Type is-a Type").
type TypeEntry struct {
	ID                string `json:"handle"`
	Type              string `json:"type"`
	NamedTypeHash     string `json:"named_type_hash"`
	CompositeTypeHash string `json:"composite_type_hash"`
}

func (e *TypeEntry) Handle() string { return e.ID }
func (*TypeEntry) Kind() Kind { return KindType }
func (*TypeEntry) isAtom() {}

// NewTypeEntry builds the registry entry for a named type.
func NewTypeEntry(typ string) *TypeEntry {
	return &TypeEntry{
		ID:                hashing.TypeKey(typ),
		Type:              typ,
		NamedTypeHash:     hashing.NamedTypeHash(typ),
		CompositeTypeHash: hashing.TypeCompositeHash(),
	}
}

// NormalizeFields returns fields in the form every backend reads them back
// in: integral numbers as int64, other numbers as float64, nested values as
// []any and map[string]any. Values canonical JSON cannot encode, such as
// null, are rejected.
func NormalizeFields(fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data, err := MarshalCanonical(fields)
	if err != nil {
		return nil, err
	}
	return UnmarshalFields(data)
}

// cloneFields deep-copies normalized fields.
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	return cloneValue(fields).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}
