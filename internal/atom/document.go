package atom

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the storage-boundary form of any atom. Backends persist and
// return Documents; the store converts them to and from Atoms.
type Document struct {
	ID                string         `json:"_id"`
	Kind              Kind           `json:"kind"`
	Type              string         `json:"named_type"`
	TypeHash          string         `json:"named_type_hash"`
	Name              string         `json:"name,omitempty"`
	Targets           []string       `json:"targets,omitempty"`
	CompositeType     *TypeShape     `json:"composite_type,omitempty"`
	CompositeTypeHash string         `json:"composite_type_hash"`
	IsToplevel        bool           `json:"is_toplevel,omitempty"`
	Fields            map[string]any `json:"fields,omitempty"`
}

// Arity is the number of targets; zero for nodes and type entries.
func (d Document) Arity() int {
	return len(d.Targets)
}

// NewDocument converts an atom to its document form.
func NewDocument(a Atom) Document {
	switch v := a.(type) {
	case *Node:
		return Document{
			ID:                v.ID,
			Kind:              KindNode,
			Type:              v.Type,
			TypeHash:          v.CompositeTypeHash,
			Name:              v.Name,
			CompositeTypeHash: v.CompositeTypeHash,
			Fields:            cloneFields(v.Fields),
		}
	case *Link:
		shape := v.CompositeType
		return Document{
			ID:                v.ID,
			Kind:              KindLink,
			Type:              v.Type,
			TypeHash:          v.TypeHash,
			Targets:           append([]string(nil), v.Targets...),
			CompositeType:     &shape,
			CompositeTypeHash: v.CompositeTypeHash,
			IsToplevel:        v.IsToplevel,
			Fields:            cloneFields(v.Fields),
		}
	case *TypeEntry:
		return Document{
			ID:                v.ID,
			Kind:              KindType,
			Type:              v.Type,
			TypeHash:          v.NamedTypeHash,
			CompositeTypeHash: v.CompositeTypeHash,
		}
	default:
		panic(fmt.Sprintf("atom: unknown atom type %T", a))
	}
}

// Atom converts the document back to its atom.
func (d Document) Atom() (Atom, error) {
	switch d.Kind {
	case KindNode:
		return &Node{
			ID:                d.ID,
			Type:              d.Type,
			Name:              d.Name,
			CompositeTypeHash: d.CompositeTypeHash,
			Fields:            cloneFields(d.Fields),
		}, nil
	case KindLink:
		if d.CompositeType == nil {
			return nil, fmt.Errorf("link document %s has no composite type", d.ID)
		}
		return &Link{
			ID:                d.ID,
			Type:              d.Type,
			TypeHash:          d.TypeHash,
			Targets:           append([]string(nil), d.Targets...),
			CompositeType:     *d.CompositeType,
			CompositeTypeHash: d.CompositeTypeHash,
			IsToplevel:        d.IsToplevel,
			Fields:            cloneFields(d.Fields),
		}, nil
	case KindType:
		return &TypeEntry{
			ID:                d.ID,
			Type:              d.Type,
			NamedTypeHash:     d.TypeHash,
			CompositeTypeHash: d.CompositeTypeHash,
		}, nil
	default:
		return nil, fmt.Errorf("document %s has invalid kind %d", d.ID, d.Kind)
	}
}

// EncodeDocument serializes d to canonical JSON. Equal documents always
// encode to identical bytes.
func EncodeDocument(d Document) ([]byte, error) {
	obj := map[string]any{
		"_id":                 d.ID,
		"kind":                d.Kind.String(),
		"named_type":          d.Type,
		"named_type_hash":     d.TypeHash,
		"composite_type_hash": d.CompositeTypeHash,
	}
	if d.Name != "" {
		obj["name"] = d.Name
	}
	if len(d.Targets) > 0 {
		targets := make([]any, len(d.Targets))
		for i, t := range d.Targets {
			targets[i] = t
		}
		obj["targets"] = targets
	}
	if d.CompositeType != nil {
		obj["composite_type"] = shapeToValue(*d.CompositeType)
	}
	if d.IsToplevel {
		obj["is_toplevel"] = true
	}
	if len(d.Fields) > 0 {
		obj["fields"] = d.Fields
	}

	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	return data, nil
}

// DecodeDocument parses the output of EncodeDocument.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var d Document
	if err := dec.Decode(&d); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	fields, err := normalizeNumbers(d.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	if fields != nil {
		d.Fields = fields.(map[string]any)
	}
	return d, nil
}

func shapeToValue(s TypeShape) any {
	if s.IsLeaf() {
		return s.Hash
	}
	items := make([]any, 0, len(s.Targets)+1)
	items = append(items, s.Hash)
	for _, t := range s.Targets {
		items = append(items, shapeToValue(t))
	}
	return items
}
