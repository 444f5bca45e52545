package atom

import "fmt"

// Desc describes a node or a link to insert. It is a link description iff it
// has targets; otherwise Type and Name identify a node.
type Desc struct {
	Type    string         `json:"type" yaml:"type"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Targets []Desc         `json:"targets,omitempty" yaml:"targets,omitempty"`
	Fields  map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// NodeDesc describes a node.
func NodeDesc(typ, name string) Desc {
	return Desc{Type: typ, Name: name}
}

// LinkDesc describes a link over the given targets.
func LinkDesc(typ string, targets ...Desc) Desc {
	return Desc{Type: typ, Targets: targets}
}

// WithFields returns a copy of d carrying fields.
func (d Desc) WithFields(fields map[string]any) Desc {
	d.Fields = fields
	return d
}

// IsLink reports whether d describes a link.
func (d Desc) IsLink() bool {
	return len(d.Targets) > 0
}

// Handle computes the handle d would be stored under, without storing it.
// Malformed descriptions yield the same errors insertion would.
func (d Desc) Handle() (string, error) {
	a, err := d.build(0, DefaultMaxDepth)
	if err != nil {
		return "", err
	}
	return a.Handle(), nil
}

// DefaultMaxDepth bounds link nesting when no limit is configured.
const DefaultMaxDepth = 64

func (d Desc) build(depth, maxDepth int) (Atom, error) {
	if !d.IsLink() {
		return NewNode(d.Type, d.Name, d.Fields)
	}
	if depth >= maxDepth {
		return nil, NewCyclicStructureError(d.Type, maxDepth)
	}
	targets := make([]Atom, len(d.Targets))
	for i, td := range d.Targets {
		t, err := td.build(depth+1, maxDepth)
		if err != nil {
			return nil, WrapTargetError(d.Type, i, err)
		}
		targets[i] = t
	}
	return NewLink(d.Type, targets, depth == 0, d.Fields)
}

// WrapTargetError attributes a target's failure to the enclosing link. A
// malformed node target becomes an ADD_LINK error wrapping the ADD_NODE
// cause; other errors pass through unchanged.
func WrapTargetError(linkType string, index int, err error) error {
	if CodeOf(err) == CodeAddNode {
		return NewAddLinkError(fmt.Sprintf("target %d of %q is not a valid node or link", index, linkType), err)
	}
	return err
}
