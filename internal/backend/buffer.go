package backend

import (
	"github.com/roach88/hyperdb/internal/atom"
)

// Buffer holds documents written but not yet committed, in insertion order.
// It is not safe for concurrent use; owners guard it with their own lock.
type Buffer struct {
	docs  map[string]atom.Document
	order []string
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{docs: make(map[string]atom.Document)}
}

// Add appends d unless its handle is already buffered.
func (b *Buffer) Add(d atom.Document) bool {
	if _, ok := b.docs[d.ID]; ok {
		return false
	}
	b.docs[d.ID] = d
	b.order = append(b.order, d.ID)
	return true
}

// Get returns the buffered document for handle, restricted to the partitions
// searched for the arity hint.
func (b *Buffer) Get(handle string, arity int) (atom.Document, bool) {
	d, ok := b.docs[handle]
	if !ok {
		return atom.Document{}, false
	}
	for _, p := range PartitionsForHint(arity) {
		if PartitionOf(d) == p {
			return d, true
		}
	}
	return atom.Document{}, false
}

// Has reports whether handle is buffered.
func (b *Buffer) Has(handle string) bool {
	_, ok := b.docs[handle]
	return ok
}

// Docs returns buffered documents in insertion order.
func (b *Buffer) Docs() []atom.Document {
	out := make([]atom.Document, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.docs[id])
	}
	return out
}

// Count tallies buffered documents per kind.
func (b *Buffer) Count() Counts {
	var c Counts
	for _, d := range b.docs {
		c.add(d.Kind, 1)
	}
	return c
}

// Len is the number of buffered documents.
func (b *Buffer) Len() int {
	return len(b.order)
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.docs = make(map[string]atom.Document)
	b.order = nil
}

func (c *Counts) add(kind atom.Kind, n int) {
	switch kind {
	case atom.KindNode:
		c.Nodes += n
	case atom.KindLink:
		c.Links += n
	case atom.KindType:
		c.Types += n
	}
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{Nodes: c.Nodes + o.Nodes, Links: c.Links + o.Links, Types: c.Types + o.Types}
}
