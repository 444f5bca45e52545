// Package memory is the reference in-memory backend. Documents are visible
// and considered committed as soon as Put returns.
package memory

import (
	"context"
	"sync"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
)

type entry struct {
	partition string
	handle    string
}

// Backend keeps one map per partition plus the global insertion order.
type Backend struct {
	mu         sync.RWMutex
	partitions map[string]map[string]atom.Document
	order      []entry
}

var _ backend.Backend = (*Backend)(nil)

// New returns an empty in-memory backend.
func New() *Backend {
	b := &Backend{}
	b.reset()
	return b
}

func (b *Backend) reset() {
	b.partitions = make(map[string]map[string]atom.Document, len(backend.Partitions))
	for _, name := range backend.Partitions {
		b.partitions[name] = make(map[string]atom.Document)
	}
	b.order = nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, handle string, arity int) (atom.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, name := range backend.PartitionsForHint(arity) {
		if d, ok := b.partitions[name][handle]; ok {
			return d, nil
		}
	}
	return atom.Document{}, backend.NotFound(handle)
}

// Put implements backend.Backend.
func (b *Backend) Put(ctx context.Context, docs []atom.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range docs {
		if b.has(d.ID) {
			continue
		}
		name := backend.PartitionOf(d)
		b.partitions[name][d.ID] = d
		b.order = append(b.order, entry{partition: name, handle: d.ID})
	}
	return nil
}

func (b *Backend) has(handle string) bool {
	for _, p := range b.partitions {
		if _, ok := p[handle]; ok {
			return true
		}
	}
	return false
}

// Commit is a no-op.
func (b *Backend) Commit(ctx context.Context) error {
	return nil
}

// Scan implements backend.Backend. fn runs outside the lock, so it may call
// back into the backend.
func (b *Backend) Scan(ctx context.Context, kind atom.Kind, fn func(atom.Document) error) error {
	b.mu.RLock()
	wanted := make(map[string]bool)
	for _, name := range backend.PartitionsForKind(kind) {
		wanted[name] = true
	}
	var docs []atom.Document
	for _, e := range b.order {
		if wanted[e.partition] {
			docs = append(docs, b.partitions[e.partition][e.handle])
		}
	}
	b.mu.RUnlock()

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Count implements backend.Backend.
func (b *Backend) Count(ctx context.Context) (backend.Counts, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var c backend.Counts
	c.Nodes = len(b.partitions[backend.PartitionNodes])
	c.Types = len(b.partitions[backend.PartitionTypes])
	for _, name := range backend.PartitionsForKind(atom.KindLink) {
		c.Links += len(b.partitions[name])
	}
	return c, nil
}

// Clear implements backend.Backend.
func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}
