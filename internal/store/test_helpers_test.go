package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/backend/memory"
	"github.com/roach88/hyperdb/internal/testutil"
)

// createTestStore creates a store over a fresh in-memory backend.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return New(memory.New(), Options{})
}

// createAnimalsStore creates a store holding the animals knowledge base and
// returns it with the concept handles by name.
func createAnimalsStore(t *testing.T) (*Store, map[string]string) {
	t.Helper()
	s := createTestStore(t)
	return s, testutil.LoadAnimals(t, s)
}

func concept(name string) atom.Desc {
	return testutil.Concept(name)
}

func mustAddLink(t *testing.T, s *Store, typ string, targets ...atom.Desc) *atom.Link {
	t.Helper()
	l, err := s.AddLink(context.Background(), typ, targets, true, nil)
	require.NoError(t, err)
	return l
}

func handles(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Handle
	}
	return out
}

var errInjected = errors.New("injected failure")

// failingBackend fails every Put while fail is set.
type failingBackend struct {
	backend.Backend
	fail bool
}

func (b *failingBackend) Put(ctx context.Context, docs []atom.Document) error {
	if b.fail {
		return errInjected
	}
	return b.Backend.Put(ctx, docs)
}
