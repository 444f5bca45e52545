// Package backendtest is a conformance suite every backend.Backend
// implementation runs from its own tests.
package backendtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
)

// Factory opens a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) backend.Backend

// Run executes the conformance suite against backends built by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b backend.Backend)
	}{
		{"PutGetNode", testPutGetNode},
		{"PutGetLinksByArity", testPutGetLinksByArity},
		{"GetMiss", testGetMiss},
		{"FirstWriteWins", testFirstWriteWins},
		{"FirstWriteWinsAfterCommit", testFirstWriteWinsAfterCommit},
		{"ScanInsertionOrder", testScanInsertionOrder},
		{"ScanStopsOnError", testScanStopsOnError},
		{"Count", testCount},
		{"Clear", testClear},
		{"VisibleAfterCommit", testVisibleAfterCommit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() { b.Close() })
			tt.fn(t, b)
		})
	}
}

// NodeDoc builds the document of a node.
func NodeDoc(t *testing.T, typ, name string, fields map[string]any) atom.Document {
	t.Helper()
	n, err := atom.NewNode(typ, name, fields)
	require.NoError(t, err)
	return atom.NewDocument(n)
}

// LinkDoc builds the document of a toplevel link over nodes of type "Concept".
func LinkDoc(t *testing.T, typ string, names ...string) atom.Document {
	t.Helper()
	targets := make([]atom.Atom, len(names))
	for i, name := range names {
		n, err := atom.NewNode("Concept", name, nil)
		require.NoError(t, err)
		targets[i] = n
	}
	l, err := atom.NewLink(typ, targets, true, nil)
	require.NoError(t, err)
	return atom.NewDocument(l)
}

func testPutGetNode(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	doc := NodeDoc(t, "Concept", "human", map[string]any{"label": "Human"})

	require.NoError(t, b.Put(ctx, []atom.Document{doc}))

	got, err := b.Get(ctx, doc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	got, err = b.Get(ctx, doc.ID, backend.AnyArity)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func testPutGetLinksByArity(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	docs := []atom.Document{
		LinkDoc(t, "Unary", "a"),
		LinkDoc(t, "Similarity", "a", "b"),
		LinkDoc(t, "Triple", "a", "b", "c"),
		LinkDoc(t, "Quad", "a", "b", "c", "d"),
	}
	require.NoError(t, b.Put(ctx, docs))

	for _, doc := range docs {
		got, err := b.Get(ctx, doc.ID, doc.Arity())
		require.NoError(t, err, "arity %d", doc.Arity())
		assert.Equal(t, doc, got)

		_, err = b.Get(ctx, doc.ID, 0)
		assert.ErrorIs(t, err, atom.ErrAtomNotFound, "links are not in the node partition")
	}

	_, err := b.Get(ctx, docs[1].ID, 1)
	assert.ErrorIs(t, err, atom.ErrAtomNotFound, "wrong arity hint misses")

	got, err := b.Get(ctx, docs[3].ID, 3)
	require.NoError(t, err, "arity 3 and 4 share the N partition")
	assert.Equal(t, docs[3].ID, got.ID)
}

func testGetMiss(t *testing.T, b backend.Backend) {
	_, err := b.Get(context.Background(), "0123456789abcdef0123456789abcdef", backend.AnyArity)

	assert.ErrorIs(t, err, atom.ErrAtomNotFound)
	assert.True(t, atom.IsNotFound(err))
}

func testFirstWriteWins(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	first := NodeDoc(t, "Concept", "human", map[string]any{"label": "first"})
	second := NodeDoc(t, "Concept", "human", map[string]any{"label": "second"})

	require.NoError(t, b.Put(ctx, []atom.Document{first}))
	require.NoError(t, b.Put(ctx, []atom.Document{second}))

	got, err := b.Get(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Fields["label"])

	counts, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes)
}

func testFirstWriteWinsAfterCommit(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	first := NodeDoc(t, "Concept", "human", map[string]any{"label": "first"})
	second := NodeDoc(t, "Concept", "human", map[string]any{"label": "second"})

	require.NoError(t, b.Put(ctx, []atom.Document{first}))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Put(ctx, []atom.Document{second}))
	require.NoError(t, b.Commit(ctx))

	got, err := b.Get(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Fields["label"])
}

func testScanInsertionOrder(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	names := []string{"zebra", "ant", "monkey", "human"}
	for i, name := range names {
		require.NoError(t, b.Put(ctx, []atom.Document{NodeDoc(t, "Concept", name, nil)}))
		if i == 1 {
			require.NoError(t, b.Commit(ctx))
		}
	}
	require.NoError(t, b.Put(ctx, []atom.Document{LinkDoc(t, "Similarity", "ant", "zebra")}))

	var got []string
	err := b.Scan(ctx, atom.KindNode, func(d atom.Document) error {
		got = append(got, d.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, names, got)

	var links int
	require.NoError(t, b.Scan(ctx, atom.KindLink, func(d atom.Document) error {
		links++
		assert.Equal(t, atom.KindLink, d.Kind)
		return nil
	}))
	assert.Equal(t, 1, links)
}

func testScanStopsOnError(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, []atom.Document{
		NodeDoc(t, "Concept", "a", nil),
		NodeDoc(t, "Concept", "b", nil),
	}))
	stop := errors.New("stop")

	calls := 0
	err := b.Scan(ctx, atom.KindNode, func(atom.Document) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func testCount(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, []atom.Document{
		NodeDoc(t, "Concept", "a", nil),
		NodeDoc(t, "Concept", "b", nil),
		LinkDoc(t, "Similarity", "a", "b"),
		atom.NewDocument(atom.NewTypeEntry("Concept")),
	}))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Put(ctx, []atom.Document{LinkDoc(t, "Triple", "a", "b", "a")}))

	counts, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, backend.Counts{Nodes: 2, Links: 2, Types: 1}, counts)
}

func testClear(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	committed := NodeDoc(t, "Concept", "a", nil)
	pending := NodeDoc(t, "Concept", "b", nil)
	require.NoError(t, b.Put(ctx, []atom.Document{committed}))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Put(ctx, []atom.Document{pending}))

	require.NoError(t, b.Clear(ctx))

	counts, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, backend.Counts{}, counts)
	_, err = b.Get(ctx, committed.ID, 0)
	assert.ErrorIs(t, err, atom.ErrAtomNotFound)
	_, err = b.Get(ctx, pending.ID, 0)
	assert.ErrorIs(t, err, atom.ErrAtomNotFound)

	require.NoError(t, b.Put(ctx, []atom.Document{committed}))
	_, err = b.Get(ctx, committed.ID, 0)
	assert.NoError(t, err, "backend is usable after Clear")
}

func testVisibleAfterCommit(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	doc := LinkDoc(t, "Similarity", "a", "b")

	require.NoError(t, b.Put(ctx, []atom.Document{doc}))
	_, err := b.Get(ctx, doc.ID, 2)
	require.NoError(t, err, "pending documents are readable in-process")

	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Commit(ctx), "empty commit is a no-op")

	got, err := b.Get(ctx, doc.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}
