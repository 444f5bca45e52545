package badger

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/backend/backendtest"
)

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return b
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestSeqKeysSortNumerically(t *testing.T) {
	k9 := seqKey(backend.PartitionNodes, 9)
	k10 := seqKey(backend.PartitionNodes, 10)
	k256 := seqKey(backend.PartitionNodes, 256)

	assert.True(t, bytes.HasPrefix(k9, []byte("seq/nodes/")))
	assert.Negative(t, bytes.Compare(k9, k10))
	assert.Negative(t, bytes.Compare(k10, k256))
}

func TestReopenKeepsOnlyCommitted(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	committed := []atom.Document{
		backendtest.NodeDoc(t, "Concept", "monkey", nil),
		backendtest.NodeDoc(t, "Concept", "human", nil),
		backendtest.LinkDoc(t, "Similarity", "human", "monkey"),
	}
	pending := backendtest.NodeDoc(t, "Concept", "chimp", nil)

	b, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, committed))
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, b.Put(ctx, []atom.Document{pending}))
	require.NoError(t, b.Close())

	b, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, committed[2].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, committed[2], got)

	_, err = b.Get(ctx, pending.ID, 0)
	assert.ErrorIs(t, err, atom.ErrAtomNotFound)

	require.NoError(t, b.Put(ctx, []atom.Document{backendtest.NodeDoc(t, "Concept", "ape", nil)}))
	require.NoError(t, b.Commit(ctx))

	var names []string
	require.NoError(t, b.Scan(ctx, atom.KindNode, func(d atom.Document) error {
		names = append(names, d.Name)
		return nil
	}))
	assert.Equal(t, []string{"monkey", "human", "ape"}, names)
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := &badgerLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Warningf("value log %d", 3)
	l.Debugf("compaction")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "value log 3")
	assert.Contains(t, buf.String(), "compaction")
}
