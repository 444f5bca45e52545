// Package badger is a key-value backend on BadgerDB.
//
// Documents live under "<partition>/<handle>" as canonical JSON. A second
// key space "seq/<partition>/<seq>" maps a commit sequence number to the
// handle, so prefix iteration replays insertion order. Puts collect in a
// pending buffer that Commit flushes as one WriteBatch.
package badger

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
)

const seqLeaseBandwidth = 128

var seqKeyName = []byte("meta/seq")

// Config holds configuration for Open.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Backend stores documents in a BadgerDB instance.
type Backend struct {
	db      *badger.DB
	logger  *slog.Logger
	mu      sync.Mutex
	seq     *badger.Sequence
	pending *backend.Buffer
}

var _ backend.Backend = (*Backend)(nil)

// Open opens a BadgerDB at cfg.Path, or in memory.
func Open(cfg Config) (*Backend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence(seqKeyName, seqLeaseBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open badger sequence: %w", err)
	}

	return &Backend{
		db:      db,
		logger:  logger,
		seq:     seq,
		pending: backend.NewBuffer(),
	}, nil
}

func docKey(partition, handle string) []byte {
	return []byte(partition + "/" + handle)
}

func docPrefix(partition string) []byte {
	return []byte(partition + "/")
}

func seqPrefix(partition string) []byte {
	return []byte("seq/" + partition + "/")
}

func seqKey(partition string, seq uint64) []byte {
	prefix := seqPrefix(partition)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func (b *Backend) read(txn *badger.Txn, partition, handle string) (atom.Document, bool, error) {
	item, err := txn.Get(docKey(partition, handle))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return atom.Document{}, false, nil
	}
	if err != nil {
		return atom.Document{}, false, err
	}
	var d atom.Document
	err = item.Value(func(val []byte) error {
		var derr error
		d, derr = atom.DecodeDocument(val)
		return derr
	})
	if err != nil {
		return atom.Document{}, false, err
	}
	return d, true, nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, handle string, arity int) (atom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d, ok := b.pending.Get(handle, arity); ok {
		return d, nil
	}

	var (
		doc   atom.Document
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		for _, p := range backend.PartitionsForHint(arity) {
			d, ok, err := b.read(txn, p, handle)
			if err != nil {
				return err
			}
			if ok {
				doc, found = d, true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return atom.Document{}, fmt.Errorf("get %s: %w", handle, err)
	}
	if !found {
		return atom.Document{}, backend.NotFound(handle)
	}
	return doc, nil
}

// Put implements backend.Backend. Handles already committed or pending are
// skipped.
func (b *Backend) Put(ctx context.Context, docs []atom.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.View(func(txn *badger.Txn) error {
		for _, d := range docs {
			if b.pending.Has(d.ID) {
				continue
			}
			_, err := txn.Get(docKey(backend.PartitionOf(d), d.ID))
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("put %s: %w", d.ID, err)
			}
			b.pending.Add(d)
		}
		return nil
	})
}

// Commit flushes the pending buffer as one WriteBatch.
func (b *Backend) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending.Len() == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	docs := b.pending.Docs()
	for _, d := range docs {
		data, err := atom.EncodeDocument(d)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		n, err := b.seq.Next()
		if err != nil {
			return fmt.Errorf("commit: next seq: %w", err)
		}
		p := backend.PartitionOf(d)
		if err := wb.Set(docKey(p, d.ID), data); err != nil {
			return fmt.Errorf("commit: write %s: %w", d.ID, err)
		}
		if err := wb.Set(seqKey(p, n), []byte(d.ID)); err != nil {
			return fmt.Errorf("commit: index %s: %w", d.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	b.pending.Reset()
	b.logger.Debug("badger commit", "documents", len(docs))
	return nil
}

type seqDoc struct {
	seq uint64
	doc atom.Document
}

// Scan implements backend.Backend. Committed documents come first in commit
// order, then pending ones in the order they were put.
func (b *Backend) Scan(ctx context.Context, kind atom.Kind, fn func(atom.Document) error) error {
	docs, err := b.snapshot(kind)
	if err != nil {
		return err
	}
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

func (b *Backend) snapshot(kind atom.Kind) ([]atom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var committed []seqDoc
	err := b.db.View(func(txn *badger.Txn) error {
		for _, p := range backend.PartitionsForKind(kind) {
			prefix := seqPrefix(p)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				n := binary.BigEndian.Uint64(item.Key()[len(prefix):])
				handle, err := item.ValueCopy(nil)
				if err != nil {
					it.Close()
					return err
				}
				d, ok, err := b.read(txn, p, string(handle))
				if err != nil {
					it.Close()
					return err
				}
				if ok {
					committed = append(committed, seqDoc{seq: n, doc: d})
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}

	slices.SortFunc(committed, func(x, y seqDoc) int {
		return cmp.Compare(x.seq, y.seq)
	})
	docs := make([]atom.Document, 0, len(committed))
	for _, c := range committed {
		docs = append(docs, c.doc)
	}
	for _, d := range b.pending.Docs() {
		if d.Kind == kind {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// Count implements backend.Backend.
func (b *Backend) Count(ctx context.Context) (backend.Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var c backend.Counts
	err := b.db.View(func(txn *badger.Txn) error {
		for _, p := range backend.Partitions {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = docPrefix(p)

			n := 0
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			it.Close()

			switch p {
			case backend.PartitionNodes:
				c.Nodes += n
			case backend.PartitionTypes:
				c.Types += n
			default:
				c.Links += n
			}
		}
		return nil
	})
	if err != nil {
		return backend.Counts{}, fmt.Errorf("count: %w", err)
	}
	return c.Add(b.pending.Count()), nil
}

// Clear drops every key and the pending buffer. The sequence restarts.
func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.seq.Release(); err != nil {
		return fmt.Errorf("clear: release sequence: %w", err)
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	seq, err := b.db.GetSequence(seqKeyName, seqLeaseBandwidth)
	if err != nil {
		return fmt.Errorf("clear: reopen sequence: %w", err)
	}
	b.seq = seq
	b.pending.Reset()
	return nil
}

// Close releases the sequence and closes the database. Pending documents are
// discarded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	if n := b.pending.Len(); n > 0 {
		b.logger.Warn("badger backend closed with uncommitted documents", "documents", n)
	}
	var errs []error
	if err := b.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := b.db.Close(); err != nil {
		errs = append(errs, err)
	}
	b.db = nil
	return errors.Join(errs...)
}
