// Package sqlite is a document-store backend on SQLite. Writes collect in a
// pending buffer and reach the database only on Commit.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Config configures Open.
type Config struct {
	// Path is the database file. It is created when missing.
	Path string
	// SyncWrites selects synchronous=FULL instead of NORMAL.
	SyncWrites bool
	Logger     *slog.Logger
}

// Backend stores documents in one table per partition.
type Backend struct {
	db      *sql.DB
	logger  *slog.Logger
	clock   *clock
	mu      sync.Mutex
	pending *backend.Buffer
}

var _ backend.Backend = (*Backend)(nil)

// Open creates or opens the database at cfg.Path, applies pragmas and the
// schema, and resumes the logical clock.
func Open(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, cfg.SyncWrites); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	maxSeq, err := loadMaxSeq(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sqlite backend opened", "path", cfg.Path, "seq", maxSeq)
	return &Backend{
		db:      db,
		logger:  logger,
		clock:   newClockAt(maxSeq),
		pending: backend.NewBuffer(),
	}, nil
}

func applyPragmas(db *sql.DB, syncWrites bool) error {
	synchronous := "NORMAL"
	if syncWrites {
		synchronous = "FULL"
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = " + synchronous,
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func loadMaxSeq(db *sql.DB) (int64, error) {
	parts := make([]string, len(backend.Partitions))
	for i, p := range backend.Partitions {
		parts[i] = fmt.Sprintf("SELECT MAX(seq) AS seq FROM %s", p)
	}
	query := "SELECT COALESCE(MAX(seq), 0) FROM (" + strings.Join(parts, " UNION ALL ") + ")"

	var seq int64
	if err := db.QueryRow(query).Scan(&seq); err != nil {
		return 0, fmt.Errorf("load max seq: %w", err)
	}
	return seq, nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, handle string, arity int) (atom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d, ok := b.pending.Get(handle, arity); ok {
		return d, nil
	}
	for _, p := range backend.PartitionsForHint(arity) {
		var raw string
		err := b.db.QueryRowContext(ctx, "SELECT doc FROM "+p+" WHERE id = ?", handle).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return atom.Document{}, fmt.Errorf("get %s: %w", handle, err)
		}
		return atom.DecodeDocument([]byte(raw))
	}
	return atom.Document{}, backend.NotFound(handle)
}

// Put implements backend.Backend. Handles already committed or pending are
// skipped.
func (b *Backend) Put(ctx context.Context, docs []atom.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range docs {
		if b.pending.Has(d.ID) {
			continue
		}
		exists, err := b.committed(ctx, d)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		b.pending.Add(d)
	}
	return nil
}

func (b *Backend) committed(ctx context.Context, d atom.Document) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, "SELECT 1 FROM "+backend.PartitionOf(d)+" WHERE id = ?", d.ID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("put %s: %w", d.ID, err)
	default:
		return true, nil
	}
}

// Commit writes the pending buffer in one transaction and records the batch
// in the commits table.
func (b *Backend) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending.Len() == 0 {
		return nil
	}
	docs := b.pending.Docs()

	type row struct {
		doc  atom.Document
		data []byte
	}
	rows := make([]row, len(docs))
	for i, d := range docs {
		data, err := atom.EncodeDocument(d)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		rows[i] = row{doc: d, data: data}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin: %w", err)
	}
	defer tx.Rollback()

	start := b.clock.current()
	commitID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commits (id, first_seq, last_seq, documents)
		VALUES (?, ?, ?, ?)
	`, commitID, start+1, start+int64(len(rows)), len(rows)); err != nil {
		return fmt.Errorf("commit: record batch: %w", err)
	}

	for i, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+backend.PartitionOf(r.doc)+`
			(id, seq, named_type, doc, commit_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, r.doc.ID, start+int64(i)+1, r.doc.Type, string(r.data), commitID)
		if err != nil {
			return fmt.Errorf("commit: write %s: %w", r.doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for range rows {
		b.clock.next()
	}
	b.pending.Reset()
	b.logger.Debug("sqlite commit", "commit_id", commitID, "documents", len(rows), "seq", b.clock.current())
	return nil
}

// Scan implements backend.Backend. Committed documents come first in seq
// order, then pending ones in the order they were put.
func (b *Backend) Scan(ctx context.Context, kind atom.Kind, fn func(atom.Document) error) error {
	docs, err := b.snapshot(ctx, kind)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) snapshot(ctx context.Context, kind atom.Kind) ([]atom.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parts := backend.PartitionsForKind(kind)
	if len(parts) == 0 {
		return nil, nil
	}
	selects := make([]string, len(parts))
	for i, p := range parts {
		selects[i] = "SELECT seq, doc FROM " + p
	}
	query := strings.Join(selects, " UNION ALL ") + " ORDER BY seq"

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	defer rows.Close()

	var docs []atom.Document
	for rows.Next() {
		var (
			seq int64
			raw string
		)
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		d, err := atom.DecodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
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
	for _, p := range backend.Partitions {
		var n int
		if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p).Scan(&n); err != nil {
			return backend.Counts{}, fmt.Errorf("count %s: %w", p, err)
		}
		switch p {
		case backend.PartitionNodes:
			c.Nodes += n
		case backend.PartitionTypes:
			c.Types += n
		default:
			c.Links += n
		}
	}
	return c.Add(b.pending.Count()), nil
}

// Clear deletes every committed row and drops the pending buffer.
func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range append(append([]string(nil), backend.Partitions...), "commits") {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	b.pending.Reset()
	return nil
}

// CommitRecord describes one committed batch.
type CommitRecord struct {
	ID        string
	FirstSeq  int64
	LastSeq   int64
	Documents int
	CreatedAt string
}

// Commits lists committed batches, oldest first.
func (b *Backend) Commits(ctx context.Context) ([]CommitRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, first_seq, last_seq, documents, created_at
		FROM commits
		ORDER BY first_seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []CommitRecord
	for rows.Next() {
		var r CommitRecord
		if err := rows.Scan(&r.ID, &r.FirstSeq, &r.LastSeq, &r.Documents, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("list commits: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database. Pending documents are discarded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	if n := b.pending.Len(); n > 0 {
		b.logger.Warn("sqlite backend closed with uncommitted documents", "documents", n)
	}
	err := b.db.Close()
	b.db = nil
	return err
}
