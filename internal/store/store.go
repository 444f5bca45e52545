// Package store is the atom store: it builds nodes and links, deduplicates
// them by handle, registers their types and maintains the four indexes that
// queries read.
//
// Indexes:
//   - outgoing: link handle to its ordered targets
//   - incoming: atom handle to the links that target it
//   - templates: composite type hash and named type hash to links
//   - patterns: every wildcard-masked key of a link to the link
//
// Indexes live in memory and are never authoritative. Reindex rebuilds them
// from the backend.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/hashing"
	"github.com/roach88/hyperdb/internal/pattern"
)

// DefaultMaxArity bounds the number of targets per link. The pattern index
// holds 2^(arity+1)-1 keys per link.
const DefaultMaxArity = 10

// DefaultUnorderedTypes are the link types whose target order is ignored by
// queries unless configured otherwise.
var DefaultUnorderedTypes = []string{"Similarity", "Set"}

// Options configures New.
type Options struct {
	// UnorderedTypes lists link types queried without regard to target
	// order. Nil selects DefaultUnorderedTypes; an empty non-nil slice
	// makes every type ordered.
	UnorderedTypes []string

	// MaxDepth bounds link nesting. Zero selects atom.DefaultMaxDepth.
	MaxDepth int

	// MaxArity bounds targets per link. Zero selects DefaultMaxArity.
	MaxArity int

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
}

// Match is a link returned by a query, with its ordered targets.
type Match struct {
	Handle  string   `json:"handle"`
	Targets []string `json:"targets"`
}

// Store owns the indexes over atoms persisted in a backend. It is safe for
// concurrent use: mutations take the write lock, queries the read lock.
type Store struct {
	mu        sync.RWMutex
	backend   backend.Backend
	logger    *slog.Logger
	metrics   *Metrics
	unordered map[string]bool
	maxDepth  int
	maxArity  int

	types     map[string]struct{}
	outgoing  map[string][]string
	incoming  map[string][]string
	templates map[string][]Match
	patterns  map[string][]Match
}

// New returns a store over b with empty indexes. Call Reindex when b already
// holds atoms.
func New(b backend.Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	unorderedTypes := opts.UnorderedTypes
	if unorderedTypes == nil {
		unorderedTypes = DefaultUnorderedTypes
	}
	unordered := make(map[string]bool, len(unorderedTypes))
	for _, t := range unorderedTypes {
		unordered[t] = true
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = atom.DefaultMaxDepth
	}
	maxArity := opts.MaxArity
	if maxArity <= 0 {
		maxArity = DefaultMaxArity
	}

	s := &Store{
		backend:   b,
		logger:    logger,
		metrics:   opts.Metrics,
		unordered: unordered,
		maxDepth:  maxDepth,
		maxArity:  maxArity,
	}
	s.resetIndexes()
	return s
}

func (s *Store) resetIndexes() {
	s.types = make(map[string]struct{})
	s.outgoing = make(map[string][]string)
	s.incoming = make(map[string][]string)
	s.templates = make(map[string][]Match)
	s.patterns = make(map[string][]Match)
}

// Backend returns the backend the store writes to.
func (s *Store) Backend() backend.Backend {
	return s.backend
}

// IsOrdered reports whether target order matters when querying linkType.
func (s *Store) IsOrdered(linkType string) bool {
	return !s.unordered[linkType]
}

// batch collects the documents and index work of one insertion. Nothing in
// it touches the store until the backend accepts the documents.
type batch struct {
	docs   []atom.Document
	staged map[string]atom.Atom
	links  []*atom.Link
	types  map[string]struct{}
	dedup  map[atom.Kind]int
}

func newBatch() *batch {
	return &batch{
		staged: make(map[string]atom.Atom),
		types:  make(map[string]struct{}),
		dedup:  make(map[atom.Kind]int),
	}
}

// AddNode stores a node, or returns the stored node with the same type and
// name. Fields of an existing node are left untouched.
func (s *Store) AddNode(ctx context.Context, typ, name string, fields map[string]any) (*atom.Node, error) {
	a, err := s.add(ctx, atom.NodeDesc(typ, name).WithFields(fields), true)
	if err != nil {
		return nil, err
	}
	return a.(*atom.Node), nil
}

// AddLink stores a link and any nested targets not yet stored. Nested links
// are stored with IsToplevel false. An existing link is returned unchanged.
func (s *Store) AddLink(ctx context.Context, typ string, targets []atom.Desc, toplevel bool, fields map[string]any) (*atom.Link, error) {
	if len(targets) == 0 {
		return nil, atom.NewAddLinkError(fmt.Sprintf("link targets are required (type %q)", typ), nil)
	}
	a, err := s.add(ctx, atom.LinkDesc(typ, targets...).WithFields(fields), toplevel)
	if err != nil {
		return nil, err
	}
	return a.(*atom.Link), nil
}

// Add stores d as a node or a toplevel link.
func (s *Store) Add(ctx context.Context, d atom.Desc) (atom.Atom, error) {
	return s.add(ctx, d, true)
}

func (s *Store) add(ctx context.Context, d atom.Desc, toplevel bool) (atom.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := newBatch()
	a, err := s.resolve(ctx, b, d, 0, toplevel)
	if err != nil {
		return nil, err
	}
	if len(b.docs) > 0 {
		if err := s.backend.Put(ctx, b.docs); err != nil {
			return nil, fmt.Errorf("store %s: %w", a.Handle(), err)
		}
	}
	s.apply(b)
	return a, nil
}

func (s *Store) resolve(ctx context.Context, b *batch, d atom.Desc, depth int, toplevel bool) (atom.Atom, error) {
	if !d.IsLink() {
		n, err := atom.NewNode(d.Type, d.Name, d.Fields)
		if err != nil {
			return nil, err
		}
		return s.stage(ctx, b, n, 0)
	}

	if depth >= s.maxDepth {
		return nil, atom.NewCyclicStructureError(d.Type, s.maxDepth)
	}
	if len(d.Targets) > s.maxArity {
		return nil, atom.NewArityExceededError(d.Type, len(d.Targets), s.maxArity)
	}
	targets := make([]atom.Atom, len(d.Targets))
	for i, td := range d.Targets {
		t, err := s.resolve(ctx, b, td, depth+1, false)
		if err != nil {
			return nil, atom.WrapTargetError(d.Type, i, err)
		}
		targets[i] = t
	}
	l, err := atom.NewLink(d.Type, targets, toplevel, d.Fields)
	if err != nil {
		return nil, err
	}
	return s.stage(ctx, b, l, l.Arity())
}

// stage returns the stored version of a when one exists. Otherwise it queues
// a for writing along with its type entry. Every occurrence that resolves to
// an existing atom counts as a dedup, including repeats within one insertion.
func (s *Store) stage(ctx context.Context, b *batch, a atom.Atom, arity int) (atom.Atom, error) {
	if prev, ok := b.staged[a.Handle()]; ok {
		b.dedup[a.Kind()]++
		return prev, nil
	}
	doc, err := s.backend.Get(ctx, a.Handle(), arity)
	switch {
	case err == nil:
		prev, err := doc.Atom()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", a.Handle(), err)
		}
		b.staged[a.Handle()] = prev
		b.dedup[a.Kind()]++
		return prev, nil
	case !atom.IsNotFound(err):
		return nil, fmt.Errorf("load %s: %w", a.Handle(), err)
	}

	b.staged[a.Handle()] = a
	b.docs = append(b.docs, atom.NewDocument(a))
	if l, ok := a.(*atom.Link); ok {
		b.links = append(b.links, l)
	}
	s.registerType(b, typeOf(a))
	return a, nil
}

func typeOf(a atom.Atom) string {
	switch v := a.(type) {
	case *atom.Node:
		return v.Type
	case *atom.Link:
		return v.Type
	case *atom.TypeEntry:
		return v.Type
	}
	return ""
}

// registerType queues the type entry for typ unless it is already known.
func (s *Store) registerType(b *batch, typ string) {
	key := hashing.TypeKey(typ)
	if _, ok := s.types[key]; ok {
		return
	}
	if _, ok := b.types[key]; ok {
		return
	}
	b.types[key] = struct{}{}
	b.docs = append(b.docs, atom.NewDocument(atom.NewTypeEntry(typ)))
}

// apply commits a written batch to the indexes.
func (s *Store) apply(b *batch) {
	for key := range b.types {
		s.types[key] = struct{}{}
	}
	for _, l := range b.links {
		s.index(l)
	}
	for _, d := range b.docs {
		if d.Kind != atom.KindType {
			s.metrics.added(d.Kind.String())
		}
	}
	for kind, n := range b.dedup {
		s.metrics.deduplicated(kind.String(), n)
	}
	if len(b.docs) > 0 {
		s.logger.Debug("atoms stored", "documents", len(b.docs), "links", len(b.links))
		s.metrics.indexSizes(s.stats())
	}
}

// index performs the four index updates for a new link.
func (s *Store) index(l *atom.Link) {
	m := Match{Handle: l.ID, Targets: l.Targets}

	s.outgoing[l.ID] = l.Targets

	for _, t := range l.Targets {
		s.incoming[t] = append(s.incoming[t], l.ID)
	}

	s.templates[l.CompositeTypeHash] = append(s.templates[l.CompositeTypeHash], m)
	if l.TypeHash != l.CompositeTypeHash {
		s.templates[l.TypeHash] = append(s.templates[l.TypeHash], m)
	}

	hashes := make([]string, 0, len(l.Targets)+1)
	hashes = append(hashes, l.TypeHash)
	hashes = append(hashes, l.Targets...)
	keys := pattern.Keys(hashes)
	for _, key := range keys {
		s.patterns[key] = append(s.patterns[key], m)
	}
	s.metrics.patternKeys(len(keys))
}

// Commit makes every stored atom durable in the backend.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear removes every atom and empties the indexes.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.resetIndexes()
	s.metrics.indexSizes(s.stats())
	s.logger.Info("database cleared")
	return nil
}

// Reindex rebuilds every index from the backend's contents.
func (s *Store) Reindex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetIndexes()

	err := s.backend.Scan(ctx, atom.KindType, func(d atom.Document) error {
		s.types[d.ID] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindex types: %w", err)
	}

	links := 0
	err = s.backend.Scan(ctx, atom.KindLink, func(d atom.Document) error {
		a, err := d.Atom()
		if err != nil {
			return err
		}
		s.index(a.(*atom.Link))
		links++
		return nil
	})
	if err != nil {
		s.resetIndexes()
		return fmt.Errorf("reindex links: %w", err)
	}

	st := s.stats()
	s.metrics.indexSizes(st)
	s.logger.Info("indexes rebuilt", "links", links, "types", st.Types, "pattern_keys", st.Patterns)
	return nil
}

// Stats is the number of keys in each index.
type Stats struct {
	Outgoing  int `json:"outgoing"`
	Incoming  int `json:"incoming"`
	Templates int `json:"templates"`
	Patterns  int `json:"patterns"`
	Types     int `json:"types"`
}

// Stats reports index sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats()
}

func (s *Store) stats() Stats {
	return Stats{
		Outgoing:  len(s.outgoing),
		Incoming:  len(s.incoming),
		Templates: len(s.templates),
		Patterns:  len(s.patterns),
		Types:     len(s.types),
	}
}
