package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/hashing"
	"github.com/roach88/hyperdb/internal/pattern"
)

// QueryOptions refines link queries.
type QueryOptions struct {
	// ToplevelOnly drops links that were only ever stored as targets of
	// other links.
	ToplevelOnly bool `json:"toplevel_only"`
}

// maxOrderings caps the target orderings looked up for an unordered link
// type. Beyond it the type's links are scanned instead.
const maxOrderings = 720

// GetNodeHandle returns the handle of the node with the given type and name.
func (s *Store) GetNodeHandle(ctx context.Context, typ, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := hashing.TerminalHash(typ, name)
	if _, err := s.node(ctx, h); err != nil {
		return "", err
	}
	return h, nil
}

// GetLinkHandle returns the handle of the link with the given type and
// exactly ordered targets.
func (s *Store) GetLinkHandle(ctx context.Context, typ string, targets []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := hashing.ExpressionHash(hashing.NamedTypeHash(typ), targets)
	if _, ok := s.outgoing[h]; !ok {
		return "", atom.NewNotFoundError(atom.CodeLinkNotFound, h)
	}
	return h, nil
}

// NodeExists reports whether the node is stored.
func (s *Store) NodeExists(ctx context.Context, typ, name string) bool {
	_, err := s.GetNodeHandle(ctx, typ, name)
	return err == nil
}

// LinkExists reports whether the link is stored.
func (s *Store) LinkExists(ctx context.Context, typ string, targets []string) bool {
	_, err := s.GetLinkHandle(ctx, typ, targets)
	return err == nil
}

// node loads the node stored under handle.
func (s *Store) node(ctx context.Context, handle string) (*atom.Node, error) {
	doc, err := s.backend.Get(ctx, handle, 0)
	if atom.IsNotFound(err) {
		return nil, atom.NewNotFoundError(atom.CodeNodeNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", handle, err)
	}
	a, err := doc.Atom()
	if err != nil {
		return nil, err
	}
	n, ok := a.(*atom.Node)
	if !ok {
		return nil, atom.NewNotFoundError(atom.CodeNodeNotFound, handle)
	}
	return n, nil
}

// link loads the link stored under handle.
func (s *Store) link(ctx context.Context, handle string) (*atom.Link, error) {
	targets, ok := s.outgoing[handle]
	if !ok {
		return nil, atom.NewNotFoundError(atom.CodeLinkNotFound, handle)
	}
	doc, err := s.backend.Get(ctx, handle, len(targets))
	if atom.IsNotFound(err) {
		return nil, atom.NewNotFoundError(atom.CodeLinkNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("get link %s: %w", handle, err)
	}
	a, err := doc.Atom()
	if err != nil {
		return nil, err
	}
	return a.(*atom.Link), nil
}

// GetAtom returns the node, link or type entry stored under handle.
func (s *Store) GetAtom(ctx context.Context, handle string) (atom.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arity := backend.AnyArity
	if targets, ok := s.outgoing[handle]; ok {
		arity = len(targets)
	}
	doc, err := s.backend.Get(ctx, handle, arity)
	if err != nil {
		return nil, err
	}
	return doc.Atom()
}

// GetNodeName returns the name of the node stored under handle.
func (s *Store) GetNodeName(ctx context.Context, handle string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.node(ctx, handle)
	if err != nil {
		return "", err
	}
	return n.Name, nil
}

// GetNodeType returns the type of the node stored under handle.
func (s *Store) GetNodeType(ctx context.Context, handle string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.node(ctx, handle)
	if err != nil {
		return "", err
	}
	return n.Type, nil
}

// GetLinkType returns the type of the link stored under handle.
func (s *Store) GetLinkType(ctx context.Context, handle string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, err := s.link(ctx, handle)
	if err != nil {
		return "", err
	}
	return l.Type, nil
}

// GetLinkTargets returns the ordered targets of a link.
func (s *Store) GetLinkTargets(ctx context.Context, handle string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets, ok := s.outgoing[handle]
	if !ok {
		return nil, atom.NewNotFoundError(atom.CodeLinkNotFound, handle)
	}
	return slices.Clone(targets), nil
}

// GetIncoming returns the links that have handle as a target, in the order
// they were added.
func (s *Store) GetIncoming(ctx context.Context, handle string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.incoming[handle]))
	copy(out, s.incoming[handle])
	return out
}

// GetAllLinks returns the handles of every link of the given type.
func (s *Store) GetAllLinks(ctx context.Context, linkType string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.templates[hashing.NamedTypeHash(linkType)]
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Handle
	}
	return out
}

// GetMatchedLinks finds links by type and targets, where either the type or
// any target may be the wildcard "*".
//
// Without wildcards it is an exact lookup that fails with LINK_NOT_FOUND when
// nothing matches. With wildcards it reads the pattern index and returns an
// empty result when nothing matches. For unordered link types every distinct
// ordering of targets is tried and the results are merged.
func (s *Store) GetMatchedLinks(ctx context.Context, linkType string, targets []string, opts QueryOptions) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.query("matched_links")

	exact := !hashing.IsWildcard(linkType) && !hashing.ContainsWildcard(targets)
	typeComponent := hashing.Wildcard
	if !hashing.IsWildcard(linkType) {
		typeComponent = hashing.NamedTypeHash(linkType)
	}

	var r results
	orders, ok := s.orderings(linkType, targets)
	switch {
	case !ok:
		for _, m := range s.templates[typeComponent] {
			if sameMultiset(targets, m.Targets) {
				r.add(m)
			}
		}
	case exact:
		for _, o := range orders {
			h := hashing.ExpressionHash(typeComponent, o)
			if t, ok := s.outgoing[h]; ok {
				r.add(Match{Handle: h, Targets: t})
			}
		}
	default:
		for _, o := range orders {
			for _, m := range s.patterns[pattern.QueryKey(typeComponent, o)] {
				r.add(m)
			}
		}
	}

	if exact && len(r.matches) == 0 {
		return nil, atom.NewNotFoundError(atom.CodeLinkNotFound, hashing.ExpressionHash(typeComponent, targets))
	}
	return s.filter(ctx, r.matches, opts)
}

// GetMatchedTypeTemplate returns the links whose nested composite type has
// exactly the shape of tmpl.
func (s *Store) GetMatchedTypeTemplate(ctx context.Context, tmpl atom.Template, opts QueryOptions) ([]Match, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("template query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.query("matched_type_template")

	return s.filter(ctx, s.templates[tmpl.Hash()], opts)
}

// GetMatchedType returns every link of the given named type, whatever the
// types of its targets.
func (s *Store) GetMatchedType(ctx context.Context, linkType string, opts QueryOptions) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.query("matched_type")

	return s.filter(ctx, s.templates[hashing.NamedTypeHash(linkType)], opts)
}

// GetAllNodes returns the nodes of the given type in insertion order, as
// handles or, when names is set, as names.
func (s *Store) GetAllNodes(ctx context.Context, nodeType string, names bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.query("all_nodes")

	typeHash := hashing.NamedTypeHash(nodeType)
	out := []string{}
	err := s.backend.Scan(ctx, atom.KindNode, func(d atom.Document) error {
		if d.CompositeTypeHash != typeHash {
			return nil
		}
		if names {
			out = append(out, d.Name)
		} else {
			out = append(out, d.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get all nodes: %w", err)
	}
	return out, nil
}

// CountAtoms returns the number of stored nodes and links.
func (s *Store) CountAtoms(ctx context.Context) (nodes, links int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.backend.Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count atoms: %w", err)
	}
	return c.Nodes, c.Links, nil
}

// filter copies matches, dropping non-toplevel links when asked to. Each
// link's flag is read back from the backend.
func (s *Store) filter(ctx context.Context, matches []Match, opts QueryOptions) ([]Match, error) {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if opts.ToplevelOnly {
			doc, err := s.backend.Get(ctx, m.Handle, len(m.Targets))
			if err != nil {
				return nil, fmt.Errorf("toplevel filter: %w", err)
			}
			if !doc.IsToplevel {
				continue
			}
		}
		out = append(out, Match{Handle: m.Handle, Targets: slices.Clone(m.Targets)})
	}
	return out, nil
}

// results accumulates matches without duplicates, in first-seen order.
type results struct {
	seen    map[string]bool
	matches []Match
}

func (r *results) add(m Match) {
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[m.Handle] {
		return
	}
	r.seen[m.Handle] = true
	r.matches = append(r.matches, m)
}

// orderings returns the target lists to look up for linkType: targets itself
// for ordered types, otherwise every distinct permutation with targets
// first. ok is false when there are more than maxOrderings.
func (s *Store) orderings(linkType string, targets []string) ([][]string, bool) {
	if s.IsOrdered(linkType) {
		return [][]string{targets}, true
	}
	out := [][]string{targets}
	perm := slices.Clone(targets)
	slices.Sort(perm)
	for {
		if !slices.Equal(perm, targets) {
			if len(out) == maxOrderings {
				return nil, false
			}
			out = append(out, slices.Clone(perm))
		}
		if !nextPermutation(perm) {
			return out, true
		}
	}
}

// nextPermutation rearranges p into its lexicographic successor and reports
// false once p is the last permutation. Equal elements yield no repeats.
func nextPermutation(p []string) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	slices.Reverse(p[i+1:])
	return true
}

// sameMultiset reports whether targets is a reordering of query, where a
// wildcard in query stands for any one handle.
func sameMultiset(query, targets []string) bool {
	if len(query) != len(targets) {
		return false
	}
	counts := make(map[string]int, len(targets))
	for _, t := range targets {
		counts[t]++
	}
	for _, q := range query {
		if hashing.IsWildcard(q) {
			continue
		}
		if counts[q] == 0 {
			return false
		}
		counts[q]--
	}
	return true
}
