package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/backend"
	"github.com/roach88/hyperdb/internal/backend/badger"
	"github.com/roach88/hyperdb/internal/backend/memory"
	"github.com/roach88/hyperdb/internal/backend/sqlite"
	"github.com/roach88/hyperdb/internal/hashing"
	"github.com/roach88/hyperdb/internal/testutil"
)

const wildcard = hashing.Wildcard

func similarity(h map[string]string, a, b string) Match {
	targets := []string{h[a], h[b]}
	return Match{Handle: hashing.ExpressionHash(hashing.NamedTypeHash("Similarity"), targets), Targets: targets}
}

func inheritance(h map[string]string, a, b string) Match {
	targets := []string{h[a], h[b]}
	return Match{Handle: hashing.ExpressionHash(hashing.NamedTypeHash("Inheritance"), targets), Targets: targets}
}

func TestGetMatchedLinks_ChimpScenario(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"human", "monkey", "chimp"} {
		_, err := s.AddNode(ctx, "Concept", name, nil)
		require.NoError(t, err)
	}
	mustAddLink(t, s, "Similarity", concept("human"), concept("monkey"))
	mustAddLink(t, s, "Similarity", concept("human"), concept("chimp"))
	mustAddLink(t, s, "Similarity", concept("chimp"), concept("monkey"))
	chimp, err := s.GetNodeHandle(ctx, "Concept", "chimp")
	require.NoError(t, err)
	h := map[string]string{
		"human":  hashing.TerminalHash("Concept", "human"),
		"monkey": hashing.TerminalHash("Concept", "monkey"),
		"chimp":  chimp,
	}

	got, err := s.GetMatchedLinks(ctx, "Similarity", []string{wildcard, chimp}, QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []Match{similarity(h, "human", "chimp"), similarity(h, "chimp", "monkey")}, got)
	for _, m := range got {
		assert.Contains(t, m.Targets, chimp)
		assert.Len(t, m.Targets, 2)
	}
}

func TestGetMatchedLinks_OrderedWildcard(t *testing.T) {
	s, h := createAnimalsStore(t)

	got, err := s.GetMatchedLinks(context.Background(), "Inheritance", []string{wildcard, h["mammal"]}, QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []Match{
		inheritance(h, "human", "mammal"),
		inheritance(h, "monkey", "mammal"),
		inheritance(h, "chimp", "mammal"),
		inheritance(h, "rhino", "mammal"),
	}, got)

	got, err = s.GetMatchedLinks(context.Background(), "Inheritance", []string{h["mammal"], wildcard}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Match{inheritance(h, "mammal", "animal")}, got)
}

func TestGetMatchedLinks_WildcardType(t *testing.T) {
	s, h := createAnimalsStore(t)
	ctx := context.Background()

	got, err := s.GetMatchedLinks(ctx, wildcard, []string{h["human"], wildcard}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Match{
		similarity(h, "human", "monkey"),
		similarity(h, "human", "chimp"),
		similarity(h, "human", "ent"),
		inheritance(h, "human", "mammal"),
	}, got)

	got, err = s.GetMatchedLinks(ctx, wildcard, []string{h["human"], h["monkey"]}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Match{similarity(h, "human", "monkey")}, got)

	all, err := s.GetMatchedLinks(ctx, wildcard, []string{wildcard, wildcard}, QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, all, len(testutil.AnimalSimilarities)+len(testutil.AnimalInheritances))
}

func TestGetMatchedLinks_EveryMaskFindsLink(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	l := mustAddLink(t, s, "Rel", concept("a"), concept("b"), concept("c"))

	for _, row := range [][]string{
		{"Rel", wildcard, wildcard, wildcard},
		{"Rel", l.Targets[0], wildcard, wildcard},
		{"Rel", wildcard, l.Targets[1], wildcard},
		{"Rel", wildcard, wildcard, l.Targets[2]},
		{"Rel", l.Targets[0], l.Targets[1], wildcard},
		{"Rel", wildcard, l.Targets[1], l.Targets[2]},
		{"Rel", l.Targets[0], wildcard, l.Targets[2]},
		{wildcard, wildcard, wildcard, wildcard},
		{wildcard, l.Targets[0], l.Targets[1], l.Targets[2]},
		{wildcard, l.Targets[0], wildcard, l.Targets[2]},
		{"Rel", l.Targets[0], l.Targets[1], l.Targets[2]},
	} {
		got, err := s.GetMatchedLinks(ctx, row[0], row[1:], QueryOptions{})
		require.NoError(t, err, "%v", row)
		assert.Equal(t, []string{l.ID}, handles(got), "%v", row)
	}
}

func TestGetMatchedLinks_ExactUnordered(t *testing.T) {
	s, h := createAnimalsStore(t)
	ctx := context.Background()

	got, err := s.GetMatchedLinks(ctx, "Similarity", []string{h["monkey"], h["human"]}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Match{similarity(h, "human", "monkey")}, got)

	_, err = s.GetMatchedLinks(ctx, "Inheritance", []string{h["mammal"], h["human"]}, QueryOptions{})
	assert.ErrorIs(t, err, atom.ErrLinkNotFound)

	_, err = s.GetMatchedLinks(ctx, "Similarity", []string{h["human"], h["snake"]}, QueryOptions{})
	assert.ErrorIs(t, err, atom.ErrLinkNotFound)
}

func TestGetMatchedLinks_UnorderedMergesBothOrders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ab := mustAddLink(t, s, "Set", concept("a"), concept("b"))
	ba := mustAddLink(t, s, "Set", concept("b"), concept("a"))

	got, err := s.GetMatchedLinks(ctx, "Set", []string{ab.Targets[0], ab.Targets[1]}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID, ba.ID}, handles(got))

	got, err = s.GetMatchedLinks(ctx, "Set", []string{ab.Targets[1], wildcard}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{ba.ID, ab.ID}, handles(got))
}

func TestGetMatchedLinks_UnorderedBeyondOrderingCap(t *testing.T) {
	s := New(memory.New(), Options{UnorderedTypes: []string{"Set"}})
	ctx := context.Background()
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	targets := make([]atom.Desc, len(names))
	for i, n := range names {
		targets[i] = concept(n)
	}
	l := mustAddLink(t, s, "Set", targets...)
	mustAddLink(t, s, "Set", concept("x"), concept("y"))

	reversed := make([]string, len(l.Targets))
	for i, h := range l.Targets {
		reversed[len(reversed)-1-i] = h
	}
	got, err := s.GetMatchedLinks(ctx, "Set", reversed, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, handles(got))
	assert.Equal(t, l.Targets, got[0].Targets)

	reversed[0], reversed[3] = wildcard, wildcard
	got, err = s.GetMatchedLinks(ctx, "Set", reversed, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, handles(got))

	reversed[1] = hashing.TerminalHash("Concept", "zzz")
	got, err = s.GetMatchedLinks(ctx, "Set", reversed, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetMatchedLinks_WildcardMissIsEmpty(t *testing.T) {
	s, h := createAnimalsStore(t)

	got, err := s.GetMatchedLinks(context.Background(), "Inheritance", []string{h["plant"], wildcard}, QueryOptions{})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetMatchedLinks_ResultsAreCopies(t *testing.T) {
	s, h := createAnimalsStore(t)
	ctx := context.Background()

	got, err := s.GetMatchedLinks(ctx, "Inheritance", []string{wildcard, h["plant"]}, QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	got[0].Targets[0] = "tampered"

	again, err := s.GetMatchedLinks(ctx, "Inheritance", []string{wildcard, h["plant"]}, QueryOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", again[0].Targets[0])
}

func addNestedEvaluation(t *testing.T, s *Store) *atom.Link {
	t.Helper()
	return mustAddLink(t, s, "Evaluation",
		atom.NodeDesc("Predicate", "likes"),
		atom.LinkDesc("List", concept("human"), concept("monkey")),
	)
}

func TestToplevelFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	outer := addNestedEvaluation(t, s)
	standalone := mustAddLink(t, s, "List", concept("chimp"), concept("monkey"))
	nested := outer.Targets[1]

	all, err := s.GetMatchedType(ctx, "List", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{nested, standalone.ID}, handles(all))

	top, err := s.GetMatchedType(ctx, "List", QueryOptions{ToplevelOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{standalone.ID}, handles(top))

	top, err = s.GetMatchedLinks(ctx, "List", []string{wildcard, wildcard}, QueryOptions{ToplevelOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{standalone.ID}, handles(top))

	nestedTargets, err := s.GetLinkTargets(ctx, nested)
	require.NoError(t, err)
	top, err = s.GetMatchedLinks(ctx, "List", nestedTargets, QueryOptions{ToplevelOnly: true})
	require.NoError(t, err, "an exact match filtered away is an empty result")
	assert.Empty(t, top)

	tmpl := atom.NewTemplate("List", atom.NewTemplate("Concept"), atom.NewTemplate("Concept"))
	top, err = s.GetMatchedTypeTemplate(ctx, tmpl, QueryOptions{ToplevelOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{standalone.ID}, handles(top))
}

func TestGetMatchedTypeTemplate(t *testing.T) {
	s, _ := createAnimalsStore(t)
	ctx := context.Background()
	outer := addNestedEvaluation(t, s)

	tmpl, err := atom.ParseTemplate([]any{"Evaluation", "Predicate", []any{"List", "Concept", "Concept"}})
	require.NoError(t, err)
	got, err := s.GetMatchedTypeTemplate(ctx, tmpl, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{outer.ID}, handles(got))

	got, err = s.GetMatchedTypeTemplate(ctx, atom.NewTemplate("Similarity", atom.NewTemplate("Concept"), atom.NewTemplate("Concept")), QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, got, len(testutil.AnimalSimilarities))

	got, err = s.GetMatchedTypeTemplate(ctx, atom.NewTemplate("Evaluation", atom.NewTemplate("Predicate"), atom.NewTemplate("Concept")), QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetMatchedTypeTemplate(ctx, atom.NewTemplate(""), QueryOptions{})
	assert.Error(t, err)
}

func TestGetMatchedType(t *testing.T) {
	s, h := createAnimalsStore(t)

	got, err := s.GetMatchedType(context.Background(), "Similarity", QueryOptions{})
	require.NoError(t, err)

	want := make([]Match, len(testutil.AnimalSimilarities))
	for i, p := range testutil.AnimalSimilarities {
		want[i] = similarity(h, p[0], p[1])
	}
	assert.Equal(t, want, got)

	got, err = s.GetMatchedType(context.Background(), "Unknown", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetAllNodes(t *testing.T) {
	s, h := createAnimalsStore(t)
	ctx := context.Background()
	addNestedEvaluation(t, s)

	names, err := s.GetAllNodes(ctx, "Concept", true)
	require.NoError(t, err)
	assert.Equal(t, testutil.AnimalConcepts, names)

	ids, err := s.GetAllNodes(ctx, "Concept", false)
	require.NoError(t, err)
	require.Len(t, ids, len(testutil.AnimalConcepts))
	assert.Equal(t, h["human"], ids[0])

	names, err = s.GetAllNodes(ctx, "Predicate", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"likes"}, names)

	names, err = s.GetAllNodes(ctx, "Nothing", true)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOrderings(t *testing.T) {
	s := createTestStore(t)

	got, ok := s.orderings("Inheritance", []string{"b", "a"})
	require.True(t, ok)
	assert.Equal(t, [][]string{{"b", "a"}}, got)

	got, ok = s.orderings("Similarity", []string{"b", "a"})
	require.True(t, ok)
	assert.Equal(t, [][]string{{"b", "a"}, {"a", "b"}}, got)

	got, ok = s.orderings("Set", []string{"b", "a", "b"})
	require.True(t, ok)
	assert.Equal(t, [][]string{{"b", "a", "b"}, {"a", "b", "b"}, {"b", "b", "a"}}, got)

	_, ok = s.orderings("Set", []string{"a", "b", "c", "d", "e", "f", "g"})
	assert.False(t, ok)
}

func TestSameMultiset(t *testing.T) {
	assert.True(t, sameMultiset([]string{"a", "b"}, []string{"b", "a"}))
	assert.True(t, sameMultiset([]string{wildcard, "b"}, []string{"b", "a"}))
	assert.False(t, sameMultiset([]string{"a", "a"}, []string{"a", "b"}))
	assert.False(t, sameMultiset([]string{wildcard}, []string{"a", "b"}))
}

// queryAnswers runs a fixed set of queries and collects their results.
func queryAnswers(t *testing.T, s *Store, h map[string]string) map[string]any {
	t.Helper()
	ctx := context.Background()
	answers := make(map[string]any)

	nodes, links, err := s.CountAtoms(ctx)
	require.NoError(t, err)
	answers["count"] = [2]int{nodes, links}

	answers["chimp"], err = s.GetMatchedLinks(ctx, "Similarity", []string{wildcard, h["chimp"]}, QueryOptions{})
	require.NoError(t, err)
	answers["mammal"], err = s.GetMatchedLinks(ctx, "Inheritance", []string{wildcard, h["mammal"]}, QueryOptions{})
	require.NoError(t, err)
	answers["type"], err = s.GetMatchedType(ctx, "Inheritance", QueryOptions{ToplevelOnly: true})
	require.NoError(t, err)
	answers["nodes"], err = s.GetAllNodes(ctx, "Concept", true)
	require.NoError(t, err)
	answers["incoming"] = s.GetIncoming(ctx, h["human"])
	answers["stats"] = s.Stats()
	return answers
}

// decomposedName is "café" with a combining accent, which NFC would change.
const decomposedName = "cafe\u0301"

// addExtras stores atoms carrying custom fields and a decomposed name, and
// returns their handles.
func addExtras(t *testing.T, s *Store) []string {
	t.Helper()
	ctx := context.Background()

	n, err := s.AddNode(ctx, "Concept", decomposedName, map[string]any{
		"count": 3,
		"score": 0.25,
		"whole": 2.0,
		"tags":  []any{"drink", 1},
		"meta":  map[string]any{"origin": "ethiopia", "rank": int64(7)},
	})
	require.NoError(t, err)
	l, err := s.AddLink(ctx, "Evaluation", []atom.Desc{atom.NodeDesc("Predicate", "served"), concept(decomposedName)}, true,
		map[string]any{"weight": 0.5, "votes": []any{1, 2.5}})
	require.NoError(t, err)
	return []string{n.ID, l.ID}
}

// extraAnswers reads back the atoms stored by addExtras.
func extraAnswers(t *testing.T, s *Store, handles []string) map[string]any {
	t.Helper()
	ctx := context.Background()
	answers := make(map[string]any)

	for _, h := range handles {
		a, err := s.GetAtom(ctx, h)
		require.NoError(t, err)
		answers[h] = a
	}
	name, err := s.GetNodeName(ctx, handles[0])
	require.NoError(t, err)
	answers["name"] = name
	answers["exists"] = s.NodeExists(ctx, "Concept", decomposedName)
	return answers
}

func TestBackendsAgree(t *testing.T) {
	reference, h := createAnimalsStore(t)
	extras := addExtras(t, reference)
	want := queryAnswers(t, reference, h)
	wantExtras := extraAnswers(t, reference, extras)
	require.Equal(t, decomposedName, wantExtras["name"])
	require.Equal(t, true, wantExtras["exists"])

	open := map[string]func(t *testing.T) backend.Backend{
		"sqlite": func(t *testing.T) backend.Backend {
			b, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "animals.db")})
			require.NoError(t, err)
			return b
		},
		"badger": func(t *testing.T) backend.Backend {
			b, err := badger.Open(badger.InMemoryConfig())
			require.NoError(t, err)
			return b
		},
	}
	for name, fn := range open {
		t.Run(name, func(t *testing.T) {
			b := fn(t)
			defer b.Close()
			s := New(b, Options{})
			testutil.LoadAnimals(t, s)
			assert.Equal(t, extras, addExtras(t, s))

			assert.Equal(t, want, queryAnswers(t, s, h), "before commit")
			assert.Equal(t, wantExtras, extraAnswers(t, s, extras), "before commit")
			require.NoError(t, s.Commit(context.Background()))
			assert.Equal(t, want, queryAnswers(t, s, h), "after commit")
			assert.Equal(t, wantExtras, extraAnswers(t, s, extras), "after commit")
		})
	}
}

func TestReopenSQLite_ReindexRestoresQueries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "animals.db")

	b, err := sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	s := New(b, Options{})
	h := testutil.LoadAnimals(t, s)
	extras := addExtras(t, s)
	want := queryAnswers(t, s, h)
	wantExtras := extraAnswers(t, s, extras)
	require.NoError(t, s.Commit(ctx))
	_, err = s.AddNode(ctx, "Concept", "uncommitted", nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = sqlite.Open(sqlite.Config{Path: path})
	require.NoError(t, err)
	defer b.Close()
	reopened := New(b, Options{})
	require.NoError(t, reopened.Reindex(ctx))

	assert.Equal(t, want, queryAnswers(t, reopened, h))
	assert.Equal(t, wantExtras, extraAnswers(t, reopened, extras))
	assert.False(t, reopened.NodeExists(ctx, "Concept", "uncommitted"))
}
