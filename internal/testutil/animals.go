// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
)

// ConceptType is the node type of every animals concept.
const ConceptType = "Concept"

// AnimalConcepts are the node names of the animals knowledge base, in
// insertion order.
var AnimalConcepts = []string{
	"human", "monkey", "chimp", "snake", "earthworm", "rhino", "triceratops",
	"vine", "ent", "mammal", "animal", "reptile", "dinosaur", "plant",
}

// AnimalSimilarities are the Similarity pairs, in insertion order.
var AnimalSimilarities = [][2]string{
	{"human", "monkey"},
	{"human", "chimp"},
	{"chimp", "monkey"},
	{"snake", "earthworm"},
	{"rhino", "triceratops"},
	{"snake", "vine"},
	{"human", "ent"},
}

// AnimalInheritances are the Inheritance pairs (child, parent), in insertion
// order.
var AnimalInheritances = [][2]string{
	{"human", "mammal"},
	{"monkey", "mammal"},
	{"chimp", "mammal"},
	{"mammal", "animal"},
	{"reptile", "animal"},
	{"snake", "reptile"},
	{"dinosaur", "reptile"},
	{"triceratops", "dinosaur"},
	{"earthworm", "animal"},
	{"rhino", "mammal"},
	{"vine", "plant"},
	{"ent", "plant"},
}

// Concept describes the animals node called name.
func Concept(name string) atom.Desc {
	return atom.NodeDesc(ConceptType, name)
}

// Animals returns the knowledge base as descriptions: concepts, then
// similarities, then inheritances.
func Animals() []atom.Desc {
	descs := make([]atom.Desc, 0, len(AnimalConcepts)+len(AnimalSimilarities)+len(AnimalInheritances))
	for _, name := range AnimalConcepts {
		descs = append(descs, Concept(name))
	}
	for _, p := range AnimalSimilarities {
		descs = append(descs, atom.LinkDesc("Similarity", Concept(p[0]), Concept(p[1])))
	}
	for _, p := range AnimalInheritances {
		descs = append(descs, atom.LinkDesc("Inheritance", Concept(p[0]), Concept(p[1])))
	}
	return descs
}

// Adder stores atom descriptions.
type Adder interface {
	Add(ctx context.Context, d atom.Desc) (atom.Atom, error)
}

// LoadAnimals adds the animals knowledge base to a and returns the handle of
// every concept by name.
func LoadAnimals(t testing.TB, a Adder) map[string]string {
	t.Helper()

	handles := make(map[string]string, len(AnimalConcepts))
	for _, d := range Animals() {
		stored, err := a.Add(context.Background(), d)
		require.NoError(t, err)
		if !d.IsLink() {
			handles[d.Name] = stored.Handle()
		}
	}
	return handles
}
