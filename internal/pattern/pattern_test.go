package pattern

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/hashing"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestMasksCanonicalOrder(t *testing.T) {
	got := Masks(2)

	want := [][]bool{
		{false, false},
		{false, true},
		{true, false},
		{true, true},
	}
	assert.Equal(t, want, got)
}

func TestMasksLastIsAllOnes(t *testing.T) {
	for n := 1; n <= 6; n++ {
		masks := Masks(n)
		require.Len(t, masks, 1<<n)

		last := masks[len(masks)-1]
		for i, bit := range last {
			assert.True(t, bit, "n=%d position %d of last mask must be set", n, i)
		}
	}
}

func TestMasksAreDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range Masks(5) {
		var sb strings.Builder
		for _, b := range m {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		assert.False(t, seen[sb.String()], "duplicate mask %s", sb.String())
		seen[sb.String()] = true
	}
	assert.Len(t, seen, 32)
}

func TestMasksZeroLength(t *testing.T) {
	assert.Equal(t, [][]bool{{}}, Masks(0))
}

func TestRowsGolden(t *testing.T) {
	rows := Rows([]string{"T", "a", "b"})

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " "))
		sb.WriteByte('\n')
	}
	newGoldie(t).Assert(t, "rows_arity2", []byte(sb.String()))
}

func TestRowsDoNotAliasInput(t *testing.T) {
	hashes := []string{"T", "a"}
	rows := Rows(hashes)
	rows[len(rows)-1][0] = "changed"

	assert.Equal(t, []string{"T", "a"}, hashes)
}

func TestKeysGolden(t *testing.T) {
	keys := Keys([]string{
		hashing.NamedTypeHash("Similarity"),
		hashing.TerminalHash("Concept", "human"),
		hashing.TerminalHash("Concept", "monkey"),
	})

	newGoldie(t).Assert(t, "keys_similarity_human_monkey", []byte(strings.Join(keys, "\n")+"\n"))
}

func TestKeysCount(t *testing.T) {
	for arity := 1; arity <= 5; arity++ {
		hashes := []string{hashing.NamedTypeHash("L")}
		for i := 0; i < arity; i++ {
			hashes = append(hashes, hashing.TerminalHash("N", string(rune('a'+i))))
		}

		keys := Keys(hashes)

		assert.Len(t, keys, KeyCount(arity))
		assert.NotContains(t, keys, hashing.ExpressionHash(hashes[0], hashes[1:]),
			"fully concrete key must not be generated")
	}
}

func TestKeysIncludeAllWildcardKey(t *testing.T) {
	keys := Keys([]string{"T", "a", "b"})

	assert.Equal(t, QueryKey(hashing.Wildcard, []string{hashing.Wildcard, hashing.Wildcard}), keys[0])
}

func TestQueryKeyMatchesGeneratedKey(t *testing.T) {
	typeHash := hashing.NamedTypeHash("Similarity")
	human := hashing.TerminalHash("Concept", "human")
	chimp := hashing.TerminalHash("Concept", "chimp")
	keys := Keys([]string{typeHash, human, chimp})

	assert.Contains(t, keys, QueryKey(typeHash, []string{hashing.Wildcard, chimp}))
	assert.Contains(t, keys, QueryKey(hashing.Wildcard, []string{human, chimp}))
	assert.Contains(t, keys, QueryKey(typeHash, []string{human, hashing.Wildcard}))
	assert.NotContains(t, keys, QueryKey(typeHash, []string{chimp, hashing.Wildcard}))
}

func TestKeysEmpty(t *testing.T) {
	assert.Nil(t, Keys(nil))
}
