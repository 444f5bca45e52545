package atom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"b": 1, "a": "x", "c": []any{true, false}})
	require.NoError(t, err)

	assert.Equal(t, `{"a":"x","b":1,"c":[true,false]}`, string(data))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical("a<b>&c")
	require.NoError(t, err)

	assert.Equal(t, `"a<b>&c"`, string(data))
}

func TestMarshalCanonicalKeepsDecomposedStrings(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)

	assert.Equal(t, "\""+decomposed+"\"", string(a))
	assert.NotEqual(t, b, a)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	data, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(data))

	data, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(data), "an escaped backslash stays escaped")
}

func TestMarshalCanonicalNumbers(t *testing.T) {
	data, err := MarshalCanonical([]any{1, int64(-2), 3.0, 0.25, uint64(7)})
	require.NoError(t, err)

	assert.Equal(t, `[1,-2,3,0.25,7]`, string(data))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"k": nil})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+E000 sorts after U+1F600 in UTF-16 (surrogates start at 0xD800)
	// but before it in UTF-8 byte order.
	keys := sortedKeys(map[string]any{"\U0001F600": 1, "\uE000": 2})

	assert.Equal(t, []string{"\U0001F600", "\uE000"}, keys)
}

func TestUnmarshalFields(t *testing.T) {
	fields, err := UnmarshalFields([]byte(`{"n":3,"f":0.5,"s":"x","l":[1,2]}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"n": int64(3),
		"f": 0.5,
		"s": "x",
		"l": []any{int64(1), int64(2)},
	}, fields)

	fields, err = UnmarshalFields(nil)
	require.NoError(t, err)
	assert.Nil(t, fields)
}
