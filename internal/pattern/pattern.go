// Package pattern expands a concrete (type, targets) tuple into the wildcard
// keys under which a link is indexed.
//
// For a hash sequence H = [type, t1, ..., tn] every subset of positions may be
// masked with the wildcard, giving 2^(n+1) rows. The fully concrete row is
// dropped because a direct handle lookup already covers it, so each link
// contributes exactly 2^(n+1) - 1 keys. Wildcard queries are then a single map
// lookup, at the cost of index size exponential in arity.
package pattern

import (
	"github.com/roach88/hyperdb/internal/hashing"
)

// Masks returns all 2^n binary vectors of length n.
//
// Ordering matches the recursive construction: build the vectors of length
// n-1, then for each one emit a child with 0 appended followed by a child
// with 1 appended. Position 0 is therefore the most significant bit and the
// last vector is all ones.
func Masks(n int) [][]bool {
	if n <= 0 {
		return [][]bool{{}}
	}
	prev := Masks(n - 1)
	out := make([][]bool, 0, 2*len(prev))
	for _, p := range prev {
		zero := make([]bool, n)
		copy(zero, p)
		one := make([]bool, n)
		copy(one, p)
		one[n-1] = true
		out = append(out, zero, one)
	}
	return out
}

// Rows returns the masked variants of hashes, excluding the fully concrete one.
func Rows(hashes []string) [][]string {
	masks := Masks(len(hashes))
	masks = masks[:len(masks)-1]

	rows := make([][]string, 0, len(masks))
	for _, mask := range masks {
		row := make([]string, len(hashes))
		for i, keep := range mask {
			if keep {
				row[i] = hashes[i]
			} else {
				row[i] = hashing.Wildcard
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Keys returns the pattern keys for hashes, whose first element is the type
// hash and the rest target handles.
func Keys(hashes []string) []string {
	if len(hashes) == 0 {
		return nil
	}
	rows := Rows(hashes)
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = hashing.ExpressionHash(row[0], row[1:])
	}
	return keys
}

// KeyCount is the number of keys Keys produces for a link of the given arity.
func KeyCount(arity int) int {
	return (1 << (arity + 1)) - 1
}

// QueryKey is the key a pattern query with the given type component and
// target list looks up. It equals one of Keys for every link it matches.
func QueryKey(typeComponent string, targets []string) string {
	return hashing.ExpressionHash(typeComponent, targets)
}
