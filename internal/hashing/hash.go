package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Wildcard marks a position that matches any handle in pattern queries.
const Wildcard = "*"

// HandleLen is the length of every handle (hex of a 128-bit digest).
const HandleLen = 2 * md5.Size

const (
	compoundSeparator = " "
	typeDefSymbol     = ":"
	typeOfTypes       = "Type"
)

// Hash computes the handle of a raw string.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NamedTypeHash is the handle of a type name.
func NamedTypeHash(name string) string {
	return Hash(name)
}

// TerminalHash is the handle of a node: Hash(type + " " + name).
func TerminalHash(typ, name string) string {
	return Hash(typ + compoundSeparator + name)
}

// CompositeHash folds a list of handles into one.
// A single-element list is returned as-is, without re-hashing.
func CompositeHash(hashes []string) string {
	if len(hashes) == 1 {
		return hashes[0]
	}
	return Hash(strings.Join(hashes, compoundSeparator))
}

// ExpressionHash is the handle of a link (or a pattern key when some
// positions are Wildcard): CompositeHash([typeHash, targets...]).
func ExpressionHash(typeHash string, targets []string) string {
	parts := make([]string, 0, len(targets)+1)
	parts = append(parts, typeHash)
	parts = append(parts, targets...)
	return CompositeHash(parts)
}

// TypeKey is the handle of the registry entry stating "name is-a Type".
func TypeKey(name string) string {
	return ExpressionHash(Hash(typeDefSymbol), []string{NamedTypeHash(name), NamedTypeHash(typeOfTypes)})
}

// TypeCompositeHash is the composite type hash shared by all registry entries.
func TypeCompositeHash() string {
	return CompositeHash([]string{Hash(typeDefSymbol), NamedTypeHash(typeOfTypes), NamedTypeHash(typeOfTypes)})
}

// IsWildcard reports whether h is the wildcard sentinel.
func IsWildcard(h string) bool {
	return h == Wildcard
}

// ContainsWildcard reports whether any element of hs is the wildcard sentinel.
func ContainsWildcard(hs []string) bool {
	for _, h := range hs {
		if h == Wildcard {
			return true
		}
	}
	return false
}
