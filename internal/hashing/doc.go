// Package hashing derives the content-addressed handles used by every other
// package in hyperdb.
//
// A handle is the lowercase hex MD5 digest of a canonical string. Nodes hash
// "type name", links hash the space-joined list of their type hash and target
// handles, and pattern keys hash the same list with some positions replaced
// by the Wildcard sentinel. The functions are pure; the same input always
// yields the same handle across processes and backends.
//
// CompositeHash returns a one-element list unchanged instead of re-hashing it.
// Type-registry keys and degenerate compositions depend on this, so it must
// not be "simplified" away.
package hashing
