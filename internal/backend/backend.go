// Package backend defines the persistence contract the atom store is built
// against, and the arity partitioning every implementation follows.
//
// Implementations live in sub-packages and never embed one another:
//   - memory: the reference in-memory engine; writes are visible and
//     "committed" immediately.
//   - sqlite: document tables with a pending buffer flushed on Commit.
//   - badger: key-value storage with a pending buffer flushed as one
//     WriteBatch on Commit.
//
// Buffered implementations serve pending documents from Get, Scan and Count
// in the same process. Only Commit makes them durable.
package backend

import (
	"context"

	"github.com/roach88/hyperdb/internal/atom"
)

// AnyArity is the Get hint for a handle whose partition is unknown.
const AnyArity = -1

// Partition names. Links are split by arity: 1, 2 and 3 or more.
const (
	PartitionNodes  = "nodes"
	PartitionLinks1 = "links_1"
	PartitionLinks2 = "links_2"
	PartitionLinksN = "links_n"
	PartitionTypes  = "types"
)

// Partitions lists every partition in a fixed order.
var Partitions = []string{PartitionNodes, PartitionLinks1, PartitionLinks2, PartitionLinksN, PartitionTypes}

// Backend persists atom documents.
type Backend interface {
	// Get returns the document stored under handle. arity is 0 for nodes,
	// the link arity for links, or AnyArity to search every partition.
	// A miss returns an error matching atom.ErrAtomNotFound.
	Get(ctx context.Context, handle string, arity int) (atom.Document, error)

	// Put stores documents. A handle already present keeps its first version.
	Put(ctx context.Context, docs []atom.Document) error

	// Commit makes every Put so far durable.
	Commit(ctx context.Context) error

	// Scan calls fn for every document of the given kind in insertion order.
	// A non-nil error from fn stops the scan and is returned.
	Scan(ctx context.Context, kind atom.Kind, fn func(atom.Document) error) error

	// Count reports how many documents of each kind are stored.
	Count(ctx context.Context) (Counts, error)

	// Clear removes every document, committed or pending.
	Clear(ctx context.Context) error

	// Close releases resources. Pending documents are discarded.
	Close() error
}

// Counts is the number of stored documents per kind.
type Counts struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
	Types int `json:"types"`
}

// Partition returns the partition a document of the given kind and arity
// belongs to.
func Partition(kind atom.Kind, arity int) string {
	switch kind {
	case atom.KindNode:
		return PartitionNodes
	case atom.KindType:
		return PartitionTypes
	}
	switch arity {
	case 1:
		return PartitionLinks1
	case 2:
		return PartitionLinks2
	default:
		return PartitionLinksN
	}
}

// PartitionOf returns the partition of d.
func PartitionOf(d atom.Document) string {
	return Partition(d.Kind, d.Arity())
}

// PartitionsForHint returns the partitions Get must search for a hint.
func PartitionsForHint(arity int) []string {
	switch {
	case arity == AnyArity:
		return Partitions
	case arity == 0:
		return []string{PartitionNodes}
	default:
		return []string{Partition(atom.KindLink, arity)}
	}
}

// PartitionsForKind returns the partitions holding documents of kind.
func PartitionsForKind(kind atom.Kind) []string {
	switch kind {
	case atom.KindNode:
		return []string{PartitionNodes}
	case atom.KindLink:
		return []string{PartitionLinks1, PartitionLinks2, PartitionLinksN}
	case atom.KindType:
		return []string{PartitionTypes}
	default:
		return nil
	}
}

// NotFound returns the miss error for handle.
func NotFound(handle string) error {
	return atom.NewNotFoundError(atom.CodeAtomNotFound, handle)
}
