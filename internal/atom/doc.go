// Package atom defines the hypergraph data model: nodes, links, type entries,
// the descriptions callers insert, and the flat Document form every storage
// backend persists.
//
// Atom is a closed interface. Only *Node, *Link and *TypeEntry implement it,
// and every index in the store keys on Atom.Handle().
//
// Key invariants:
//   - A node's handle is hashing.TerminalHash(type, name); its composite type
//     hash is the hash of its type name.
//   - A link's handle is hashing.ExpressionHash(typeHash, targetHandles).
//     Target order is part of identity, even for link types queried as
//     unordered.
//   - A link's CompositeType keeps the full nested shape of its targets'
//     types; CompositeTypeHash is the flatter fold of type hashes.
//   - Atoms are immutable. Re-inserting an existing handle keeps the first
//     version, including its Fields and IsToplevel flag.
//
// This package imports only internal/hashing.
package atom
