// Package docgraph reduces graphs of causally-linked, content-addressed
// operations into deterministic document views.
//
// A document is a virtual aggregate: it has no storage of its own beyond the
// immutable operations that share its root CREATE id, and the materialized
// views derived from them. Operations declare their causal dependencies in a
// previous-set; the resulting structure is a DAG by construction because an
// operation's id is a hash over its previous-set, so no operation can
// reference an id computed from itself.
//
// The package provides the graph builder, the resolver which folds a graph
// into a DocumentView using a content-derived total order, the Materializer
// which drives the reduction against a Store, and three Store backends
// (in-memory, Badger, SQLite).
package docgraph
