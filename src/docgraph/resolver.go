package docgraph

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Resolve folds a causal graph into the DocumentView for its current
// frontier, and returns the set of documents the view's relation fields
// reference.
//
// Operations are applied in the graph's total order with last-writer-wins
// per field: a CREATE seeds the field map, an UPDATE overwrites only the
// fields it names, and a DELETE contributes no fields. Because the order is
// deterministic, concurrent branches converge without vector clocks or merge
// functions.
//
// The document is tombstoned only when a delete dominates every head
// (intersection semantics): the view's deleted flag is set and its field map
// cleared. Relation targets are reported, never inlined, so the
// materialization graph cannot cycle even when the relation graph does.
func Resolve(g *Graph) (*DocumentView, []string) {
	fields := map[string]Value{}

	for _, op := range g.TotalOrder() {
		switch op.Body.Action {
		case Create:
			fields = copyFields(op.Body.Fields)
		case Update:
			for name, value := range op.Body.Fields {
				fields[name] = value
			}
		case Delete:
			// Deletes carry no fields; domination is checked below.
		}
	}

	deleted := g.DeleteDominatesFrontier()
	if deleted {
		fields = map[string]Value{}
	}

	referenced := mapset.NewSet[string]()
	for _, value := range fields {
		if value.Kind == Relation {
			referenced.Append(value.Relations...)
		}
	}
	refs := referenced.ToSlice()
	sort.Strings(refs)

	return NewDocumentView(g.documentID, g.Frontier(), fields, deleted), refs
}
