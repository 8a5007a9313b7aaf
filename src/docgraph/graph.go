package docgraph

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Graph is the causal graph of a single document: its full operation set
// indexed by id, with reverse edges mapping each operation to its direct
// dependents.
type Graph struct {
	documentID string
	ops        map[string]*Operation
	dependents map[string][]string
}

// BuildGraph assembles the operation set of a document into a validated
// causal graph.
//
// It returns IncompleteGraphError when the set references ids that have not
// arrived yet, and MalformedGraphError when the set is internally
// inconsistent: an operation belonging to another document, conflicting
// operations sharing an id, a CREATE with dependencies, a non-CREATE without
// dependencies, or a reference cycle.
func BuildGraph(documentID string, operations []*Operation) (*Graph, error) {
	if len(operations) == 0 {
		return nil, DocumentNotFoundError{DocumentID: documentID}
	}

	ops := make(map[string]*Operation, len(operations))
	for _, op := range operations {
		if op.DocumentID != documentID {
			return nil, MalformedGraphError{
				DocumentID: documentID,
				Reason:     "operation " + op.ID() + " belongs to document " + op.DocumentID,
			}
		}

		if dup, ok := ops[op.ID()]; ok {
			if !dup.Equals(op) {
				return nil, MalformedGraphError{
					DocumentID: documentID,
					Reason:     "conflicting operations share id " + op.ID(),
				}
			}
			continue
		}

		switch {
		case op.IsCreate() && len(op.Previous()) > 0:
			return nil, MalformedGraphError{
				DocumentID: documentID,
				Reason:     "create operation " + op.ID() + " has a non-empty previous set",
			}
		case op.IsCreate() && op.ID() != documentID:
			return nil, MalformedGraphError{
				DocumentID: documentID,
				Reason:     "create operation " + op.ID() + " does not match the document id",
			}
		case !op.IsCreate() && len(op.Previous()) == 0:
			return nil, MalformedGraphError{
				DocumentID: documentID,
				Reason:     "operation " + op.ID() + " has an empty previous set",
			}
		}

		ops[op.ID()] = op
	}

	// Collect unresolved dependencies. The root CREATE carries the document
	// id, so a missing root surfaces here through its dependents.
	missing := mapset.NewSet[string]()
	for _, op := range ops {
		for _, prev := range op.Previous() {
			if _, ok := ops[prev]; !ok {
				missing.Add(prev)
			}
		}
	}
	if _, ok := ops[documentID]; !ok {
		missing.Add(documentID)
	}
	if missing.Cardinality() > 0 {
		ids := missing.ToSlice()
		sort.Strings(ids)
		return nil, IncompleteGraphError{DocumentID: documentID, Missing: ids}
	}

	dependents := make(map[string][]string, len(ops))
	for _, op := range ops {
		for _, prev := range op.Previous() {
			dependents[prev] = append(dependents[prev], op.ID())
		}
	}
	for id := range dependents {
		sort.Strings(dependents[id])
	}

	g := &Graph{
		documentID: documentID,
		ops:        ops,
		dependents: dependents,
	}

	// Ids are content hashes over the previous set, so a cycle cannot be
	// constructed; a storage-level inconsistency could still smuggle one in.
	if len(g.TotalOrder()) != len(ops) {
		return nil, MalformedGraphError{
			DocumentID: documentID,
			Reason:     "operation references form a cycle",
		}
	}

	return g, nil
}

// DocumentID ...
func (g *Graph) DocumentID() string {
	return g.documentID
}

// Len returns the number of operations in the graph.
func (g *Graph) Len() int {
	return len(g.ops)
}

// Get returns the operation with the given id.
func (g *Graph) Get(id string) (*Operation, bool) {
	op, ok := g.ops[id]
	return op, ok
}

// Dependents returns the ids of the operations that name the given id in
// their previous set.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Frontier returns the sorted ids of the current heads: operations with no
// recorded dependent. A document has more than one head when concurrent
// edits exist.
func (g *Graph) Frontier() []string {
	heads := []string{}
	for id := range g.ops {
		if len(g.dependents[id]) == 0 {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

// TotalOrder returns every operation in the graph in a total order computed
// by topological sort over previous edges, with ties broken by ascending
// lexicographic comparison of operation ids. The order depends only on the
// graph's content, never on arrival order or wall-clock time, so any two
// replicas holding the same operation set compute the identical order.
func (g *Graph) TotalOrder() []*Operation {
	indegree := make(map[string]int, len(g.ops))
	for id, op := range g.ops {
		indegree[id] = len(op.Previous())
	}

	ready := []string{}
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]*Operation, 0, len(g.ops))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, g.ops[id])

		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	return order
}

// DeleteDominatesFrontier reports whether a DELETE is present on every path
// from the root to the current frontier, i.e. every head has a delete in its
// causal past (itself included). Only then is the document tombstoned; a
// delete on some branches only is treated as a regular operation.
func (g *Graph) DeleteDominatesFrontier() bool {
	for _, head := range g.Frontier() {
		if !g.deleteInPast(head) {
			return false
		}
	}
	return true
}

// deleteInPast walks the causal past of an operation, the operation itself
// included, looking for a DELETE.
func (g *Graph) deleteInPast(id string) bool {
	visited := mapset.NewSet[string]()
	stack := []string{id}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Contains(cur) {
			continue
		}
		visited.Add(cur)

		op, ok := g.ops[cur]
		if !ok {
			continue
		}
		if op.IsDelete() {
			return true
		}
		stack = append(stack, op.Previous()...)
	}

	return false
}

// insertSorted inserts id into an already sorted slice, keeping it sorted.
func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
