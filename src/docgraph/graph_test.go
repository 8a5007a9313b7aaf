package docgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds create -> update -> update on a single branch.
func chain(t *testing.T) (string, []*Operation) {
	t.Helper()

	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{u1.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)

	return create.DocumentID, []*Operation{create, u1, u2}
}

func TestBuildGraphChain(t *testing.T) {
	documentID, ops := chain(t)

	g, err := BuildGraph(documentID, ops)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{ops[2].ID()}, g.Frontier())
	assert.Equal(t, []string{ops[1].ID()}, g.Dependents(ops[0].ID()))
	assert.Empty(t, g.Dependents(ops[2].ID()))
}

func TestBuildGraphConcurrentHeads(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)

	g, err := BuildGraph(create.DocumentID, []*Operation{create, u1, u2})
	require.NoError(t, err)

	assert.Equal(t, sortedIDs([]string{u1.ID(), u2.ID()}), g.Frontier())
	assert.Len(t, g.Dependents(create.ID()), 2)
}

func TestBuildGraphIncomplete(t *testing.T) {
	documentID, ops := chain(t)

	// Drop the middle operation: its id must be reported missing.
	_, err := BuildGraph(documentID, []*Operation{ops[0], ops[2]})
	require.Error(t, err)
	require.True(t, IsIncompleteGraph(err))
	assert.Equal(t, []string{ops[1].ID()}, err.(IncompleteGraphError).Missing)

	// Drop the root: the document id itself is missing.
	_, err = BuildGraph(documentID, []*Operation{ops[1], ops[2]})
	require.True(t, IsIncompleteGraph(err))
	assert.Contains(t, err.(IncompleteGraphError).Missing, documentID)
}

func TestBuildGraphEmpty(t *testing.T) {
	_, err := BuildGraph("0xDOC", nil)
	require.Error(t, err)
	assert.True(t, IsDocumentNotFound(err))
}

func TestBuildGraphMalformed(t *testing.T) {
	documentID, ops := chain(t)

	t.Run("foreign document", func(t *testing.T) {
		other := NewCreate(map[string]Value{"name": TextValue("other")}, "author-c", 1)
		_, err := BuildGraph(documentID, append(ops, other))
		require.Error(t, err)
		assert.True(t, IsMalformedGraph(err))
	})

	t.Run("empty previous on update", func(t *testing.T) {
		bad := &Operation{
			Body: OperationBody{
				Action:   Update,
				Previous: []string{},
				Fields:   map[string]Value{"title": TextValue("w")},
				Author:   "author-a",
				Sequence: 9,
			},
			DocumentID: documentID,
		}
		_, err := BuildGraph(documentID, append(ops, bad))
		require.Error(t, err)
		assert.True(t, IsMalformedGraph(err))
	})

	t.Run("create with previous", func(t *testing.T) {
		bad := &Operation{
			Body: OperationBody{
				Action:   Create,
				Previous: []string{ops[0].ID()},
				Fields:   map[string]Value{"title": TextValue("w")},
				Author:   "author-a",
				Sequence: 9,
			},
			DocumentID: documentID,
		}
		_, err := BuildGraph(documentID, append(ops, bad))
		require.Error(t, err)
		assert.True(t, IsMalformedGraph(err))
	})
}

func TestTotalOrderDiamond(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"a": IntValue(1)}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"b": IntValue(2)}, "author-b", 1)
	merge := NewUpdate(create.DocumentID, []string{u1.ID(), u2.ID()},
		map[string]Value{"c": IntValue(3)}, "author-a", 3)

	lo, hi := u1, u2
	if hi.ID() < lo.ID() {
		lo, hi = hi, lo
	}

	// Whatever the input order, the total order is root, then the two
	// concurrent updates by ascending id, then the merge.
	permutations := [][]*Operation{
		{create, u1, u2, merge},
		{merge, u2, u1, create},
		{u2, merge, create, u1},
	}
	for _, perm := range permutations {
		g, err := BuildGraph(create.DocumentID, perm)
		require.NoError(t, err)

		order := g.TotalOrder()
		require.Len(t, order, 4)
		assert.Equal(t, create.ID(), order[0].ID())
		assert.Equal(t, lo.ID(), order[1].ID())
		assert.Equal(t, hi.ID(), order[2].ID())
		assert.Equal(t, merge.ID(), order[3].ID())
	}
}

func TestDeleteDominatesFrontier(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)

	t.Run("delete on one branch only", func(t *testing.T) {
		del := NewDelete(create.DocumentID, []string{u1.ID()}, "author-a", 3)
		g, err := BuildGraph(create.DocumentID, []*Operation{create, u1, u2, del})
		require.NoError(t, err)
		assert.False(t, g.DeleteDominatesFrontier())
	})

	t.Run("delete above all heads", func(t *testing.T) {
		del := NewDelete(create.DocumentID, []string{u1.ID(), u2.ID()}, "author-a", 3)
		g, err := BuildGraph(create.DocumentID, []*Operation{create, u1, u2, del})
		require.NoError(t, err)
		assert.True(t, g.DeleteDominatesFrontier())
	})

	t.Run("update on top of a delete", func(t *testing.T) {
		del := NewDelete(create.DocumentID, []string{u1.ID(), u2.ID()}, "author-a", 3)
		revive := NewUpdate(create.DocumentID, []string{del.ID()},
			map[string]Value{"title": TextValue("back")}, "author-b", 2)
		g, err := BuildGraph(create.DocumentID, []*Operation{create, u1, u2, del, revive})
		require.NoError(t, err)

		// The delete stays in the head's causal past: still dominated.
		assert.True(t, g.DeleteDominatesFrontier())
	})
}
