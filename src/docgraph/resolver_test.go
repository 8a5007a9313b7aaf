package docgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, documentID string, ops []*Operation) (*DocumentView, []string) {
	t.Helper()

	g, err := BuildGraph(documentID, ops)
	require.NoError(t, err)
	return Resolve(g)
}

func TestResolveSingleCreate(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)

	view, refs := resolve(t, create.DocumentID, []*Operation{create})

	assert.Equal(t, create.DocumentID, view.DocumentID)
	assert.Equal(t, []string{create.ID()}, view.Frontier)
	assert.True(t, view.Fields["title"].Equals(TextValue("x")))
	assert.False(t, view.IsDeleted)
	assert.Empty(t, refs)
}

func TestResolveUpdateOverwrites(t *testing.T) {
	create := NewCreate(map[string]Value{
		"title": TextValue("x"),
		"done":  BoolValue(false),
	}, "author-a", 1)
	update := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)

	view, _ := resolve(t, create.DocumentID, []*Operation{create, update})

	// The update overwrites only the fields it names.
	assert.True(t, view.Fields["title"].Equals(TextValue("y")))
	assert.True(t, view.Fields["done"].Equals(BoolValue(false)))
	assert.Equal(t, []string{update.ID()}, view.Frontier)
}

func TestResolveConcurrentUpdatesConverge(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)

	// The last writer is the head with the greater id, regardless of the
	// order the operations arrived in.
	winner := u1
	if u2.ID() > u1.ID() {
		winner = u2
	}

	view1, _ := resolve(t, create.DocumentID, []*Operation{create, u1, u2})
	view2, _ := resolve(t, create.DocumentID, []*Operation{u2, create, u1})

	assert.Equal(t, view1.ViewID, view2.ViewID)
	assert.True(t, view1.Fields["title"].Equals(winner.Body.Fields["title"]))
	assert.True(t, view2.Fields["title"].Equals(winner.Body.Fields["title"]))
}

func TestResolveDeleteAllHeads(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)
	del := NewDelete(create.DocumentID, []string{u1.ID(), u2.ID()}, "author-a", 3)

	view, refs := resolve(t, create.DocumentID, []*Operation{create, u1, u2, del})

	assert.True(t, view.IsDeleted)
	assert.Empty(t, view.Fields)
	assert.Empty(t, refs)
	assert.Equal(t, []string{del.ID()}, view.Frontier)
}

func TestResolvePartialDelete(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("y")}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"title": TextValue("z")}, "author-b", 1)
	del := NewDelete(create.DocumentID, []string{u1.ID()}, "author-a", 3)

	view, _ := resolve(t, create.DocumentID, []*Operation{create, u1, u2, del})

	// A delete on only some branches does not tombstone the document.
	assert.False(t, view.IsDeleted)
	assert.NotEmpty(t, view.Fields)
	assert.Contains(t, view.Frontier, u2.ID())
	assert.Contains(t, view.Frontier, del.ID())
}

func TestResolveRelations(t *testing.T) {
	other1 := NewCreate(map[string]Value{"name": TextValue("one")}, "author-a", 1)
	other2 := NewCreate(map[string]Value{"name": TextValue("two")}, "author-a", 2)

	create := NewCreate(map[string]Value{
		"title": TextValue("x"),
		"links": RelationValue(other2.DocumentID, other1.DocumentID),
	}, "author-b", 1)

	view, refs := resolve(t, create.DocumentID, []*Operation{create})

	// References are reported for the dependency index, never inlined.
	assert.Equal(t, sortedIDs([]string{other1.DocumentID, other2.DocumentID}), refs)
	assert.True(t, view.Fields["links"].Equals(
		RelationValue(other2.DocumentID, other1.DocumentID)))
}

func TestResolveDeterministicViewID(t *testing.T) {
	create := NewCreate(map[string]Value{"title": TextValue("x")}, "author-a", 1)
	u1 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"a": IntValue(1)}, "author-a", 2)
	u2 := NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]Value{"b": IntValue(2)}, "author-b", 1)
	merge := NewUpdate(create.DocumentID, []string{u1.ID(), u2.ID()},
		map[string]Value{"c": IntValue(3)}, "author-a", 3)

	ops := []*Operation{create, u1, u2, merge}
	permutations := [][]*Operation{
		{create, u1, u2, merge},
		{merge, u2, u1, create},
		{u1, create, merge, u2},
	}

	first, _ := resolve(t, create.DocumentID, ops)
	for _, perm := range permutations {
		view, _ := resolve(t, create.DocumentID, perm)
		assert.Equal(t, first.ViewID, view.ViewID)
		assert.Equal(t, first.Frontier, view.Frontier)
		for name, value := range first.Fields {
			assert.True(t, view.Fields[name].Equals(value))
		}
	}
}
