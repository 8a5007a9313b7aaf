package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavemesh/weave/src/common"
	"github.com/weavemesh/weave/src/config"
	"github.com/weavemesh/weave/src/docgraph"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.RetryBase = 5 * time.Millisecond
	conf.MaxRetryInterval = 50 * time.Millisecond

	n := NewNode(conf, docgraph.NewInmemStore())
	require.NoError(t, n.Init())
	return n
}

// awaitView polls until the document has a current view satisfying the
// condition.
func awaitView(t *testing.T, n *Node, documentID string,
	cond func(*docgraph.DocumentView) bool) *docgraph.DocumentView {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		view, err := n.ReadCurrent(documentID)
		if err == nil && cond(view) {
			return view
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no matching view for %s before deadline", documentID)
	return nil
}

func TestNodeCreateAndRead(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("hello"),
	}, "author-a", 1)

	require.NoError(t, n.InsertOperation(create))
	assert.True(t, n.OperationExists(create.ID()))

	view := awaitView(t, n, create.DocumentID, func(v *docgraph.DocumentView) bool {
		return !v.IsDeleted
	})
	assert.True(t, view.Fields["title"].Equals(docgraph.TextValue("hello")))
}

func TestNodeUpdateChain(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("v1"),
	}, "author-a", 1)
	update := docgraph.NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]docgraph.Value{"title": docgraph.TextValue("v2")}, "author-a", 2)

	require.NoError(t, n.InsertOperation(create))
	require.NoError(t, n.InsertOperation(update))

	awaitView(t, n, create.DocumentID, func(v *docgraph.DocumentView) bool {
		return v.Fields["title"].Equals(docgraph.TextValue("v2"))
	})
}

func TestNodeOutOfOrderArrival(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("v1"),
	}, "author-a", 1)
	update := docgraph.NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]docgraph.Value{"title": docgraph.TextValue("v2")}, "author-a", 2)

	// The update arrives first: the document parks until its create shows
	// up, then materializes in full.
	require.NoError(t, n.InsertOperation(update))

	_, err := n.ReadCurrent(create.DocumentID)
	assert.True(t, common.IsStore(err, common.NoCurrentView))

	require.NoError(t, n.InsertOperation(create))

	awaitView(t, n, create.DocumentID, func(v *docgraph.DocumentView) bool {
		return v.Fields["title"].Equals(docgraph.TextValue("v2"))
	})
}

func TestNodeDelete(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("x"),
	}, "author-a", 1)
	del := docgraph.NewDelete(create.DocumentID, []string{create.ID()}, "author-a", 2)

	require.NoError(t, n.InsertOperation(create))
	require.NoError(t, n.InsertOperation(del))

	view := awaitView(t, n, create.DocumentID, func(v *docgraph.DocumentView) bool {
		return v.IsDeleted
	})
	assert.Empty(t, view.Fields)
}

func TestNodeCascade(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	target := docgraph.NewCreate(map[string]docgraph.Value{
		"name": docgraph.TextValue("target"),
	}, "author-a", 1)
	source := docgraph.NewCreate(map[string]docgraph.Value{
		"link": docgraph.RelationValue(target.DocumentID),
	}, "author-b", 1)

	require.NoError(t, n.InsertOperation(target))
	require.NoError(t, n.InsertOperation(source))

	awaitView(t, n, source.DocumentID, func(v *docgraph.DocumentView) bool {
		return !v.IsDeleted
	})

	deps, err := n.store.Dependents(target.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, []string{source.DocumentID}, deps)
}

func TestNodeRejectsMalformedOperations(t *testing.T) {
	n := newTestNode(t)
	defer n.Shutdown()

	assert.Error(t, n.InsertOperation(nil))

	orphan := docgraph.NewUpdate("", []string{},
		map[string]docgraph.Value{"x": docgraph.IntValue(1)}, "author-a", 1)
	assert.Error(t, n.InsertOperation(orphan))
}

func TestNodeConvergence(t *testing.T) {
	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("start"),
	}, "author-a", 1)
	u1 := docgraph.NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]docgraph.Value{"title": docgraph.TextValue("left")}, "author-a", 2)
	u2 := docgraph.NewUpdate(create.DocumentID, []string{create.ID()},
		map[string]docgraph.Value{"title": docgraph.TextValue("right")}, "author-b", 1)

	// Two replicas receive the same operations in different orders and
	// must settle on the same view.
	orders := [][]*docgraph.Operation{
		{create, u1, u2},
		{u2, u1, create},
	}

	views := make([]*docgraph.DocumentView, len(orders))
	for i, order := range orders {
		n := newTestNode(t)

		for _, op := range order {
			require.NoError(t, n.InsertOperation(op))
		}

		views[i] = awaitView(t, n, create.DocumentID,
			func(v *docgraph.DocumentView) bool {
				return len(v.Frontier) == 2
			})
		n.Shutdown()
	}

	assert.Equal(t, views[0].ViewID, views[1].ViewID)
	assert.True(t, views[0].Fields["title"].Equals(views[1].Fields["title"]))
}

func TestNodeInitCatchesUp(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	store := docgraph.NewInmemStore()

	create := docgraph.NewCreate(map[string]docgraph.Value{
		"title": docgraph.TextValue("persisted"),
	}, "author-a", 1)
	require.NoError(t, store.SetOperation(create))

	// The operation was persisted before the node started: Init re-enqueues
	// every known document.
	n := NewNode(conf, store)
	require.NoError(t, n.Init())
	defer n.Shutdown()

	awaitView(t, n, create.DocumentID, func(v *docgraph.DocumentView) bool {
		return v.Fields["title"].Equals(docgraph.TextValue("persisted"))
	})
}
