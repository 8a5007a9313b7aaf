package docgraph

import (
	"github.com/sirupsen/logrus"

	cm "github.com/weavemesh/weave/src/common"
)

// MaterializeResult reports the outcome of one materialization run.
type MaterializeResult struct {
	// Changed is true when the run produced a view different from the
	// stored current view. Cascades are only triggered on a change.
	Changed bool
	// View is the document's current view after the run.
	View *DocumentView
	// Referenced holds the document ids the view's relation fields point
	// at. Only meaningful when Changed is true.
	Referenced []string
}

// Materializer turns a document's operation graph into its current view and
// commits the result. Runs for the same document must be serialized by the
// caller (the scheduler does this); runs for distinct documents are safe to
// execute in parallel.
type Materializer struct {
	store  Store
	logger *logrus.Entry
}

// NewMaterializer ...
func NewMaterializer(store Store, logger *logrus.Entry) *Materializer {
	return &Materializer{
		store:  store,
		logger: logger.WithField("prefix", "materializer"),
	}
}

// Materialize loads the document's full operation set, resolves it, and, if
// the resulting frontier differs from the stored current view's, persists the
// new view, records the relation edges, and finally swaps the current
// pointer.
//
// Re-running on an unchanged frontier is a no-op: no duplicate view is
// written and no change is signalled.
func (m *Materializer) Materialize(documentID string) (*MaterializeResult, error) {
	ops, err := m.store.DocumentOperations(documentID)
	if err != nil {
		return nil, err
	}

	graph, err := BuildGraph(documentID, ops)
	if err != nil {
		return nil, err
	}

	view, referenced := Resolve(graph)

	current, err := m.store.CurrentView(documentID)
	if err == nil && current.Equals(view) {
		return &MaterializeResult{Changed: false, View: current}, nil
	}
	if err != nil && !cm.IsStore(err, cm.NoCurrentView) {
		return nil, err
	}

	// MarkCurrent comes last: the current pointer is the commit point, so a
	// failure in any earlier write leaves the old view current and a retry
	// still sees a changed frontier and completes the whole sequence.
	if err := m.store.WriteView(view); err != nil {
		return nil, err
	}
	if err := m.store.RecordEdges(documentID, referenced); err != nil {
		return nil, err
	}
	if err := m.store.MarkCurrent(documentID, view.ViewID); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"view_id":     view.ViewID,
		"heads":       len(view.Frontier),
		"is_deleted":  view.IsDeleted,
	}).Debug("Materialized")

	return &MaterializeResult{
		Changed:    true,
		View:       view,
		Referenced: referenced,
	}, nil
}
