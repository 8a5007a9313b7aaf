// Package node assembles a store, a materializer, and a scheduler into a
// runnable Weave node. It owns the write path for validated operations (the
// replication layer hands operations over once their signatures and log
// integrity have been checked upstream) and the single read path external
// consumers use.
package node

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/weavemesh/weave/src/config"
	"github.com/weavemesh/weave/src/docgraph"
	"github.com/weavemesh/weave/src/scheduler"
)

// Node defines a weave node
type Node struct {
	conf   *config.Config
	logger *logrus.Entry

	store docgraph.Store
	sched *scheduler.Scheduler
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config, store docgraph.Store) *Node {
	logger := conf.Logger()

	materializer := docgraph.NewMaterializer(store, logger)
	sched := scheduler.NewScheduler(
		materializer,
		store,
		conf.Workers,
		conf.RetryBase,
		conf.MaxRetryInterval,
		logger,
	)

	return &Node{
		conf:   conf,
		logger: logger,
		store:  store,
		sched:  sched,
	}
}

// Init starts the worker pool and re-enqueues every known document, so views
// catch up with whatever was persisted while the node was down.
func (n *Node) Init() error {
	n.sched.Start()

	documents, err := n.store.Documents()
	if err != nil {
		return err
	}
	for _, documentID := range documents {
		n.sched.OperationArrived(documentID)
	}

	n.logger.WithField("documents", len(documents)).Debug("Init")

	return nil
}

// InsertOperation persists a validated operation and notifies the scheduler.
// Inserting the same operation twice is harmless; inserting a different
// operation under an existing id is rejected by the store.
func (n *Node) InsertOperation(op *docgraph.Operation) error {
	if err := validateOperation(op); err != nil {
		return err
	}

	if err := n.store.SetOperation(op); err != nil {
		return err
	}

	n.sched.OperationPersisted(op.ID(), op.DocumentID)

	return nil
}

// OperationExists reports whether an operation with the given id has been
// persisted.
func (n *Node) OperationExists(operationID string) bool {
	return n.store.HasOperation(operationID)
}

// ReadCurrent returns the document's current view. Once returned, the view's
// fields are immutable and internally consistent: a view is committed in
// full or not at all.
func (n *Node) ReadCurrent(documentID string) (*docgraph.DocumentView, error) {
	return n.store.CurrentView(documentID)
}

// Shutdown drains the scheduler and closes the store.
func (n *Node) Shutdown() {
	n.logger.Debug("Shutdown")
	n.sched.Shutdown()
	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}
}

// validateOperation enforces the structural invariants an operation must
// satisfy before it enters the store.
func validateOperation(op *docgraph.Operation) error {
	if op == nil {
		return fmt.Errorf("nil operation")
	}

	if op.IsCreate() {
		if len(op.Previous()) != 0 {
			return fmt.Errorf("create operation %s has a non-empty previous set", op.ID())
		}
		if op.DocumentID != op.ID() {
			return fmt.Errorf("create operation %s does not match its document id %s", op.ID(), op.DocumentID)
		}
		return nil
	}

	if len(op.Previous()) == 0 {
		return fmt.Errorf("operation %s has an empty previous set", op.ID())
	}
	if op.DocumentID == "" {
		return fmt.Errorf("operation %s has no document id", op.ID())
	}

	return nil
}
