// Package scheduler drives materialization incrementally and concurrently as
// the operation graph grows. It consumes operation-arrival and
// dependency-change events, coalesces them per document, and executes
// materialization runs on a fixed worker pool: serialized per document,
// parallel across documents.
package scheduler

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/weavemesh/weave/src/docgraph"
)

// Runner executes one materialization run for a document. It is implemented
// by docgraph.Materializer.
type Runner interface {
	Materialize(documentID string) (*docgraph.MaterializeResult, error)
}

// DependencyLookup answers reverse relation queries, used to propagate view
// changes to the documents that reference the changed one. It is implemented
// by every docgraph.Store.
type DependencyLookup interface {
	Dependents(documentID string) ([]string, error)
}

// Scheduler is the coalescing task queue and worker pool of the
// materialization core. It guarantees eventual materialization of every
// document with at least one pending event, without ever running two
// materializations of the same document concurrently.
type Scheduler struct {
	runner  Runner
	deps    DependencyLookup
	logger  *logrus.Entry
	workers int

	retryBase time.Duration
	retryMax  time.Duration

	table *StateTable

	mu       sync.Mutex
	queue    []string
	waiting  map[string]mapset.Set[string] // missing operation id => parked document ids
	parkedOn map[string][]string           // document id => missing ids it is registered under
	stopped  bool

	notifyCh chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler ...
func NewScheduler(runner Runner, deps DependencyLookup, workers int, retryBase, retryMax time.Duration, logger *logrus.Entry) *Scheduler {
	return &Scheduler{
		runner:    runner,
		deps:      deps,
		logger:    logger.WithField("prefix", "scheduler"),
		workers:   workers,
		retryBase: retryBase,
		retryMax:  retryMax,
		table:     NewStateTable(),
		waiting:   make(map[string]mapset.Set[string]),
		parkedOn:  make(map[string][]string),
		notifyCh:  make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// OperationArrived signals that a new operation for the document has been
// persisted.
func (s *Scheduler) OperationArrived(documentID string) {
	s.enqueue(documentID)
}

// DependencyChanged signals that a document referenced by this one has a new
// current view.
func (s *Scheduler) DependencyChanged(documentID string) {
	s.enqueue(documentID)
}

// ScheduleMissing re-arms a document that was parked on an incomplete graph.
func (s *Scheduler) ScheduleMissing(documentID string) {
	s.enqueue(documentID)
}

// OperationPersisted is the ingest-side notification: it enqueues the
// operation's document and re-arms every document parked on the operation's
// id.
func (s *Scheduler) OperationPersisted(operationID, documentID string) {
	s.OperationArrived(documentID)

	s.mu.Lock()
	waiters := s.waiting[operationID]
	delete(s.waiting, operationID)
	s.mu.Unlock()

	if waiters == nil {
		return
	}
	for _, waiter := range waiters.ToSlice() {
		s.ScheduleMissing(waiter)
	}
}

// Shutdown stops the workers from dequeuing further tasks and waits for
// in-flight runs to complete. A run is never interrupted between writing a
// view and swapping the current pointer.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.doneCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// enqueue admits a pending event for the document, coalescing through the
// state table: a document already queued or running is marked instead of
// being pushed twice.
func (s *Scheduler) enqueue(documentID string) {
	if !s.table.Enqueue(documentID) {
		return
	}
	s.push(documentID)
}

// push appends a document already transitioned to Queued.
func (s *Scheduler) push(documentID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, documentID)
	s.mu.Unlock()

	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// dequeue pops the next document, blocking until work arrives or the
// scheduler shuts down.
func (s *Scheduler) dequeue() (string, bool) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return "", false
		}
		if len(s.queue) > 0 {
			documentID := s.queue[0]
			s.queue = s.queue[1:]
			more := len(s.queue) > 0
			s.mu.Unlock()

			// Pass the wakeup on so another worker picks up the rest.
			if more {
				select {
				case s.notifyCh <- struct{}{}:
				default:
				}
			}
			return documentID, true
		}
		s.mu.Unlock()

		select {
		case <-s.notifyCh:
		case <-s.doneCh:
			return "", false
		}
	}
}

func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()

	logger := s.logger.WithField("worker", id)
	for {
		documentID, ok := s.dequeue()
		if !ok {
			return
		}
		if !s.table.BeginRun(documentID) {
			continue
		}
		s.run(documentID, logger)
	}
}

// run executes one materialization and applies the outcome to the state
// machine.
func (s *Scheduler) run(documentID string, logger *logrus.Entry) {
	res, err := s.runner.Materialize(documentID)

	switch {
	case err == nil:
		s.mu.Lock()
		s.clearWaitingLocked(documentID)
		s.mu.Unlock()

		s.table.ResetAttempts(documentID)
		rerun := s.table.FinishRun(documentID)
		if res.Changed {
			s.cascade(documentID)
		}
		if rerun {
			s.push(documentID)
		}

	case docgraph.IsIncompleteGraph(err):
		incomplete := err.(docgraph.IncompleteGraphError)
		// Register the waiters before releasing the Running state, so an
		// operation persisted in between marks the document dirty and the
		// rerun picks it up. Entries from an earlier park are dropped first:
		// the missing set may have changed.
		s.mu.Lock()
		s.clearWaitingLocked(documentID)
		for _, missing := range incomplete.Missing {
			if _, ok := s.waiting[missing]; !ok {
				s.waiting[missing] = mapset.NewSet[string]()
			}
			s.waiting[missing].Add(documentID)
		}
		s.parkedOn[documentID] = incomplete.Missing
		s.mu.Unlock()

		if s.table.Park(documentID) {
			s.push(documentID)
		}
		logger.WithFields(logrus.Fields{
			"document_id": documentID,
			"missing":     len(incomplete.Missing),
		}).Debug("Materialization deferred")

	case docgraph.IsMalformedGraph(err):
		s.mu.Lock()
		s.clearWaitingLocked(documentID)
		s.mu.Unlock()

		s.table.Quarantine(documentID)
		logger.WithField("document_id", documentID).WithError(err).
			Error("Malformed graph, document quarantined")

	case docgraph.IsDocumentNotFound(err):
		if s.table.FinishRun(documentID) {
			s.push(documentID)
		}
		logger.WithField("document_id", documentID).Debug("No operations for document")

	default:
		// Storage failures are typically transient: retry with backoff.
		attempts := s.table.IncAttempts(documentID)
		if s.table.FinishRun(documentID) {
			s.push(documentID)
			return
		}
		backoff := s.backoff(attempts)
		logger.WithFields(logrus.Fields{
			"document_id": documentID,
			"attempts":    attempts,
			"backoff":     backoff,
		}).WithError(err).Warn("Materialization failed, retrying")
		time.AfterFunc(backoff, func() {
			s.enqueue(documentID)
		})
	}
}

// clearWaitingLocked drops the document from every waiting list it was parked
// under, so a document re-armed by some other event does not leave stale
// entries behind. Callers hold s.mu.
func (s *Scheduler) clearWaitingLocked(documentID string) {
	for _, missing := range s.parkedOn[documentID] {
		waiters, ok := s.waiting[missing]
		if !ok {
			continue
		}
		waiters.Remove(documentID)
		if waiters.Cardinality() == 0 {
			delete(s.waiting, missing)
		}
	}
	delete(s.parkedOn, documentID)
}

// cascade enqueues a DependencyChanged task for every document whose stored
// relation edges point at the changed document. Cascading only on an actual
// view change keeps relation cycles from livelocking: the reachable set of
// distinct views is finite.
func (s *Scheduler) cascade(documentID string) {
	dependents, err := s.deps.Dependents(documentID)
	if err != nil {
		s.logger.WithField("document_id", documentID).WithError(err).
			Warn("Dependency lookup failed, retrying")
		time.AfterFunc(s.retryBase, func() {
			select {
			case <-s.doneCh:
			default:
				s.cascade(documentID)
			}
		})
		return
	}

	for _, dependent := range dependents {
		s.DependencyChanged(dependent)
	}
}

func (s *Scheduler) backoff(attempts int) time.Duration {
	backoff := s.retryBase
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= s.retryMax {
			return s.retryMax
		}
	}
	return backoff
}
