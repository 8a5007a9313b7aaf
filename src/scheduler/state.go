package scheduler

import "sync"

// RunState captures the materialization state of a single document: Idle,
// Queued, Running, RunningDirty, Parked, or Quarantined.
type RunState uint32

const (
	// Idle means no work is pending for the document.
	Idle RunState = iota
	// Queued means a materialization task is waiting in the queue.
	Queued
	// Running means a worker is materializing the document right now.
	Running
	// RunningDirty means events arrived while a run was in flight; exactly
	// one fresh run is scheduled when the in-flight run completes.
	RunningDirty
	// Parked means the last run hit an incomplete graph; the document waits
	// for its missing dependencies to arrive.
	Parked
	// Quarantined means the operation set is malformed. Retrying an
	// inconsistent input cannot succeed, so the document is skipped until
	// someone investigates.
	Quarantined
)

// String ...
func (s RunState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case RunningDirty:
		return "RunningDirty"
	case Parked:
		return "Parked"
	case Quarantined:
		return "Quarantined"
	default:
		return "Unknown"
	}
}

// StateTable holds the per-document task state machine. It owns all state
// transitions so that the coalescing logic can be tested in isolation from
// the worker pool and the storage layer.
//
// The transitions enforce the scheduler's two guarantees: no event is lost
// (an event during a run marks the document dirty, which schedules exactly
// one fresh run on completion) and no two runs of the same document are ever
// in flight together (only Queued documents can enter Running).
type StateTable struct {
	sync.Mutex
	entries map[string]*taskEntry
}

type taskEntry struct {
	state    RunState
	attempts int
}

// NewStateTable ...
func NewStateTable() *StateTable {
	return &StateTable{
		entries: make(map[string]*taskEntry),
	}
}

func (t *StateTable) entry(documentID string) *taskEntry {
	e, ok := t.entries[documentID]
	if !ok {
		e = &taskEntry{state: Idle}
		t.entries[documentID] = e
	}
	return e
}

// Enqueue registers a pending event for the document. It returns true when
// the caller must push the document onto the queue; a document already
// queued, or running, coalesces instead of being double-enqueued.
func (t *StateTable) Enqueue(documentID string) bool {
	t.Lock()
	defer t.Unlock()

	e := t.entry(documentID)
	switch e.state {
	case Idle, Parked:
		e.state = Queued
		return true
	case Running:
		e.state = RunningDirty
		return false
	default:
		// Queued and RunningDirty already have a run scheduled;
		// Quarantined documents are not retried automatically.
		return false
	}
}

// BeginRun claims the document for a worker. It returns false for stale
// queue entries whose document is no longer Queued.
func (t *StateTable) BeginRun(documentID string) bool {
	t.Lock()
	defer t.Unlock()

	e := t.entry(documentID)
	if e.state != Queued {
		return false
	}
	e.state = Running
	return true
}

// FinishRun completes the document's in-flight run. It returns true when
// events arrived during the run and exactly one rerun must be scheduled.
func (t *StateTable) FinishRun(documentID string) bool {
	t.Lock()
	defer t.Unlock()

	e := t.entry(documentID)
	switch e.state {
	case RunningDirty:
		e.state = Queued
		return true
	case Running:
		e.state = Idle
	}
	return false
}

// Park moves the document out of its in-flight run into the Parked state.
// If events arrived during the run, the graph may have been completed
// meanwhile: the document is re-queued instead and Park returns true.
func (t *StateTable) Park(documentID string) bool {
	t.Lock()
	defer t.Unlock()

	e := t.entry(documentID)
	switch e.state {
	case RunningDirty:
		e.state = Queued
		return true
	case Running:
		e.state = Parked
	}
	return false
}

// Quarantine marks the document as malformed.
func (t *StateTable) Quarantine(documentID string) {
	t.Lock()
	defer t.Unlock()

	t.entry(documentID).state = Quarantined
}

// State returns the document's current state.
func (t *StateTable) State(documentID string) RunState {
	t.Lock()
	defer t.Unlock()

	e, ok := t.entries[documentID]
	if !ok {
		return Idle
	}
	return e.state
}

// IncAttempts increments and returns the document's consecutive failure
// count, used to compute retry backoff.
func (t *StateTable) IncAttempts(documentID string) int {
	t.Lock()
	defer t.Unlock()

	e := t.entry(documentID)
	e.attempts++
	return e.attempts
}

// ResetAttempts clears the document's failure count after a successful run.
func (t *StateTable) ResetAttempts(documentID string) {
	t.Lock()
	defer t.Unlock()

	t.entry(documentID).attempts = 0
}
