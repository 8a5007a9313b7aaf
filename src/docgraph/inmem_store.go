package docgraph

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	cm "github.com/weavemesh/weave/src/common"
)

// InmemStore implements the Store interface with in-memory maps. Everything
// is lost on restart, so it is only suitable for tests and for nodes that can
// re-replicate their logs from peers.
type InmemStore struct {
	sync.RWMutex
	operations   map[string]*Operation
	documentOps  map[string][]string // document id => operation ids, insertion order
	views        map[string]*DocumentView
	currentViews map[string]string              // document id => current view id
	edges        map[string]mapset.Set[string]  // document id => referenced document ids
	reverseEdges map[string]mapset.Set[string]  // referenced document id => referencing document ids
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		operations:   make(map[string]*Operation),
		documentOps:  make(map[string][]string),
		views:        make(map[string]*DocumentView),
		currentViews: make(map[string]string),
		edges:        make(map[string]mapset.Set[string]),
		reverseEdges: make(map[string]mapset.Set[string]),
	}
}

// SetOperation implements the Store interface.
func (s *InmemStore) SetOperation(op *Operation) error {
	s.Lock()
	defer s.Unlock()

	id := op.ID()
	if existing, ok := s.operations[id]; ok {
		if !existing.Equals(op) {
			return cm.NewStoreErr("Operation", cm.KeyAlreadyExists, id)
		}
		return nil
	}

	s.operations[id] = op
	s.documentOps[op.DocumentID] = append(s.documentOps[op.DocumentID], id)

	return nil
}

// GetOperation implements the Store interface.
func (s *InmemStore) GetOperation(id string) (*Operation, error) {
	s.RLock()
	defer s.RUnlock()

	op, ok := s.operations[id]
	if !ok {
		return nil, cm.NewStoreErr("Operation", cm.KeyNotFound, id)
	}
	return op, nil
}

// HasOperation implements the Store interface.
func (s *InmemStore) HasOperation(id string) bool {
	s.RLock()
	defer s.RUnlock()

	_, ok := s.operations[id]
	return ok
}

// DocumentOperations implements the Store interface.
func (s *InmemStore) DocumentOperations(documentID string) ([]*Operation, error) {
	s.RLock()
	defer s.RUnlock()

	ids := s.documentOps[documentID]
	res := make([]*Operation, len(ids))
	for i, id := range ids {
		res[i] = s.operations[id]
	}
	return res, nil
}

// Documents implements the Store interface.
func (s *InmemStore) Documents() ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]string, 0, len(s.documentOps))
	for id := range s.documentOps {
		res = append(res, id)
	}
	sort.Strings(res)
	return res, nil
}

// WriteView implements the Store interface.
func (s *InmemStore) WriteView(view *DocumentView) error {
	s.Lock()
	defer s.Unlock()

	s.views[view.ViewID] = view
	return nil
}

// GetView implements the Store interface.
func (s *InmemStore) GetView(viewID string) (*DocumentView, error) {
	s.RLock()
	defer s.RUnlock()

	view, ok := s.views[viewID]
	if !ok {
		return nil, cm.NewStoreErr("View", cm.KeyNotFound, viewID)
	}
	return view, nil
}

// MarkCurrent implements the Store interface.
func (s *InmemStore) MarkCurrent(documentID string, viewID string) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.views[viewID]; !ok {
		return cm.NewStoreErr("View", cm.KeyNotFound, viewID)
	}
	s.currentViews[documentID] = viewID
	return nil
}

// CurrentView implements the Store interface.
func (s *InmemStore) CurrentView(documentID string) (*DocumentView, error) {
	s.RLock()
	defer s.RUnlock()

	viewID, ok := s.currentViews[documentID]
	if !ok {
		return nil, cm.NewStoreErr("CurrentView", cm.NoCurrentView, documentID)
	}
	return s.views[viewID], nil
}

// RecordEdges implements the Store interface.
func (s *InmemStore) RecordEdges(documentID string, referenced []string) error {
	s.Lock()
	defer s.Unlock()

	if old, ok := s.edges[documentID]; ok {
		for _, ref := range old.ToSlice() {
			if rev, ok := s.reverseEdges[ref]; ok {
				rev.Remove(documentID)
			}
		}
	}

	set := mapset.NewSet[string](referenced...)
	s.edges[documentID] = set
	for _, ref := range referenced {
		if _, ok := s.reverseEdges[ref]; !ok {
			s.reverseEdges[ref] = mapset.NewSet[string]()
		}
		s.reverseEdges[ref].Add(documentID)
	}

	return nil
}

// Dependents implements the Store interface.
func (s *InmemStore) Dependents(documentID string) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	rev, ok := s.reverseEdges[documentID]
	if !ok {
		return []string{}, nil
	}
	res := rev.ToSlice()
	sort.Strings(res)
	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
