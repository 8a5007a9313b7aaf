package docgraph

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/ugorji/go/codec"

	cm "github.com/weavemesh/weave/src/common"
)

const (
	operationPrefix = "op"
	viewPrefix      = "view"
	currentPrefix   = "cur"
	edgesPrefix     = "edges"
)

// BadgerStore is a persistent Store backed by a Badger database, with a
// write-through InmemStore serving reads. On open the in-memory layer is
// rebuilt by replaying the database, so a node picks up exactly where it
// left off.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore opens the badger database at path, creating it if needed,
// and loads any existing records into the in-memory layer.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	if err := store.replay(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadBadgerStore opens an existing badger database; it fails if none exists
// at path.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return NewBadgerStore(path)
}

//==============================================================================
//Keys

func operationKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", operationPrefix, id))
}

func viewKey(viewID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", viewPrefix, viewID))
}

func currentKey(documentID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", currentPrefix, documentID))
}

func edgesKey(documentID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", edgesPrefix, documentID))
}

//==============================================================================
//Implement the Store interface

// SetOperation implements the Store interface.
func (s *BadgerStore) SetOperation(op *Operation) error {
	if err := s.inmemStore.SetOperation(op); err != nil {
		return err
	}
	return s.dbSetOperation(op)
}

// GetOperation implements the Store interface.
func (s *BadgerStore) GetOperation(id string) (*Operation, error) {
	//try to get it from cache
	op, err := s.inmemStore.GetOperation(id)
	//if not in cache, try to get it from db
	if err != nil {
		op, err = s.dbGetOperation(id)
	}
	return op, mapError(err, "Operation", id)
}

// HasOperation implements the Store interface.
func (s *BadgerStore) HasOperation(id string) bool {
	return s.inmemStore.HasOperation(id)
}

// DocumentOperations implements the Store interface.
func (s *BadgerStore) DocumentOperations(documentID string) ([]*Operation, error) {
	return s.inmemStore.DocumentOperations(documentID)
}

// Documents implements the Store interface.
func (s *BadgerStore) Documents() ([]string, error) {
	return s.inmemStore.Documents()
}

// WriteView implements the Store interface.
func (s *BadgerStore) WriteView(view *DocumentView) error {
	if err := s.inmemStore.WriteView(view); err != nil {
		return err
	}
	return s.dbSetView(view)
}

// GetView implements the Store interface.
func (s *BadgerStore) GetView(viewID string) (*DocumentView, error) {
	view, err := s.inmemStore.GetView(viewID)
	if err != nil {
		view, err = s.dbGetView(viewID)
	}
	return view, mapError(err, "View", viewID)
}

// MarkCurrent implements the Store interface.
func (s *BadgerStore) MarkCurrent(documentID string, viewID string) error {
	if err := s.inmemStore.MarkCurrent(documentID, viewID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(currentKey(documentID), []byte(viewID))
	})
}

// CurrentView implements the Store interface.
func (s *BadgerStore) CurrentView(documentID string) (*DocumentView, error) {
	return s.inmemStore.CurrentView(documentID)
}

// RecordEdges implements the Store interface.
func (s *BadgerStore) RecordEdges(documentID string, referenced []string) error {
	if err := s.inmemStore.RecordEdges(documentID, referenced); err != nil {
		return err
	}
	val, err := marshalEdges(referenced)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgesKey(documentID), val)
	})
}

// Dependents implements the Store interface.
func (s *BadgerStore) Dependents(documentID string) ([]string, error) {
	return s.inmemStore.Dependents(documentID)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbSetOperation(op *Operation) error {
	val, err := op.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		//insert [op_id] => [operation bytes]
		return txn.Set(operationKey(op.ID()), val)
	})
}

func (s *BadgerStore) dbGetOperation(id string) (*Operation, error) {
	var opBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(operationKey(id))
		if err != nil {
			return err
		}
		opBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	op := new(Operation)
	if err := op.Unmarshal(opBytes); err != nil {
		return nil, err
	}
	return op, nil
}

func (s *BadgerStore) dbGetView(viewID string) (*DocumentView, error) {
	var viewBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(viewKey(viewID))
		if err != nil {
			return err
		}
		viewBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := new(DocumentView)
	if err := view.Unmarshal(viewBytes); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *BadgerStore) dbSetView(view *DocumentView) error {
	val, err := view.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		//insert [view_id] => [view bytes]
		return txn.Set(viewKey(view.ViewID), val)
	})
}

// replay rebuilds the in-memory layer from the database: operations first,
// then views, current pointers, and edges.
func (s *BadgerStore) replay() error {
	err := s.scanPrefix(operationPrefix, func(key string, val []byte) error {
		op := new(Operation)
		if err := op.Unmarshal(val); err != nil {
			return err
		}
		return s.inmemStore.SetOperation(op)
	})
	if err != nil {
		return err
	}

	err = s.scanPrefix(viewPrefix, func(key string, val []byte) error {
		view := new(DocumentView)
		if err := view.Unmarshal(val); err != nil {
			return err
		}
		return s.inmemStore.WriteView(view)
	})
	if err != nil {
		return err
	}

	err = s.scanPrefix(currentPrefix, func(key string, val []byte) error {
		documentID := key[len(currentPrefix)+1:]
		return s.inmemStore.MarkCurrent(documentID, string(val))
	})
	if err != nil {
		return err
	}

	return s.scanPrefix(edgesPrefix, func(key string, val []byte) error {
		documentID := key[len(edgesPrefix)+1:]
		referenced, err := unmarshalEdges(val)
		if err != nil {
			return err
		}
		return s.inmemStore.RecordEdges(documentID, referenced)
	})
}

func (s *BadgerStore) scanPrefix(prefix string, fn func(key string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix + "_")

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), val); err != nil {
				return err
			}
		}
		return nil
	})
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func marshalEdges(referenced []string) ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)
	if err := enc.Encode(referenced); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalEdges(data []byte) ([]string, error) {
	referenced := []string{}
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bytes.NewBuffer(data), jh)
	if err := dec.Decode(&referenced); err != nil {
		return nil, err
	}
	return referenced, nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
