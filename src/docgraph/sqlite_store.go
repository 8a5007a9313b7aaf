package docgraph

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	cm "github.com/weavemesh/weave/src/common"
)

// Schema DDL for the SQLite backend.
const (
	createOperations = `CREATE TABLE IF NOT EXISTS operations (
    operation_id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    payload BLOB NOT NULL
);`

	createOperationPrevious = `CREATE TABLE IF NOT EXISTS operation_previous (
    operation_id TEXT NOT NULL,
    previous_id TEXT NOT NULL,
    PRIMARY KEY (operation_id, previous_id)
);`

	createViews = `CREATE TABLE IF NOT EXISTS views (
    view_id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    is_deleted INTEGER NOT NULL,
    payload BLOB NOT NULL
);`

	createCurrentViews = `CREATE TABLE IF NOT EXISTS current_views (
    document_id TEXT PRIMARY KEY,
    view_id TEXT NOT NULL,
    FOREIGN KEY (view_id) REFERENCES views(view_id)
);`

	createDocumentEdges = `CREATE TABLE IF NOT EXISTS document_edges (
    document_id TEXT NOT NULL,
    referenced_id TEXT NOT NULL,
    PRIMARY KEY (document_id, referenced_id)
);`
)

// Index DDL for the common queries.
const (
	idxOperationsDocument = `CREATE INDEX IF NOT EXISTS idx_operations_document ON operations(document_id);`
	idxEdgesReferenced    = `CREATE INDEX IF NOT EXISTS idx_edges_referenced ON document_edges(referenced_id);`
)

var sqliteSchema = []string{
	createOperations,
	createOperationPrevious,
	createViews,
	createCurrentViews,
	createDocumentEdges,
	idxOperationsDocument,
	idxEdgesReferenced,
}

// SqliteStore is a persistent Store backed by a SQLite database. Unlike
// BadgerStore it keeps nothing in memory, so it suits nodes where the
// operation record outgrows RAM, and it gives the query layer a relational
// surface over views and edges.
type SqliteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSqliteStore opens (or creates) the SQLite database at path and
// bootstraps the schema.
func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Serialized access through a single connection keeps SQLITE_BUSY out of
	// the picture; per-document serialization happens above the store.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA foreign_keys=ON;`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	for _, ddl := range sqliteSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}

	return &SqliteStore{db: db, path: path}, nil
}

// SetOperation implements the Store interface.
func (s *SqliteStore) SetOperation(op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := op.ID()
	payload, err := op.Marshal()
	if err != nil {
		return err
	}

	var existing []byte
	err = s.db.QueryRow(`SELECT payload FROM operations WHERE operation_id = ?`, id).Scan(&existing)
	if err == nil {
		if string(existing) != string(payload) {
			return cm.NewStoreErr("Operation", cm.KeyAlreadyExists, id)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO operations (operation_id, document_id, payload) VALUES (?, ?, ?)`,
		id, op.DocumentID, payload,
	); err != nil {
		return err
	}
	for _, prev := range op.Previous() {
		if _, err := tx.Exec(
			`INSERT INTO operation_previous (operation_id, previous_id) VALUES (?, ?)`,
			id, prev,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOperation implements the Store interface.
func (s *SqliteStore) GetOperation(id string) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM operations WHERE operation_id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, cm.NewStoreErr("Operation", cm.KeyNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	op := new(Operation)
	if err := op.Unmarshal(payload); err != nil {
		return nil, err
	}
	return op, nil
}

// HasOperation implements the Store interface.
func (s *SqliteStore) HasOperation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM operations WHERE operation_id = ?`, id).Scan(&one)
	return err == nil
}

// DocumentOperations implements the Store interface.
func (s *SqliteStore) DocumentOperations(documentID string) ([]*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT payload FROM operations WHERE document_id = ? ORDER BY operation_id`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Operation{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		op := new(Operation)
		if err := op.Unmarshal(payload); err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	return res, rows.Err()
}

// Documents implements the Store interface.
func (s *SqliteStore) Documents() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT DISTINCT document_id FROM operations ORDER BY document_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// WriteView implements the Store interface. The view id covers the view's
// entire content, so replacing an existing row with the same id is a no-op
// by construction.
func (s *SqliteStore) WriteView(view *DocumentView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := view.Marshal()
	if err != nil {
		return err
	}

	deleted := 0
	if view.IsDeleted {
		deleted = 1
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO views (view_id, document_id, is_deleted, payload) VALUES (?, ?, ?, ?)`,
		view.ViewID, view.DocumentID, deleted, payload,
	)
	return err
}

// GetView implements the Store interface.
func (s *SqliteStore) GetView(viewID string) (*DocumentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getView(viewID)
}

func (s *SqliteStore) getView(viewID string) (*DocumentView, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM views WHERE view_id = ?`, viewID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, cm.NewStoreErr("View", cm.KeyNotFound, viewID)
	}
	if err != nil {
		return nil, err
	}

	view := new(DocumentView)
	if err := view.Unmarshal(payload); err != nil {
		return nil, err
	}
	return view, nil
}

// MarkCurrent implements the Store interface.
func (s *SqliteStore) MarkCurrent(documentID string, viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getView(viewID); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO current_views (document_id, view_id) VALUES (?, ?)
         ON CONFLICT(document_id) DO UPDATE SET view_id = excluded.view_id`,
		documentID, viewID,
	)
	return err
}

// CurrentView implements the Store interface.
func (s *SqliteStore) CurrentView(documentID string) (*DocumentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var viewID string
	err := s.db.QueryRow(`SELECT view_id FROM current_views WHERE document_id = ?`, documentID).Scan(&viewID)
	if err == sql.ErrNoRows {
		return nil, cm.NewStoreErr("CurrentView", cm.NoCurrentView, documentID)
	}
	if err != nil {
		return nil, err
	}

	return s.getView(viewID)
}

// RecordEdges implements the Store interface.
func (s *SqliteStore) RecordEdges(documentID string, referenced []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM document_edges WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	for _, ref := range referenced {
		if _, err := tx.Exec(
			`INSERT INTO document_edges (document_id, referenced_id) VALUES (?, ?)`,
			documentID, ref,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Dependents implements the Store interface.
func (s *SqliteStore) Dependents(documentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT document_id FROM document_edges WHERE referenced_id = ? ORDER BY document_id`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// Close implements the Store interface.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *SqliteStore) StorePath() string {
	return s.path
}
