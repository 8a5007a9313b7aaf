package docgraph

// Store is an interface for backend stores. It covers the three storage
// concerns of the materialization core: the append-only operation record,
// the document view store with its per-document current pointer, and the
// dependency index tracking relation edges between documents.
//
// Operations are immutable once persisted. Views are only ever superseded,
// never rewritten: MarkCurrent moves the current pointer, and a view write
// either commits a full consistent view or nothing.
type Store interface {
	// SetOperation persists a validated operation. Re-inserting the same
	// operation is a no-op; inserting a different operation under an
	// existing id fails with a KeyAlreadyExists store error.
	SetOperation(op *Operation) error
	// GetOperation returns an operation by id.
	GetOperation(id string) (*Operation, error)
	// HasOperation reports whether an operation with the given id exists.
	HasOperation(id string) bool
	// DocumentOperations returns the full operation set of a document.
	DocumentOperations(documentID string) ([]*Operation, error)
	// Documents returns the ids of all documents with at least one
	// operation.
	Documents() ([]string, error)
	// WriteView persists a resolved view, keyed by view id. Superseded
	// views are retained and stay readable by id.
	WriteView(view *DocumentView) error
	// GetView returns a view by view id.
	GetView(viewID string) (*DocumentView, error)
	// MarkCurrent swaps the document's current pointer to the given view.
	MarkCurrent(documentID string, viewID string) error
	// CurrentView returns the view the document's current pointer
	// designates, or a NoCurrentView store error when the document has
	// never been materialized.
	CurrentView(documentID string) (*DocumentView, error)
	// RecordEdges replaces the set of documents referenced by the given
	// document's current view.
	RecordEdges(documentID string, referenced []string) error
	// Dependents returns the ids of all documents whose recorded relation
	// edges point at the given document.
	Dependents(documentID string) ([]string, error)
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
