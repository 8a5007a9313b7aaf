package docgraph

import (
	"fmt"
	"strings"
)

// IncompleteGraphError signals that some operation's previous-set references
// an id that is not present in the loaded operation set. This is not a
// failure: logs replicate out of causal order, so materialization is deferred
// until the missing operations arrive.
type IncompleteGraphError struct {
	DocumentID string
	Missing    []string
}

// Error implements the error interface.
func (e IncompleteGraphError) Error() string {
	return fmt.Sprintf("incomplete graph for %s, missing [%s]",
		e.DocumentID,
		strings.Join(e.Missing, ", "))
}

// IsIncompleteGraph checks that an error is of type IncompleteGraphError.
func IsIncompleteGraph(err error) bool {
	_, ok := err.(IncompleteGraphError)
	return ok
}

// MalformedGraphError signals that a document's operation set is internally
// inconsistent. Retrying cannot succeed; the document is quarantined until
// someone investigates.
type MalformedGraphError struct {
	DocumentID string
	Reason     string
}

// Error implements the error interface.
func (e MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed graph for %s: %s", e.DocumentID, e.Reason)
}

// IsMalformedGraph checks that an error is of type MalformedGraphError.
func IsMalformedGraph(err error) bool {
	_, ok := err.(MalformedGraphError)
	return ok
}

// DocumentNotFoundError signals that no operations exist for the given
// document id.
type DocumentNotFoundError struct {
	DocumentID string
}

// Error implements the error interface.
func (e DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %s not found", e.DocumentID)
}

// IsDocumentNotFound checks that an error is of type DocumentNotFoundError.
func IsDocumentNotFound(err error) bool {
	_, ok := err.(DocumentNotFoundError)
	return ok
}
