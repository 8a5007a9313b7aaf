package docgraph

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/weavemesh/weave/src/common"
)

// DocumentView is a materialized snapshot of a document at a given frontier.
// For a fixed frontier, Fields and IsDeleted are a pure function of the
// operations reachable from that frontier, so recomputing a view from the
// same inputs always yields an identical result.
type DocumentView struct {
	ViewID     string           `json:"view_id"`
	DocumentID string           `json:"document_id"`
	Frontier   []string         `json:"frontier"`
	Fields     map[string]Value `json:"fields"`
	IsDeleted  bool             `json:"is_deleted"`
}

// NewDocumentView computes the view id from the frontier and returns the
// assembled view. The frontier is stored in canonical sorted order.
func NewDocumentView(documentID string, frontier []string, fields map[string]Value, isDeleted bool) *DocumentView {
	sorted := sortedIDs(frontier)
	return &DocumentView{
		ViewID:     viewID(sorted),
		DocumentID: documentID,
		Frontier:   sorted,
		Fields:     fields,
		IsDeleted:  isDeleted,
	}
}

// viewID is a deterministic hash of the sorted frontier.
func viewID(frontier []string) string {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(frontier); err != nil {
		// Encoding a slice of strings cannot fail.
		panic(err)
	}

	return common.HashHex(common.SHA256(buf.Bytes()))
}

// Marshal - canonical json encoding of the view.
func (v *DocumentView) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal ...
func (v *DocumentView) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(buf, jh)
	return dec.Decode(v)
}

// Equals reports whether two views are the same snapshot. The view id covers
// the frontier, and the frontier determines fields and the deleted flag, so
// comparing ids and flags is sufficient.
func (v *DocumentView) Equals(o *DocumentView) bool {
	return v.ViewID == o.ViewID && v.IsDeleted == o.IsDeleted
}
