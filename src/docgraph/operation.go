package docgraph

import (
	"bytes"
	"sort"

	"github.com/ugorji/go/codec"

	"github.com/weavemesh/weave/src/common"
)

// Action is the kind of mutation an operation applies to its document.
type Action string

const (
	// Create starts a new document. A CREATE has an empty previous-set and
	// the document's id is the id of its CREATE.
	Create Action = "create"
	// Update overwrites the fields it names, leaving all others untouched.
	Update Action = "update"
	// Delete marks the document as deleted on its branch.
	Delete Action = "delete"
)

// OperationBody is the content-addressed part of an operation. The operation
// id is a hash over the canonical encoding of the body, which is why the body
// must never be mutated once the id has been computed.
type OperationBody struct {
	Action   Action           `json:"action"`
	Previous []string         `json:"previous"`
	Fields   map[string]Value `json:"fields"`
	Author   string           `json:"author"`
	Sequence int64            `json:"seq"`
}

// Marshal - canonical json encoding of the body only. Canonical encoding
// sorts map keys, so two replicas hashing the same body always produce the
// same bytes.
func (b *OperationBody) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(b); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal ...
func (b *OperationBody) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(buf, jh)
	return dec.Decode(b)
}

// Hash returns the sha256 hash of the canonical body encoding.
func (b *OperationBody) Hash() ([]byte, error) {
	hashBytes, err := b.Marshal()
	if err != nil {
		return nil, err
	}
	return common.SHA256(hashBytes), nil
}

// Operation is a single validated mutation in a document's causal history.
// Signature verification and log integrity checks happen upstream; by the
// time an Operation reaches this package it is trusted input.
type Operation struct {
	Body       OperationBody `json:"body"`
	DocumentID string        `json:"document_id"`

	id string
}

// NewCreate returns a CREATE operation seeding a new document with the given
// fields. The document id is the operation's own id.
func NewCreate(fields map[string]Value, author string, sequence int64) *Operation {
	op := &Operation{
		Body: OperationBody{
			Action:   Create,
			Previous: []string{},
			Fields:   fields,
			Author:   author,
			Sequence: sequence,
		},
	}
	op.DocumentID = op.ID()
	return op
}

// NewUpdate returns an UPDATE operation overwriting the named fields on top
// of the given previous operations.
func NewUpdate(documentID string, previous []string, fields map[string]Value, author string, sequence int64) *Operation {
	return &Operation{
		Body: OperationBody{
			Action:   Update,
			Previous: sortedIDs(previous),
			Fields:   fields,
			Author:   author,
			Sequence: sequence,
		},
		DocumentID: documentID,
	}
}

// NewDelete returns a DELETE operation on top of the given previous
// operations.
func NewDelete(documentID string, previous []string, author string, sequence int64) *Operation {
	return &Operation{
		Body: OperationBody{
			Action:   Delete,
			Previous: sortedIDs(previous),
			Author:   author,
			Sequence: sequence,
		},
		DocumentID: documentID,
	}
}

// ID returns the operation's content-derived identifier.
func (op *Operation) ID() string {
	if op.id == "" {
		hash, _ := op.Body.Hash()
		op.id = common.HashHex(hash)
	}
	return op.id
}

// IsCreate ...
func (op *Operation) IsCreate() bool {
	return op.Body.Action == Create
}

// IsDelete ...
func (op *Operation) IsDelete() bool {
	return op.Body.Action == Delete
}

// Previous returns the operation's declared dependency set.
func (op *Operation) Previous() []string {
	return op.Body.Previous
}

// Marshal - canonical json encoding of body and document id, used by the
// persistent store backends.
func (op *Operation) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(op); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal ...
func (op *Operation) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(buf, jh)
	return dec.Decode(op)
}

// Equals compares two operations by content.
func (op *Operation) Equals(o *Operation) bool {
	if op.DocumentID != o.DocumentID {
		return false
	}
	return op.ID() == o.ID()
}

// sortedIDs copies and sorts a set of ids into the canonical order used for
// hashing and comparison.
func sortedIDs(ids []string) []string {
	res := make([]string, len(ids))
	copy(res, ids)
	sort.Strings(res)
	return res
}
