package docgraph

// ValueKind discriminates the types a document field can hold.
type ValueKind string

const (
	// Bool ...
	Bool ValueKind = "bool"
	// Int ...
	Int ValueKind = "int"
	// Float ...
	Float ValueKind = "float"
	// Text ...
	Text ValueKind = "str"
	// Relation holds references to other documents by document id. Views
	// store the references only; related documents are never inlined, so a
	// change in a related document does not rewrite this document's fields.
	Relation ValueKind = "relation"
)

// Value is a typed document field value. Exactly one of the payload members
// is meaningful, selected by Kind.
type Value struct {
	Kind      ValueKind `json:"kind"`
	Bool      bool      `json:"bool,omitempty"`
	Int       int64     `json:"int,omitempty"`
	Float     float64   `json:"float,omitempty"`
	Text      string    `json:"text,omitempty"`
	Relations []string  `json:"relations,omitempty"`
}

// BoolValue ...
func BoolValue(b bool) Value {
	return Value{Kind: Bool, Bool: b}
}

// IntValue ...
func IntValue(i int64) Value {
	return Value{Kind: Int, Int: i}
}

// FloatValue ...
func FloatValue(f float64) Value {
	return Value{Kind: Float, Float: f}
}

// TextValue ...
func TextValue(s string) Value {
	return Value{Kind: Text, Text: s}
}

// RelationValue returns a Value referencing one or more documents.
func RelationValue(documentIDs ...string) Value {
	return Value{Kind: Relation, Relations: documentIDs}
}

// Equals ...
func (v Value) Equals(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Bool:
		return v.Bool == o.Bool
	case Int:
		return v.Int == o.Int
	case Float:
		return v.Float == o.Float
	case Text:
		return v.Text == o.Text
	case Relation:
		if len(v.Relations) != len(o.Relations) {
			return false
		}
		for i := range v.Relations {
			if v.Relations[i] != o.Relations[i] {
				return false
			}
		}
		return true
	}
	return false
}

// copyFields returns a shallow copy of a field map. Values are plain structs
// so a shallow copy is enough to isolate the accumulator from its input.
func copyFields(fields map[string]Value) map[string]Value {
	res := make(map[string]Value, len(fields))
	for k, v := range fields {
		res[k] = v
	}
	return res
}
