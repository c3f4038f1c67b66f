package query

import "time"

// Field identifies a sortable decision field.
type Field int

const (
	// FieldCreatedAt is the creation timestamp.
	FieldCreatedAt Field = iota + 1
	// FieldAnswer is the answer text (binary collation).
	FieldAnswer
	// FieldID is the decision identifier (binary collation).
	FieldID
)

// String returns the field's storage name.
func (f Field) String() string {
	switch f {
	case FieldCreatedAt:
		return "created_at"
	case FieldAnswer:
		return "answer"
	case FieldID:
		return "id"
	default:
		return "unknown"
	}
}

// Valid reports whether f is one of the declared fields.
func (f Field) Valid() bool {
	return f >= FieldCreatedAt && f <= FieldID
}

// SortKey orders results by one field.
type SortKey struct {
	Field      Field
	Descending bool
}

// Asc sorts by f ascending.
func Asc(f Field) SortKey { return SortKey{Field: f} }

// Desc sorts by f descending.
func Desc(f Field) SortKey { return SortKey{Field: f, Descending: true} }

// Predicate represents a filter condition over decisions.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// AnswerEquals matches decisions whose answer is exactly Value.
type AnswerEquals struct {
	Value string
}

func (AnswerEquals) predicateNode() {}

// AnswerContains matches decisions whose answer contains Substring
// (case-sensitive).
type AnswerContains struct {
	Substring string
}

func (AnswerContains) predicateNode() {}

// CreatedBetween matches decisions created in the half-open range [From, To).
// A zero bound leaves that side open.
type CreatedBetween struct {
	From time.Time
	To   time.Time
}

func (CreatedBetween) predicateNode() {}

// IDIn matches decisions whose identifier is one of IDs.
// An empty IDs slice matches nothing.
type IDIn struct {
	IDs []string
}

func (IDIn) predicateNode() {}

// And is a conjunction of predicates. Empty Predicates means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Query selects and orders a view over the decision collection.
//
// The zero Query matches every decision in default order.
type Query struct {
	Filter Predicate // nil = no filter
	Sort   []SortKey // empty = DefaultSort
}

// DefaultSort is newest first.
var DefaultSort = []SortKey{Desc(FieldCreatedAt)}

// All returns the query matching every decision, newest first.
func All() Query {
	return Query{}
}

// Where returns a copy of q with the given filter.
func (q Query) Where(p Predicate) Query {
	q.Filter = p
	return q
}

// OrderBy returns a copy of q with the given sort keys.
func (q Query) OrderBy(keys ...SortKey) Query {
	q.Sort = append([]SortKey(nil), keys...)
	return q
}

// OrderKeys returns the effective sort keys: the requested keys (or
// DefaultSort) followed by the identifier tie-break.
func (q Query) OrderKeys() []SortKey {
	keys := q.Sort
	if len(keys) == 0 {
		keys = DefaultSort
	}
	out := make([]SortKey, 0, len(keys)+1)
	hasID := false
	for _, k := range keys {
		if k.Field == FieldID {
			hasID = true
		}
		out = append(out, k)
	}
	if !hasID {
		out = append(out, Asc(FieldID))
	}
	return out
}
