// Package query describes a typed view over the decision collection.
//
// A Query is a filter predicate plus an ordered list of sort keys. It is the
// contract between callers and the store backend: callers build queries from
// the sealed set of predicate types in this package, and internal/querysql
// compiles them to parameterized SQL.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package implement it, which keeps backend type switches
// exhaustive:
//
//	switch p := pred.(type) {
//	case AnswerEquals:
//	case AnswerContains:
//	case CreatedBetween:
//	case IDIn:
//	case And:
//	}
//
// TYPED SORT KEYS:
//
// Sort keys name a Field constant, never a column string, so a misspelled
// field is a compile error rather than a runtime surprise.
//
// TOTAL ORDER:
//
// OrderKeys always ends with the identifier ascending unless the caller
// already sorts by identifier. Two decisions that tie on every requested
// key (for example two presets created in the same instant) therefore still
// get a stable position, and diffs computed across refreshes assign the
// same index to the same record.
package query
