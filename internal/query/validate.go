package query

import "fmt"

// ValidationError describes why a query cannot be executed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + e.Reason
}

// MaxIDs bounds how many identifiers one query may name across all of its
// IDIn predicates. Each identifier becomes a bound SQL parameter, and SQLite
// caps parameters per statement.
const MaxIDs = 500

// Validate checks that q can be compiled.
//
// Rules:
//  1. Sort keys name declared fields, each at most once
//  2. Equality and substring predicates carry non-empty text
//  3. CreatedBetween bounds are not inverted
//  4. No predicate is nil, including typed nil pointers
//  5. IDIn predicates name at most MaxIDs identifiers in total
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	seen := make(map[Field]bool, len(q.Sort))
	for i, k := range q.Sort {
		if !k.Field.Valid() {
			return invalidf("sort key %d: unknown field %d", i, int(k.Field))
		}
		if seen[k.Field] {
			return invalidf("sort key %d: field %s listed twice", i, k.Field)
		}
		seen[k.Field] = true
	}
	if q.Filter == nil {
		return nil
	}
	v := &validator{}
	return v.predicate(q.Filter)
}

// validator walks a predicate tree, counting identifiers as it goes.
type validator struct {
	ids int
}

func (v *validator) predicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return invalidf("nil predicate")
	case AnswerEquals:
		return validateText("answer equals", pred.Value)
	case *AnswerEquals:
		if pred == nil {
			return nilPointer(pred)
		}
		return validateText("answer equals", pred.Value)
	case AnswerContains:
		return validateText("answer contains", pred.Substring)
	case *AnswerContains:
		if pred == nil {
			return nilPointer(pred)
		}
		return validateText("answer contains", pred.Substring)
	case CreatedBetween:
		return validateRange(pred)
	case *CreatedBetween:
		if pred == nil {
			return nilPointer(pred)
		}
		return validateRange(*pred)
	case IDIn:
		return v.idIn(pred)
	case *IDIn:
		if pred == nil {
			return nilPointer(pred)
		}
		return v.idIn(*pred)
	case And:
		return v.and(pred)
	case *And:
		if pred == nil {
			return nilPointer(pred)
		}
		return v.and(*pred)
	default:
		return invalidf("unsupported predicate type %T", p)
	}
}

func (v *validator) idIn(in IDIn) error {
	v.ids += len(in.IDs)
	if v.ids > MaxIDs {
		return invalidf("id in: more than %d identifiers", MaxIDs)
	}
	return nil
}

func (v *validator) and(a And) error {
	for i, p := range a.Predicates {
		if p == nil {
			return invalidf("and: predicate %d is nil", i)
		}
		if err := v.predicate(p); err != nil {
			return err
		}
	}
	return nil
}

func nilPointer(p Predicate) error {
	return invalidf("nil %T predicate", p)
}

func validateText(what, s string) error {
	if s == "" {
		return invalidf("%s: empty text", what)
	}
	return nil
}

func validateRange(r CreatedBetween) error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return invalidf("created between: to %s is before from %s", r.To, r.From)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
