package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/magicball/internal/query"
)

// Table is the decisions table name.
const Table = "decisions"

// Columns is the fixed projection every compiled query selects, in scan order.
const Columns = "id, answer, created_at"

// SQLCompiler compiles decision queries to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries end with the identifier tie-break for a total order.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// The query is validated first. Malformed queries return a
// *query.ValidationError.
func (c *SQLCompiler) Compile(q query.Query) (string, []any, error) {
	if err := query.Validate(q); err != nil {
		return "", nil, err
	}

	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	orderByClause := " ORDER BY " + c.orderBy(q)

	sql := fmt.Sprintf("SELECT %s FROM %s%s%s",
		Columns,
		Table,
		whereClause,
		orderByClause)

	return sql, params, nil
}

// orderBy renders the effective sort keys.
// COLLATE BINARY keeps text ordering identical across SQLite versions.
func (c *SQLCompiler) orderBy(q query.Query) string {
	keys := q.OrderKeys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		dir := "ASC"
		if k.Descending {
			dir = "DESC"
		}
		switch k.Field {
		case query.FieldCreatedAt:
			parts = append(parts, "created_at "+dir)
		default:
			parts = append(parts, fmt.Sprintf("%s %s COLLATE BINARY", k.Field, dir))
		}
	}
	return strings.Join(parts, ", ")
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case query.AnswerEquals:
		return "answer = ?", []any{pred.Value}, nil
	case *query.AnswerEquals:
		return "answer = ?", []any{pred.Value}, nil
	case query.AnswerContains:
		return "instr(answer, ?) > 0", []any{pred.Substring}, nil
	case *query.AnswerContains:
		return "instr(answer, ?) > 0", []any{pred.Substring}, nil
	case query.CreatedBetween:
		return c.compileRange(pred)
	case *query.CreatedBetween:
		return c.compileRange(*pred)
	case query.IDIn:
		return c.compileIDIn(pred)
	case *query.IDIn:
		return c.compileIDIn(*pred)
	case query.And:
		return c.compileAnd(pred)
	case *query.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileRange compiles a half-open [From, To) timestamp range.
// Timestamps are stored as Unix nanoseconds.
func (c *SQLCompiler) compileRange(r query.CreatedBetween) (string, []any, error) {
	var parts []string
	var params []any
	if !r.From.IsZero() {
		parts = append(parts, "created_at >= ?")
		params = append(params, r.From.UnixNano())
	}
	if !r.To.IsZero() {
		parts = append(parts, "created_at < ?")
		params = append(params, r.To.UnixNano())
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileIDIn compiles an identifier set membership test.
func (c *SQLCompiler) compileIDIn(in query.IDIn) (string, []any, error) {
	if len(in.IDs) == 0 {
		return "0 = 1", nil, nil // Always false
	}
	placeholders := make([]string, len(in.IDs))
	params := make([]any, len(in.IDs))
	for i, id := range in.IDs {
		placeholders[i] = "?"
		params[i] = id
	}
	return fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")), params, nil
}

// compileAnd compiles an And predicate to conjunction with AND.
func (c *SQLCompiler) compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	var sqlParts []string
	var allParams []any

	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}
