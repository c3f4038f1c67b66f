package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/query"
)

// FetchAll returns every stored decision, newest first.
//
// FetchAll never fails for callers: read errors are logged and an empty
// slice is returned, so read paths can treat "broken" like "no history".
func (s *Store) FetchAll(ctx context.Context) []decision.Decision {
	ds, err := s.Fetch(ctx, query.All())
	if err != nil {
		slog.Error("fetch all decisions failed", "error", err)
		return []decision.Decision{}
	}
	return ds
}

// Fetch returns the decisions matching q in q's order.
//
// Returns *query.ValidationError for malformed queries and
// *PersistenceError for read failures.
func (s *Store) Fetch(ctx context.Context, q query.Query) ([]decision.Decision, error) {
	sqlText, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	ds, err := s.fetchCompiled(ctx, sqlText, params)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	return ds, nil
}

// fetchCompiled runs a compiled decision query.
func (s *Store) fetchCompiled(ctx context.Context, sqlText string, params []any) ([]decision.Decision, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	ds := []decision.Decision{}
	for rows.Next() {
		var d decision.Decision
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.CreatedAt = time.Unix(0, createdAt).UTC()
		ds = append(ds, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return ds, nil
}

// Count returns the number of stored decisions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions").Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// Save appends decisions that are not yet stored.
//
// Decisions whose ID is already present are ignored (ON CONFLICT(id) DO
// NOTHING), so Save never rewrites an existing record. The call is
// all-or-nothing: every decision is validated before the transaction, all
// inserts share one transaction, and any failure rolls back the whole call
// and returns *PersistenceError.
//
// When at least one row was inserted, every live observer is refreshed
// before Save returns.
func (s *Store) Save(ctx context.Context, ds []decision.Decision) error {
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}
	if len(ds) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	inserted, err := insertDecisions(ctx, tx, ds)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("commit: %w", err)}
	}

	slog.Debug("decisions saved", "requested", len(ds), "inserted", inserted)
	if inserted > 0 {
		s.metrics.saved.Add(ctx, inserted)
		s.refreshObservers(ctx)
	}
	return nil
}

// Remove deletes the decision with d's identifier.
// Removing an unknown identifier is a no-op success.
func (s *Store) Remove(ctx context.Context, d decision.Decision) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM decisions WHERE id = ?", d.ID)
	if err != nil {
		return &PersistenceError{Op: "remove", Err: err}
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "remove", Err: fmt.Errorf("rows affected: %w", err)}
	}

	slog.Debug("decision removed", "id", d.ID, "removed", removed)
	if removed > 0 {
		s.metrics.removed.Add(ctx, removed)
		s.refreshObservers(ctx)
	}
	return nil
}

// SeedOnce inserts ds and sets the boolean default flag in one transaction,
// unless flag is already set. Returns whether seeding happened.
// The flag and the decisions commit together or not at all.
func (s *Store) SeedOnce(ctx context.Context, flag string, ds []decision.Decision) (bool, error) {
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return false, fmt.Errorf("seed: %w", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &PersistenceError{Op: "seed", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	seeded, err := readBool(ctx, tx, flag)
	if err != nil {
		return false, &PersistenceError{Op: "seed", Err: err}
	}
	if seeded {
		return false, nil
	}

	inserted, err := insertDecisions(ctx, tx, ds)
	if err != nil {
		return false, &PersistenceError{Op: "seed", Err: err}
	}
	if err := writeValue(ctx, tx, flag, formatBool(true)); err != nil {
		return false, &PersistenceError{Op: "seed", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return false, &PersistenceError{Op: "seed", Err: fmt.Errorf("commit: %w", err)}
	}

	slog.Info("preset decisions seeded", "flag", flag, "inserted", inserted)
	if inserted > 0 {
		s.metrics.saved.Add(ctx, inserted)
		s.refreshObservers(ctx)
	}
	return true, nil
}

// insertDecisions inserts ds inside tx and returns how many rows were new.
func insertDecisions(ctx context.Context, tx *sql.Tx, ds []decision.Decision) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decisions (id, answer, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, d := range ds {
		result, err := stmt.ExecContext(ctx, d.ID, d.Answer, d.CreatedAt.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("insert decision %s: %w", d.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}
