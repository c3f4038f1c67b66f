package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Defaults is a small persistent key-value table for flags and counters.
// Values are stored as text; typed accessors parse them on read.
type Defaults struct {
	store *Store
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Bool returns the boolean stored under key, or false if key is unset.
func (d *Defaults) Bool(ctx context.Context, key string) (bool, error) {
	v, err := readBool(ctx, d.store.db, key)
	if err != nil {
		return false, &PersistenceError{Op: "defaults", Err: err}
	}
	return v, nil
}

// SetBool stores a boolean under key.
func (d *Defaults) SetBool(ctx context.Context, key string, value bool) error {
	if err := writeValue(ctx, d.store.db, key, formatBool(value)); err != nil {
		return &PersistenceError{Op: "defaults", Err: err}
	}
	return nil
}

// Int returns the integer stored under key, or 0 if key is unset.
func (d *Defaults) Int(ctx context.Context, key string) (int64, error) {
	raw, ok, err := readValue(ctx, d.store.db, key)
	if err != nil {
		return 0, &PersistenceError{Op: "defaults", Err: err}
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &PersistenceError{Op: "defaults", Err: fmt.Errorf("parse %s: %w", key, err)}
	}
	return n, nil
}

// Increment atomically adds one to the integer under key and returns the
// new value. An unset key starts from zero.
func (d *Defaults) Increment(ctx context.Context, key string) (int64, error) {
	var n int64
	err := d.store.db.QueryRowContext(ctx, `
		INSERT INTO defaults (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
		RETURNING CAST(value AS INTEGER)
	`, key).Scan(&n)
	if err != nil {
		return 0, &PersistenceError{Op: "defaults", Err: fmt.Errorf("increment %s: %w", key, err)}
	}
	return n, nil
}

func readValue(ctx context.Context, q querier, key string) (string, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM defaults WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

func readBool(ctx context.Context, q querier, key string) (bool, error) {
	raw, ok, err := readValue(ctx, q, key)
	if err != nil || !ok {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func writeValue(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO defaults (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}
