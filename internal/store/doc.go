// Package store provides SQLite-backed durable storage for magicball decisions.
//
// The store owns two tables:
//   - decisions: the Decision collection, keyed by identifier
//   - defaults: a small key-value table for flags and counters
//
// and serves live queries through Observers.
//
// # Critical Patterns
//
// Identity
//   - decisions.id is the PRIMARY KEY; Save uses ON CONFLICT(id) DO NOTHING
//   - A record is never updated in place, only inserted or deleted
//
// Deterministic Query Results
//   - Every query ends with id ASC COLLATE BINARY (see internal/querysql)
//   - Diff indexes are stable across refreshes even under timestamp ties
//
// All-or-Nothing Writes
//   - Save and SeedOnce run in a single transaction; any failure rolls back
//     the whole call and returns *PersistenceError
//
// Causal Delivery
//   - A store-level write lock covers commit plus observer refresh
//   - Observers see Modify strictly after the commit that caused it and
//     before the mutating call returns
//
// # Observer Lifetime
//
// The store references observers only through weak pointers. An observer
// the caller drops is pruned after garbage collection and never receives
// another callback. Close terminates an observer explicitly.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
