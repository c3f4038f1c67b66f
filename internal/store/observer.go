package store

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"weak"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/query"
)

// State is an observer's subscription lifecycle state.
type State int

const (
	StateUnsubscribed State = iota
	StateActive
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ChangeKind discriminates Change notifications.
type ChangeKind int

const (
	ChangeInitial ChangeKind = iota + 1
	ChangeModify
	ChangeError
)

// String returns a human-readable kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeInitial:
		return "initial"
	case ChangeModify:
		return "modify"
	case ChangeError:
		return "error"
	default:
		return "unknown"
	}
}

// Change is one notification delivered to an observer callback.
//
// Decisions is the full ordered result for Initial and Modify. The embedded
// Changes are populated for Modify only. Err is set for Error only.
type Change struct {
	Kind      ChangeKind
	Decisions []decision.Decision
	Changes
	Err error
}

// Observer is a live query over the store.
//
// The store holds observers only weakly: an observer that its owner drops is
// pruned after garbage collection. Call Close to stop notifications
// deterministically.
type Observer struct {
	store *Store

	sqlText    string
	params     []any
	compileErr error

	// deliverMu is held while fn runs, so Close can wait out a delivery in
	// progress. Lock order: store.writeMu, deliverMu, mu.
	deliverMu sync.Mutex

	mu      sync.Mutex
	state   State
	fn      func(Change)
	current []decision.Decision
	id      uint64
	cleanup runtime.Cleanup
}

// Observe returns a new Unsubscribed observer bound to q.
// Query validation errors surface from Observer.Observe.
func (s *Store) Observe(q query.Query) *Observer {
	o := &Observer{store: s, current: []decision.Decision{}}
	o.sqlText, o.params, o.compileErr = s.compiler.Compile(q)
	return o
}

// Observe subscribes fn to o's query.
//
// The initial result is computed under the store write lock and delivered as
// ChangeInitial before Observe returns; no mutation can interleave between
// the initial result and registration. fn then receives ChangeModify after
// every committed mutation that changes o's result.
//
// If the initial fetch fails, fn receives ChangeError instead, o terminates,
// and the *ObservationError is returned.
//
// fn runs with the store write lock held. It may read the store and o, but
// must not mutate the store. It must not Close o while handling
// ChangeInitial or ChangeModify; o is already terminated when ChangeError
// arrives, so Close is a no-op there.
func (o *Observer) Observe(ctx context.Context, fn func(Change)) error {
	if fn == nil {
		return errors.New("observe: nil callback")
	}

	s := o.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	switch o.state {
	case StateActive:
		o.mu.Unlock()
		return ErrAlreadyObserving
	case StateTerminated:
		o.mu.Unlock()
		return ErrObserverTerminated
	}
	if o.compileErr != nil {
		o.state = StateTerminated
		o.mu.Unlock()
		return o.compileErr
	}

	ds, err := s.fetchCompiled(ctx, o.sqlText, o.params)
	if err != nil {
		o.state = StateTerminated
		o.mu.Unlock()
		oe := &ObservationError{Err: err}
		slog.Warn("observer initial fetch failed", "error", err)
		fn(Change{Kind: ChangeError, Err: oe})
		return oe
	}

	o.state = StateActive
	o.fn = fn
	o.current = ds
	o.id = s.register(o)
	o.cleanup = runtime.AddCleanup(o, s.collected, o.id)
	o.mu.Unlock()

	fn(Change{Kind: ChangeInitial, Decisions: slices.Clone(ds)})
	return nil
}

// Close terminates o. If a callback is running on another goroutine, Close
// waits for it to return; no callback is delivered after Close returns.
// Close is idempotent.
func (o *Observer) Close() {
	if o.State() == StateTerminated {
		return
	}

	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	if o.state == StateTerminated {
		o.mu.Unlock()
		return
	}
	wasActive := o.state == StateActive
	o.terminateLocked()
	o.mu.Unlock()

	if wasActive {
		o.cleanup.Stop()
		o.store.forget(o.id)
	}
}

// State returns o's lifecycle state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Count returns the number of decisions in the most recent result.
func (o *Observer) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.current)
}

// ItemAt returns the decision at index i of the most recent result.
func (o *Observer) ItemAt(i int) (decision.Decision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i < 0 || i >= len(o.current) {
		return decision.Decision{}, false
	}
	return o.current[i], true
}

// Snapshot returns a copy of the most recent result.
func (o *Observer) Snapshot() []decision.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.current)
}

// refresh recomputes o's result and delivers the diff.
// Called with the store write lock held.
func (o *Observer) refresh(ctx context.Context) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	if o.state != StateActive {
		o.mu.Unlock()
		return
	}
	fn := o.fn

	ds, err := o.store.fetchCompiled(ctx, o.sqlText, o.params)
	if err != nil {
		o.terminateLocked()
		o.mu.Unlock()
		o.cleanup.Stop()
		o.store.forget(o.id)

		slog.Warn("observer refresh failed", "observer", o.id, "error", err)
		fn(Change{Kind: ChangeError, Err: &ObservationError{Err: err}})
		return
	}

	changes := Diff(o.current, ds)
	if changes.Empty() {
		o.mu.Unlock()
		return
	}
	o.current = ds
	o.mu.Unlock()

	fn(Change{Kind: ChangeModify, Decisions: slices.Clone(ds), Changes: changes})
}

// terminateLocked moves o to Terminated. The last result stays readable.
func (o *Observer) terminateLocked() {
	o.state = StateTerminated
	o.fn = nil
}

// register records o in the weak registry and returns its id.
func (s *Store) register(o *Observer) uint64 {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	s.nextObsID++
	id := s.nextObsID
	s.observers[id] = weak.Make(o)
	s.metrics.observers.Add(context.Background(), 1)
	return id
}

// forget drops id from the registry. Reports whether it was present.
func (s *Store) forget(id uint64) bool {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	if _, ok := s.observers[id]; !ok {
		return false
	}
	delete(s.observers, id)
	s.metrics.observers.Add(context.Background(), -1)
	return true
}

// collected runs after an observer is garbage collected.
func (s *Store) collected(id uint64) {
	if s.forget(id) {
		slog.Debug("observer collected", "observer", id)
	}
}

// liveObservers returns strong references to every registered observer in
// registration order, pruning entries whose observer was collected.
func (s *Store) liveObservers() []*Observer {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	live := make([]*Observer, 0, len(ids))
	for _, id := range ids {
		o := s.observers[id].Value()
		if o == nil {
			delete(s.observers, id)
			s.metrics.observers.Add(context.Background(), -1)
			continue
		}
		live = append(live, o)
	}
	return live
}

// refreshObservers recomputes every live observer after a commit.
// Called with the store write lock held. Cancellation of ctx does not stop
// delivery for a write that already committed.
func (s *Store) refreshObservers(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range s.liveObservers() {
		o.refresh(ctx)
	}
}
