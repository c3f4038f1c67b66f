package store

import (
	"errors"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/query"
	"github.com/roach88/magicball/internal/testutil"
)

func TestObserver_InitialSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	d1 := createTestDecision("d1", "Yes", testutil.Epoch)
	d2 := createTestDecision("d2", "No", testutil.Epoch.Add(time.Minute))
	require.NoError(t, s.Save(ctx, []decision.Decision{d1, d2}))

	var rec recorder
	o := s.Observe(query.All())
	assert.Equal(t, StateUnsubscribed, o.State())
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	require.Len(t, rec.changes, 1)
	c := rec.changes[0]
	assert.Equal(t, ChangeInitial, c.Kind)
	assert.Equal(t, []string{"d2", "d1"}, ids(c.Decisions))
	assert.NoError(t, c.Err)
	assert.Equal(t, StateActive, o.State())
}

func TestObserver_InsertDiff(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	d1 := createTestDecision("d1", "Yes", testutil.Epoch)
	d2 := createTestDecision("d2", "No", testutil.Epoch.Add(time.Minute))
	require.NoError(t, s.Save(ctx, []decision.Decision{d1, d2}))

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	d3 := createTestDecision("d3", "Maybe", testutil.Epoch.Add(2*time.Minute))
	require.NoError(t, s.Save(ctx, []decision.Decision{d3}))

	// Delivered before Save returned.
	require.Len(t, rec.changes, 2)
	c := rec.last()
	assert.Equal(t, ChangeModify, c.Kind)
	assert.Equal(t, []string{"d3", "d2", "d1"}, ids(c.Decisions))
	assert.Equal(t, []int{0}, c.Inserted)
	assert.Empty(t, c.Deleted)
	assert.Empty(t, c.Modified)
}

func TestObserver_DeleteDiffUsesPreviousIndexes(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	f := newTestFactory()

	ds, err := f.NewAll([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, ds))

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	// Previous result is [c, b, a]; b sits at index 1.
	require.NoError(t, s.Remove(ctx, ds[1]))

	c := rec.last()
	assert.Equal(t, ChangeModify, c.Kind)
	assert.Equal(t, []int{1}, c.Deleted)
	assert.Empty(t, c.Inserted)
	assert.Equal(t, []string{"c", "a"}, answers(c.Decisions))
}

func TestObserver_NoopMutationsDoNotNotify(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	d := createTestDecision("d1", "Yes", testutil.Epoch)
	require.NoError(t, s.Save(ctx, []decision.Decision{d}))

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	require.NoError(t, s.Save(ctx, []decision.Decision{d}))
	require.NoError(t, s.Remove(ctx, createTestDecision("unknown", "x", testutil.Epoch)))

	assert.Len(t, rec.changes, 1)
}

func TestObserver_FilteredResultUnaffected(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var rec recorder
	o := s.Observe(query.All().Where(query.AnswerEquals{Value: "Yes"}))
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "No", testutil.Epoch)}))
	assert.Len(t, rec.changes, 1, "unrelated insert must not produce a Modify")

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d2", "Yes", testutil.Epoch)}))
	require.Len(t, rec.changes, 2)
	assert.Equal(t, []int{0}, rec.last().Inserted)
}

func TestObserver_TieBreakStableIndexes(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, []decision.Decision{
		createTestDecision("a", "Yes", testutil.Epoch),
		createTestDecision("c", "No", testutil.Epoch),
	}))

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))
	t.Cleanup(o.Close)

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("b", "Maybe", testutil.Epoch)}))

	c := rec.last()
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Decisions))
	assert.Equal(t, []int{1}, c.Inserted)
}

func TestObserver_Accessors(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	f := newTestFactory()

	ds, err := f.NewAll([]string{"Yes", "No"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, ds))

	o := s.Observe(query.All())
	assert.Zero(t, o.Count())
	require.NoError(t, o.Observe(ctx, func(Change) {}))
	t.Cleanup(o.Close)

	assert.Equal(t, 2, o.Count())
	first, ok := o.ItemAt(0)
	require.True(t, ok)
	assert.Equal(t, "No", first.Answer)
	_, ok = o.ItemAt(2)
	assert.False(t, ok)
	_, ok = o.ItemAt(-1)
	assert.False(t, ok)

	snap := o.Snapshot()
	snap[0].Answer = "mutated"
	again, _ := o.ItemAt(0)
	assert.Equal(t, "No", again.Answer, "Snapshot must return a copy")
}

func TestObserver_CallbackMayReadStore(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var seen []int
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, func(c Change) {
		seen = append(seen, len(s.FetchAll(ctx)))
	}))
	t.Cleanup(o.Close)

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)}))
	assert.Equal(t, []int{0, 1}, seen)
}

func TestObserver_ObserveTwice(t *testing.T) {
	s := createTestStore(t)
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(t.Context(), func(Change) {}))
	t.Cleanup(o.Close)

	err := o.Observe(t.Context(), func(Change) {})
	assert.ErrorIs(t, err, ErrAlreadyObserving)
}

func TestObserver_NilCallback(t *testing.T) {
	s := createTestStore(t)
	o := s.Observe(query.All())
	assert.Error(t, o.Observe(t.Context(), nil))
	assert.Equal(t, StateUnsubscribed, o.State())
}

func TestObserver_Close(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))

	o.Close()
	o.Close() // idempotent
	assert.Equal(t, StateTerminated, o.State())

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)}))
	assert.Len(t, rec.changes, 1)

	err := o.Observe(ctx, rec.record)
	assert.ErrorIs(t, err, ErrObserverTerminated)
}

func TestObserver_CloseWaitsForInFlightDelivery(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var (
		delivered atomic.Int32
		blocked   atomic.Bool
		entered   = make(chan struct{})
		release   = make(chan struct{})
	)
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, func(c Change) {
		delivered.Add(1)
		if c.Kind == ChangeModify && blocked.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}))

	saved := make(chan error, 1)
	go func() {
		saved <- s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)})
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		o.Close()
		close(closed)
	}()

	isClosed := func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}
	assert.Never(t, isClosed, 50*time.Millisecond, 5*time.Millisecond, "Close returned during a delivery")

	close(release)
	require.Eventually(t, isClosed, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, <-saved)
	assert.Equal(t, StateTerminated, o.State())

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d2", "No", testutil.Epoch)}))
	assert.Equal(t, int32(2), delivered.Load())
}

func TestObserver_CloseFromErrorCallback(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, func(c Change) {
		rec.record(c)
		if c.Kind == ChangeError {
			o.Close()
		}
	}))

	o.mu.Lock()
	o.sqlText = "SELECT nope FROM missing_table"
	o.mu.Unlock()

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)}))
	require.Len(t, rec.changes, 2)
	assert.Equal(t, ChangeError, rec.last().Kind)
	assert.Equal(t, StateTerminated, o.State())
}

func TestObserver_IndependentObservers(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	a := createTestDecision("a", "Yes", testutil.Epoch)
	b := createTestDecision("b", "No", testutil.Epoch.Add(time.Minute))
	require.NoError(t, s.Save(ctx, []decision.Decision{a, b}))

	var all1, yes, all2 recorder
	oAll1 := s.Observe(query.All())
	oYes := s.Observe(query.All().Where(query.AnswerEquals{Value: "Yes"}))
	oAll2 := s.Observe(query.All())
	require.NoError(t, oAll1.Observe(ctx, all1.record))
	require.NoError(t, oYes.Observe(ctx, yes.record))
	require.NoError(t, oAll2.Observe(ctx, all2.record))
	t.Cleanup(oAll1.Close)
	t.Cleanup(oYes.Close)

	assert.Equal(t, []string{"b", "a"}, ids(all1.last().Decisions))
	assert.Equal(t, []string{"a"}, ids(yes.last().Decisions))
	assert.Equal(t, []string{"b", "a"}, ids(all2.last().Decisions))

	c := createTestDecision("c", "Yes", testutil.Epoch.Add(2*time.Minute))
	require.NoError(t, s.Save(ctx, []decision.Decision{c}))

	for _, rec := range []*recorder{&all1, &all2} {
		require.Len(t, rec.changes, 2)
		got := rec.last()
		assert.Equal(t, ChangeModify, got.Kind)
		assert.Equal(t, []int{0}, got.Inserted)
		assert.Empty(t, got.Deleted)
		assert.Equal(t, []string{"c", "b", "a"}, ids(got.Decisions))
	}
	require.Len(t, yes.changes, 2)
	assert.Equal(t, []int{0}, yes.last().Inserted)
	assert.Equal(t, []string{"c", "a"}, ids(yes.last().Decisions))

	oAll2.Close()
	require.NoError(t, s.Remove(ctx, b))

	require.Len(t, all1.changes, 3)
	assert.Equal(t, []int{1}, all1.last().Deleted)
	assert.Empty(t, all1.last().Inserted)
	assert.Equal(t, []string{"c", "a"}, ids(all1.last().Decisions))
	assert.Len(t, yes.changes, 2, "filtered result did not change")
	assert.Len(t, all2.changes, 2, "closed observer")
	assert.Equal(t, StateActive, oAll1.State())
	assert.Equal(t, StateActive, oYes.State())

	require.NoError(t, s.Remove(ctx, a))
	require.Len(t, yes.changes, 3)
	assert.Equal(t, []int{1}, yes.last().Deleted)
	assert.Equal(t, []string{"c"}, ids(yes.last().Decisions))
	require.Len(t, all1.changes, 4)
	assert.Equal(t, []int{1}, all1.last().Deleted)
}

func TestObserver_ConcurrentWriters(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	f := decision.NewFactory(nil, nil)

	var (
		mu      sync.Mutex
		changes []Change
	)
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	}))
	t.Cleanup(o.Close)

	const (
		writers = 8
		rounds  = 10
	)
	var wg sync.WaitGroup
	errs := make(chan error, writers*rounds*2)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rounds {
				d, err := f.New("answer")
				if err != nil {
					errs <- err
					return
				}
				if err := s.Save(ctx, []decision.Decision{d}); err != nil {
					errs <- err
					return
				}
				if (w+i)%2 == 0 {
					if err := s.Remove(ctx, d); err != nil {
						errs <- err
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, changes)
	require.Equal(t, ChangeInitial, changes[0].Kind)
	assert.Equal(t, ids(s.FetchAll(ctx)), ids(changes[len(changes)-1].Decisions))
	assert.Equal(t, ids(o.Snapshot()), ids(changes[len(changes)-1].Decisions))

	// Each modify, applied to the previous snapshot, yields the next one.
	prev := ids(changes[0].Decisions)
	for i, c := range changes[1:] {
		require.Equal(t, ChangeModify, c.Kind, "change %d", i+1)
		next := ids(c.Decisions)
		assert.Empty(t, c.Modified, "change %d", i+1)

		for _, idx := range c.Inserted {
			assert.NotContains(t, prev, next[idx], "change %d inserted a known id", i+1)
		}
		assert.Equal(t, without(prev, c.Deleted), without(next, c.Inserted), "change %d", i+1)
		prev = next
	}
}

func TestObserver_CloseBeforeObserve(t *testing.T) {
	s := createTestStore(t)
	o := s.Observe(query.All())
	o.Close()

	assert.Equal(t, StateTerminated, o.State())
	assert.ErrorIs(t, o.Observe(t.Context(), func(Change) {}), ErrObserverTerminated)
}

func TestObserver_ErrorOnceThenTerminated(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, rec.record))

	// Force the next recomputation to fail.
	o.mu.Lock()
	o.sqlText = "SELECT nope FROM missing_table"
	o.mu.Unlock()

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)}))
	require.Len(t, rec.changes, 2)

	c := rec.last()
	assert.Equal(t, ChangeError, c.Kind)
	assert.True(t, IsObservationError(c.Err))
	assert.Equal(t, StateTerminated, o.State())

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d2", "No", testutil.Epoch)}))
	assert.Len(t, rec.changes, 2, "no delivery after an error")
}

func TestObserver_InitialFetchFailure(t *testing.T) {
	s := createTestStore(t)

	var rec recorder
	o := s.Observe(query.All())
	o.sqlText = "SELECT nope FROM missing_table"

	err := o.Observe(t.Context(), rec.record)
	require.Error(t, err)
	assert.True(t, IsObservationError(err))

	require.Len(t, rec.changes, 1)
	assert.Equal(t, ChangeError, rec.changes[0].Kind)
	assert.Equal(t, StateTerminated, o.State())
}

func TestObserver_InvalidQuery(t *testing.T) {
	s := createTestStore(t)

	var rec recorder
	o := s.Observe(query.All().OrderBy(query.Asc(query.FieldAnswer), query.Desc(query.FieldAnswer)))
	err := o.Observe(t.Context(), rec.record)

	var ve *query.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Empty(t, rec.changes)
	assert.Equal(t, StateTerminated, o.State())
}

func TestObserver_DroppedObserverNeverNotified(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var calls atomic.Int32
	func() {
		o := s.Observe(query.All())
		require.NoError(t, o.Observe(ctx, func(Change) { calls.Add(1) }))
	}()
	require.Equal(t, int32(1), calls.Load())

	require.Eventually(t, func() bool {
		runtime.GC()
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		return len(s.observers) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Save(ctx, []decision.Decision{createTestDecision("d1", "Yes", testutil.Epoch)}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestObserver_StoreCloseDetaches(t *testing.T) {
	path := t.TempDir() + "/test.db"
	s, err := Open(path)
	require.NoError(t, err)

	var rec recorder
	o := s.Observe(query.All())
	require.NoError(t, o.Observe(t.Context(), rec.record))

	require.NoError(t, s.Close())
	assert.Empty(t, s.liveObservers())
	assert.Len(t, rec.changes, 1)
}

func TestStoreMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(t.Context()) })

	s := createTestStore(t, WithMeterProvider(mp))
	ctx := t.Context()
	f := newTestFactory()

	ds, err := f.NewAll([]string{"Yes", "No", "Maybe"})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, ds))
	require.NoError(t, s.Remove(ctx, ds[0]))

	o := s.Observe(query.All())
	require.NoError(t, o.Observe(ctx, func(Change) {}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(3), sumValue(t, rm, "magicball.store.saved"))
	assert.Equal(t, int64(1), sumValue(t, rm, "magicball.store.removed"))
	assert.Equal(t, int64(1), sumValue(t, rm, "magicball.store.observers"))

	o.Close()
	rm = metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(0), sumValue(t, rm, "magicball.store.observers"))
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

// without returns xs minus the elements at idx.
func without(xs []string, idx []int) []string {
	out := make([]string, 0, len(xs))
	for i, x := range xs {
		if !slices.Contains(idx, i) {
			out = append(out, x)
		}
	}
	return out
}
