package store

import (
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/testutil"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestFactory returns a factory with sequential ids and a clock that
// steps one minute per decision.
func newTestFactory() *decision.Factory {
	return decision.NewFactory(
		testutil.NewSequentialIDs("d"),
		testutil.NewDeterministicClock(testutil.Epoch, time.Minute),
	)
}

// createTestDecision builds a decision with explicit fields.
func createTestDecision(id, answer string, createdAt time.Time) decision.Decision {
	return decision.Decision{ID: id, Answer: answer, CreatedAt: createdAt.UTC()}
}

// recorder collects changes delivered to an observer callback.
type recorder struct {
	changes []Change
}

func (r *recorder) record(c Change) {
	r.changes = append(r.changes, c)
}

func (r *recorder) last() Change {
	return r.changes[len(r.changes)-1]
}

func ids(ds []decision.Decision) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func noopProvider() metric.MeterProvider {
	return noop.NewMeterProvider()
}
