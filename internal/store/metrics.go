package store

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/roach88/magicball/internal/store"

type storeMetrics struct {
	saved     metric.Int64Counter
	removed   metric.Int64Counter
	observers metric.Int64UpDownCounter
}

// newStoreMetrics registers store instruments on meter. Any registration
// failure falls back to no-op instruments so metrics never block storage.
func newStoreMetrics(meter metric.Meter) *storeMetrics {
	fallback := noop.NewMeterProvider().Meter(meterName)

	saved, err := meter.Int64Counter("magicball.store.saved",
		metric.WithDescription("Decisions inserted by Save and SeedOnce"))
	if err != nil {
		slog.Warn("store metric unavailable", "instrument", "magicball.store.saved", "error", err)
		saved, _ = fallback.Int64Counter("magicball.store.saved")
	}

	removed, err := meter.Int64Counter("magicball.store.removed",
		metric.WithDescription("Decisions deleted by Remove"))
	if err != nil {
		slog.Warn("store metric unavailable", "instrument", "magicball.store.removed", "error", err)
		removed, _ = fallback.Int64Counter("magicball.store.removed")
	}

	observers, err := meter.Int64UpDownCounter("magicball.store.observers",
		metric.WithDescription("Observers currently registered with the store"))
	if err != nil {
		slog.Warn("store metric unavailable", "instrument", "magicball.store.observers", "error", err)
		observers, _ = fallback.Int64UpDownCounter("magicball.store.observers")
	}

	return &storeMetrics{saved: saved, removed: removed, observers: observers}
}
