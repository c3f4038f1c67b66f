// Package ball runs a single shake of the magic ball.
//
// A shake counts itself, asks the remote API for an answer within a
// timeout, and records a fetched answer in the decision history. When the
// remote call fails the answer comes from the local pool instead and nothing
// is recorded. Only one shake is in flight per Ball: starting a new shake
// cancels the previous one, and a cancelled shake produces no answer.
package ball

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/telemetry"
)

const tracerName = "github.com/roach88/magicball/internal/ball"

// DefaultTimeout bounds the remote fetch of one shake.
const DefaultTimeout = 10 * time.Second

// Source tells where a shake's answer came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Result is the outcome of one shake.
type Result struct {
	Decision decision.Decision `json:"decision"`
	Source   Source            `json:"source"`
	Shakes   int64             `json:"shakes"`
}

// Fetcher returns remote answer text.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Saver records decisions in history.
type Saver interface {
	Save(ctx context.Context, ds []decision.Decision) error
}

// Generator draws a local answer. It never fails.
type Generator interface {
	Generate(ctx context.Context) decision.Decision
}

// Counter records one shake and returns the running total.
type Counter interface {
	Increment(ctx context.Context) (int64, error)
}

// Ball coordinates shakes.
//
// Thread-safety: Shake and Cancel are safe for concurrent use.
type Ball struct {
	fetcher   Fetcher
	saver     Saver
	generator Generator
	counter   Counter
	factory   *decision.Factory
	timeout   time.Duration
	tracer    trace.Tracer

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// Option configures a Ball.
type Option func(*Ball)

// WithTimeout bounds each remote fetch. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(b *Ball) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithFactory sets the factory that turns fetched text into decisions.
func WithFactory(f *decision.Factory) Option {
	return func(b *Ball) {
		b.factory = f
	}
}

// WithTracerProvider sets the tracer provider for shake spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Ball) {
		b.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Ball.
func New(fetcher Fetcher, saver Saver, generator Generator, counter Counter, opts ...Option) *Ball {
	b := &Ball{
		fetcher:   fetcher,
		saver:     saver,
		generator: generator,
		counter:   counter,
		factory:   decision.NewFactory(nil, nil),
		timeout:   DefaultTimeout,
		tracer:    telemetry.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Shake produces one answer.
//
// Returns the context error if ctx is cancelled or a newer shake (or Cancel)
// supersedes this one; no fallback is produced and nothing is saved in that
// case. Remote failures are not errors: the answer falls back to the local
// pool.
func (b *Ball) Shake(ctx context.Context) (Result, error) {
	ctx, cancel := b.begin(ctx)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "ball.shake")
	defer span.End()

	shakes, err := b.counter.Increment(ctx)
	if err != nil {
		// A failed increment never blocks an answer.
		slog.Warn("shake counter not updated", "error", err)
	}
	span.SetAttributes(attribute.Int64("magicball.shakes", shakes))

	fetchCtx, fetchCancel := context.WithTimeout(ctx, b.timeout)
	text, fetchErr := b.fetcher.Fetch(fetchCtx)
	fetchCancel()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		slog.Debug("shake cancelled", "error", err)
		return Result{}, err
	}

	if fetchErr == nil {
		d, err := b.factory.New(text)
		if err == nil {
			b.record(ctx, d)
			span.SetAttributes(attribute.String("magicball.source", string(SourceRemote)))
			return Result{Decision: d, Source: SourceRemote, Shakes: shakes}, nil
		}
		fetchErr = fmt.Errorf("remote answer: %w", err)
	}

	slog.Info("remote answer unavailable, using local pool", "error", fetchErr)
	span.RecordError(fetchErr)
	d := b.generator.Generate(ctx)
	span.SetAttributes(attribute.String("magicball.source", string(SourceLocal)))
	return Result{Decision: d, Source: SourceLocal, Shakes: shakes}, nil
}

// Cancel aborts the in-flight shake, if any.
func (b *Ball) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// begin supersedes any in-flight shake and returns the context for a new one.
func (b *Ball) begin(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.seq++
	seq := b.seq
	b.cancel = cancel
	b.mu.Unlock()

	return ctx, func() {
		b.mu.Lock()
		if b.seq == seq {
			b.cancel = nil
		}
		b.mu.Unlock()
		cancel()
	}
}

// record saves a fetched decision. The write ignores cancellation of ctx.
func (b *Ball) record(ctx context.Context, d decision.Decision) {
	if err := b.saver.Save(context.WithoutCancel(ctx), []decision.Decision{d}); err != nil {
		slog.Error("failed to record fetched answer", "id", d.ID, "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
