package answer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/roach88/magicball/internal/decision"
)

// DefaultAnswer is returned when the decision pool is empty.
const DefaultAnswer = "Try again later!"

// Pool is the read side of the decision store.
type Pool interface {
	FetchAll(ctx context.Context) []decision.Decision
}

// Generator returns a random answer from the pool.
//
// Thread-safety: Generate is safe for concurrent use.
type Generator struct {
	pool     Pool
	factory  *decision.Factory
	fallback string

	mu   sync.Mutex
	intn func(n int) int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithFactory sets the factory used to mint the fallback decision.
func WithFactory(f *decision.Factory) GeneratorOption {
	return func(g *Generator) {
		g.factory = f
	}
}

// WithFallback overrides DefaultAnswer. Blank text keeps the default.
func WithFallback(answer string) GeneratorOption {
	return func(g *Generator) {
		if strings.TrimSpace(answer) != "" {
			g.fallback = answer
		}
	}
}

// WithRand makes selection deterministic for tests.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		g.intn = r.IntN
	}
}

// NewGenerator creates a Generator over pool.
func NewGenerator(pool Pool, opts ...GeneratorOption) *Generator {
	g := &Generator{
		pool:     pool,
		factory:  decision.NewFactory(nil, nil),
		fallback: DefaultAnswer,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a uniformly random stored decision, or a fresh fallback
// decision carrying the fallback answer when the pool is empty.
// Generate never fails. The fallback decision is not persisted.
func (g *Generator) Generate(ctx context.Context) decision.Decision {
	ds := g.pool.FetchAll(ctx)
	if len(ds) == 0 {
		return g.Fallback()
	}

	g.mu.Lock()
	i := g.intn(len(ds))
	g.mu.Unlock()
	return ds[i]
}

// Fallback returns a fresh decision carrying the fallback answer.
func (g *Generator) Fallback() decision.Decision {
	d, err := g.factory.New(g.fallback)
	if err != nil {
		// Unreachable: the fallback text is never blank.
		slog.Error("fallback answer rejected", "answer", g.fallback, "error", err)
		return decision.Decision{Answer: DefaultAnswer}
	}
	return d
}
