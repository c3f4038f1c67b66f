package answer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/magicball/internal/decision"
)

// SeededKey is the defaults key recording that presets were inserted.
const SeededKey = "seeded"

// Presets are the answers inserted on first launch.
var Presets = []string{
	"Great idea!",
	"Let's do it!",
	"Not now",
	"Maybe next time",
}

// SeedStore inserts decisions guarded by a persistent flag.
type SeedStore interface {
	SeedOnce(ctx context.Context, flag string, ds []decision.Decision) (bool, error)
}

// Seeder fills an empty database with preset answers once.
type Seeder struct {
	store   SeedStore
	factory *decision.Factory
	presets []string
}

// NewSeeder creates a Seeder. A nil presets slice selects Presets.
// A nil factory selects the production factory.
func NewSeeder(store SeedStore, factory *decision.Factory, presets []string) *Seeder {
	if presets == nil {
		presets = Presets
	}
	if factory == nil {
		factory = decision.NewFactory(nil, nil)
	}
	return &Seeder{store: store, factory: factory, presets: slices.Clone(presets)}
}

// Seed inserts the presets unless a previous launch already did.
// Returns whether seeding happened on this call.
func (s *Seeder) Seed(ctx context.Context) (bool, error) {
	ds, err := s.factory.NewAll(s.presets)
	if err != nil {
		return false, fmt.Errorf("seed presets: %w", err)
	}

	seeded, err := s.store.SeedOnce(ctx, SeededKey, ds)
	if err != nil {
		return false, fmt.Errorf("seed presets: %w", err)
	}
	if seeded {
		slog.Info("first launch: presets inserted", "count", len(ds))
	}
	return seeded, nil
}
