package answer

import (
	"context"
	"fmt"
)

// TotalShakesKey is the defaults key holding the shake count.
const TotalShakesKey = "total_shakes"

// Counters is the integer side of the defaults table.
type Counters interface {
	Int(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string) (int64, error)
}

// ShakeCounter counts shakes across launches.
type ShakeCounter struct {
	counters Counters
}

// NewShakeCounter creates a ShakeCounter over counters.
func NewShakeCounter(counters Counters) *ShakeCounter {
	return &ShakeCounter{counters: counters}
}

// Count returns the number of recorded shakes.
func (c *ShakeCounter) Count(ctx context.Context) (int64, error) {
	n, err := c.counters.Int(ctx, TotalShakesKey)
	if err != nil {
		return 0, fmt.Errorf("shake count: %w", err)
	}
	return n, nil
}

// Increment records one shake and returns the new total.
func (c *ShakeCounter) Increment(ctx context.Context) (int64, error) {
	n, err := c.counters.Increment(ctx, TotalShakesKey)
	if err != nil {
		return 0, fmt.Errorf("shake count: %w", err)
	}
	return n, nil
}
