package decision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyAnswer is returned when answer text is blank after normalization.
var ErrEmptyAnswer = errors.New("answer text is empty")

// Decision is a stored answer record.
//
// Decision values are safe to copy and retain; they never alias store state.
type Decision struct {
	ID        string    `json:"id"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Same reports whether a and b refer to the same logical record.
// Only identifiers are compared.
func Same(a, b Decision) bool {
	return a.ID == b.ID
}

// Equal reports whether d and other have identical field values.
// CreatedAt is compared as an instant, ignoring location.
func (d Decision) Equal(other Decision) bool {
	return d.ID == other.ID &&
		d.Answer == other.Answer &&
		d.CreatedAt.Equal(other.CreatedAt)
}

// Validate checks the fields a stored Decision must carry.
func (d Decision) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("decision: missing id")
	}
	if strings.TrimSpace(d.Answer) == "" {
		return fmt.Errorf("decision %s: %w", d.ID, ErrEmptyAnswer)
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("decision %s: missing created_at", d.ID)
	}
	return nil
}

// NormalizeAnswer returns the NFC-normalized, trimmed form of s.
// Returns ErrEmptyAnswer if nothing is left.
func NormalizeAnswer(s string) (string, error) {
	normalized := strings.TrimSpace(norm.NFC.String(s))
	if normalized == "" {
		return "", ErrEmptyAnswer
	}
	return normalized, nil
}

// normalizeTime strips the monotonic reading and converts to UTC so the
// value round-trips through the store unchanged.
func normalizeTime(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Factory creates new Decisions with fresh identifiers and timestamps.
//
// Thread-safety: Factory is safe for concurrent use when its IDGenerator and
// Clock are.
type Factory struct {
	ids   IDGenerator
	clock Clock
}

// NewFactory creates a Factory. Nil arguments fall back to
// UUIDv7Generator and SystemClock.
func NewFactory(ids IDGenerator, clock Clock) *Factory {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Factory{ids: ids, clock: clock}
}

// New creates a Decision for the given answer text.
func (f *Factory) New(answer string) (Decision, error) {
	normalized, err := NormalizeAnswer(answer)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		ID:        f.ids.Generate(),
		Answer:    normalized,
		CreatedAt: normalizeTime(f.clock.Now()),
	}, nil
}

// NewAll creates one Decision per answer, in order. It fails on the first
// blank answer without returning a partial result.
func (f *Factory) NewAll(answers []string) ([]Decision, error) {
	out := make([]Decision, 0, len(answers))
	for i, a := range answers {
		d, err := f.New(a)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}
