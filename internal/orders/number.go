package orders

import (
	"context"
	"fmt"
	"time"
)

type sequenceStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SequenceKey(scope, date string) string
}

// NumberGenerator issues date-scoped, monotonically increasing document
// numbers (ORD-20260829-0001). The per-day counter lives in Redis so
// concurrent checkouts never collide.
type NumberGenerator struct {
	store sequenceStore
}

// NewNumberGenerator wires the generator to a sequence store.
func NewNumberGenerator(store sequenceStore) (*NumberGenerator, error) {
	if store == nil {
		return nil, fmt.Errorf("sequence store required")
	}
	return &NumberGenerator{store: store}, nil
}

// Next returns the next number for the given prefix (ORD, RET, WDL).
func (g *NumberGenerator) Next(ctx context.Context, prefix string, now time.Time) (string, error) {
	date := now.UTC().Format("20060102")
	key := g.store.SequenceKey(prefix, date)

	// 48h TTL keeps yesterday's counter alive across the midnight boundary
	// while a racing increment is in flight.
	seq, err := g.store.IncrWithTTL(ctx, key, 48*time.Hour)
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, date, seq), nil
}
