package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/resellkart/resellkart-backend/pkg/logger"
)

type staleCartClearer interface {
	ClearStaleCarts(ctx context.Context, cutoff time.Time) (int64, error)
}

// StaleCartCleanupJobParams configure the stale cart sweep.
type StaleCartCleanupJobParams struct {
	Logger *logger.Logger
	Carts  staleCartClearer
	MaxAge time.Duration
}

// NewStaleCartCleanupJob builds the job that empties carts untouched for
// longer than the configured age.
func NewStaleCartCleanupJob(params StaleCartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &staleCartCleanupJob{
		logg:   params.Logger,
		carts:  params.Carts,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

type staleCartCleanupJob struct {
	logg   *logger.Logger
	carts  staleCartClearer
	maxAge time.Duration
	now    func() time.Time
}

func (j *staleCartCleanupJob) Name() string { return "stale-cart-cleanup" }

func (j *staleCartCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	removed, err := j.carts.ClearStaleCarts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("clear stale carts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": removed})
	j.logg.Info(logCtx, "stale cart cleanup complete")
	return nil
}
