package cron

import (
	"context"
	"fmt"
)

const trackingSyncBatchSize = 100

type trackingSyncer interface {
	SyncTracking(ctx context.Context, limit int) (int, error)
}

// NewTrackingSyncJob builds the job that polls the courier for in-flight
// shipments, covering webhooks the courier failed to deliver.
func NewTrackingSyncJob(fulfillment trackingSyncer) (Job, error) {
	if fulfillment == nil {
		return nil, fmt.Errorf("fulfillment service required")
	}
	return &trackingSyncJob{fulfillment: fulfillment}, nil
}

type trackingSyncJob struct {
	fulfillment trackingSyncer
}

func (j *trackingSyncJob) Name() string { return "tracking-sync" }

func (j *trackingSyncJob) Run(ctx context.Context) error {
	if _, err := j.fulfillment.SyncTracking(ctx, trackingSyncBatchSize); err != nil {
		return fmt.Errorf("sync tracking: %w", err)
	}
	return nil
}
