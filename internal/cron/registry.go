package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry tracks registered cron jobs and their cadences.
type Registry struct {
	entries []*entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job that should run at most once per interval.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil || every <= 0 {
		return
	}
	r.entries = append(r.entries, &entry{job: job, every: every})
}

// Due returns the jobs whose interval has elapsed and marks them as run.
func (r *Registry) Due(now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		if e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.every {
			e.lastRun = now
			due = append(due, e.job)
		}
	}
	return due
}

// Jobs returns every registered job in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}
