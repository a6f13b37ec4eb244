// Package jobs runs price refreshes in the background and tracks their
// progress in memory.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/merchant-price-scraper/internal/pricing"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const maxListedJobs = 100

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNoTargets   = errors.New("at least one product is required")
)

// Refresher is satisfied by *pricing.Service.
type Refresher interface {
	RefreshAll(ctx context.Context, targets []pricing.Target, pause time.Duration) ([]pricing.RefreshOutcome, error)
}

// Job is a batch price refresh.
type Job struct {
	ID                string           `json:"id"`
	Targets           []pricing.Target `json:"products"`
	Status            string           `json:"status"`
	ProductsRefreshed int              `json:"products_refreshed"`
	PricesUpdated     int              `json:"prices_updated"`
	Errors            []string         `json:"errors,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	Error             string           `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	PricesUpdated int     `json:"prices_updated"`
	SuccessRate   float64 `json:"success_rate"`
}

type Manager struct {
	refresher Refresher
	queue     Queue
	pause     time.Duration
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(refresher Refresher, queue Queue, pause time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		refresher: refresher,
		queue:     queue,
		pause:     pause,
		logger:    logger.With("component", "job_manager"),
		jobs:      make(map[string]*Job),
	}
}

// CreateJob queues a refresh of targets and returns the pending job.
func (m *Manager) CreateJob(ctx context.Context, targets []pricing.Target) (*Job, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	for i, t := range targets {
		if t.ID == "" || t.Query == "" {
			return nil, fmt.Errorf("product %d: id and query are required", i+1)
		}
	}

	job := &Job{
		ID:        uuid.New().String(),
		Targets:   append([]pricing.Target(nil), targets...),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if err := m.queue.Push(&Task{JobID: job.ID, CreatedAt: job.CreatedAt}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "products", len(targets))
	return m.snapshot(job), nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return m.snapshotLocked(job), nil
}

// ListJobs returns the most recent jobs first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshotLocked(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > maxListedJobs {
		jobs = jobs[:maxListedJobs]
	}
	return jobs, nil
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs)}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.PricesUpdated += job.PricesUpdated
	}

	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	return stats, nil
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(job)
}

func (m *Manager) snapshotLocked(job *Job) *Job {
	cp := *job
	cp.Targets = append([]pricing.Target(nil), job.Targets...)
	cp.Errors = append([]string(nil), job.Errors...)
	return &cp
}

func (m *Manager) updateJob(jobID string, fn func(job *Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		fn(job)
	}
}
