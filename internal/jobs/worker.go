package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StartWorker processes queued jobs one at a time until ctx is done or the
// queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop task", "error", err)
			continue
		}

		m.processJob(ctx, task.JobID)
	}
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Error("queued job vanished", "id", jobID, "error", err)
		return
	}

	m.logger.Info("processing job", "id", jobID, "products", len(job.Targets))

	started := time.Now()
	m.updateJob(jobID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	outcomes, runErr := m.refresher.RefreshAll(ctx, job.Targets, m.pause)

	var (
		refreshed int
		updated   int
		messages  []string
	)
	for _, o := range outcomes {
		if o.Err != nil {
			messages = append(messages, fmt.Sprintf("%s: %v", o.Target.ID, o.Err))
			continue
		}
		refreshed++
		updated += o.Report.Stats.PricesUpdated
		for _, msg := range o.Report.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", o.Target.ID, msg))
		}
	}

	completed := time.Now()
	m.updateJob(jobID, func(j *Job) {
		j.ProductsRefreshed = refreshed
		j.PricesUpdated = updated
		j.Errors = messages
		j.CompletedAt = &completed
		if runErr != nil {
			j.Status = StatusFailed
			j.Error = runErr.Error()
			return
		}
		j.Status = StatusCompleted
	})

	if runErr != nil {
		m.logger.Error("job failed", "id", jobID, "error", runErr)
		return
	}
	m.logger.Info("job completed",
		"id", jobID,
		"products_refreshed", refreshed,
		"prices_updated", updated,
		"duration", completed.Sub(started))
}
