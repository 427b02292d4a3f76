// Package scheduler runs scheduled tasks when they come due and
// re-arms recurring ones.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// DefaultInterval is how often the runner sweeps for due tasks.
const DefaultInterval = 15 * time.Second

// DefaultBatchSize caps how many due tasks one sweep picks up.
const DefaultBatchSize = 100

// Executor runs one task. The runtime dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) error
}

// Runner is the scheduled-task loop. Each cycle claims due pending
// tasks, runs them through the executor, and records the outcome. A
// recurring task is re-armed at its next occurrence instead of being
// marked completed, until its recurrence window closes.
type Runner struct {
	st       store.Store
	exec     Executor
	interval time.Duration
	batch    int
}

// NewRunner creates a runner sweeping on the given interval.
func NewRunner(st store.Store, exec Executor, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		st:       st,
		exec:     exec,
		interval: interval,
		batch:    DefaultBatchSize,
	}
}

// Start runs the loop in the calling goroutine until ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	log.Info().Dur("interval", r.interval).Msg("task runner started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task runner stopped")
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep. Exported so tests and admin endpoints
// can trigger a sweep without waiting for the ticker.
func (r *Runner) RunCycle(ctx context.Context) {
	now := time.Now().UTC()
	due, err := r.st.ListDueTasks(ctx, now, r.batch)
	if err != nil {
		log.Warn().Err(err).Msg("task runner: listing due tasks failed")
		return
	}
	if len(due) == 0 {
		return
	}

	ran, failed := 0, 0
	for i := range due {
		task := due[i]
		if err := r.runTask(ctx, &task, now); err != nil {
			failed++
			log.Warn().Err(err).Str("task_id", task.ID).Msg("scheduled task failed")
			continue
		}
		ran++
	}
	log.Info().Int("ran", ran).Int("failed", failed).Msg("task sweep complete")
}

// runTask claims one due task, executes it, and either completes,
// fails, or re-arms it.
func (r *Runner) runTask(ctx context.Context, task *models.Task, now time.Time) error {
	task.Status = models.TaskStatusProcessing
	task.UpdatedAt = now
	if err := r.st.UpdateTask(ctx, task); err != nil {
		return err
	}

	execErr := r.exec.Execute(ctx, task)
	if execErr != nil {
		task.Status = models.TaskStatusFailed
		task.UpdatedAt = time.Now().UTC()
		if err := r.st.UpdateTask(ctx, task); err != nil {
			log.Warn().Err(err).Str("task_id", task.ID).Msg("task status update failed")
		}
		return execErr
	}

	if next, ok := nextOccurrence(task, now); ok {
		task.Status = models.TaskStatusPending
		task.ScheduledTime = &next
	} else {
		task.Status = models.TaskStatusCompleted
	}
	task.UpdatedAt = time.Now().UTC()
	return r.st.UpdateTask(ctx, task)
}

// nextOccurrence computes when a recurring task should run again.
// The next slot is derived from the scheduled time, not the run time,
// so a late sweep doesn't drift the schedule; slots already in the
// past are skipped. ok is false when the task doesn't recur or the
// next slot falls past RecurrenceEnd.
func nextOccurrence(task *models.Task, now time.Time) (time.Time, bool) {
	if !task.Recurring() || task.ScheduledTime == nil {
		return time.Time{}, false
	}
	period := time.Duration(task.RecurrenceMs) * time.Millisecond
	next := task.ScheduledTime.Add(period)
	for !next.After(now) {
		next = next.Add(period)
	}
	if task.RecurrenceEnd != nil && next.After(*task.RecurrenceEnd) {
		return time.Time{}, false
	}
	return next, true
}
