// Package retention implements data retention for the AgentDeck
// control plane. A background janitor periodically removes expired
// one-time codes and prunes finished tasks that have aged out of the
// retention window, optionally archiving them to disk first.
//
// Archive failures are fail-safe: a task is not deleted if archiving
// it failed.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// DefaultTaskRetentionDays is how long finished tasks stay queryable.
const DefaultTaskRetentionDays = 30

// DefaultBatchSize caps how many tasks one cycle prunes.
const DefaultBatchSize = 1000

// Archiver persists tasks to durable storage before they are purged.
type Archiver interface {
	// ArchiveTasks writes the batch and returns the archive location.
	ArchiveTasks(ctx context.Context, tasks []models.Task) (string, error)
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	OTPsPruned    int
	TasksArchived int
	TasksPurged   int
	Errors        []error
}

// Janitor periodically prunes expired OTP codes and aged-out tasks.
type Janitor struct {
	store    store.Store
	interval time.Duration
	taskTTL  time.Duration
	batch    int
	archiver Archiver // nil = purge without archiving
}

// NewJanitor creates a retention janitor. Intervals under a minute are
// raised to an hour.
func NewJanitor(s store.Store, interval time.Duration, taskRetentionDays int) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	if taskRetentionDays <= 0 {
		taskRetentionDays = DefaultTaskRetentionDays
	}
	return &Janitor{
		store:    s,
		interval: interval,
		taskTTL:  time.Duration(taskRetentionDays) * 24 * time.Hour,
		batch:    DefaultBatchSize,
	}
}

// SetArchiver installs an archive backend. Once set, tasks are written
// there before deletion and kept in the hot store when the write fails.
func (j *Janitor) SetArchiver(a Archiver) {
	j.archiver = a
}

// Start runs the janitor until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("task_ttl", j.taskTTL).
		Bool("archiving", j.archiver != nil).
		Msg("retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	pruned, err := j.store.PruneExpiredOTPs(ctx, start)
	if err != nil {
		log.Warn().Err(err).Msg("retention: otp prune failed")
		stats.Errors = append(stats.Errors, err)
	}
	stats.OTPsPruned = pruned

	cutoff := start.Add(-j.taskTTL)
	expired, err := j.store.ListExpiredTasks(ctx, cutoff, j.batch)
	if err != nil {
		log.Warn().Err(err).Msg("retention: expired task listing failed")
		stats.Errors = append(stats.Errors, err)
		return stats
	}

	if len(expired) > 0 {
		if j.archiver != nil {
			uri, err := j.archiver.ArchiveTasks(ctx, expired)
			if err != nil {
				log.Warn().Err(err).Int("count", len(expired)).
					Msg("retention: archive failed, skipping purge")
				stats.Errors = append(stats.Errors, err)
				return stats
			}
			stats.TasksArchived = len(expired)
			log.Debug().Str("uri", uri).Int("count", len(expired)).Msg("tasks archived")
		}
		j.purgeTasks(ctx, expired, &stats)
	}

	if stats.OTPsPruned > 0 || stats.TasksPurged > 0 {
		log.Info().
			Int("otps_pruned", stats.OTPsPruned).
			Int("tasks_archived", stats.TasksArchived).
			Int("tasks_purged", stats.TasksPurged).
			Dur("elapsed", time.Since(start)).
			Msg("retention cycle complete")
	}
	return stats
}

func (j *Janitor) purgeTasks(ctx context.Context, tasks []models.Task, stats *CycleStats) {
	for _, t := range tasks {
		if err := j.store.DeleteTask(ctx, t.ID); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Msg("retention: task delete failed")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.TasksPurged++
	}
}
