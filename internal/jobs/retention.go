// Package jobs contains background workers that run on a schedule.
// The retention job enforces the audit log retention window and sweeps
// expired session rows. Both deletes are idempotent, so re-running after a
// crash produces the same result as a clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
)

// RetentionJob periodically deletes audit rows older than the configured
// retention window and session rows past their expiry.
type RetentionJob struct {
	audits    *repositories.AuditRepository
	sessions  *repositories.SessionRepository
	retention time.Duration
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRetentionJob builds the job from the audit config. Zero or negative
// retention/interval values fall back to 90 days and 24 hours.
func NewRetentionJob(audits *repositories.AuditRepository, sessions *repositories.SessionRepository, auditCfg config.AuditConfig) *RetentionJob {
	retentionDays := auditCfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}
	intervalHours := auditCfg.CleanupIntervalHours
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &RetentionJob{
		audits:    audits,
		sessions:  sessions,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  time.Duration(intervalHours) * time.Hour,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the cleanup loop. The first pass runs immediately, then on
// every tick until Stop is called or ctx is cancelled.
func (j *RetentionJob) Start(ctx context.Context) {
	slog.Info("starting retention job",
		"retention", j.retention.String(), "interval", j.interval.String())

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.runOnce(ctx)
			case <-j.stopCh:
				slog.Info("retention job stopped")
				return
			case <-ctx.Done():
				slog.Info("retention job context cancelled")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (j *RetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// runOnce performs one cleanup pass. Failures are logged and retried on the
// next tick; a broken database must not kill the loop.
func (j *RetentionJob) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)

	auditRows, err := j.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("audit retention cleanup failed", "error", err)
	} else if auditRows > 0 {
		slog.Info("audit retention cleanup complete", "deleted", auditRows, "cutoff", cutoff)
	}

	sessionRows, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		slog.Error("expired session sweep failed", "error", err)
	} else if sessionRows > 0 {
		slog.Info("expired session sweep complete", "deleted", sessionRows)
	}
}
