package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"job-trigger-portal/config"
	"job-trigger-portal/internal/model"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/internal/schedule"
	"job-trigger-portal/pkg/alert"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/utils"
)

// Scheduler converts due schedule definitions into claimable dispatch rows
// and resolves stuck state: timed-out dispatches, dead workers, old records.
// Multiple instances may run concurrently; the per-job dispatch lock and
// row-level locking on the due-job selection keep them from overlapping.
type Scheduler struct {
	cfg      *config.Config
	log      *logger.Logger
	repo     *repository.Repository
	notifier alert.Notifier

	lastTimeoutSweep time.Time
	lastReap         time.Time
	lastCleanup      time.Time
}

func New(cfg *config.Config, log *logger.Logger, repo *repository.Repository, notifier alert.Notifier) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		notifier: notifier,
	}
}

// Run drives the four periodic tasks from a single control loop until the
// context is cancelled. Repeated cycle failures terminate the loop so
// supervision can restart the process.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started",
		logger.DurationField("poll_interval", s.cfg.Scheduler.PollInterval),
		logger.DurationField("dispatch_lock_duration", s.cfg.Scheduler.DispatchLockDuration),
		logger.DurationField("timeout_threshold", s.cfg.Scheduler.TimeoutThreshold),
		logger.IntField("max_retry_attempts", s.cfg.Scheduler.MaxRetryAttempts),
	)

	ticker := time.NewTicker(s.cfg.Scheduler.PollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping")
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx, utils.NowUTC()); err != nil {
				consecutiveErrors++
				s.log.ErrorContext(ctx, "Scheduler cycle failed",
					logger.ErrorField(err),
					logger.IntField("consecutive_errors", consecutiveErrors),
				)
				if consecutiveErrors >= s.cfg.Scheduler.MaxConsecutiveErrors {
					return fmt.Errorf("scheduler giving up after %d consecutive failures: %w", consecutiveErrors, err)
				}
			} else {
				consecutiveErrors = 0
			}
		}
	}
}

// RunCycle executes the dispatch cycle every tick and the slower tasks when
// their cadence has elapsed.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) error {
	var errs []error

	if err := s.DispatchCycle(ctx, now); err != nil {
		errs = append(errs, err)
	}

	if now.Sub(s.lastTimeoutSweep) >= s.cfg.Scheduler.TimeoutSweepInterval {
		s.lastTimeoutSweep = now
		if err := s.TimeoutSweep(ctx, now); err != nil {
			errs = append(errs, err)
		}
	}

	if now.Sub(s.lastReap) >= s.cfg.Scheduler.ReaperInterval {
		s.lastReap = now
		if err := s.ReapWorkers(ctx, now); err != nil {
			errs = append(errs, err)
		}
	}

	if now.Sub(s.lastCleanup) >= s.cfg.Scheduler.CleanupInterval {
		s.lastCleanup = now
		if err := s.Cleanup(ctx, now); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DispatchCycle creates exactly one PENDING dispatch for every active job
// whose next_run has arrived and whose dispatch lock has expired. A job that
// still has a PENDING or IN_PROGRESS dispatch gets none and stays due.
func (s *Scheduler) DispatchCycle(ctx context.Context, now time.Time) error {
	ids, err := s.repo.JobRepo.FindDueIDs(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to find due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	s.log.InfoContext(ctx, "Dispatching due jobs", logger.IntField("job_count", len(ids)))

	var errs []error
	for _, id := range ids {
		if !utils.ShouldContinue(ctx, s.log) {
			break
		}
		if err := s.dispatchJob(ctx, id, now); err != nil {
			s.log.ErrorContext(ctx, "Failed to dispatch job",
				logger.ErrorField(err),
				logger.IntField("job_id", int(id)),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatchJob runs one job's dispatch in its own transaction: the due
// predicates are re-checked under a row lock so concurrent scheduler
// instances skip rather than double-dispatch.
func (s *Scheduler) dispatchJob(ctx context.Context, id uint, now time.Time) error {
	return s.repo.UnitOfWork.Run(func(opts ...utils.DBOption) error {
		job, err := s.repo.JobRepo.LockDue(ctx, id, now, opts...)
		if err != nil {
			return fmt.Errorf("failed to lock job %d: %w", id, err)
		}
		if job == nil {
			// Lost the race to another scheduler instance, or the job
			// changed since selection. Not an error.
			return nil
		}

		// A dispatch lock that expired under a still-running execution must
		// not produce a second non-terminal dispatch for the same job. The
		// job stays due and is re-checked next cycle.
		outstanding, err := s.repo.DispatchRepo.HasOutstanding(ctx, job.ID, opts...)
		if err != nil {
			return fmt.Errorf("failed to check outstanding dispatches for job %d: %w", id, err)
		}
		if outstanding {
			s.log.DebugContext(ctx, "Skipping dispatch, job has a non-terminal dispatch",
				logger.IntField("job_id", int(job.ID)),
			)
			return nil
		}

		dispatch := &model.JobDispatch{
			JobID:      job.ID,
			Status:     model.DispatchStatusPending,
			RetryCount: 0,
		}
		if err := s.repo.DispatchRepo.Create(ctx, dispatch, opts...); err != nil {
			return fmt.Errorf("failed to create dispatch for job %d: %w", id, err)
		}

		nextRun, err := schedule.NextRun(job, now)
		if err != nil {
			return fmt.Errorf("failed to compute next run for job %d: %w", id, err)
		}

		lockUntil := now.Add(s.cfg.Scheduler.DispatchLockDuration)
		if err := s.repo.JobRepo.MarkDispatched(ctx, job.ID, nextRun, now, lockUntil, opts...); err != nil {
			return fmt.Errorf("failed to mark job %d dispatched: %w", id, err)
		}

		s.log.InfoContext(ctx, "Dispatched job",
			logger.IntField("job_id", int(job.ID)),
			logger.StringField("job_name", job.Name),
			logger.IntField("dispatch_id", int(dispatch.ID)),
			logger.StringField("next_run", formatNullTime(nextRun)),
		)
		return nil
	})
}

// TimeoutSweep resolves dispatches stuck IN_PROGRESS past the timeout
// threshold, then spawns retries for unhandled terminal failures.
func (s *Scheduler) TimeoutSweep(ctx context.Context, now time.Time) error {
	claimedBefore := now.Add(-s.cfg.Scheduler.TimeoutThreshold)
	stale, err := s.repo.DispatchRepo.FindStaleInProgress(ctx, claimedBefore)
	if err != nil {
		return fmt.Errorf("failed to find stale dispatches: %w", err)
	}

	var errs []error
	for _, dispatch := range stale {
		if err := s.resolveStaleDispatch(ctx, dispatch, now); err != nil {
			s.log.ErrorContext(ctx, "Failed to resolve stale dispatch",
				logger.ErrorField(err),
				logger.IntField("dispatch_id", int(dispatch.ID)),
			)
			errs = append(errs, err)
		}
	}

	if err := s.retryPass(ctx, now); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) resolveStaleDispatch(ctx context.Context, dispatch model.JobDispatch, now time.Time) error {
	// A worker that is still heartbeating owns the dispatch; its own
	// wall-clock limit is the authority there.
	if dispatch.WorkerID.Valid {
		worker, err := s.repo.WorkerRepo.FindByID(ctx, dispatch.WorkerID.String)
		if err != nil {
			return fmt.Errorf("failed to look up worker %s: %w", dispatch.WorkerID.String, err)
		}
		if worker != nil && now.Sub(utils.EnsureUTC(worker.LastHeartbeat)) < s.cfg.Scheduler.WorkerOfflineThreshold {
			return nil
		}
	}

	return s.repo.UnitOfWork.Run(func(opts ...utils.DBOption) error {
		errorMessage := "worker timeout"
		if err := s.repo.DispatchRepo.MarkTimeout(ctx, dispatch.ID, now, errorMessage, opts...); err != nil {
			return fmt.Errorf("failed to mark dispatch %d timed out: %w", dispatch.ID, err)
		}

		runTime := now
		if dispatch.ClaimedAt.Valid {
			runTime = utils.EnsureUTC(dispatch.ClaimedAt.Time)
		}
		entry := &model.JobExecutionLog{
			JobID:     dispatch.JobID,
			RunTime:   runTime,
			Status:    model.ExecutionStatusTimeout,
			LogOutput: fmt.Sprintf("Dispatch %d timed out after %s; worker %s went offline.", dispatch.ID, s.cfg.Scheduler.TimeoutThreshold, dispatch.WorkerID.String),
		}
		if err := s.repo.LogRepo.Create(ctx, entry, opts...); err != nil {
			return fmt.Errorf("failed to write execution log for dispatch %d: %w", dispatch.ID, err)
		}

		s.log.WarnContext(ctx, "Dispatch timed out",
			logger.IntField("dispatch_id", int(dispatch.ID)),
			logger.IntField("job_id", int(dispatch.JobID)),
			logger.StringField("worker_id", dispatch.WorkerID.String),
		)
		return nil
	})
}

// retryPass handles every terminal failure exactly once: a follow-up
// PENDING dispatch while budget remains, an operator alert when exhausted.
func (s *Scheduler) retryPass(ctx context.Context, now time.Time) error {
	statuses := []model.DispatchStatus{model.DispatchStatusTimeout}
	if s.cfg.Scheduler.RetryFailedDispatches {
		statuses = append(statuses, model.DispatchStatusFailed)
	}

	unhandled, err := s.repo.DispatchRepo.FindUnhandledTerminal(ctx, statuses)
	if err != nil {
		return fmt.Errorf("failed to find unhandled terminal dispatches: %w", err)
	}

	var errs []error
	for _, dispatch := range unhandled {
		if err := s.handleTerminalDispatch(ctx, dispatch, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) handleTerminalDispatch(ctx context.Context, dispatch model.JobDispatch, now time.Time) error {
	exhausted := dispatch.RetryCount >= s.cfg.Scheduler.MaxRetryAttempts

	claimed := false
	err := s.repo.UnitOfWork.Run(func(opts ...utils.DBOption) error {
		// Claim the dispatch first; a concurrent scheduler instance that
		// selected the same row loses here and must not insert a second
		// retry.
		won, err := s.repo.DispatchRepo.MarkRetried(ctx, dispatch.ID, now, opts...)
		if err != nil {
			return fmt.Errorf("failed to mark dispatch %d retried: %w", dispatch.ID, err)
		}
		if !won {
			return nil
		}
		claimed = true

		if !exhausted {
			retry := &model.JobDispatch{
				JobID:      dispatch.JobID,
				Status:     model.DispatchStatusPending,
				RetryCount: dispatch.RetryCount + 1,
			}
			if err := s.repo.DispatchRepo.Create(ctx, retry, opts...); err != nil {
				return fmt.Errorf("failed to create retry for dispatch %d: %w", dispatch.ID, err)
			}
			s.log.InfoContext(ctx, "Created retry dispatch",
				logger.IntField("job_id", int(dispatch.JobID)),
				logger.IntField("dispatch_id", int(dispatch.ID)),
				logger.IntField("retry_count", dispatch.RetryCount+1),
			)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if exhausted && claimed {
		s.log.ErrorContextWithAlert(ctx, "Dispatch exhausted retry budget",
			logger.IntField("job_id", int(dispatch.JobID)),
			logger.IntField("dispatch_id", int(dispatch.ID)),
			logger.IntField("retry_count", dispatch.RetryCount),
		)
		s.notifier.Notify(ctx, alert.Event{
			Kind:    alert.KindRetriesExhausted,
			Message: fmt.Sprintf("job %d failed after %d attempts", dispatch.JobID, dispatch.RetryCount+1),
			Details: map[string]interface{}{
				"job_id":      dispatch.JobID,
				"dispatch_id": dispatch.ID,
				"status":      dispatch.Status,
			},
		})
	}
	return nil
}

// ReapWorkers deletes registrations whose heartbeat aged past the offline
// threshold. The foreign key nulls worker_id on their dispatches; the next
// timeout sweep then recovers those jobs.
func (s *Scheduler) ReapWorkers(ctx context.Context, now time.Time) error {
	heartbeatBefore := now.Add(-s.cfg.Scheduler.WorkerOfflineThreshold)
	stale, err := s.repo.WorkerRepo.FindStale(ctx, heartbeatBefore)
	if err != nil {
		return fmt.Errorf("failed to find stale workers: %w", err)
	}

	var errs []error
	for _, worker := range stale {
		if err := s.repo.WorkerRepo.Delete(ctx, worker.WorkerID); err != nil {
			errs = append(errs, fmt.Errorf("failed to reap worker %s: %w", worker.WorkerID, err))
			continue
		}
		s.log.WarnContext(ctx, "Reaped stale worker",
			logger.StringField("worker_id", worker.WorkerID),
			logger.StringField("hostname", worker.Hostname),
			logger.StringField("last_heartbeat", worker.LastHeartbeat.UTC().Format(time.RFC3339)),
		)
		s.notifier.Notify(ctx, alert.Event{
			Kind:    alert.KindWorkerReaped,
			Message: fmt.Sprintf("worker %s on %s stopped heartbeating", worker.WorkerID, worker.Hostname),
			Details: map[string]interface{}{
				"worker_id":      worker.WorkerID,
				"hostname":       worker.Hostname,
				"last_heartbeat": worker.LastHeartbeat.UTC(),
			},
		})
	}
	return errors.Join(errs...)
}

// Cleanup purges terminal dispatches past the retention window.
func (s *Scheduler) Cleanup(ctx context.Context, now time.Time) error {
	completedBefore := now.AddDate(0, 0, -s.cfg.Scheduler.CleanupRetentionDays)
	deleted, err := s.repo.DispatchRepo.DeleteTerminalOlderThan(ctx, completedBefore)
	if err != nil {
		return fmt.Errorf("failed to clean up old dispatches: %w", err)
	}
	if deleted > 0 {
		s.log.InfoContext(ctx, "Cleaned up old dispatches",
			logger.Int64Field("deleted", deleted),
			logger.IntField("retention_days", s.cfg.Scheduler.CleanupRetentionDays),
		)
	}
	return nil
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return "none"
	}
	return t.Time.UTC().Format(time.RFC3339)
}
