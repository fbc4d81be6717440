package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"job-trigger-portal/config"
	"job-trigger-portal/internal/model"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/utils"
)

const errorMessageCap = 4 << 10

// Worker claims at most one PENDING dispatch at a time, executes its script
// and reports the outcome. Fleet parallelism comes from running many worker
// processes; inside one process only the heartbeat task runs concurrently
// with the claim loop, and the two share no state but the database.
type Worker struct {
	cfg      *config.Config
	log      *logger.Logger
	repo     *repository.Repository
	executor *ScriptExecutor

	id       string
	hostname string
}

func New(cfg *config.Config, log *logger.Logger, repo *repository.Repository, executor *ScriptExecutor) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Worker{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		executor: executor,
		id:       "worker-" + uuid.NewString()[:8],
		hostname: hostname,
	}
}

// ID returns the generated worker id.
func (w *Worker) ID() string {
	return w.id
}

// Run registers the worker, then drives the claim loop and the heartbeat
// task until the context is cancelled. On the way out the current dispatch
// is finished or released and the registration row removed.
func (w *Worker) Run(ctx context.Context) error {
	now := utils.NowUTC()
	registration := &model.WorkerRegistration{
		WorkerID:      w.id,
		Hostname:      w.hostname,
		Platform:      runtime.GOOS,
		StartedAt:     now,
		LastHeartbeat: now,
		Status:        model.WorkerStatusIdle,
		ProcessID:     os.Getpid(),
	}
	if err := w.repo.WorkerRepo.Register(ctx, registration); err != nil {
		return fmt.Errorf("failed to register worker %s: %w", w.id, err)
	}
	w.log.Info("Worker registered",
		logger.StringField("worker_id", w.id),
		logger.StringField("hostname", w.hostname),
		logger.IntField("pid", os.Getpid()),
	)

	defer w.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.heartbeatLoop(gctx)
	})
	g.Go(func() error {
		return w.claimLoop(gctx)
	})
	return g.Wait()
}

// shutdown releases anything still claimed and deregisters the worker. The
// timeout sweep is the backstop should this fail.
func (w *Worker) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	released, err := w.repo.DispatchRepo.ReleaseByWorker(ctx, w.id)
	if err != nil {
		w.log.Error("Failed to release in-progress dispatches on shutdown",
			logger.ErrorField(err),
			logger.StringField("worker_id", w.id),
		)
	} else if released > 0 {
		w.log.Warn("Released in-progress dispatches back to pending",
			logger.Int64Field("released", released),
			logger.StringField("worker_id", w.id),
		)
	}

	if err := w.repo.WorkerRepo.Delete(ctx, w.id); err != nil {
		w.log.Error("Failed to deregister worker",
			logger.ErrorField(err),
			logger.StringField("worker_id", w.id),
		)
		return
	}
	w.log.Info("Worker deregistered", logger.StringField("worker_id", w.id))
}

// heartbeatLoop proves liveness to the scheduler's reaper. It keeps running
// while a long script executes; a missed beat here is what lets the reaper
// recover this worker's dispatch after a crash.
func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Worker.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.repo.WorkerRepo.Heartbeat(ctx, w.id, utils.NowUTC()); err != nil {
				w.log.WarnContext(ctx, "Heartbeat update failed",
					logger.ErrorField(err),
					logger.StringField("worker_id", w.id),
				)
			}
		}
	}
}

// claimLoop polls for the oldest PENDING dispatch, claims it with a
// conditional update and executes it. Empty polls back off exponentially;
// losing a claim race resets the backoff and retries immediately.
func (w *Worker) claimLoop(ctx context.Context) error {
	backoff := w.cfg.Worker.PollInterval
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		dispatch, err := w.repo.DispatchRepo.OldestPending(ctx)
		if err != nil {
			consecutiveErrors++
			w.log.ErrorContext(ctx, "Failed to poll for pending dispatches",
				logger.ErrorField(err),
				logger.IntField("consecutive_errors", consecutiveErrors),
			)
			if consecutiveErrors >= w.cfg.Worker.MaxConsecutiveErrors {
				return fmt.Errorf("worker giving up after %d consecutive database failures: %w", consecutiveErrors, err)
			}
			sleepContext(ctx, backoff)
			continue
		}
		consecutiveErrors = 0

		if dispatch == nil {
			sleepContext(ctx, backoff)
			backoff = nextBackoff(backoff, w.cfg.Worker.BackoffFactor, w.cfg.Worker.MaxPollInterval)
			continue
		}

		claimed, err := w.repo.DispatchRepo.Claim(ctx, dispatch.ID, w.id, utils.NowUTC())
		if err != nil {
			w.log.ErrorContext(ctx, "Claim update failed",
				logger.ErrorField(err),
				logger.IntField("dispatch_id", int(dispatch.ID)),
			)
			sleepContext(ctx, backoff)
			continue
		}
		backoff = w.cfg.Worker.PollInterval
		if !claimed {
			// Another worker won the race.
			continue
		}

		w.executeDispatch(ctx, dispatch)
	}
}

// executeDispatch runs one claimed dispatch end to end. Script failures are
// recorded as terminal dispatch state, never raised to the claim loop.
func (w *Worker) executeDispatch(ctx context.Context, dispatch *model.JobDispatch) {
	start := utils.NowUTC()

	job, err := w.repo.JobRepo.FindByID(ctx, dispatch.JobID)
	if err != nil {
		w.log.ErrorContext(ctx, "Failed to load job for claimed dispatch",
			logger.ErrorField(err),
			logger.IntField("dispatch_id", int(dispatch.ID)),
		)
		w.report(dispatch, start, ExecutionResult{
			Status:       model.ExecutionStatusError,
			ExitCode:     -1,
			Output:       err.Error(),
			ErrorMessage: "failed to load job",
		})
		return
	}
	if job == nil {
		// The job was deleted between dispatch creation and claim.
		w.report(dispatch, start, ExecutionResult{
			Status:       model.ExecutionStatusError,
			ExitCode:     -1,
			Output:       fmt.Sprintf("job %d no longer exists", dispatch.JobID),
			ErrorMessage: "job no longer exists",
		})
		return
	}

	if err := w.repo.WorkerRepo.SetStatus(ctx, w.id, model.WorkerStatusBusy,
		sql.NullInt64{Int64: int64(job.ID), Valid: true}, utils.NowUTC()); err != nil {
		w.log.WarnContext(ctx, "Failed to mark worker busy", logger.ErrorField(err))
	}

	w.log.InfoContext(ctx, "Executing job",
		logger.IntField("job_id", int(job.ID)),
		logger.StringField("job_name", job.Name),
		logger.IntField("dispatch_id", int(dispatch.ID)),
		logger.StringField("script", job.ScriptPath),
	)

	result, shutdownKilled := w.runScript(ctx, job)
	if shutdownKilled && result.Status != model.ExecutionStatusSuccess {
		// Leave the dispatch IN_PROGRESS; shutdown() resets it to PENDING
		// so another worker picks it up.
		w.log.Warn("Script killed by shutdown grace period",
			logger.IntField("dispatch_id", int(dispatch.ID)),
			logger.IntField("job_id", int(job.ID)),
		)
		return
	}

	w.report(dispatch, start, result)
}

// runScript executes the job's script under its own timeout, detached from
// the worker's shutdown context: an in-flight script gets the shutdown
// grace period to finish before its process group is killed.
func (w *Worker) runScript(ctx context.Context, job *model.ScheduledJob) (ExecutionResult, bool) {
	scriptCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var killedByShutdown atomic.Bool
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-watchDone:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(w.cfg.Worker.ShutdownGracePeriod)
		defer timer.Stop()
		select {
		case <-watchDone:
		case <-timer.C:
			killedByShutdown.Store(true)
			cancel()
		}
	}()

	result := w.executor.Run(scriptCtx, job.ScriptPath, job.Environment)
	return result, killedByShutdown.Load()
}

// report records the outcome in one transaction: the dispatch transition,
// the execution log and the worker's own bookkeeping. Uses a fresh context
// so a shutdown cannot lose a finished result.
func (w *Worker) report(dispatch *model.JobDispatch, start time.Time, result ExecutionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := utils.NowUTC()
	status := model.DispatchStatusCompleted
	errorMessage := sql.NullString{}
	if result.Status != model.ExecutionStatusSuccess {
		status = model.DispatchStatusFailed
		errorMessage = sql.NullString{
			String: utils.TruncateString(result.ErrorMessage, errorMessageCap),
			Valid:  true,
		}
	}

	err := w.repo.UnitOfWork.Run(func(opts ...utils.DBOption) error {
		finished, err := w.repo.DispatchRepo.Finish(ctx, dispatch.ID, w.id, status, now, errorMessage, opts...)
		if err != nil {
			return fmt.Errorf("failed to finish dispatch %d: %w", dispatch.ID, err)
		}
		if !finished {
			// The timeout sweep already resolved this dispatch; it also
			// wrote the execution log, so don't double-log.
			w.log.Warn("Dispatch no longer owned at report time",
				logger.IntField("dispatch_id", int(dispatch.ID)),
			)
			return nil
		}

		entry := &model.JobExecutionLog{
			JobID:     dispatch.JobID,
			RunTime:   start,
			Status:    result.Status,
			LogOutput: result.Output,
		}
		if err := w.repo.LogRepo.Create(ctx, entry, opts...); err != nil {
			return fmt.Errorf("failed to write execution log: %w", err)
		}

		if err := w.repo.WorkerRepo.IncrementProcessed(ctx, w.id, opts...); err != nil {
			return fmt.Errorf("failed to bump processed counter: %w", err)
		}
		return w.repo.WorkerRepo.SetStatus(ctx, w.id, model.WorkerStatusIdle, sql.NullInt64{}, now, opts...)
	})
	if err != nil {
		w.log.Error("Failed to report dispatch outcome",
			logger.ErrorField(err),
			logger.IntField("dispatch_id", int(dispatch.ID)),
		)
		return
	}

	w.log.Info("Reported dispatch outcome",
		logger.IntField("dispatch_id", int(dispatch.ID)),
		logger.IntField("job_id", int(dispatch.JobID)),
		logger.StringField("status", string(result.Status)),
		logger.IntField("exit_code", result.ExitCode),
		logger.DurationField("duration", now.Sub(start)),
	)
}
