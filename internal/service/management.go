package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"job-trigger-portal/config"
	"job-trigger-portal/internal/dto"
	"job-trigger-portal/internal/model"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/internal/schedule"
	"job-trigger-portal/pkg/cache"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/utils"
)

// ErrInvalidJob wraps definition-time validation failures so the delivery
// layer can answer 400 instead of 500.
var ErrInvalidJob = errors.New("invalid job definition")

// ErrNotFound marks lookups of ids that do not exist.
var ErrNotFound = errors.New("not found")

const (
	cacheKeyJobs    = "management:jobs"
	cacheKeyWorkers = "management:workers"
)

// ManagementService is the read-mostly surface the UI consumes. Writes are
// limited to job definitions, activation toggles and Run Now.
type ManagementService interface {
	CreateJob(ctx context.Context, req *dto.CreateJobRequest) (*dto.JobResponse, error)
	UpdateJob(ctx context.Context, id uint, req *dto.UpdateJobRequest) (*dto.JobResponse, error)
	DeleteJob(ctx context.Context, id uint) error
	GetJob(ctx context.Context, id uint) (*dto.JobResponse, error)
	ListJobs(ctx context.Context) ([]dto.JobResponse, error)
	RunNow(ctx context.Context, id uint) error
	ToggleActive(ctx context.Context, id uint) (*dto.JobResponse, error)
	ListDispatches(ctx context.Context, param *model.GetDispatchParam) ([]dto.DispatchResponse, error)
	ListActiveWorkers(ctx context.Context) ([]dto.WorkerResponse, error)
	JobLogs(ctx context.Context, jobID uint, limit int) ([]dto.ExecutionLogResponse, error)
}

type managementService struct {
	cfg   *config.Config
	log   *logger.Logger
	repo  *repository.Repository
	cache cache.Cache
}

func NewManagementService(cfg *config.Config, log *logger.Logger, repo *repository.Repository, c cache.Cache) ManagementService {
	return &managementService{cfg: cfg, log: log, repo: repo, cache: c}
}

// buildJob converts a request into a model, normalizing any zone-local
// schedule_time to UTC with the zone's offset at this moment.
func (s *managementService) buildJob(req *dto.CreateJobRequest, existing *model.ScheduledJob) (*model.ScheduledJob, error) {
	job := existing
	if job == nil {
		job = &model.ScheduledJob{}
	}

	job.Name = req.Name
	job.ScriptPath = req.ScriptPath
	job.ScheduleType = model.ScheduleType(req.ScheduleType)
	job.Environment = req.Environment

	job.IntervalSeconds = 0
	if req.IntervalSeconds != nil {
		job.IntervalSeconds = *req.IntervalSeconds
	}

	job.ScheduleMinute = sql.NullInt32{}
	if req.ScheduleMinute != nil {
		job.ScheduleMinute = sql.NullInt32{Int32: int32(*req.ScheduleMinute), Valid: true}
	}

	job.ScheduleTime = sql.NullString{}
	if req.ScheduleTime != nil {
		tz := ""
		if req.Timezone != nil {
			tz = *req.Timezone
		}
		clock, err := schedule.NormalizeClockTime(*req.ScheduleTime, tz, utils.NowUTC())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
		job.ScheduleTime = sql.NullString{String: clock, Valid: true}
	}

	job.ScheduleDay = sql.NullInt32{}
	if req.ScheduleDay != nil {
		job.ScheduleDay = sql.NullInt32{Int32: int32(*req.ScheduleDay), Valid: true}
	}

	job.CronExpression = sql.NullString{}
	if req.CronExpression != nil {
		job.CronExpression = sql.NullString{String: *req.CronExpression, Valid: true}
	}

	job.IsActive = true
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}

	if err := schedule.Validate(job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	// Initialize next_run; manual jobs stay quiescent until Run Now.
	nextRun, err := schedule.NextRun(job, utils.NowUTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	job.NextRun = nextRun

	return job, nil
}

func (s *managementService) CreateJob(ctx context.Context, req *dto.CreateJobRequest) (*dto.JobResponse, error) {
	job, err := s.buildJob(req, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.JobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.cache.Delete(cacheKeyJobs)
	s.log.InfoContext(ctx, "Created job",
		logger.IntField("job_id", int(job.ID)),
		logger.StringField("name", job.Name),
		logger.StringField("schedule_type", string(job.ScheduleType)),
	)
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

func (s *managementService) UpdateJob(ctx context.Context, id uint, req *dto.UpdateJobRequest) (*dto.JobResponse, error) {
	existing, err := s.repo.JobRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", id, err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}

	job, err := s.buildJob(req, existing)
	if err != nil {
		return nil, err
	}
	if err := s.repo.JobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job %d: %w", id, err)
	}
	s.cache.Delete(cacheKeyJobs)
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

func (s *managementService) DeleteJob(ctx context.Context, id uint) error {
	existing, err := s.repo.JobRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", id, err)
	}
	if existing == nil {
		return ErrNotFound
	}
	if err := s.repo.JobRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	s.cache.Delete(cacheKeyJobs)
	return nil
}

func (s *managementService) GetJob(ctx context.Context, id uint) (*dto.JobResponse, error) {
	job, err := s.repo.JobRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", id, err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

func (s *managementService) ListJobs(ctx context.Context) ([]dto.JobResponse, error) {
	if cached, ok := s.cache.Get(cacheKeyJobs); ok {
		if jobs, ok := cached.([]dto.JobResponse); ok {
			return jobs, nil
		}
	}

	jobs, err := s.repo.JobRepo.Get(ctx, &model.GetJobParam{})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	resp := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, dto.NewJobResponse(&jobs[i]))
	}
	s.cache.Set(cacheKeyJobs, resp, s.cfg.API.ViewCacheTTL)
	return resp, nil
}

// RunNow requests a single immediate execution: the next dispatch cycle
// picks the job up because next_run <= now.
func (s *managementService) RunNow(ctx context.Context, id uint) error {
	job, err := s.repo.JobRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", id, err)
	}
	if job == nil {
		return ErrNotFound
	}
	now := utils.NowUTC()
	if err := s.repo.JobRepo.SetNextRun(ctx, id, sql.NullTime{Time: now, Valid: true}); err != nil {
		return fmt.Errorf("failed to request run for job %d: %w", id, err)
	}
	s.cache.Delete(cacheKeyJobs)
	s.log.InfoContext(ctx, "Run now requested", logger.IntField("job_id", int(id)))
	return nil
}

func (s *managementService) ToggleActive(ctx context.Context, id uint) (*dto.JobResponse, error) {
	job, err := s.repo.JobRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", id, err)
	}
	if job == nil {
		return nil, ErrNotFound
	}

	job.IsActive = !job.IsActive
	if job.IsActive {
		// Reactivated jobs get a fresh next_run so a long-past value does
		// not fire immediately.
		nextRun, err := schedule.NextRun(job, utils.NowUTC())
		if err != nil {
			return nil, fmt.Errorf("failed to compute next run for job %d: %w", id, err)
		}
		job.NextRun = nextRun
	}
	if err := s.repo.JobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to toggle job %d: %w", id, err)
	}
	s.cache.Delete(cacheKeyJobs)
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

func (s *managementService) ListDispatches(ctx context.Context, param *model.GetDispatchParam) ([]dto.DispatchResponse, error) {
	dispatches, err := s.repo.DispatchRepo.Get(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	resp := make([]dto.DispatchResponse, 0, len(dispatches))
	for i := range dispatches {
		resp = append(resp, dto.NewDispatchResponse(&dispatches[i]))
	}
	return resp, nil
}

func (s *managementService) ListActiveWorkers(ctx context.Context) ([]dto.WorkerResponse, error) {
	if cached, ok := s.cache.Get(cacheKeyWorkers); ok {
		if workers, ok := cached.([]dto.WorkerResponse); ok {
			return workers, nil
		}
	}

	since := utils.NowUTC().Add(-s.cfg.Scheduler.WorkerOfflineThreshold)
	workers, err := s.repo.WorkerRepo.FindActive(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	resp := make([]dto.WorkerResponse, 0, len(workers))
	for i := range workers {
		resp = append(resp, dto.NewWorkerResponse(&workers[i]))
	}
	s.cache.Set(cacheKeyWorkers, resp, s.cfg.API.ViewCacheTTL)
	return resp, nil
}

func (s *managementService) JobLogs(ctx context.Context, jobID uint, limit int) ([]dto.ExecutionLogResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	logs, err := s.repo.LogRepo.Get(ctx, &model.GetExecutionLogParam{
		JobID: &jobID,
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for job %d: %w", jobID, err)
	}
	resp := make([]dto.ExecutionLogResponse, 0, len(logs))
	for i := range logs {
		resp = append(resp, dto.NewExecutionLogResponse(&logs[i]))
	}
	return resp, nil
}
