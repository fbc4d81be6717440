package dto

import (
	"time"

	"job-trigger-portal/internal/model"
)

// CreateJobRequest carries a job definition from the management UI. The
// optional timezone applies to schedule_time, which is converted to UTC at
// save time; everything stored is UTC.
type CreateJobRequest struct {
	Name            string                 `json:"name" validate:"required,max=255"`
	ScriptPath      string                 `json:"script_path" validate:"required,max=512"`
	ScheduleType    string                 `json:"schedule_type" validate:"required,oneof=interval hourly daily weekly monthly manual cron"`
	IntervalSeconds *int                   `json:"interval_seconds" validate:"omitempty,gt=0"`
	ScheduleMinute  *int                   `json:"schedule_minute" validate:"omitempty,gte=0,lte=59"`
	ScheduleTime    *string                `json:"schedule_time"`
	ScheduleDay     *int                   `json:"schedule_day"`
	CronExpression  *string                `json:"cron_expression"`
	Timezone        *string                `json:"timezone"`
	Environment     map[string]interface{} `json:"environment"`
	IsActive        *bool                  `json:"is_active"`
}

// UpdateJobRequest mirrors CreateJobRequest; the schedule is revalidated
// and next_run recomputed on every update.
type UpdateJobRequest = CreateJobRequest

type JobResponse struct {
	ID                uint                   `json:"id"`
	Name              string                 `json:"name"`
	ScriptPath        string                 `json:"script_path"`
	ScheduleType      string                 `json:"schedule_type"`
	IntervalSeconds   int                    `json:"interval_seconds,omitempty"`
	ScheduleMinute    *int                   `json:"schedule_minute,omitempty"`
	ScheduleTime      string                 `json:"schedule_time,omitempty"`
	ScheduleDay       *int                   `json:"schedule_day,omitempty"`
	CronExpression    string                 `json:"cron_expression,omitempty"`
	Environment       map[string]interface{} `json:"environment,omitempty"`
	IsActive          bool                   `json:"is_active"`
	NextRun           *time.Time             `json:"next_run,omitempty"`
	LastDispatchedAt  *time.Time             `json:"last_dispatched_at,omitempty"`
	DispatchLockUntil *time.Time             `json:"dispatch_lock_until,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func NewJobResponse(job *model.ScheduledJob) JobResponse {
	resp := JobResponse{
		ID:              job.ID,
		Name:            job.Name,
		ScriptPath:      job.ScriptPath,
		ScheduleType:    string(job.ScheduleType),
		IntervalSeconds: job.IntervalSeconds,
		Environment:     job.Environment,
		IsActive:        job.IsActive,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.ScheduleMinute.Valid {
		m := int(job.ScheduleMinute.Int32)
		resp.ScheduleMinute = &m
	}
	if job.ScheduleTime.Valid {
		resp.ScheduleTime = job.ScheduleTime.String
	}
	if job.ScheduleDay.Valid {
		d := int(job.ScheduleDay.Int32)
		resp.ScheduleDay = &d
	}
	if job.CronExpression.Valid {
		resp.CronExpression = job.CronExpression.String
	}
	if job.NextRun.Valid {
		t := job.NextRun.Time.UTC()
		resp.NextRun = &t
	}
	if job.LastDispatchedAt.Valid {
		t := job.LastDispatchedAt.Time.UTC()
		resp.LastDispatchedAt = &t
	}
	if job.DispatchLockUntil.Valid {
		t := job.DispatchLockUntil.Time.UTC()
		resp.DispatchLockUntil = &t
	}
	return resp
}

type DispatchResponse struct {
	ID           uint       `json:"id"`
	JobID        uint       `json:"job_id"`
	Status       string     `json:"status"`
	WorkerID     string     `json:"worker_id,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func NewDispatchResponse(d *model.JobDispatch) DispatchResponse {
	resp := DispatchResponse{
		ID:         d.ID,
		JobID:      d.JobID,
		Status:     string(d.Status),
		RetryCount: d.RetryCount,
		CreatedAt:  d.CreatedAt,
	}
	if d.WorkerID.Valid {
		resp.WorkerID = d.WorkerID.String
	}
	if d.ErrorMessage.Valid {
		resp.ErrorMessage = d.ErrorMessage.String
	}
	if d.ClaimedAt.Valid {
		t := d.ClaimedAt.Time.UTC()
		resp.ClaimedAt = &t
	}
	if d.CompletedAt.Valid {
		t := d.CompletedAt.Time.UTC()
		resp.CompletedAt = &t
	}
	return resp
}

type WorkerResponse struct {
	WorkerID      string    `json:"worker_id"`
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	Status        string    `json:"status"`
	JobsProcessed int64     `json:"jobs_processed"`
	CurrentJobID  *int64    `json:"current_job_id,omitempty"`
	ProcessID     int       `json:"process_id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func NewWorkerResponse(w *model.WorkerRegistration) WorkerResponse {
	resp := WorkerResponse{
		WorkerID:      w.WorkerID,
		Hostname:      w.Hostname,
		Platform:      w.Platform,
		Status:        string(w.Status),
		JobsProcessed: w.JobsProcessed,
		ProcessID:     w.ProcessID,
		StartedAt:     w.StartedAt,
		LastHeartbeat: w.LastHeartbeat,
	}
	if w.CurrentJobID.Valid {
		id := w.CurrentJobID.Int64
		resp.CurrentJobID = &id
	}
	return resp
}

type ExecutionLogResponse struct {
	ID        uint      `json:"id"`
	JobID     uint      `json:"job_id"`
	RunTime   time.Time `json:"run_time"`
	Status    string    `json:"status"`
	LogOutput string    `json:"log_output"`
}

func NewExecutionLogResponse(l *model.JobExecutionLog) ExecutionLogResponse {
	return ExecutionLogResponse{
		ID:        l.ID,
		JobID:     l.JobID,
		RunTime:   l.RunTime,
		Status:    string(l.Status),
		LogOutput: l.LogOutput,
	}
}
