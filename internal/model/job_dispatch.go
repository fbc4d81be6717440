package model

import (
	"database/sql"
	"time"
)

type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "PENDING"
	DispatchStatusInProgress DispatchStatus = "IN_PROGRESS"
	DispatchStatusCompleted  DispatchStatus = "COMPLETED"
	DispatchStatusFailed     DispatchStatus = "FAILED"
	DispatchStatusTimeout    DispatchStatus = "TIMEOUT"
)

// IsTerminal reports whether a dispatch in this status never re-enters the
// pipeline. A retry is a fresh PENDING row, not a resurrection.
func (s DispatchStatus) IsTerminal() bool {
	switch s {
	case DispatchStatusCompleted, DispatchStatusFailed, DispatchStatusTimeout:
		return true
	}
	return false
}

// JobDispatch is one concrete execution attempt of a scheduled job, claimed
// by exactly one worker via a conditional update on status.
type JobDispatch struct {
	ID          uint           `gorm:"primaryKey"`
	JobID       uint           `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index:idx_job_dispatch_queue,priority:2"`
	ClaimedAt   sql.NullTime   `gorm:"index"`
	CompletedAt sql.NullTime
	Status      DispatchStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_job_dispatch_queue,priority:1"`
	WorkerID    sql.NullString `gorm:"type:varchar(50);index"`
	RetryCount  int            `gorm:"not null;default:0"`
	// RetriedAt marks that the scheduler already spawned a follow-up PENDING
	// row for this terminal dispatch, making the retry pass idempotent.
	RetriedAt    sql.NullTime
	ErrorMessage sql.NullString `gorm:"type:text"`

	Job ScheduledJob `gorm:"foreignKey:JobID;references:ID"`
}

func (JobDispatch) TableName() string {
	return "job_dispatch"
}

type GetDispatchParam struct {
	JobID    *uint           `json:"job_id"`
	Status   *DispatchStatus `json:"status"`
	WorkerID *string         `json:"worker_id"`
	Limit    *int            `json:"limit"`
}
