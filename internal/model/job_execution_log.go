package model

import "time"

type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailure ExecutionStatus = "FAILURE"
	ExecutionStatusError   ExecutionStatus = "ERROR"
	ExecutionStatusTimeout ExecutionStatus = "TIMEOUT"
)

// JobExecutionLog is the immutable record of a terminal dispatch outcome:
// inserted exactly once, never mutated.
type JobExecutionLog struct {
	ID        uint            `gorm:"primaryKey"`
	JobID     uint            `gorm:"not null;index"`
	RunTime   time.Time       `gorm:"not null;index"`
	Status    ExecutionStatus `gorm:"type:varchar(20);not null"`
	LogOutput string          `gorm:"type:text"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (JobExecutionLog) TableName() string {
	return "job_execution_logs"
}

type GetExecutionLogParam struct {
	JobID *uint `json:"job_id"`
	Limit *int  `json:"limit"`
}
