package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeHourly   ScheduleType = "hourly"
	ScheduleTypeDaily    ScheduleType = "daily"
	ScheduleTypeWeekly   ScheduleType = "weekly"
	ScheduleTypeMonthly  ScheduleType = "monthly"
	ScheduleTypeManual   ScheduleType = "manual"
	ScheduleTypeCron     ScheduleType = "cron"
)

// ScheduledJob is the durable definition of a recurring or manual task.
// All timestamps are UTC instants; schedule_time holds a UTC "HH:MM" wall
// clock for the daily/weekly/monthly types, schedule_minute holds the
// minute 0-59 for hourly schedules.
type ScheduledJob struct {
	ID              uint         `gorm:"primaryKey"`
	Name            string       `gorm:"type:varchar(255);not null;index"`
	ScriptPath      string       `gorm:"type:varchar(512);not null"`
	ScheduleType    ScheduleType `gorm:"type:varchar(20);not null;default:interval"`
	IntervalSeconds int          `gorm:"not null;default:0"`
	ScheduleMinute  sql.NullInt32
	ScheduleTime    sql.NullString `gorm:"type:varchar(5)"`
	ScheduleDay     sql.NullInt32
	CronExpression  sql.NullString `gorm:"type:varchar(100)"`
	Environment     datatypes.JSONMap
	IsActive        bool `gorm:"not null;default:true"`
	// NextRun is null for a manual job unless an immediate run was requested.
	NextRun          sql.NullTime `gorm:"index:idx_scheduled_jobs_due,priority:1"`
	LastDispatchedAt sql.NullTime
	// DispatchLockUntil gates redispatch while a recent dispatch is outstanding.
	DispatchLockUntil sql.NullTime `gorm:"index:idx_scheduled_jobs_due,priority:2"`
	CreatedAt         time.Time    `gorm:"autoCreateTime"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime"`

	Dispatches []JobDispatch     `gorm:"foreignKey:JobID"`
	Logs       []JobExecutionLog `gorm:"foreignKey:JobID"`
}

func (ScheduledJob) TableName() string {
	return "scheduled_jobs"
}

// IsDue reports whether the job should produce a dispatch at now: active,
// next_run has arrived and no dispatch lock is in force.
func (j *ScheduledJob) IsDue(now time.Time) bool {
	if !j.IsActive || !j.NextRun.Valid || j.NextRun.Time.After(now) {
		return false
	}
	return !j.DispatchLockUntil.Valid || j.DispatchLockUntil.Time.Before(now)
}

type GetJobParam struct {
	IDs      []uint `json:"ids"`
	IsActive *bool  `json:"is_active"`
	Limit    *int   `json:"limit"`
}
