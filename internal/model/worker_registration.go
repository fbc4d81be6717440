package model

import (
	"database/sql"
	"time"
)

type WorkerStatus string

const (
	WorkerStatusIdle WorkerStatus = "IDLE"
	WorkerStatusBusy WorkerStatus = "BUSY"
)

// WorkerRegistration is the liveness record of a worker process. The row is
// inserted at startup, refreshed by the heartbeat task and removed on
// graceful shutdown or by the scheduler's reaper once the heartbeat goes
// stale.
type WorkerRegistration struct {
	WorkerID      string       `gorm:"primaryKey;type:varchar(50)"`
	Hostname      string       `gorm:"type:varchar(255);not null"`
	Platform      string       `gorm:"type:varchar(50);not null"`
	StartedAt     time.Time    `gorm:"not null"`
	LastHeartbeat time.Time    `gorm:"not null;index"`
	Status        WorkerStatus `gorm:"type:varchar(20);not null;default:IDLE;index"`
	JobsProcessed int64        `gorm:"not null;default:0"`
	CurrentJobID  sql.NullInt64
	ProcessID     int
}

func (WorkerRegistration) TableName() string {
	return "worker_registration"
}
