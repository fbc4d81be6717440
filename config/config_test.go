package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Scheduler.DispatchLockDuration)
	assert.Equal(t, 600*time.Second, cfg.Scheduler.TimeoutThreshold)
	assert.Equal(t, 180*time.Second, cfg.Scheduler.WorkerOfflineThreshold)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetryAttempts)
	assert.Equal(t, 30, cfg.Scheduler.CleanupRetentionDays)
	assert.True(t, cfg.Scheduler.RetryFailedDispatches)

	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Worker.MaxPollInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 600*time.Second, cfg.Worker.JobTimeout)
	assert.Equal(t, 1<<20, cfg.Worker.MaxOutputBytes)
	assert.InDelta(t, 1.5, cfg.Worker.BackoffFactor, 0.001)
}

func TestDatabaseURLFromEnvironment(t *testing.T) {
	t.Setenv("JOB_SCHEDULER_DB_URL", "postgres://scheduler:secret@db:5432/jobs?sslmode=require")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://scheduler:secret@db:5432/jobs?sslmode=require", cfg.DB.DSN())
}

func TestDSNFallsBackToHostSettings(t *testing.T) {
	d := Database{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "pw", DBName: "jobs", SSLMode: "disable",
	}
	assert.Contains(t, d.DSN(), "host=localhost")
	assert.Contains(t, d.DSN(), "TimeZone=UTC")
}

func TestValidateWorkerRequiresScriptRoot(t *testing.T) {
	cfg := &Config{Worker: Worker{
		PollInterval:    time.Second,
		MaxPollInterval: time.Minute,
		BackoffFactor:   1.5,
	}}
	assert.Error(t, cfg.ValidateWorker())

	cfg.Worker.ScriptRoot = t.TempDir()
	assert.NoError(t, cfg.ValidateWorker())

	cfg.Worker.BackoffFactor = 0.5
	assert.Error(t, cfg.ValidateWorker())
}

func TestValidateScheduler(t *testing.T) {
	cfg := &Config{Scheduler: Scheduler{
		PollInterval:         10 * time.Second,
		DispatchLockDuration: 300 * time.Second,
	}}
	assert.NoError(t, cfg.ValidateScheduler())

	cfg.Scheduler.MaxRetryAttempts = -1
	assert.Error(t, cfg.ValidateScheduler())
}
