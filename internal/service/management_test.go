package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-trigger-portal/config"
	"job-trigger-portal/internal/dto"
	"job-trigger-portal/internal/model"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/utils"
)

type stubJobRepo struct {
	repository.ScheduledJobRepository
	mu      sync.Mutex
	nextID  uint
	jobs    map[uint]*model.ScheduledJob
	nextRun map[uint]sql.NullTime
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{
		jobs:    make(map[uint]*model.ScheduledJob),
		nextRun: make(map[uint]sql.NullTime),
	}
}

func (r *stubJobRepo) Create(_ context.Context, job *model.ScheduledJob, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *stubJobRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *stubJobRepo) SetNextRun(_ context.Context, id uint, nextRun sql.NullTime, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRun[id] = nextRun
	if job, ok := r.jobs[id]; ok {
		job.NextRun = nextRun
	}
	return nil
}

type noopCache struct{}

func (noopCache) Set(string, interface{}, time.Duration) {}
func (noopCache) Get(string) (interface{}, bool)         { return nil, false }
func (noopCache) Delete(string)                          {}
func (noopCache) Flush()                                 {}

func newTestManagement(t *testing.T, jobRepo repository.ScheduledJobRepository) ManagementService {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	cfg := &config.Config{
		API:       config.API{ViewCacheTTL: time.Second},
		Scheduler: config.Scheduler{WorkerOfflineThreshold: 180 * time.Second},
	}
	repo := &repository.Repository{JobRepo: jobRepo}
	return NewManagementService(cfg, log, repo, noopCache{})
}

func TestCreateJobNormalizesTimezoneToUTC(t *testing.T) {
	jobRepo := newStubJobRepo()
	svc := newTestManagement(t, jobRepo)

	clock := "00:30"
	tz := "Asia/Shanghai"
	resp, err := svc.CreateJob(context.Background(), &dto.CreateJobRequest{
		Name:         "overnight-sync",
		ScriptPath:   "sync.sh",
		ScheduleType: "daily",
		ScheduleTime: &clock,
		Timezone:     &tz,
	})
	require.NoError(t, err)

	// 00:30 at UTC+8 is 16:30 UTC of the previous day.
	assert.Equal(t, "16:30", resp.ScheduleTime)
	require.NotNil(t, resp.NextRun)
	assert.Equal(t, 16, resp.NextRun.Hour())
	assert.Equal(t, 30, resp.NextRun.Minute())
	assert.True(t, resp.NextRun.After(time.Now().UTC()))
}

func TestCreateJobRejectsBadDefinition(t *testing.T) {
	svc := newTestManagement(t, newStubJobRepo())

	_, err := svc.CreateJob(context.Background(), &dto.CreateJobRequest{
		Name:         "bad",
		ScriptPath:   "../escape.sh",
		ScheduleType: "manual",
	})
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = svc.CreateJob(context.Background(), &dto.CreateJobRequest{
		Name:         "bad-interval",
		ScriptPath:   "ok.sh",
		ScheduleType: "interval",
	})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestCreateManualJobStaysQuiescent(t *testing.T) {
	jobRepo := newStubJobRepo()
	svc := newTestManagement(t, jobRepo)

	resp, err := svc.CreateJob(context.Background(), &dto.CreateJobRequest{
		Name:         "adhoc",
		ScriptPath:   "adhoc.sh",
		ScheduleType: "manual",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.NextRun)
}

func TestRunNowSetsNextRun(t *testing.T) {
	jobRepo := newStubJobRepo()
	svc := newTestManagement(t, jobRepo)

	resp, err := svc.CreateJob(context.Background(), &dto.CreateJobRequest{
		Name:         "adhoc",
		ScriptPath:   "adhoc.sh",
		ScheduleType: "manual",
	})
	require.NoError(t, err)

	before := time.Now().UTC()
	require.NoError(t, svc.RunNow(context.Background(), resp.ID))

	stored := jobRepo.nextRun[resp.ID]
	require.True(t, stored.Valid)
	assert.False(t, stored.Time.Before(before))

	assert.ErrorIs(t, svc.RunNow(context.Background(), 999), ErrNotFound)
}
