package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"job-trigger-portal/internal/model"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/pkg/alert"
	"job-trigger-portal/pkg/utils"
)

// memStore backs the in-memory fakes the scheduler tests run against. The
// fakes mirror the SQL predicates of the real repositories closely enough
// to exercise the coordination protocol.
type memStore struct {
	mu             sync.Mutex
	jobs           map[uint]*model.ScheduledJob
	dispatches     map[uint]*model.JobDispatch
	workers        map[string]*model.WorkerRegistration
	logs           []model.JobExecutionLog
	nextJobID      uint
	nextDispatchID uint
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       make(map[uint]*model.ScheduledJob),
		dispatches: make(map[uint]*model.JobDispatch),
		workers:    make(map[string]*model.WorkerRegistration),
	}
}

func (s *memStore) addJob(job model.ScheduledJob) *model.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	job.ID = s.nextJobID
	s.jobs[job.ID] = &job
	return &job
}

func (s *memStore) addDispatch(d model.JobDispatch) *model.JobDispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDispatchID++
	d.ID = s.nextDispatchID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.dispatches[d.ID] = &d
	return &d
}

func (s *memStore) addWorker(w model.WorkerRegistration) *model.WorkerRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.WorkerID] = &w
	return &w
}

func (s *memStore) dispatchesForJob(jobID uint) []model.JobDispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.JobDispatch
	for _, d := range s.dispatches {
		if d.JobID == jobID {
			out = append(out, *d)
		}
	}
	return out
}

func newFakeRepository(s *memStore) *repository.Repository {
	return &repository.Repository{
		JobRepo:      &fakeJobRepo{s: s},
		DispatchRepo: &fakeDispatchRepo{s: s},
		WorkerRepo:   &fakeWorkerRepo{s: s},
		LogRepo:      &fakeLogRepo{s: s},
		UnitOfWork:   fakeUnitOfWork{},
	}
}

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Run(fn func(opts ...utils.DBOption) error) error {
	return fn()
}

type fakeJobRepo struct {
	s *memStore
}

func (r *fakeJobRepo) Create(_ context.Context, job *model.ScheduledJob, _ ...utils.DBOption) error {
	created := r.s.addJob(*job)
	job.ID = created.ID
	return nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *model.ScheduledJob, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *job
	r.s.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) Delete(_ context.Context, id uint, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.jobs, id)
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.ScheduledJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) Get(_ context.Context, _ *model.GetJobParam, _ ...utils.DBOption) ([]model.ScheduledJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ScheduledJob
	for _, job := range r.s.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (r *fakeJobRepo) FindDueIDs(_ context.Context, now time.Time, _ ...utils.DBOption) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uint
	for id, job := range r.s.jobs {
		if job.IsDue(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeJobRepo) LockDue(_ context.Context, id uint, now time.Time, _ ...utils.DBOption) (*model.ScheduledJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok || !job.IsDue(now) {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) MarkDispatched(_ context.Context, id uint, nextRun sql.NullTime, dispatchedAt, lockUntil time.Time, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job := r.s.jobs[id]
	job.NextRun = nextRun
	job.LastDispatchedAt = sql.NullTime{Time: dispatchedAt, Valid: true}
	job.DispatchLockUntil = sql.NullTime{Time: lockUntil, Valid: true}
	return nil
}

func (r *fakeJobRepo) SetNextRun(_ context.Context, id uint, nextRun sql.NullTime, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job, ok := r.s.jobs[id]; ok {
		job.NextRun = nextRun
	}
	return nil
}

func (r *fakeJobRepo) SetActive(_ context.Context, id uint, active bool, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job, ok := r.s.jobs[id]; ok {
		job.IsActive = active
	}
	return nil
}

type fakeDispatchRepo struct {
	s *memStore
}

func (r *fakeDispatchRepo) Create(_ context.Context, dispatch *model.JobDispatch, _ ...utils.DBOption) error {
	created := r.s.addDispatch(*dispatch)
	dispatch.ID = created.ID
	dispatch.CreatedAt = created.CreatedAt
	return nil
}

func (r *fakeDispatchRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.JobDispatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dispatches[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDispatchRepo) Get(_ context.Context, _ *model.GetDispatchParam, _ ...utils.DBOption) ([]model.JobDispatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.JobDispatch
	for _, d := range r.s.dispatches {
		out = append(out, *d)
	}
	return out, nil
}

func (r *fakeDispatchRepo) OldestPending(_ context.Context, _ ...utils.DBOption) (*model.JobDispatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *model.JobDispatch
	for _, d := range r.s.dispatches {
		if d.Status != model.DispatchStatusPending {
			continue
		}
		if oldest == nil || d.CreatedAt.Before(oldest.CreatedAt) {
			oldest = d
		}
	}
	if oldest == nil {
		return nil, nil
	}
	copied := *oldest
	return &copied, nil
}

func (r *fakeDispatchRepo) Claim(_ context.Context, dispatchID uint, workerID string, claimedAt time.Time, _ ...utils.DBOption) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dispatches[dispatchID]
	if !ok || d.Status != model.DispatchStatusPending {
		return false, nil
	}
	d.Status = model.DispatchStatusInProgress
	d.WorkerID = sql.NullString{String: workerID, Valid: true}
	d.ClaimedAt = sql.NullTime{Time: claimedAt, Valid: true}
	return true, nil
}

func (r *fakeDispatchRepo) Finish(_ context.Context, dispatchID uint, workerID string, status model.DispatchStatus, completedAt time.Time, errorMessage sql.NullString, _ ...utils.DBOption) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dispatches[dispatchID]
	if !ok || d.Status != model.DispatchStatusInProgress || !d.WorkerID.Valid || d.WorkerID.String != workerID {
		return false, nil
	}
	d.Status = status
	d.CompletedAt = sql.NullTime{Time: completedAt, Valid: true}
	d.ErrorMessage = errorMessage
	return true, nil
}

func (r *fakeDispatchRepo) MarkTimeout(_ context.Context, dispatchID uint, completedAt time.Time, errorMessage string, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dispatches[dispatchID]
	if !ok || d.Status != model.DispatchStatusInProgress {
		return nil
	}
	d.Status = model.DispatchStatusTimeout
	d.CompletedAt = sql.NullTime{Time: completedAt, Valid: true}
	d.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	return nil
}

func (r *fakeDispatchRepo) FindStaleInProgress(_ context.Context, claimedBefore time.Time, _ ...utils.DBOption) ([]model.JobDispatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.JobDispatch
	for _, d := range r.s.dispatches {
		if d.Status == model.DispatchStatusInProgress && d.ClaimedAt.Valid && d.ClaimedAt.Time.Before(claimedBefore) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDispatchRepo) FindUnhandledTerminal(_ context.Context, statuses []model.DispatchStatus, _ ...utils.DBOption) ([]model.JobDispatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.JobDispatch
	for _, d := range r.s.dispatches {
		if d.RetriedAt.Valid {
			continue
		}
		for _, status := range statuses {
			if d.Status == status {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeDispatchRepo) MarkRetried(_ context.Context, dispatchID uint, retriedAt time.Time, _ ...utils.DBOption) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.dispatches[dispatchID]
	if !ok || d.RetriedAt.Valid {
		return false, nil
	}
	d.RetriedAt = sql.NullTime{Time: retriedAt, Valid: true}
	return true, nil
}

func (r *fakeDispatchRepo) ReleaseByWorker(_ context.Context, workerID string, _ ...utils.DBOption) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var released int64
	for _, d := range r.s.dispatches {
		if d.Status == model.DispatchStatusInProgress && d.WorkerID.Valid && d.WorkerID.String == workerID {
			d.Status = model.DispatchStatusPending
			d.WorkerID = sql.NullString{}
			d.ClaimedAt = sql.NullTime{}
			released++
		}
	}
	return released, nil
}

func (r *fakeDispatchRepo) DeleteTerminalOlderThan(_ context.Context, completedBefore time.Time, _ ...utils.DBOption) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, d := range r.s.dispatches {
		if d.Status.IsTerminal() && d.CompletedAt.Valid && d.CompletedAt.Time.Before(completedBefore) {
			delete(r.s.dispatches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeDispatchRepo) HasOutstanding(_ context.Context, jobID uint, _ ...utils.DBOption) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.dispatches {
		if d.JobID == jobID && !d.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

type fakeWorkerRepo struct {
	s *memStore
}

func (r *fakeWorkerRepo) Register(_ context.Context, worker *model.WorkerRegistration, _ ...utils.DBOption) error {
	r.s.addWorker(*worker)
	return nil
}

func (r *fakeWorkerRepo) FindByID(_ context.Context, workerID string, _ ...utils.DBOption) (*model.WorkerRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.workers[workerID]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

func (r *fakeWorkerRepo) Heartbeat(_ context.Context, workerID string, at time.Time, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.workers[workerID]; ok {
		w.LastHeartbeat = at
	}
	return nil
}

func (r *fakeWorkerRepo) SetStatus(_ context.Context, workerID string, status model.WorkerStatus, currentJobID sql.NullInt64, at time.Time, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.workers[workerID]; ok {
		w.Status = status
		w.CurrentJobID = currentJobID
		w.LastHeartbeat = at
	}
	return nil
}

func (r *fakeWorkerRepo) IncrementProcessed(_ context.Context, workerID string, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := r.s.workers[workerID]; ok {
		w.JobsProcessed++
	}
	return nil
}

func (r *fakeWorkerRepo) Delete(_ context.Context, workerID string, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.workers, workerID)
	// Mirror the ON DELETE SET NULL foreign key on job_dispatch.
	for _, d := range r.s.dispatches {
		if d.WorkerID.Valid && d.WorkerID.String == workerID {
			d.WorkerID = sql.NullString{}
		}
	}
	return nil
}

func (r *fakeWorkerRepo) FindStale(_ context.Context, heartbeatBefore time.Time, _ ...utils.DBOption) ([]model.WorkerRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.WorkerRegistration
	for _, w := range r.s.workers {
		if w.LastHeartbeat.Before(heartbeatBefore) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWorkerRepo) FindActive(_ context.Context, heartbeatAfter time.Time, _ ...utils.DBOption) ([]model.WorkerRegistration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.WorkerRegistration
	for _, w := range r.s.workers {
		if w.LastHeartbeat.After(heartbeatAfter) {
			out = append(out, *w)
		}
	}
	return out, nil
}

type fakeLogRepo struct {
	s *memStore
}

func (r *fakeLogRepo) Create(_ context.Context, entry *model.JobExecutionLog, _ ...utils.DBOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = uint(len(r.s.logs) + 1)
	r.s.logs = append(r.s.logs, *entry)
	return nil
}

func (r *fakeLogRepo) Get(_ context.Context, param *model.GetExecutionLogParam, _ ...utils.DBOption) ([]model.JobExecutionLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.JobExecutionLog
	for _, entry := range r.s.logs {
		if param.JobID != nil && entry.JobID != *param.JobID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// recordingNotifier captures alert events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []alert.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event alert.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}
