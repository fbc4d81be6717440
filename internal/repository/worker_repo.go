package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"job-trigger-portal/internal/model"
	"job-trigger-portal/pkg/utils"
)

type WorkerRepository interface {
	Register(ctx context.Context, worker *model.WorkerRegistration, opts ...utils.DBOption) error
	FindByID(ctx context.Context, workerID string, opts ...utils.DBOption) (*model.WorkerRegistration, error)
	// Heartbeat refreshes last_heartbeat on the worker's own row. A single
	// primary-key update, so it never contends with the claim loop.
	Heartbeat(ctx context.Context, workerID string, at time.Time, opts ...utils.DBOption) error
	// SetStatus records the IDLE/BUSY transition and the job being worked on.
	SetStatus(ctx context.Context, workerID string, status model.WorkerStatus, currentJobID sql.NullInt64, at time.Time, opts ...utils.DBOption) error
	// IncrementProcessed bumps jobs_processed after a reported outcome.
	IncrementProcessed(ctx context.Context, workerID string, opts ...utils.DBOption) error
	Delete(ctx context.Context, workerID string, opts ...utils.DBOption) error
	// FindStale returns workers whose heartbeat aged past the threshold.
	FindStale(ctx context.Context, heartbeatBefore time.Time, opts ...utils.DBOption) ([]model.WorkerRegistration, error)
	// FindActive is the management "active workers" view.
	FindActive(ctx context.Context, heartbeatAfter time.Time, opts ...utils.DBOption) ([]model.WorkerRegistration, error)
}

type workerRepository struct {
	db *gorm.DB
}

func NewWorkerRepository(db *gorm.DB) WorkerRepository {
	return &workerRepository{db: db}
}

func (r *workerRepository) Register(ctx context.Context, worker *model.WorkerRegistration, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(worker).Error
}

func (r *workerRepository) FindByID(ctx context.Context, workerID string, opts ...utils.DBOption) (*model.WorkerRegistration, error) {
	var worker model.WorkerRegistration
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("worker_id = ?", workerID).
		First(&worker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &worker, nil
}

func (r *workerRepository) Heartbeat(ctx context.Context, workerID string, at time.Time, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.WorkerRegistration{}).
		Where("worker_id = ?", workerID).
		Update("last_heartbeat", at).Error
}

func (r *workerRepository) SetStatus(ctx context.Context, workerID string, status model.WorkerStatus, currentJobID sql.NullInt64, at time.Time, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.WorkerRegistration{}).
		Where("worker_id = ?", workerID).
		Updates(map[string]interface{}{
			"status":         status,
			"current_job_id": currentJobID,
			"last_heartbeat": at,
		}).Error
}

func (r *workerRepository) IncrementProcessed(ctx context.Context, workerID string, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.WorkerRegistration{}).
		Where("worker_id = ?", workerID).
		Update("jobs_processed", gorm.Expr("jobs_processed + 1")).Error
}

func (r *workerRepository) Delete(ctx context.Context, workerID string, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("worker_id = ?", workerID).
		Delete(&model.WorkerRegistration{}).Error
}

func (r *workerRepository) FindStale(ctx context.Context, heartbeatBefore time.Time, opts ...utils.DBOption) ([]model.WorkerRegistration, error) {
	var workers []model.WorkerRegistration
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("last_heartbeat < ?", heartbeatBefore).
		Find(&workers).Error
	if err != nil {
		return nil, err
	}
	return workers, nil
}

func (r *workerRepository) FindActive(ctx context.Context, heartbeatAfter time.Time, opts ...utils.DBOption) ([]model.WorkerRegistration, error) {
	var workers []model.WorkerRegistration
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("last_heartbeat > ?", heartbeatAfter).
		Order("started_at ASC").
		Find(&workers).Error
	if err != nil {
		return nil, err
	}
	return workers, nil
}
