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

type DispatchRepository interface {
	Create(ctx context.Context, dispatch *model.JobDispatch, opts ...utils.DBOption) error
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.JobDispatch, error)
	Get(ctx context.Context, param *model.GetDispatchParam, opts ...utils.DBOption) ([]model.JobDispatch, error)
	// OldestPending returns the head of the claim queue, or nil when empty.
	OldestPending(ctx context.Context, opts ...utils.DBOption) (*model.JobDispatch, error)
	// Claim performs the conditional PENDING -> IN_PROGRESS update. The
	// WHERE predicate on status makes the claim atomic; exactly one of
	// the racing workers sees claimed=true.
	Claim(ctx context.Context, dispatchID uint, workerID string, claimedAt time.Time, opts ...utils.DBOption) (bool, error)
	// Finish records a terminal outcome for a dispatch this worker still
	// owns. Conditional on IN_PROGRESS + worker id so a released or
	// timed-out dispatch is never overwritten.
	Finish(ctx context.Context, dispatchID uint, workerID string, status model.DispatchStatus, completedAt time.Time, errorMessage sql.NullString, opts ...utils.DBOption) (bool, error)
	// MarkTimeout transitions an abandoned IN_PROGRESS dispatch to TIMEOUT.
	MarkTimeout(ctx context.Context, dispatchID uint, completedAt time.Time, errorMessage string, opts ...utils.DBOption) error
	// FindStaleInProgress returns dispatches claimed before the threshold.
	FindStaleInProgress(ctx context.Context, claimedBefore time.Time, opts ...utils.DBOption) ([]model.JobDispatch, error)
	// FindUnhandledTerminal returns terminal dispatches in the given
	// statuses that the retry pass has not processed yet.
	FindUnhandledTerminal(ctx context.Context, statuses []model.DispatchStatus, opts ...utils.DBOption) ([]model.JobDispatch, error)
	// MarkRetried claims a terminal dispatch for retry handling. The WHERE
	// predicate on retried_at makes the claim atomic: with concurrent
	// scheduler instances exactly one caller sees claimed=true.
	MarkRetried(ctx context.Context, dispatchID uint, retriedAt time.Time, opts ...utils.DBOption) (bool, error)
	// ReleaseByWorker resets this worker's IN_PROGRESS dispatches to
	// PENDING so another worker can pick them up. Used on graceful shutdown.
	ReleaseByWorker(ctx context.Context, workerID string, opts ...utils.DBOption) (int64, error)
	// DeleteTerminalOlderThan purges terminal dispatches past retention.
	DeleteTerminalOlderThan(ctx context.Context, completedBefore time.Time, opts ...utils.DBOption) (int64, error)
	// HasOutstanding reports whether the job already has a non-terminal dispatch.
	HasOutstanding(ctx context.Context, jobID uint, opts ...utils.DBOption) (bool, error)
}

type dispatchRepository struct {
	db *gorm.DB
}

func NewDispatchRepository(db *gorm.DB) DispatchRepository {
	return &dispatchRepository{db: db}
}

func (r *dispatchRepository) Create(ctx context.Context, dispatch *model.JobDispatch, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(dispatch).Error
}

func (r *dispatchRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.JobDispatch, error) {
	var dispatch model.JobDispatch
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&dispatch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dispatch, nil
}

func (r *dispatchRepository) Get(ctx context.Context, param *model.GetDispatchParam, opts ...utils.DBOption) ([]model.JobDispatch, error) {
	var dispatches []model.JobDispatch
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.JobDispatch{})
	if param.JobID != nil {
		db = db.Where("job_id = ?", *param.JobID)
	}
	if param.Status != nil {
		db = db.Where("status = ?", *param.Status)
	}
	if param.WorkerID != nil {
		db = db.Where("worker_id = ?", *param.WorkerID)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("created_at DESC").Find(&dispatches).Error; err != nil {
		return nil, err
	}
	return dispatches, nil
}

func (r *dispatchRepository) OldestPending(ctx context.Context, opts ...utils.DBOption) (*model.JobDispatch, error) {
	var dispatch model.JobDispatch
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status = ?", model.DispatchStatusPending).
		Order("created_at ASC").
		First(&dispatch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dispatch, nil
}

func (r *dispatchRepository) Claim(ctx context.Context, dispatchID uint, workerID string, claimedAt time.Time, opts ...utils.DBOption) (bool, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("id = ? AND status = ?", dispatchID, model.DispatchStatusPending).
		Updates(map[string]interface{}{
			"status":     model.DispatchStatusInProgress,
			"worker_id":  workerID,
			"claimed_at": claimedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *dispatchRepository) Finish(ctx context.Context, dispatchID uint, workerID string, status model.DispatchStatus, completedAt time.Time, errorMessage sql.NullString, opts ...utils.DBOption) (bool, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("id = ? AND status = ? AND worker_id = ?", dispatchID, model.DispatchStatusInProgress, workerID).
		Updates(map[string]interface{}{
			"status":        status,
			"completed_at":  completedAt,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *dispatchRepository) MarkTimeout(ctx context.Context, dispatchID uint, completedAt time.Time, errorMessage string, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("id = ? AND status = ?", dispatchID, model.DispatchStatusInProgress).
		Updates(map[string]interface{}{
			"status":        model.DispatchStatusTimeout,
			"completed_at":  completedAt,
			"error_message": errorMessage,
		}).Error
}

func (r *dispatchRepository) FindStaleInProgress(ctx context.Context, claimedBefore time.Time, opts ...utils.DBOption) ([]model.JobDispatch, error) {
	var dispatches []model.JobDispatch
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status = ? AND claimed_at < ?", model.DispatchStatusInProgress, claimedBefore).
		Find(&dispatches).Error
	if err != nil {
		return nil, err
	}
	return dispatches, nil
}

func (r *dispatchRepository) FindUnhandledTerminal(ctx context.Context, statuses []model.DispatchStatus, opts ...utils.DBOption) ([]model.JobDispatch, error) {
	var dispatches []model.JobDispatch
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status IN ? AND retried_at IS NULL", statuses).
		Order("completed_at ASC").
		Find(&dispatches).Error
	if err != nil {
		return nil, err
	}
	return dispatches, nil
}

func (r *dispatchRepository) MarkRetried(ctx context.Context, dispatchID uint, retriedAt time.Time, opts ...utils.DBOption) (bool, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("id = ? AND retried_at IS NULL", dispatchID).
		Update("retried_at", retriedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *dispatchRepository) ReleaseByWorker(ctx context.Context, workerID string, opts ...utils.DBOption) (int64, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("worker_id = ? AND status = ?", workerID, model.DispatchStatusInProgress).
		Updates(map[string]interface{}{
			"status":     model.DispatchStatusPending,
			"worker_id":  nil,
			"claimed_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *dispatchRepository) DeleteTerminalOlderThan(ctx context.Context, completedBefore time.Time, opts ...utils.DBOption) (int64, error) {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status IN ? AND completed_at < ?", []model.DispatchStatus{
			model.DispatchStatusCompleted,
			model.DispatchStatusFailed,
			model.DispatchStatusTimeout,
		}, completedBefore).
		Delete(&model.JobDispatch{})
	return result.RowsAffected, result.Error
}

func (r *dispatchRepository) HasOutstanding(ctx context.Context, jobID uint, opts ...utils.DBOption) (bool, error) {
	var count int64
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobDispatch{}).
		Where("job_id = ? AND status IN ?", jobID, []model.DispatchStatus{
			model.DispatchStatusPending,
			model.DispatchStatusInProgress,
		}).
		Count(&count).Error
	return count > 0, err
}
