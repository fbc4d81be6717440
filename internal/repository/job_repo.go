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

type ScheduledJobRepository interface {
	Create(ctx context.Context, job *model.ScheduledJob, opts ...utils.DBOption) error
	Update(ctx context.Context, job *model.ScheduledJob, opts ...utils.DBOption) error
	Delete(ctx context.Context, id uint, opts ...utils.DBOption) error
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.ScheduledJob, error)
	Get(ctx context.Context, param *model.GetJobParam, opts ...utils.DBOption) ([]model.ScheduledJob, error)
	// FindDueIDs returns the ids of active jobs whose next_run has arrived
	// and whose dispatch lock has expired.
	FindDueIDs(ctx context.Context, now time.Time, opts ...utils.DBOption) ([]uint, error)
	// LockDue re-reads one job by id with the due predicates, row-locked
	// with skip-locked semantics. Returns nil when the row is gone, locked
	// elsewhere or no longer due.
	LockDue(ctx context.Context, id uint, now time.Time, opts ...utils.DBOption) (*model.ScheduledJob, error)
	// MarkDispatched stores the post-dispatch bookkeeping: next_run,
	// last_dispatched_at and the dispatch lock window.
	MarkDispatched(ctx context.Context, id uint, nextRun sql.NullTime, dispatchedAt, lockUntil time.Time, opts ...utils.DBOption) error
	// SetNextRun overwrites next_run; the management layer uses it for
	// Run Now (now). The scheduler stores next_run through MarkDispatched.
	SetNextRun(ctx context.Context, id uint, nextRun sql.NullTime, opts ...utils.DBOption) error
	SetActive(ctx context.Context, id uint, active bool, opts ...utils.DBOption) error
}

type scheduledJobRepository struct {
	db *gorm.DB
}

func NewScheduledJobRepository(db *gorm.DB) ScheduledJobRepository {
	return &scheduledJobRepository{db: db}
}

func (r *scheduledJobRepository) Create(ctx context.Context, job *model.ScheduledJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(job).Error
}

func (r *scheduledJobRepository) Update(ctx context.Context, job *model.ScheduledJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Save(job).Error
}

func (r *scheduledJobRepository) Delete(ctx context.Context, id uint, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Delete(&model.ScheduledJob{}, id).Error
}

func (r *scheduledJobRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.ScheduledJob, error) {
	var job model.ScheduledJob
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *scheduledJobRepository) Get(ctx context.Context, param *model.GetJobParam, opts ...utils.DBOption) ([]model.ScheduledJob, error) {
	var jobs []model.ScheduledJob
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.ScheduledJob{})
	if param.IsActive != nil {
		db = db.Where("is_active = ?", *param.IsActive)
	}
	if len(param.IDs) > 0 {
		db = db.Where("id IN ?", param.IDs)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *scheduledJobRepository) FindDueIDs(ctx context.Context, now time.Time, opts ...utils.DBOption) ([]uint, error) {
	var ids []uint
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledJob{}).
		Where("is_active = ? AND next_run IS NOT NULL AND next_run <= ?", true, now).
		Where("dispatch_lock_until IS NULL OR dispatch_lock_until < ?", now).
		Order("next_run ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *scheduledJobRepository) LockDue(ctx context.Context, id uint, now time.Time, opts ...utils.DBOption) (*model.ScheduledJob, error) {
	var job model.ScheduledJob
	err := utils.ApplyOptions(r.db.WithContext(ctx), append(opts, utils.WithLockForUpdate())...).
		Where("id = ? AND is_active = ? AND next_run IS NOT NULL AND next_run <= ?", id, true, now).
		Where("dispatch_lock_until IS NULL OR dispatch_lock_until < ?", now).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *scheduledJobRepository) MarkDispatched(ctx context.Context, id uint, nextRun sql.NullTime, dispatchedAt, lockUntil time.Time, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_run":            nextRun,
			"last_dispatched_at":  dispatchedAt,
			"dispatch_lock_until": lockUntil,
		}).Error
}

func (r *scheduledJobRepository) SetNextRun(ctx context.Context, id uint, nextRun sql.NullTime, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledJob{}).
		Where("id = ?", id).
		Update("next_run", nextRun).Error
}

func (r *scheduledJobRepository) SetActive(ctx context.Context, id uint, active bool, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledJob{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}
