package repository

import (
	"context"

	"gorm.io/gorm"

	"job-trigger-portal/internal/model"
	"job-trigger-portal/pkg/utils"
)

type ExecutionLogRepository interface {
	Create(ctx context.Context, log *model.JobExecutionLog, opts ...utils.DBOption) error
	Get(ctx context.Context, param *model.GetExecutionLogParam, opts ...utils.DBOption) ([]model.JobExecutionLog, error)
}

type executionLogRepository struct {
	db *gorm.DB
}

func NewExecutionLogRepository(db *gorm.DB) ExecutionLogRepository {
	return &executionLogRepository{db: db}
}

func (r *executionLogRepository) Create(ctx context.Context, log *model.JobExecutionLog, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(log).Error
}

func (r *executionLogRepository) Get(ctx context.Context, param *model.GetExecutionLogParam, opts ...utils.DBOption) ([]model.JobExecutionLog, error) {
	var logs []model.JobExecutionLog
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.JobExecutionLog{})
	if param.JobID != nil {
		db = db.Where("job_id = ?", *param.JobID)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("run_time DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
