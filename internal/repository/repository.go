package repository

import (
	"gorm.io/gorm"
)

type Repository struct {
	JobRepo      ScheduledJobRepository
	DispatchRepo DispatchRepository
	WorkerRepo   WorkerRepository
	LogRepo      ExecutionLogRepository
	UnitOfWork   UnitOfWork
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		JobRepo:      NewScheduledJobRepository(db),
		DispatchRepo: NewDispatchRepository(db),
		WorkerRepo:   NewWorkerRepository(db),
		LogRepo:      NewExecutionLogRepository(db),
		UnitOfWork:   NewUnitOfWork(db),
	}
}
