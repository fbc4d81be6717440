package service

import (
	"job-trigger-portal/config"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/pkg/cache"
	"job-trigger-portal/pkg/logger"
)

type Service struct {
	Management ManagementService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
) *Service {
	return &Service{
		Management: NewManagementService(cfg, log, repo, inmemoryCache),
	}
}
