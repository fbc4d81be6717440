package http

import (
	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"job-trigger-portal/internal/service"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
}

func NewHttpAPIHandler(echo *echo.Echo, validator *goValidator.Validate, service *service.Service) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	base := h.echo.Group("/api")
	h.SetupJobs(base)
	h.SetupDispatches(base)
	h.SetupWorkers(base)
}
