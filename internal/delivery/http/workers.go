package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"job-trigger-portal/internal/dto"
)

func (h *HttpAPIHandler) SetupWorkers(base *echo.Group) {
	v1 := base.Group("/v1/workers")
	{
		v1.GET("", h.listWorkers)
	}
}

// listWorkers is the "active workers" view: registrations whose heartbeat
// is fresher than the offline threshold.
func (h *HttpAPIHandler) listWorkers(c echo.Context) error {
	workers, err := h.service.Management.ListActiveWorkers(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("workers", workers))
}
