package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"job-trigger-portal/internal/dto"
	"job-trigger-portal/internal/model"
)

func (h *HttpAPIHandler) SetupDispatches(base *echo.Group) {
	v1 := base.Group("/v1/dispatches")
	{
		v1.GET("", h.listDispatches)
	}
}

func (h *HttpAPIHandler) listDispatches(c echo.Context) error {
	param := &model.GetDispatchParam{}

	if v := c.QueryParam("job_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job_id"))
		}
		jobID := uint(id)
		param.JobID = &jobID
	}
	if v := c.QueryParam("status"); v != "" {
		status := model.DispatchStatus(v)
		param.Status = &status
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid limit"))
		}
		limit = parsed
	}
	param.Limit = &limit

	dispatches, err := h.service.Management.ListDispatches(c.Request().Context(), param)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("dispatches", dispatches))
}
