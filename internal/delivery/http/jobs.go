package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"job-trigger-portal/internal/dto"
	"job-trigger-portal/internal/service"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.GET("", h.listJobs)
		v1.POST("", h.createJob)
		v1.GET("/:id", h.getJob)
		v1.PUT("/:id", h.updateJob)
		v1.DELETE("/:id", h.deleteJob)
		v1.POST("/:id/run", h.runJobNow)
		v1.POST("/:id/toggle", h.toggleJob)
		v1.GET("/:id/logs", h.jobLogs)
	}
}

func jobID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (h *HttpAPIHandler) respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, dto.NewNotFoundResponse("job not found"))
	case errors.Is(err, service.ErrInvalidJob):
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
}

func (h *HttpAPIHandler) listJobs(c echo.Context) error {
	jobs, err := h.service.Management.ListJobs(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("jobs", jobs))
}

func (h *HttpAPIHandler) createJob(c echo.Context) error {
	req := new(dto.CreateJobRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	job, err := h.service.Management.CreateJob(c.Request().Context(), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "job created", job))
}

func (h *HttpAPIHandler) getJob(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	job, err := h.service.Management.GetJob(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("job", job))
}

func (h *HttpAPIHandler) updateJob(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	req := new(dto.UpdateJobRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	job, err := h.service.Management.UpdateJob(c.Request().Context(), id, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("job updated", job))
}

func (h *HttpAPIHandler) deleteJob(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	if err := h.service.Management.DeleteJob(c.Request().Context(), id); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("job deleted", nil))
}

func (h *HttpAPIHandler) runJobNow(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	if err := h.service.Management.RunNow(c.Request().Context(), id); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("run requested", nil))
}

func (h *HttpAPIHandler) toggleJob(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	job, err := h.service.Management.ToggleActive(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("job toggled", job))
}

func (h *HttpAPIHandler) jobLogs(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid job id"))
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := h.service.Management.JobLogs(c.Request().Context(), id, limit)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("logs", logs))
}
