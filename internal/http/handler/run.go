package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"feasibility.app/etl/internal/http/dto"
	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/service"
)

type RunHandler struct {
	runService service.RunService
}

func NewRunHandler(runService service.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

// Create triggers a pipeline run. By default the run continues in the
// background and 202 is returned; {"wait": true} returns the finished run.
func (h *RunHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	if req.Wait {
		run, report, err := h.runService.Execute(ctx, model.RunTriggerAPI)
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			slog.ErrorContext(ctx, "failed to run pipeline", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run pipeline"})
			return
		}
		c.JSON(http.StatusOK, dto.ToRunResponse(run).WithReport(report))
		return
	}

	run, err := h.runService.Start(ctx, model.RunTriggerAPI)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to start pipeline run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start pipeline run"})
		return
	}

	c.JSON(http.StatusAccepted, dto.ToRunResponse(run))
}

func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runService.Get(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get pipeline run", "error", err, "run_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	c.JSON(http.StatusOK, dto.ToRunResponse(run))
}

func (h *RunHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.runService.List(ctx, int32(limit))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pipeline runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunResponse, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, *dto.ToRunResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, resp)
}
