package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ratebench-backend/internal/http/response"
	"github.com/yungbote/ratebench-backend/internal/services"
)

type RunHandler struct {
	runs services.GenerationRunService
}

func NewRunHandler(runs services.GenerationRunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// POST /api/configurations/:id/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	run, err := h.runs.CreateRun(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "create_run_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"run": run})
}

// GET /api/configurations/:id/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "list_runs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id, ok := pathID(c, "invalid_run_id")
	if !ok {
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "get_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// POST /api/runs/:id/cancel
func (h *RunHandler) CancelRun(c *gin.Context) {
	id, ok := pathID(c, "invalid_run_id")
	if !ok {
		return
	}
	run, err := h.runs.Cancel(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "cancel_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// POST /api/runs/:id/retry
func (h *RunHandler) RetryRun(c *gin.Context) {
	id, ok := pathID(c, "invalid_run_id")
	if !ok {
		return
	}
	run, err := h.runs.Retry(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "retry_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// POST /api/worker/batch
func (h *RunHandler) TriggerBatch(c *gin.Context) {
	res, err := h.runs.TriggerBatch(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "worker_batch_failed", err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/configurations/:id/brackets/rebuild
func (h *RunHandler) RebuildBrackets(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	finalized, err := h.runs.RebuildBrackets(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "rebuild_brackets_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"finalized": finalized})
}
