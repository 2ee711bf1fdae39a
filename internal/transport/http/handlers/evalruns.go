package handlers

import (
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
	"evalforge/pkg/ulid"
)

func (h *Handlers) buildRunFilter(c *gin.Context) (evalrun.Filter, bool) {
	var filter evalrun.Filter

	if v := c.Query("app_id"); v != "" {
		filter.AppID = &v
	}
	if v := c.Query("eval_type"); v != "" {
		et := evalrun.EvalType(v)
		filter.EvalType = &et
	}
	// Legacy compat: the command filter maps onto eval_type.
	if v := c.Query("command"); v != "" && filter.EvalType == nil {
		et := evalrun.MapLegacyCommand(v)
		filter.EvalType = &et
	}
	if v := c.Query("status"); v != "" {
		st := evalrun.Status(v)
		filter.Status = &st
	}

	for param, target := range map[string]**ulid.ULID{
		"listing_id":   &filter.ListingID,
		"session_id":   &filter.SessionID,
		"evaluator_id": &filter.EvaluatorID,
	} {
		if v := c.Query(param); v != "" {
			id, err := ulid.Parse(v)
			if err != nil {
				response.BadRequest(c, "Invalid "+param, err.Error())
				return filter, false
			}
			*target = &id
		}
	}
	return filter, true
}

// ListEvalRuns lists runs with filters.
func (h *Handlers) ListEvalRuns(c *gin.Context) {
	filter, ok := h.buildRunFilter(c)
	if !ok {
		return
	}
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 50, 200)

	runs, err := h.runs.List(c.Request.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("Failed to list eval runs", "error", err)
		response.InternalServerError(c, "Failed to list eval runs")
		return
	}

	out := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ToResponse())
	}
	response.Success(c, out)
}

// DeleteEvalRuns bulk-deletes runs matching the filters. Running runs are
// skipped and reported.
func (h *Handlers) DeleteEvalRuns(c *gin.Context) {
	filter, ok := h.buildRunFilter(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	runs, err := h.runs.List(ctx, filter, 200, 0)
	if err != nil {
		response.InternalServerError(c, "Failed to list eval runs")
		return
	}

	deleted := 0
	skipped := 0
	for _, r := range runs {
		if err := h.runs.Delete(ctx, r.ID); err != nil {
			skipped++
			continue
		}
		deleted++
	}
	response.Success(c, gin.H{"deleted": deleted, "skipped_running": skipped})
}

// PreviewCSV parses an uploaded CSV and returns statistics without
// persisting anything.
func (h *Handlers) PreviewCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "File is required", err.Error())
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		response.BadRequest(c, "File must be a CSV", "")
		return
	}

	opened, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "Failed to read upload", err.Error())
		return
	}
	defer opened.Close()

	content, err := io.ReadAll(opened)
	if err != nil {
		response.BadRequest(c, "Failed to read upload", err.Error())
		return
	}

	preview, err := h.previews.Preview(string(content))
	if err != nil {
		response.UnprocessableEntity(c, "Failed to parse CSV", err.Error())
		return
	}

	response.Success(c, gin.H{
		"totalMessages":      preview.TotalMessages,
		"totalThreads":       preview.TotalThreads,
		"totalUsers":         preview.TotalUsers,
		"dateRange":          preview.DateRange,
		"threadIds":          preview.ThreadIDs,
		"intentDistribution": preview.IntentDistribution,
		"messagesWithErrors": preview.MessagesWithErrors,
		"messagesWithImages": preview.MessagesWithImages,
	})
}

// EvalRunStats aggregates counts and distributions across all runs.
func (h *Handlers) EvalRunStats(c *gin.Context) {
	stats, err := h.runs.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute stats", "error", err)
		response.InternalServerError(c, "Failed to compute stats")
		return
	}
	response.Success(c, stats)
}

// EvalRunTrends returns per-day verdict counts for trend charts.
func (h *Handlers) EvalRunTrends(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 365 {
			response.BadRequest(c, "days must be between 1 and 365", "")
			return
		}
		days = v
	}

	points, err := h.runs.Trends(c.Request.Context(), days)
	if err != nil {
		h.logger.Error("Failed to compute trends", "error", err)
		response.InternalServerError(c, "Failed to compute trends")
		return
	}
	response.Success(c, gin.H{"data": points, "days": days})
}

// ListAPILogs lists API logs globally or for one run.
func (h *Handlers) ListAPILogs(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 200, 1000)

	var runID *ulid.ULID
	if raw := c.Query("run_id"); raw != "" {
		id, err := ulid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "Invalid run_id", err.Error())
			return
		}
		runID = &id
	}

	logs, total, err := h.runs.ListAPILogs(c.Request.Context(), runID, page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list logs")
		return
	}

	out := make([]map[string]interface{}, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ToResponse())
	}
	var runIDStr interface{}
	if runID != nil {
		runIDStr = runID.String()
	}
	response.Success(c, gin.H{
		"logs": out, "total": total,
		"limit": page.Limit, "offset": page.Offset, "runId": runIDStr,
	})
}

// DeleteAPILogs deletes API logs, optionally scoped to one run.
func (h *Handlers) DeleteAPILogs(c *gin.Context) {
	var runID *ulid.ULID
	if raw := c.Query("run_id"); raw != "" {
		id, err := ulid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "Invalid run_id", err.Error())
			return
		}
		runID = &id
	}

	deleted, err := h.runs.DeleteAPILogs(c.Request.Context(), runID)
	if err != nil {
		response.InternalServerError(c, "Failed to delete logs")
		return
	}
	var runIDStr interface{}
	if runID != nil {
		runIDStr = runID.String()
	}
	response.Success(c, gin.H{"deleted": deleted, "runId": runIDStr})
}

// GetEvalRun returns one run.
func (h *Handlers) GetEvalRun(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	run, err := h.runs.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Run")
		return
	}
	response.Success(c, run.ToResponse())
}

// DeleteEvalRun deletes a run and its cascaded children. Running runs are a
// state conflict.
func (h *Handlers) DeleteEvalRun(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	err := h.runs.Delete(c.Request.Context(), id)
	switch err {
	case nil:
		response.Success(c, gin.H{"deleted": true, "runId": id.String()})
	case evalrun.ErrNotFound:
		response.NotFound(c, "Run")
	case evalrun.ErrRunRunning:
		response.BadRequest(c, "Cannot delete a running evaluation. Cancel it first.", "")
	default:
		h.logger.Error("Failed to delete run", "run_id", id.String(), "error", err)
		response.InternalServerError(c, "Failed to delete run")
	}
}

// GetRunThreads returns per-thread rows for a batch run.
func (h *Handlers) GetRunThreads(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	evals, err := h.runs.ListThreadEvaluations(c.Request.Context(), id)
	if err != nil {
		response.InternalServerError(c, "Failed to list thread evaluations")
		return
	}
	out := make([]map[string]interface{}, 0, len(evals))
	for _, e := range evals {
		out = append(out, e.ToResponse())
	}
	response.Success(c, gin.H{"runId": id.String(), "evaluations": out, "total": len(out)})
}

// GetRunAdversarial returns per-case rows for an adversarial run.
func (h *Handlers) GetRunAdversarial(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	evals, err := h.runs.ListAdversarialEvaluations(c.Request.Context(), id)
	if err != nil {
		response.InternalServerError(c, "Failed to list adversarial evaluations")
		return
	}
	out := make([]map[string]interface{}, 0, len(evals))
	for _, e := range evals {
		out = append(out, e.ToResponse())
	}
	response.Success(c, gin.H{"runId": id.String(), "evaluations": out, "total": len(out)})
}

// GetRunLogs returns API logs for one run.
func (h *Handlers) GetRunLogs(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 200, 1000)

	logs, _, err := h.runs.ListAPILogs(c.Request.Context(), &id, page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list logs")
		return
	}
	out := make([]map[string]interface{}, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ToResponse())
	}
	response.Success(c, gin.H{"runId": id.String(), "logs": out})
}

// GetThreadHistory returns all evaluation results for a thread across runs.
func (h *Handlers) GetThreadHistory(c *gin.Context) {
	threadID := c.Param("threadId")
	evals, err := h.runs.ListThreadHistory(c.Request.Context(), threadID)
	if err != nil {
		response.InternalServerError(c, "Failed to list thread history")
		return
	}
	out := make([]map[string]interface{}, 0, len(evals))
	for _, e := range evals {
		out = append(out, e.ToResponse())
	}
	response.Success(c, gin.H{"threadId": threadID, "history": out, "total": len(out)})
}
