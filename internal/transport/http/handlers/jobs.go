package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/job"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
)

// CreateJob submits a new background job.
func (h *Handlers) CreateJob(c *gin.Context) {
	var body job.CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	jobType := job.Type(body.JobType)
	if !jobType.IsValid() {
		response.UnprocessableEntity(c, "Unknown job type", body.JobType)
		return
	}

	newJob := job.New(jobType, body.Params)
	if err := h.jobs.Create(c.Request.Context(), newJob); err != nil {
		h.logger.Error("Failed to create job", "error", err)
		response.InternalServerError(c, "Failed to create job")
		return
	}
	response.Created(c, newJob.ToResponse())
}

// ListJobs lists jobs, optionally filtered by status.
func (h *Handlers) ListJobs(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 20, 100)

	var status *job.Status
	if raw := c.Query("status"); raw != "" {
		s := job.Status(raw)
		status = &s
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), status, page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("Failed to list jobs", "error", err)
		response.InternalServerError(c, "Failed to list jobs")
		return
	}

	out := make([]*job.Response, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ToResponse())
	}
	response.SuccessWithPagination(c, out, &response.Pagination{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   total,
		HasNext: pagination.HasNext(total, page.Limit, page.Offset),
	})
}

// GetJob returns job status and progress.
func (h *Handlers) GetJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	j, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Job")
		return
	}
	response.Success(c, j.ToResponse())
}

// CancelJob cancels a queued or running job. Cancelling a terminal job is a
// 400, except cancelled itself, which idempotently re-applies the run
// cascade.
func (h *Handlers) CancelJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	j, err := h.jobs.GetByID(ctx, id)
	if err != nil {
		response.NotFound(c, "Job")
		return
	}

	switch j.Status {
	case job.StatusCompleted, job.StatusFailed:
		response.BadRequest(c, "Cannot cancel job in '"+string(j.Status)+"' state", "")
		return

	case job.StatusCancelled:
		// Idempotent: still fix any orphaned running eval run.
		if err := h.runs.CancelRunningByJob(ctx, id, time.Now()); err != nil {
			h.logger.Error("Failed to cascade cancel to run", "job_id", id.String(), "error", err)
		}
		h.worker.MarkLocallyCancelled(id)
		response.Success(c, gin.H{"id": id.String(), "status": string(job.StatusCancelled)})
		return
	}

	now := time.Now()
	if err := h.jobs.MarkCancelled(ctx, id); err != nil {
		h.logger.Error("Failed to cancel job", "job_id", id.String(), "error", err)
		response.InternalServerError(c, "Failed to cancel job")
		return
	}
	if err := h.runs.CancelRunningByJob(ctx, id, now); err != nil {
		h.logger.Error("Failed to cascade cancel to run", "job_id", id.String(), "error", err)
	}
	h.worker.MarkLocallyCancelled(id)

	response.Success(c, gin.H{"id": id.String(), "status": string(job.StatusCancelled)})
}
