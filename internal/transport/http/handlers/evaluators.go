package handlers

import (
	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/evaluator"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
	"evalforge/pkg/ulid"
)

type evaluatorRequest struct {
	AppID        string                  `json:"appId" binding:"required"`
	Name         string                  `json:"name" binding:"required"`
	Prompt       string                  `json:"prompt" binding:"required"`
	ModelID      string                  `json:"modelId"`
	OutputSchema []evaluator.OutputField `json:"outputSchema"`
	IsGlobal     bool                    `json:"isGlobal"`
	ShowInHeader bool                    `json:"showInHeader"`
	ForkedFrom   string                  `json:"forkedFrom"`
}

// CreateEvaluator creates a user-defined evaluator.
func (h *Handlers) CreateEvaluator(c *gin.Context) {
	var body evaluatorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	e := evaluator.New(body.AppID, body.Name, body.Prompt)
	e.IsGlobal = body.IsGlobal
	e.ShowInHeader = body.ShowInHeader
	if body.ModelID != "" {
		e.ModelID = &body.ModelID
	}
	if body.ForkedFrom != "" {
		forked, err := ulid.Parse(body.ForkedFrom)
		if err != nil {
			response.BadRequest(c, "Invalid forkedFrom", err.Error())
			return
		}
		e.ForkedFrom = &forked
	}
	if body.OutputSchema != nil {
		encoded, err := evaluator.EncodeFields(body.OutputSchema)
		if err != nil {
			response.BadRequest(c, "Invalid output schema", err.Error())
			return
		}
		e.OutputSchema = encoded
	}

	if err := h.evaluators.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("Failed to create evaluator", "error", err)
		response.InternalServerError(c, "Failed to create evaluator")
		return
	}
	response.Created(c, e)
}

// ListEvaluators lists evaluators for an app.
func (h *Handlers) ListEvaluators(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 50, 200)
	evaluators, total, err := h.evaluators.List(c.Request.Context(), c.Query("app_id"), page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list evaluators")
		return
	}
	response.SuccessWithPagination(c, evaluators, &response.Pagination{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   total,
		HasNext: pagination.HasNext(total, page.Limit, page.Offset),
	})
}

// GetEvaluator returns one evaluator.
func (h *Handlers) GetEvaluator(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	e, err := h.evaluators.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Evaluator")
		return
	}
	response.Success(c, e)
}

// UpdateEvaluator replaces an evaluator definition.
func (h *Handlers) UpdateEvaluator(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	e, err := h.evaluators.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Evaluator")
		return
	}

	var body evaluatorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	e.Name = body.Name
	e.Prompt = body.Prompt
	e.IsGlobal = body.IsGlobal
	e.ShowInHeader = body.ShowInHeader
	if body.ModelID != "" {
		e.ModelID = &body.ModelID
	} else {
		e.ModelID = nil
	}
	if body.OutputSchema != nil {
		encoded, err := evaluator.EncodeFields(body.OutputSchema)
		if err != nil {
			response.BadRequest(c, "Invalid output schema", err.Error())
			return
		}
		e.OutputSchema = encoded
	}

	if err := h.evaluators.Update(c.Request.Context(), e); err != nil {
		response.InternalServerError(c, "Failed to update evaluator")
		return
	}
	response.Success(c, e)
}

// DeleteEvaluator removes an evaluator definition.
func (h *Handlers) DeleteEvaluator(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.evaluators.Delete(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Evaluator")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id.String()})
}
