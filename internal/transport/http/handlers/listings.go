package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"evalforge/internal/core/domain/listing"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
)

type createListingRequest struct {
	AppID      string                 `json:"appId" binding:"required"`
	Title      string                 `json:"title"`
	SourceType string                 `json:"sourceType"`
	Transcript map[string]interface{} `json:"transcript"`
}

// CreateListing creates a draft listing.
func (h *Handlers) CreateListing(c *gin.Context) {
	var body createListingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	l := listing.New(body.AppID, body.Title)
	if body.SourceType != "" {
		l.SourceType = body.SourceType
	}
	if body.Transcript != nil {
		l.Transcript = datatypes.JSONMap(body.Transcript)
	}
	if err := h.listings.Create(c.Request.Context(), l); err != nil {
		h.logger.Error("Failed to create listing", "error", err)
		response.InternalServerError(c, "Failed to create listing")
		return
	}
	response.Created(c, l)
}

// ListListings lists listings for an app.
func (h *Handlers) ListListings(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 50, 200)
	listings, total, err := h.listings.List(c.Request.Context(), c.Query("app_id"), page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list listings")
		return
	}
	response.SuccessWithPagination(c, listings, &response.Pagination{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   total,
		HasNext: pagination.HasNext(total, page.Limit, page.Offset),
	})
}

// GetListing returns one listing.
func (h *Handlers) GetListing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	l, err := h.listings.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Listing")
		return
	}
	response.Success(c, l)
}

// UpdateListing patches mutable listing fields.
func (h *Handlers) UpdateListing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	allowed := map[string]string{
		"title":       "title",
		"status":      "status",
		"sourceType":  "source_type",
		"transcript":  "transcript",
		"apiResponse": "api_response",
		"audioFile":   "audio_file",
		"aiEval":      "ai_eval",
		"tags":        "tags",
	}
	fields := map[string]interface{}{}
	for key, column := range allowed {
		if v, exists := body[key]; exists {
			fields[column] = v
		}
	}
	if len(fields) == 0 {
		response.BadRequest(c, "No updatable fields provided", "")
		return
	}

	if err := h.listings.UpdateFields(c.Request.Context(), id, fields); err != nil {
		if err == listing.ErrNotFound {
			response.NotFound(c, "Listing")
			return
		}
		response.InternalServerError(c, "Failed to update listing")
		return
	}

	updated, err := h.listings.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Listing")
		return
	}
	response.Success(c, updated)
}

// DeleteListing deletes a listing; its eval runs cascade at the database
// level.
func (h *Handlers) DeleteListing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listings.Delete(c.Request.Context(), id); err != nil {
		if err == listing.ErrNotFound {
			response.NotFound(c, "Listing")
			return
		}
		response.InternalServerError(c, "Failed to delete listing")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id.String()})
}
