package handlers

import (
	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/history"
	"evalforge/internal/core/domain/settings"
	"evalforge/internal/core/domain/tag"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
)

// ListHistory lists audit entries with filters.
func (h *Handlers) ListHistory(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 50, 200)

	var filter history.Filter
	setIfPresent := func(param string, target **string) {
		if v := c.Query(param); v != "" {
			*target = &v
		}
	}
	setIfPresent("app_id", &filter.AppID)
	setIfPresent("entity_type", &filter.EntityType)
	setIfPresent("entity_id", &filter.EntityID)
	setIfPresent("source_type", &filter.SourceType)
	setIfPresent("source_id", &filter.SourceID)

	entries, total, err := h.histories.List(c.Request.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list history")
		return
	}
	response.SuccessWithPagination(c, entries, &response.Pagination{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   total,
		HasNext: pagination.HasNext(total, page.Limit, page.Offset),
	})
}

// GetHistory returns one audit entry.
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.histories.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "History entry")
		return
	}
	response.Success(c, entry)
}

// ListSettings lists setting documents for an app.
func (h *Handlers) ListSettings(c *gin.Context) {
	rows, err := h.settings.List(c.Request.Context(), c.Query("app_id"))
	if err != nil {
		response.InternalServerError(c, "Failed to list settings")
		return
	}
	response.Success(c, rows)
}

// GetSetting returns one setting document.
func (h *Handlers) GetSetting(c *gin.Context) {
	row, err := h.settings.Get(c.Request.Context(), c.Query("app_id"), c.Param("key"))
	if err != nil {
		if err == settings.ErrNotFound {
			response.NotFound(c, "Setting")
			return
		}
		response.InternalServerError(c, "Failed to load setting")
		return
	}
	response.Success(c, row)
}

// UpsertSetting inserts or replaces one setting document.
func (h *Handlers) UpsertSetting(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.settings.Upsert(c.Request.Context(), c.Query("app_id"), c.Param("key"), body); err != nil {
		response.InternalServerError(c, "Failed to save setting")
		return
	}
	response.Success(c, gin.H{"key": c.Param("key"), "saved": true})
}

// DeleteSetting removes one setting document.
func (h *Handlers) DeleteSetting(c *gin.Context) {
	err := h.settings.Delete(c.Request.Context(), c.Query("app_id"), c.Param("key"))
	if err != nil {
		if err == settings.ErrNotFound {
			response.NotFound(c, "Setting")
			return
		}
		response.InternalServerError(c, "Failed to delete setting")
		return
	}
	response.Success(c, gin.H{"key": c.Param("key"), "deleted": true})
}

// ListTags lists the tag registry for an app.
func (h *Handlers) ListTags(c *gin.Context) {
	tags, err := h.tags.List(c.Request.Context(), c.Query("app_id"))
	if err != nil {
		response.InternalServerError(c, "Failed to list tags")
		return
	}
	response.Success(c, tags)
}

type touchTagRequest struct {
	AppID string `json:"appId" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// TouchTag increments (or creates) a tag's usage counter.
func (h *Handlers) TouchTag(c *gin.Context) {
	var body touchTagRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	t, err := h.tags.Touch(c.Request.Context(), body.AppID, body.Name)
	if err != nil {
		response.InternalServerError(c, "Failed to touch tag")
		return
	}
	response.Success(c, t)
}

// DeleteTag removes one tag from the registry.
func (h *Handlers) DeleteTag(c *gin.Context) {
	err := h.tags.Delete(c.Request.Context(), c.Query("app_id"), c.Param("name"))
	if err != nil {
		if err == tag.ErrNotFound {
			response.NotFound(c, "Tag")
			return
		}
		response.InternalServerError(c, "Failed to delete tag")
		return
	}
	response.Success(c, gin.H{"deleted": true, "name": c.Param("name")})
}
