package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"evalforge/internal/core/domain/promptlib"
	"evalforge/pkg/response"
)

func parseIntParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid id", err.Error())
		return 0, false
	}
	return id, true
}

type promptRequest struct {
	AppID       string `json:"appId" binding:"required"`
	PromptType  string `json:"promptType" binding:"required"`
	Version     int    `json:"version"`
	Name        string `json:"name" binding:"required"`
	Prompt      string `json:"prompt" binding:"required"`
	Description string `json:"description"`
	IsDefault   bool   `json:"isDefault"`
	SourceType  string `json:"sourceType"`
}

// CreatePrompt creates a versioned prompt; duplicate versions conflict.
func (h *Handlers) CreatePrompt(c *gin.Context) {
	var body promptRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	if body.Version == 0 {
		body.Version = 1
	}

	p := &promptlib.Prompt{
		AppID:       body.AppID,
		PromptType:  body.PromptType,
		Version:     body.Version,
		Name:        body.Name,
		Prompt:      body.Prompt,
		Description: body.Description,
		IsDefault:   body.IsDefault,
		UserID:      "default",
	}
	if body.SourceType != "" {
		p.SourceType = &body.SourceType
	}

	if err := h.prompts.CreatePrompt(c.Request.Context(), p); err != nil {
		if err == promptlib.ErrVersionExists {
			response.Conflict(c, "Prompt version already exists")
			return
		}
		response.InternalServerError(c, "Failed to create prompt")
		return
	}
	response.Created(c, p)
}

// ListPrompts lists prompts filtered by app and type.
func (h *Handlers) ListPrompts(c *gin.Context) {
	prompts, err := h.prompts.ListPrompts(c.Request.Context(), c.Query("app_id"), c.Query("prompt_type"))
	if err != nil {
		response.InternalServerError(c, "Failed to list prompts")
		return
	}
	response.Success(c, prompts)
}

// GetPrompt returns one prompt.
func (h *Handlers) GetPrompt(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	p, err := h.prompts.GetPrompt(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Prompt")
		return
	}
	response.Success(c, p)
}

// UpdatePrompt replaces prompt content and metadata.
func (h *Handlers) UpdatePrompt(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	p, err := h.prompts.GetPrompt(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Prompt")
		return
	}

	var body promptRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	p.Name = body.Name
	p.Prompt = body.Prompt
	p.Description = body.Description
	p.IsDefault = body.IsDefault

	if err := h.prompts.UpdatePrompt(c.Request.Context(), p); err != nil {
		response.InternalServerError(c, "Failed to update prompt")
		return
	}
	response.Success(c, p)
}

// DeletePrompt removes one prompt.
func (h *Handlers) DeletePrompt(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	if err := h.prompts.DeletePrompt(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Prompt")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id})
}

type schemaRequest struct {
	AppID       string                 `json:"appId" binding:"required"`
	PromptType  string                 `json:"promptType" binding:"required"`
	Version     int                    `json:"version"`
	Name        string                 `json:"name" binding:"required"`
	SchemaData  map[string]interface{} `json:"schemaData" binding:"required"`
	Description string                 `json:"description"`
	IsDefault   bool                   `json:"isDefault"`
}

// CreateSchema creates a versioned schema; duplicate versions conflict.
func (h *Handlers) CreateSchema(c *gin.Context) {
	var body schemaRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	if body.Version == 0 {
		body.Version = 1
	}

	s := &promptlib.Schema{
		AppID:       body.AppID,
		PromptType:  body.PromptType,
		Version:     body.Version,
		Name:        body.Name,
		SchemaData:  datatypes.JSONMap(body.SchemaData),
		Description: body.Description,
		IsDefault:   body.IsDefault,
		UserID:      "default",
	}
	if err := h.prompts.CreateSchema(c.Request.Context(), s); err != nil {
		if err == promptlib.ErrVersionExists {
			response.Conflict(c, "Schema version already exists")
			return
		}
		response.InternalServerError(c, "Failed to create schema")
		return
	}
	response.Created(c, s)
}

// ListSchemas lists schemas filtered by app and type.
func (h *Handlers) ListSchemas(c *gin.Context) {
	schemas, err := h.prompts.ListSchemas(c.Request.Context(), c.Query("app_id"), c.Query("prompt_type"))
	if err != nil {
		response.InternalServerError(c, "Failed to list schemas")
		return
	}
	response.Success(c, schemas)
}

// GetSchema returns one schema.
func (h *Handlers) GetSchema(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	s, err := h.prompts.GetSchema(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Schema")
		return
	}
	response.Success(c, s)
}

// UpdateSchema replaces schema content and metadata.
func (h *Handlers) UpdateSchema(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	s, err := h.prompts.GetSchema(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Schema")
		return
	}

	var body schemaRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	s.Name = body.Name
	s.SchemaData = datatypes.JSONMap(body.SchemaData)
	s.Description = body.Description
	s.IsDefault = body.IsDefault

	if err := h.prompts.UpdateSchema(c.Request.Context(), s); err != nil {
		response.InternalServerError(c, "Failed to update schema")
		return
	}
	response.Success(c, s)
}

// DeleteSchema removes one schema.
func (h *Handlers) DeleteSchema(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	if err := h.prompts.DeleteSchema(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Schema")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id})
}
