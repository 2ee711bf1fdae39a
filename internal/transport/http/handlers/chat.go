package handlers

import (
	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/chat"
	"evalforge/pkg/pagination"
	"evalforge/pkg/response"
)

type createSessionRequest struct {
	AppID          string `json:"appId" binding:"required"`
	Title          string `json:"title"`
	ExternalUserID string `json:"externalUserId"`
}

// CreateChatSession creates an active session.
func (h *Handlers) CreateChatSession(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	s := chat.NewSession(body.AppID)
	if body.Title != "" {
		s.Title = body.Title
	}
	if body.ExternalUserID != "" {
		s.ExternalUserID = &body.ExternalUserID
	}
	if err := h.chats.CreateSession(c.Request.Context(), s); err != nil {
		response.InternalServerError(c, "Failed to create session")
		return
	}
	response.Created(c, s)
}

// ListChatSessions lists sessions for an app.
func (h *Handlers) ListChatSessions(c *gin.Context) {
	page := pagination.Parse(c.Query("limit"), c.Query("offset"), 50, 200)
	sessions, total, err := h.chats.ListSessions(c.Request.Context(), c.Query("app_id"), page.Limit, page.Offset)
	if err != nil {
		response.InternalServerError(c, "Failed to list sessions")
		return
	}
	response.SuccessWithPagination(c, sessions, &response.Pagination{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   total,
		HasNext: pagination.HasNext(total, page.Limit, page.Offset),
	})
}

// GetChatSession returns one session.
func (h *Handlers) GetChatSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	s, err := h.chats.GetSession(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Chat session")
		return
	}
	response.Success(c, s)
}

// DeleteChatSession removes a session and its messages.
func (h *Handlers) DeleteChatSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.chats.DeleteSession(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Chat session")
		return
	}
	response.Success(c, gin.H{"deleted": true, "id": id.String()})
}

// ListChatMessages returns a session's messages in order.
func (h *Handlers) ListChatMessages(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	messages, err := h.chats.ListMessages(c.Request.Context(), id)
	if err != nil {
		response.InternalServerError(c, "Failed to list messages")
		return
	}
	response.Success(c, messages)
}

type createMessageRequest struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content" binding:"required"`
}

// CreateChatMessage appends a message to a session.
func (h *Handlers) CreateChatMessage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.chats.GetSession(c.Request.Context(), id); err != nil {
		response.NotFound(c, "Chat session")
		return
	}

	var body createMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	m := chat.NewMessage(id, body.Role, body.Content)
	if err := h.chats.CreateMessage(c.Request.Context(), m); err != nil {
		response.InternalServerError(c, "Failed to create message")
		return
	}
	response.Created(c, m)
}
