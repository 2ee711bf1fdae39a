// Package handlers implements the HTTP endpoint handlers.
package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"evalforge/internal/core/domain/chat"
	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/file"
	"evalforge/internal/core/domain/history"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/core/domain/listing"
	"evalforge/internal/core/domain/promptlib"
	"evalforge/internal/core/domain/settings"
	"evalforge/internal/core/domain/tag"
	"evalforge/internal/infrastructure/storage"
	"evalforge/internal/services/evaluation"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/response"
	"evalforge/pkg/ulid"
)

// HealthChecker reports database connectivity.
type HealthChecker interface {
	Health() error
}

// Handlers carries every endpoint's dependencies.
type Handlers struct {
	logger     *slog.Logger
	jobs       job.Repository
	runs       evalrun.Repository
	listings   listing.Repository
	chats      chat.Repository
	evaluators evaluator.Repository
	prompts    promptlib.Repository
	histories  history.Repository
	settings   settings.Repository
	tags       tag.Repository
	files      file.Repository
	store      storage.Store
	worker     *jobworker.Worker
	previews   *evaluation.PreviewCache
	db         HealthChecker
}

// New builds the handler set.
func New(
	logger *slog.Logger,
	jobs job.Repository,
	runs evalrun.Repository,
	listings listing.Repository,
	chats chat.Repository,
	evaluators evaluator.Repository,
	prompts promptlib.Repository,
	histories history.Repository,
	settingsRepo settings.Repository,
	tags tag.Repository,
	files file.Repository,
	store storage.Store,
	worker *jobworker.Worker,
	db HealthChecker,
) (*Handlers, error) {
	previews, err := evaluation.NewPreviewCache(32)
	if err != nil {
		return nil, err
	}
	return &Handlers{
		logger:     logger,
		jobs:       jobs,
		runs:       runs,
		listings:   listings,
		chats:      chats,
		evaluators: evaluators,
		prompts:    prompts,
		histories:  histories,
		settings:   settingsRepo,
		tags:       tags,
		files:      files,
		store:      store,
		worker:     worker,
		previews:   previews,
		db:         db,
	}, nil
}

// Health verifies API and database connectivity.
func (h *Handlers) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Health(); err != nil {
			response.Success(c, gin.H{"status": "error", "database": err.Error()})
			return
		}
	}
	response.Success(c, gin.H{"status": "ok", "database": "connected"})
}

// parseIDParam parses the :id path parameter as a ULID, writing a 400 on
// failure.
func parseIDParam(c *gin.Context, name string) (ulid.ULID, bool) {
	id, err := ulid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "Invalid id", err.Error())
		return ulid.ULID{}, false
	}
	return id, true
}
