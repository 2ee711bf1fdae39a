// Package http provides the gin HTTP server and route registration.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evalforge/internal/config"
	"evalforge/internal/transport/http/handlers"
)

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	handlers *handlers.Handlers
	server   *http.Server
	engine   *gin.Engine
}

// NewServer creates the server around the handler set.
func NewServer(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) *Server {
	return &Server{cfg: cfg, logger: logger, handlers: h}
}

// Start configures routes and begins serving. It blocks until the listener
// stops.
func (s *Server) Start() error {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.cfg.Server.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = true
	s.engine.Use(cors.New(corsConfig))

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("HTTP server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	h := s.handlers

	s.engine.GET("/api/health", h.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")

	jobs := api.Group("/jobs")
	{
		jobs.POST("", h.CreateJob)
		jobs.GET("", h.ListJobs)
		jobs.GET("/:id", h.GetJob)
		jobs.POST("/:id/cancel", h.CancelJob)
	}

	runs := api.Group("/eval-runs")
	{
		runs.GET("", h.ListEvalRuns)
		runs.DELETE("", h.DeleteEvalRuns)
		runs.POST("/preview", h.PreviewCSV)
		runs.GET("/stats/summary", h.EvalRunStats)
		runs.GET("/trends", h.EvalRunTrends)
		runs.GET("/logs", h.ListAPILogs)
		runs.DELETE("/logs", h.DeleteAPILogs)
		runs.GET("/:id", h.GetEvalRun)
		runs.DELETE("/:id", h.DeleteEvalRun)
		runs.GET("/:id/logs", h.GetRunLogs)
		runs.GET("/:id/threads", h.GetRunThreads)
		runs.GET("/:id/adversarial", h.GetRunAdversarial)
	}

	api.GET("/threads/:threadId/history", h.GetThreadHistory)

	advConfig := api.Group("/adversarial-config")
	{
		advConfig.GET("", h.GetAdversarialConfig)
		advConfig.PUT("", h.UpdateAdversarialConfig)
		advConfig.POST("/reset", h.ResetAdversarialConfig)
		advConfig.GET("/export", h.ExportAdversarialConfig)
		advConfig.POST("/import", h.ImportAdversarialConfig)
	}

	listings := api.Group("/listings")
	{
		listings.POST("", h.CreateListing)
		listings.GET("", h.ListListings)
		listings.GET("/:id", h.GetListing)
		listings.PATCH("/:id", h.UpdateListing)
		listings.DELETE("/:id", h.DeleteListing)
	}

	files := api.Group("/files")
	{
		files.POST("", h.UploadFile)
		files.GET("/:id", h.DownloadFile)
		files.DELETE("/:id", h.DeleteFile)
	}

	prompts := api.Group("/prompts")
	{
		prompts.POST("", h.CreatePrompt)
		prompts.GET("", h.ListPrompts)
		prompts.GET("/:id", h.GetPrompt)
		prompts.PUT("/:id", h.UpdatePrompt)
		prompts.DELETE("/:id", h.DeletePrompt)
	}

	schemas := api.Group("/schemas")
	{
		schemas.POST("", h.CreateSchema)
		schemas.GET("", h.ListSchemas)
		schemas.GET("/:id", h.GetSchema)
		schemas.PUT("/:id", h.UpdateSchema)
		schemas.DELETE("/:id", h.DeleteSchema)
	}

	evaluators := api.Group("/evaluators")
	{
		evaluators.POST("", h.CreateEvaluator)
		evaluators.GET("", h.ListEvaluators)
		evaluators.GET("/:id", h.GetEvaluator)
		evaluators.PUT("/:id", h.UpdateEvaluator)
		evaluators.DELETE("/:id", h.DeleteEvaluator)
	}

	chatGroup := api.Group("/chat/sessions")
	{
		chatGroup.POST("", h.CreateChatSession)
		chatGroup.GET("", h.ListChatSessions)
		chatGroup.GET("/:id", h.GetChatSession)
		chatGroup.DELETE("/:id", h.DeleteChatSession)
		chatGroup.GET("/:id/messages", h.ListChatMessages)
		chatGroup.POST("/:id/messages", h.CreateChatMessage)
	}

	api.GET("/history", h.ListHistory)
	api.GET("/history/:id", h.GetHistory)

	settingsGroup := api.Group("/settings")
	{
		settingsGroup.GET("", h.ListSettings)
		settingsGroup.GET("/:key", h.GetSetting)
		settingsGroup.PUT("/:key", h.UpsertSetting)
		settingsGroup.DELETE("/:key", h.DeleteSetting)
	}

	tags := api.Group("/tags")
	{
		tags.GET("", h.ListTags)
		tags.POST("", h.TouchTag)
		tags.DELETE("/:name", h.DeleteTag)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
