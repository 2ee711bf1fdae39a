package handlers

import (
	"github.com/gin-gonic/gin"

	"evalforge/internal/services/evaluation"
	"evalforge/pkg/response"
)

// GetAdversarialConfig returns the current config (stored or built-in).
func (h *Handlers) GetAdversarialConfig(c *gin.Context) {
	cfg := evaluation.LoadAdversarialConfig(c.Request.Context(), h.settings, h.logger)
	response.Success(c, cfg)
}

// UpdateAdversarialConfig validates and saves a config; 422 on validation
// failure.
func (h *Handlers) UpdateAdversarialConfig(c *gin.Context) {
	h.saveConfigFromBody(c)
}

// ImportAdversarialConfig validates and replaces the config from imported
// JSON; identical semantics to PUT.
func (h *Handlers) ImportAdversarialConfig(c *gin.Context) {
	h.saveConfigFromBody(c)
}

func (h *Handlers) saveConfigFromBody(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	cfg, err := evaluation.ParseAdversarialConfig(body)
	if err != nil {
		response.UnprocessableEntity(c, "Invalid adversarial config", err.Error())
		return
	}
	if err := evaluation.SaveAdversarialConfig(c.Request.Context(), h.settings, cfg); err != nil {
		h.logger.Error("Failed to save adversarial config", "error", err)
		response.InternalServerError(c, "Failed to save config")
		return
	}
	response.Success(c, cfg)
}

// ResetAdversarialConfig restores the built-in default.
func (h *Handlers) ResetAdversarialConfig(c *gin.Context) {
	cfg := evaluation.DefaultAdversarialConfig()
	if err := evaluation.SaveAdversarialConfig(c.Request.Context(), h.settings, cfg); err != nil {
		h.logger.Error("Failed to reset adversarial config", "error", err)
		response.InternalServerError(c, "Failed to reset config")
		return
	}
	response.Success(c, cfg)
}

// ExportAdversarialConfig returns the config as a downloadable JSON file.
func (h *Handlers) ExportAdversarialConfig(c *gin.Context) {
	cfg := evaluation.LoadAdversarialConfig(c.Request.Context(), h.settings, h.logger)
	c.Header("Content-Disposition", "attachment; filename=adversarial-config.json")
	c.JSON(200, cfg)
}
