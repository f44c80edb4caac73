package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/adapters/primary/http/dto"
	"churn-model-service/internal/core/domain"
)

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, dto.RootResponse{Status: "ok", Health: "/health"})
}

func (h *Handler) Health(c *gin.Context) {
	resp := dto.HealthResponse{Status: "ok", Expects: []string{}}
	if cur := h.inferenceSvc.Current(); cur != nil {
		resp.ModelLoaded = true
		resp.Expects = cur.Schema.Columns()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToModelInfoResponse(h.inferenceSvc.Current(), h.inferenceSvc.LoadedAt()))
}

func (h *Handler) ModelSchema(c *gin.Context) {
	var schema domain.FeatureSchema
	if cur := h.inferenceSvc.Current(); cur != nil {
		schema = cur.Schema
	}
	c.JSON(http.StatusOK, dto.ToSchemaResponse(schema))
}

func (h *Handler) ModelExample(c *gin.Context) {
	minimal, err := strconv.ParseBool(c.DefaultQuery("minimal", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minimal must be a boolean"})
		return
	}
	idx, err := strconv.Atoi(c.DefaultQuery("idx", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be an integer"})
		return
	}

	ex, err := h.inferenceSvc.Example(minimal, idx)
	if err != nil {
		mapDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToExampleResponse(ex))
}

func (h *Handler) Predict(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object: " + err.Error()})
		return
	}

	pred, err := h.inferenceSvc.Predict(c.Request.Context(), payload)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	h.observer.ObservePrediction(string(pred.Kind), pred.Label)
	c.JSON(http.StatusOK, dto.ToPredictResponse(pred))
}

func (h *Handler) Reload(c *gin.Context) {
	cur, err := h.inferenceSvc.Reload(c.Request.Context())
	if err != nil {
		h.observer.ObserveReload("", "", err)
		mapDomainError(c, err)
		return
	}

	h.observer.ObserveReload(cur.Manifest.Entry, string(cur.Manifest.Kind), nil)
	log.WithFields(log.Fields{
		"entry":      cur.Manifest.Entry,
		"request_id": c.GetString("request_id"),
	}).Info("Model reloaded by operator")
	c.JSON(http.StatusOK, dto.ToReloadResponse(cur, h.inferenceSvc.LoadedAt()))
}
