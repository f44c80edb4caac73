package handlers

import (
	"github.com/gin-gonic/gin"

	"churn-model-service/internal/core/services"
)

// Observer receives per-request outcomes; the Prometheus middleware implements it.
type Observer interface {
	ObservePrediction(kind string, label int)
	ObserveReload(entry, kind string, err error)
}

type noopObserver struct{}

func (noopObserver) ObservePrediction(string, int)       {}
func (noopObserver) ObserveReload(string, string, error) {}

type Handler struct {
	inferenceSvc *services.InferenceService
	observer     Observer
}

func New(inferenceSvc *services.InferenceService, observer Observer) *Handler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Handler{
		inferenceSvc: inferenceSvc,
		observer:     observer,
	}
}

// RegisterRoutes mounts the public endpoints on r and guards the admin ones
// with adminAuth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, adminAuth gin.HandlerFunc) {
	// Service
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Model introspection
	r.GET("/model/info", h.ModelInfo)
	r.GET("/model/schema", h.ModelSchema)
	r.GET("/model/example", h.ModelExample)

	// Scoring
	r.POST("/predict", h.Predict)

	// Admin
	admin := r.Group("/admin", adminAuth)
	admin.POST("/reload", h.Reload)
}
