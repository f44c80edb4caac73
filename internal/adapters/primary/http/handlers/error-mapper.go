package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/adapters/primary/http/dto"
	"churn-model-service/internal/core/domain"
)

func mapDomainError(c *gin.Context, err error) {
	var mismatch *domain.SchemaMismatchError
	switch {
	// Payload errors
	case errors.As(err, &mismatch):
		c.JSON(http.StatusUnprocessableEntity, dto.ToSchemaMismatchResponse(mismatch))

	case errors.Is(err, domain.ErrExampleIndex):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Model availability errors
	case errors.Is(err, domain.ErrModelNotLoaded),
		errors.Is(err, domain.ErrCurrentNotFound):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "detail": dto.NoModelDetail})

	case errors.Is(err, domain.ErrCorruptArtifact):
		log.WithError(err).Error("Current model artifact failed verification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
