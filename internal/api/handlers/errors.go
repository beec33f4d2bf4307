// Package handlers provides the HTTP handlers for the Sevara API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
)

// respondEngineError translates lifecycle engine errors into HTTP responses.
// The taxonomy is deliberate: authorization failures are 403, validation 400,
// rejected transitions 409, missing resources 404, and document service
// failures 502 so clients can tell a degraded dependency from a bad request.
func respondEngineError(c *gin.Context, logger zerolog.Logger, err error) {
	var ve *baa.ValidationError
	var te *baa.InvalidTransitionError
	var de *baa.DependencyError

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.As(err, &te):
		body := gin.H{
			"error":          te.Error(),
			"attempted":      te.Attempted,
			"current_status": string(te.Current),
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, baa.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &de):
		logger.Error().Err(err).Msg("document service failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "document service unavailable"})
	default:
		logger.Error().Err(err).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
