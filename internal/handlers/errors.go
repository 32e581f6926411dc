package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/middleware"
	"github.com/chachabrian/evvalet-backend/internal/models"
)

var conflictCodes = []struct {
	err  error
	code string
}{
	{marketplace.ErrInvalidRequestState, "invalid_request_state"},
	{marketplace.ErrInvalidOfferState, "invalid_offer_state"},
	{marketplace.ErrIllegalTransition, "illegal_transition"},
	{marketplace.ErrAlreadyResolved, "already_resolved"},
	{marketplace.ErrRidePending, "ride_pending"},
}

// respondError maps marketplace errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, marketplace.ErrInvalidInput):
		c.JSON(400, gin.H{"error": err.Error(), "code": "invalid_input"})
		return
	case errors.Is(err, marketplace.ErrNotAuthorized):
		c.JSON(403, gin.H{"error": err.Error(), "code": "not_authorized"})
		return
	case errors.Is(err, marketplace.ErrNotFound):
		c.JSON(404, gin.H{"error": err.Error(), "code": "not_found"})
		return
	case errors.Is(err, marketplace.ErrConcurrentModification):
		c.JSON(409, gin.H{"error": err.Error(), "code": "concurrent_modification", "retryable": true})
		return
	}
	for _, cc := range conflictCodes {
		if errors.Is(err, cc.err) {
			c.JSON(409, gin.H{"error": err.Error(), "code": cc.code})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(500, gin.H{"error": "Internal server error"})
}

func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(401, gin.H{"error": "Unauthenticated"})
	}
	return actor, ok
}
