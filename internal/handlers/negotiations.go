package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
)

func ListNegotiations(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := svc.History(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, history)
	}
}

// AppendNegotiation adds a counter-proposal to an offer
func AppendNegotiation(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input marketplace.ProposalInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		entry, err := svc.AppendEntry(c.Request.Context(), c.Param("id"), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, entry)
	}
}

// ResolveNegotiation accepts or rejects a pending proposal
func ResolveNegotiation(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			Accept *bool `json:"accept" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		entry, err := svc.ResolveEntry(c.Request.Context(), c.Param("id"), *input.Accept, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, entry)
	}
}

// GetQuote returns the price in force for an offer and its open proposals
func GetQuote(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := svc.Quote(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, q)
	}
}
