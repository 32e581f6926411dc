package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/models"
)

// CreateOffer submits the calling driver's bid on a request
func CreateOffer(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input marketplace.CreateOfferInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		offer, err := svc.CreateOffer(c.Request.Context(), actor, c.Param("id"), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, offer)
	}
}

func ListOffers(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		offers, err := svc.ListOffersForRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, offers)
	}
}

func GetOffer(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		offer, err := svc.GetOffer(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, offer)
	}
}

// UpdateOfferStatus applies accept, reject or negotiate to an offer
func UpdateOfferStatus(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			Status models.OfferStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		offer, err := svc.Transition(c.Request.Context(), c.Param("id"), input.Status, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, offer)
	}
}
