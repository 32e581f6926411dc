package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/models"
)

// CreateRequest posts a new job on behalf of the calling client
func CreateRequest(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input marketplace.CreateRequestInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		req, err := svc.CreateRequest(c.Request.Context(), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, req)
	}
}

// ListRequests returns open requests, or the caller's own with ?mine=true
func ListRequests(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		if c.Query("mine") == "true" {
			reqs, err := svc.ListClientRequests(c.Request.Context(), actor)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(200, reqs)
			return
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(400, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		reqs, err := svc.ListActiveRequests(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, reqs)
	}
}

func GetRequest(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := svc.GetRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, req)
	}
}

// SelectOffer locks the request to one offer and opens its ride
func SelectOffer(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			OfferID string `json:"offerId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		sel, err := svc.SelectOffer(c.Request.Context(), c.Param("id"), input.OfferID, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, sel)
	}
}

func CompleteRequest(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}
		req, err := svc.CompleteRequest(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, req)
	}
}

func CancelRequest(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}
		req, err := svc.CancelRequest(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, req)
	}
}

// GetRequestRide returns the live ride of a request
func GetRequestRide(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, err := svc.GetRideForRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, ride)
	}
}

// StartRide returns the request's ride to its selected driver, opening it if
// it is missing.
func StartRide(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}
		if !actor.Is(models.RoleDriver) {
			respondError(c, fmt.Errorf("%w: only the selected driver starts a ride", marketplace.ErrNotAuthorized))
			return
		}
		ride, err := svc.StartTracking(c.Request.Context(), c.Param("id"), actor.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, ride)
	}
}
