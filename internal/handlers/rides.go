package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/services"
)

func GetRide(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, err := svc.GetRide(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, ride)
	}
}

// ReportPosition takes a GPS fix from the ride's driver
func ReportPosition(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			Lat        *float64  `json:"lat" binding:"required"`
			Lng        *float64  `json:"lng" binding:"required"`
			RecordedAt time.Time `json:"recordedAt"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		res, err := svc.ReportPosition(c.Request.Context(), c.Param("id"), actor, marketplace.PositionReport{
			Lat:        *input.Lat,
			Lng:        *input.Lng,
			RecordedAt: input.RecordedAt,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, res)
	}
}

// UpdateRideStatus advances or cancels a ride
func UpdateRideStatus(svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			Status models.RideStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		ride, err := svc.AdvanceStatus(c.Request.Context(), c.Param("id"), input.Status, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, ride)
	}
}

// GetDriverLocation returns a driver's last cached position
func GetDriverLocation(cache *services.RedisLocationCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, err := cache.GetDriverLocation(c.Request.Context(), c.Param("id"))
		if errors.Is(err, redis.Nil) {
			c.JSON(404, gin.H{"error": "No recent location for driver"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, loc)
	}
}
