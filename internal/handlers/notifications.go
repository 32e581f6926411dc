package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

// RegisterDeviceToken registers or moves an FCM token to the calling user
func RegisterDeviceToken(tokens storage.DeviceTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
			Platform string `json:"platform" binding:"omitempty,oneof=android ios web"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		if input.Platform == "" {
			input.Platform = "android"
		}

		token := models.DeviceToken{UserID: actor.ID, Token: input.FCMToken, Platform: input.Platform}
		if err := tokens.SaveDeviceToken(c.Request.Context(), &token); err != nil {
			_ = c.Error(err)
			c.JSON(500, gin.H{"error": "Failed to register FCM token"})
			return
		}
		c.JSON(200, gin.H{"message": "FCM token registered successfully"})
	}
}

func RemoveDeviceToken(tokens storage.DeviceTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		if err := tokens.RemoveDeviceToken(c.Request.Context(), actor.ID, input.FCMToken); err != nil {
			_ = c.Error(err)
			c.JSON(500, gin.H{"error": "Failed to remove FCM token"})
			return
		}
		c.JSON(200, gin.H{"message": "FCM token removed successfully"})
	}
}
