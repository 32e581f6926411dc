package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/services"
)

// WebSocketHandler streams events for one or more ?topic= values, e.g.
// request:<id>, offer:<id> or ride:<id>
func WebSocketHandler(hub *services.Hub, svc *marketplace.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOrAbort(c)
		if !ok {
			return
		}

		raw := c.QueryArray("topic")
		if len(raw) == 0 {
			c.JSON(400, gin.H{"error": "at least one topic is required"})
			return
		}
		topics := make([]models.Topic, 0, len(raw))
		for _, t := range raw {
			topic := models.Topic(t)
			if err := svc.CanWatch(c.Request.Context(), actor, topic); err != nil {
				respondError(c, err)
				return
			}
			topics = append(topics, topic)
		}

		hub.Serve(c.Writer, c.Request, actor, topics)
	}
}
