package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/marketplace"
	"github.com/chachabrian/evvalet-backend/internal/middleware"
	"github.com/chachabrian/evvalet-backend/internal/services"
	"github.com/chachabrian/evvalet-backend/internal/storage"
)

// Deps is everything the HTTP surface talks to. Locations may be nil when
// Redis is not configured.
type Deps struct {
	Service   *marketplace.Service
	Tokens    storage.DeviceTokenStore
	Hub       *services.Hub
	Locations *services.RedisLocationCache
	JWTSecret string
	Log       logrus.FieldLogger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.RequestLogger(d.Log))

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(d.JWTSecret))
	{
		if d.Hub != nil {
			api.GET("/ws", WebSocketHandler(d.Hub, d.Service))
		}

		requests := api.Group("/requests")
		{
			requests.POST("", CreateRequest(d.Service))
			requests.GET("", ListRequests(d.Service))
			requests.GET("/:id", GetRequest(d.Service))
			requests.POST("/:id/select", SelectOffer(d.Service))
			requests.POST("/:id/complete", CompleteRequest(d.Service))
			requests.POST("/:id/cancel", CancelRequest(d.Service))
			requests.GET("/:id/offers", ListOffers(d.Service))
			requests.POST("/:id/offers", CreateOffer(d.Service))
			requests.GET("/:id/ride", GetRequestRide(d.Service))
			requests.POST("/:id/ride", StartRide(d.Service))
		}

		offers := api.Group("/offers")
		{
			offers.GET("/:id", GetOffer(d.Service))
			offers.PATCH("/:id/status", UpdateOfferStatus(d.Service))
			offers.GET("/:id/negotiations", ListNegotiations(d.Service))
			offers.POST("/:id/negotiations", AppendNegotiation(d.Service))
			offers.GET("/:id/quote", GetQuote(d.Service))
		}

		api.POST("/negotiations/:id/resolve", ResolveNegotiation(d.Service))

		rides := api.Group("/rides")
		{
			rides.GET("/:id", GetRide(d.Service))
			rides.POST("/:id/position", ReportPosition(d.Service))
			rides.PATCH("/:id/status", UpdateRideStatus(d.Service))
		}

		if d.Locations != nil {
			api.GET("/drivers/:id/location", GetDriverLocation(d.Locations))
		}

		notifications := api.Group("/notifications")
		{
			notifications.POST("/register-token", RegisterDeviceToken(d.Tokens))
			notifications.DELETE("/remove-token", RemoveDeviceToken(d.Tokens))
		}
	}

	return r
}
