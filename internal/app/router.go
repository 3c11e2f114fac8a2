package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridewatch/internal/handler"
	"ridewatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler *handler.RideHandler
	PushHandler *handler.PushHandler
	LiveUpdates http.Handler // WebSocket endpoint, optional
	RedisClient *redis.Client
	NewRelicApp *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	if deps.LiveUpdates != nil {
		router.GET("/ws", gin.WrapH(deps.LiveUpdates))
	}

	// Ride routes.
	rides := router.Group("/rides")
	{
		rides.POST("", deps.RideHandler.CreateRide)
		rides.GET("", deps.RideHandler.GetAll)
		rides.GET("/:id", deps.RideHandler.GetRide)
		rides.GET("/:id/stage", deps.RideHandler.GetStage)
		rides.GET("/:id/status", deps.RideHandler.GetStatus)
		rides.GET("/:id/record", deps.RideHandler.GetRecord)
		rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
		rides.POST("/:id/relaunch", deps.RideHandler.RelaunchRide)
		rides.DELETE("/:id", deps.RideHandler.RemoveRide)
	}

	// Push routes.
	push := router.Group("/push")
	{
		push.GET("/public-key", deps.PushHandler.PublicKey)
		push.POST("/subscribe", deps.PushHandler.Subscribe)
		push.POST("/notify", deps.PushHandler.Notify)
		push.GET("/test", deps.PushHandler.Test)
		push.POST("/test", deps.PushHandler.Test)
	}

	return router
}
