package api

import (
	stdhttp "net/http"

	intconfig "sharedtrips/internal/config"
	h "sharedtrips/internal/http/handlers"
	"sharedtrips/internal/http/middleware"
	"sharedtrips/internal/http/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func NewRouter(env intconfig.Env, handlers *h.Handlers, sockets *ws.Controller) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.AllowedOrigins()))

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Warn().Err(err).Str("module", "http").Msg("failed to set trusted proxies")
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"code":   "not_found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/cities", handlers.ListCities)
		api.GET("/rooms", handlers.Rooms)
		api.GET("/ws", sockets.Handle)

		trips := api.Group("/trips")
		trips.GET("", handlers.ListTrips)
		trips.POST("", handlers.CreateTrip)
		trips.GET("/:tripId", handlers.GetTrip)
		trips.GET("/:tripId/manifest", handlers.TripManifest)

		// join requests
		trips.POST("/:tripId/request", handlers.SubmitJoinRequest)
		trips.POST("/:tripId/requests/:requestId/:action", handlers.DecideJoinRequest)

		// chat
		trips.GET("/:tripId/chat", handlers.ChatHistory)
		trips.POST("/:tripId/chat", handlers.PostMessage)
	}

	return r
}
