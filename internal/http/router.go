// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecare/internal/http/handlers"
	"wecare/internal/http/middleware"
	"wecare/internal/http/ws"
	"wecare/internal/infra"
	"wecare/internal/modules/ride"
)

type RouterDeps struct {
	Rides    *ride.Service
	Hub      *ws.Hub
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	rideHandler := handlers.NewRideHandler(deps.Rides)
	driverHandler := handlers.NewDriverHandler(deps.Rides, deps.Hub, log)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/assign", rideHandler.Assign)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.PATCH("/rides/:id/status", rideHandler.UpdateStatus)
	api.GET("/drivers/:id/rides", driverHandler.ListRides)

	r.GET("/ws/drivers/:id", middleware.Auth(deps.Verifier), driverHandler.Subscribe)

	return r
}
