// README: Driver handlers for the job list and the change-notification socket.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecare/internal/http/ws"
	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

type DriverHandler struct {
	rides *ride.Service
	hub   *ws.Hub
	log   *slog.Logger
}

func NewDriverHandler(svc *ride.Service, hub *ws.Hub, log *slog.Logger) *DriverHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DriverHandler{rides: svc, hub: hub, log: log}
}

func (h *DriverHandler) ListRides(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !requireSelfOrStaff(c, id) {
		return
	}
	rides, err := h.rides.ListForDriver(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	if rides == nil {
		rides = []ride.Ride{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *DriverHandler) Subscribe(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok || !requireSelfOrStaff(c, id) {
		return
	}
	if h.hub == nil {
		writeError(c, http.StatusServiceUnavailable, "notifications disabled")
		return
	}
	// Serve has already written the handshake response on error.
	if err := h.hub.Serve(c.Writer, c.Request, types.ID(id)); err != nil {
		h.log.WarnContext(c.Request.Context(), "websocket upgrade failed", "driver_id", id, "error", err)
	}
}
