// README: Base handler utilities (JSON helpers, error mapping, role checks).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecare/internal/http/middleware"
	"wecare/internal/modules/ride"
)

// Codes that disambiguate a 409 for the driver agent.
const (
	codeInvalidState = "invalid_state"
	codeConflict     = "conflict"
)

const roleDriver = "driver"

// staffRoles may create, assign and cancel rides.
var staffRoles = map[string]bool{
	"dispatcher": true,
	"community":  true,
	"office":     true,
	"executive":  true,
	"developer":  true,
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// isValidID accepts the uuid form produced by types.NewID and Firebase uids.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrInvalidState):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeInvalidState})
	case errors.Is(err, ride.ErrConflict):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeConflict})
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func isStaff(c *gin.Context) bool {
	return staffRoles[middleware.CallerRole(c)]
}

func requireStaff(c *gin.Context) bool {
	if !isStaff(c) {
		writeError(c, http.StatusForbidden, "staff role required")
		return false
	}
	return true
}

// requireSelfOrStaff lets a driver act only on their own id.
func requireSelfOrStaff(c *gin.Context, driverID string) bool {
	if isStaff(c) {
		return true
	}
	if middleware.CallerRole(c) == roleDriver && middleware.CallerUID(c) == driverID {
		return true
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return false
}

func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return id, true
}
