// README: Ride handlers for dispatcher create/get/assign/cancel and driver status updates.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wecare/internal/http/middleware"
	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	PatientName     string    `json:"patient_name" binding:"required"`
	PatientPhone    string    `json:"patient_phone"`
	PickupLocation  string    `json:"pickup_location" binding:"required"`
	Destination     string    `json:"destination" binding:"required"`
	AppointmentTime time.Time `json:"appointment_time" binding:"required"`
	Village         string    `json:"village"`
	Landmark        string    `json:"landmark"`
	CaregiverPhone  string    `json:"caregiver_phone"`
	SpecialNeeds    []string  `json:"special_needs"`
}

type assignReq struct {
	DriverID   string `json:"driver_id" binding:"required"`
	DriverName string `json:"driver_name"`
}

type cancelReq struct {
	Reason string `json:"reason" binding:"max=500"`
}

type statusReq struct {
	Status  string `json:"status" binding:"required"`
	ActorID string `json:"actor_id"`
}

func (h *RideHandler) Create(c *gin.Context) {
	if !requireStaff(c) {
		return
	}
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	id, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		PickupLocation:  req.PickupLocation,
		Destination:     req.Destination,
		AppointmentTime: req.AppointmentTime,
		Village:         req.Village,
		Landmark:        req.Landmark,
		CaregiverPhone:  req.CaregiverPhone,
		SpecialNeeds:    req.SpecialNeeds,
		ActorType:       middleware.CallerRole(c),
		ActorID:         types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride_id": id, "status": ride.StatusPending})
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	if !isStaff(c) {
		// Drivers only see rides assigned to them.
		if r.DriverID == nil || string(*r.DriverID) != middleware.CallerUID(c) {
			writeRideError(c, ride.ErrNotFound)
			return
		}
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Assign(c *gin.Context) {
	if !requireStaff(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "invalid driver_id")
		return
	}
	err := h.rides.Assign(c.Request.Context(), ride.AssignCommand{
		RideID:     types.ID(id),
		DriverID:   types.ID(req.DriverID),
		DriverName: req.DriverName,
		ActorID:    types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusAssigned})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	if !requireStaff(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}
	err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:    types.ID(id),
		Reason:    req.Reason,
		ActorType: middleware.CallerRole(c),
		ActorID:   types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusCancelled})
}

// UpdateStatus is the driver's transition endpoint. Replaying a change the
// ride already reflects answers 200.
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	if middleware.CallerRole(c) != roleDriver {
		writeError(c, http.StatusForbidden, "driver role required")
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	uid := middleware.CallerUID(c)
	if req.ActorID != "" && req.ActorID != uid {
		writeError(c, http.StatusForbidden, "actor_id does not match caller")
		return
	}
	status, err := ride.ParseStatus(req.Status)
	if err != nil {
		writeRideError(c, err)
		return
	}
	err = h.rides.UpdateStatus(c.Request.Context(), ride.UpdateStatusCommand{
		RideID:  types.ID(id),
		Status:  status,
		ActorID: types.ID(uid),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": status})
}
