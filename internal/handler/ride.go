package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridewatch/internal/domain"
	"ridewatch/internal/extract"
	"ridewatch/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	tracker *service.Tracker
	api     service.RideAPI
}

// NewRideHandler creates a new RideHandler. api serves the read-through
// stage and status queries.
func NewRideHandler(tracker *service.Tracker, api service.RideAPI) *RideHandler {
	return &RideHandler{
		tracker: tracker,
		api:     api,
	}
}

// CreateRideRequest is the HTTP request body for creating a ride. Fare may be
// a number or a string such as "R$ 25,50"; empty means "let the dispatch API
// compute it".
type CreateRideRequest struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Note        string          `json:"note,omitempty"`
	Fare        json.RawMessage `json:"fare,omitempty"`
}

// CreateRideResponse is the HTTP response for creating or relaunching a ride.
type CreateRideResponse struct {
	OK     bool            `json:"ok"`
	RideID int64           `json:"rideId"`
	Ride   domain.RideView `json:"ride"`
	Result any             `json:"result"`
}

// CreateRide handles POST /rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	fare, err := parseFare(req.Fare)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.tracker.CreateRide(c.Request.Context(), service.CreateRideRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		Note:        req.Note,
		Fare:        fare,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CreateRideResponse{
		OK:     true,
		RideID: result.Ride.ID,
		Ride:   result.Ride.View(),
		Result: result.Result,
	})
}

// GetAll handles GET /rides
func (h *RideHandler) GetAll(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{
		"ok":    true,
		"rides": domain.Views(h.tracker.Rides()),
	})
}

// GetRide handles GET /rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	ride, found := h.tracker.Ride(id)
	if !found {
		respondError(c, service.ErrRideNotTracked)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true, "ride": ride.View()})
}

// GetStage handles GET /rides/:id/stage
func (h *RideHandler) GetStage(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	stage, err := h.api.QueryStage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true, "stage": stage})
}

// GetStatus handles GET /rides/:id/status
func (h *RideHandler) GetStatus(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	status, err := h.api.QueryStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true, "status": status})
}

// GetRecord handles GET /rides/:id/record
func (h *RideHandler) GetRecord(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	record, err := h.tracker.Record(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true, "record": record})
}

// CancelRide handles POST /rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	result, err := h.tracker.CancelRide(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true, "result": result})
}

// RelaunchRide handles POST /rides/:id/relaunch
func (h *RideHandler) RelaunchRide(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	result, err := h.tracker.RelaunchRide(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CreateRideResponse{
		OK:     true,
		RideID: result.Ride.ID,
		Ride:   result.Ride.View(),
		Result: result.Result,
	})
}

// RemoveRide handles DELETE /rides/:id
func (h *RideHandler) RemoveRide(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}

	if err := h.tracker.RemoveRide(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// rideID parses the :id path parameter, answering 400 when it is not a
// positive integer.
func rideID(c *gin.Context) (int64, bool) {
	id, ok := extract.ParseID(c.Param("id"))
	if !ok {
		respondError(c, service.ErrInvalidRideID)
		return 0, false
	}
	return id, true
}

func parseFare(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, service.ErrInvalidFare
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	fare, ok := extract.ParseAmount(v)
	if !ok {
		return nil, service.ErrInvalidFare
	}
	return &fare, nil
}
