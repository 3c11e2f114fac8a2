package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridewatch/internal/domain"
	"ridewatch/internal/service"
)

// PushHandler handles HTTP requests for browser push.
type PushHandler struct {
	pushService *service.PushService
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(pushService *service.PushService) *PushHandler {
	return &PushHandler{pushService: pushService}
}

// NotifyRequest is the HTTP request body for an ad-hoc push.
type NotifyRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	URL   string         `json:"url"`
	Data  map[string]any `json:"data,omitempty"`
}

// BroadcastResponse is the HTTP response for a push fan-out.
type BroadcastResponse struct {
	OK bool `json:"ok"`
	service.BroadcastResult
}

// PublicKey handles GET /push/public-key
func (h *PushHandler) PublicKey(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"publicKey": h.pushService.PublicKey()})
}

// Subscribe handles POST /push/subscribe
func (h *PushHandler) Subscribe(c *gin.Context) {
	var sub domain.PushSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	if err := h.pushService.Subscribe(c.Request.Context(), sub); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// Notify handles POST /push/notify
func (h *PushHandler) Notify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	h.broadcast(c, domain.PushMessage{
		Title: req.Title,
		Body:  req.Body,
		URL:   req.URL,
		Data:  req.Data,
	})
}

// Test handles GET|POST /push/test
func (h *PushHandler) Test(c *gin.Context) {
	h.broadcast(c, domain.PushMessage{
		Title: "Move Driver: teste",
		Body:  "Notificações funcionando ✅",
		URL:   "/",
	})
}

func (h *PushHandler) broadcast(c *gin.Context, msg domain.PushMessage) {
	result, err := h.pushService.Broadcast(c.Request.Context(), msg)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, BroadcastResponse{OK: true, BroadcastResult: *result})
}
