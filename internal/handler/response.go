package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridewatch/internal/dispatch"
	"ridewatch/internal/service"
)

// ErrorResponse represents an error response. Message carries user
// correctable problems, Error internal ones and Details the upstream body.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	var upstream *dispatch.UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(upstreamStatus(upstream.StatusCode), ErrorResponse{Details: upstream.Body})
		return
	}

	var notFound *service.IDNotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusBadGateway, ErrorResponse{Message: err.Error(), Details: notFound.Payload})
		return
	}

	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		c.JSON(code, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(code, ErrorResponse{Message: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// upstreamStatus keeps the dispatch API's status code, guarding against
// values gin cannot write.
func upstreamStatus(code int) int {
	if code < 400 || code > 599 {
		return http.StatusBadGateway
	}
	return code
}

// mapErrorToHTTPStatus maps service errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Validation errors - Bad Request
	case errors.Is(err, service.ErrMissingOrigin),
		errors.Is(err, service.ErrMissingDestination),
		errors.Is(err, service.ErrInvalidFare),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidSubscription):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, service.ErrRideNotTracked):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrRideAlreadyTracked),
		errors.Is(err, service.ErrRideAlreadyFinished),
		errors.Is(err, service.ErrRideAlreadyCancelled),
		errors.Is(err, service.ErrRideNotRelaunchable),
		errors.Is(err, service.ErrRelaunchInProgress):
		return http.StatusConflict

	// Dispatch API unreachable, and everything else
	case errors.Is(err, dispatch.ErrTransport):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
