package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridewatch/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRideCreated    NotificationType = "RIDE_CREATED"
	NotificationDriverAccepted NotificationType = "DRIVER_ACCEPTED"
	NotificationRideFrozen     NotificationType = "RIDE_FROZEN"
	NotificationRideFinished   NotificationType = "RIDE_FINISHED"
	NotificationRideCancelled  NotificationType = "RIDE_CANCELLED"
	NotificationRideRelaunched NotificationType = "RIDE_RELAUNCHED"
)

// routingKeys maps notification types to lifecycle event routing keys.
var routingKeys = map[NotificationType]string{
	NotificationRideCreated:    "ride.created",
	NotificationDriverAccepted: "ride.accepted",
	NotificationRideFrozen:     "ride.frozen",
	NotificationRideFinished:   "ride.finished",
	NotificationRideCancelled:  "ride.canceled",
	NotificationRideRelaunched: "ride.relaunched",
}

// Notification represents a notification to be sent.
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	RideID    int64                  `json:"rideId"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Notifier is what the tracker needs from the notification side.
type Notifier interface {
	PlayAlert(ctx context.Context, ride domain.Ride)
	NotifyRideCreated(ctx context.Context, ride domain.Ride)
	NotifyDriverAccepted(ctx context.Context, ride domain.Ride) error
	NotifyRideFrozen(ctx context.Context, ride domain.Ride)
	NotifyRideFinished(ctx context.Context, ride domain.Ride)
	NotifyRideCancelled(ctx context.Context, ride domain.Ride)
	NotifyRideRelaunched(ctx context.Context, from domain.Ride, to domain.Ride)
}

// Ensure NotificationService implements Notifier.
var _ Notifier = (*NotificationService)(nil)

// AlertSink plays the operator's audible cue.
type AlertSink interface {
	Alert(rideID int64)
}

// Broadcaster delivers a push message to every registered device.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg domain.PushMessage) (*BroadcastResult, error)
}

// EventPublisher publishes lifecycle events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// NotificationService handles notification delivery. Every channel is
// optional and best-effort.
type NotificationService struct {
	alerts AlertSink
	push   Broadcaster
	events EventPublisher
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(alerts AlertSink, push Broadcaster, events EventPublisher) *NotificationService {
	return &NotificationService{
		alerts: alerts,
		push:   push,
		events: events,
	}
}

// PlayAlert fires the local audible cue. Failures are swallowed.
func (s *NotificationService) PlayAlert(ctx context.Context, ride domain.Ride) {
	if s.alerts == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOTIFICATION] alert for ride %d failed: %v", ride.ID, r)
		}
	}()
	s.alerts.Alert(ride.ID)
}

// NotifyRideCreated announces a newly tracked ride.
func (s *NotificationService) NotifyRideCreated(ctx context.Context, ride domain.Ride) {
	s.send(ctx, Notification{
		Type:    NotificationRideCreated,
		RideID:  ride.ID,
		Title:   "Ride Created",
		Message: fmt.Sprintf("#%d %s → %s", ride.ID, ride.Origin, ride.Destination),
		Data:    rideData(ride),
	})
}

// NotifyDriverAccepted pushes the "driver accepted" message to every
// subscribed device. The returned error is informational; callers never retry.
func (s *NotificationService) NotifyDriverAccepted(ctx context.Context, ride domain.Ride) error {
	notification := Notification{
		Type:    NotificationDriverAccepted,
		RideID:  ride.ID,
		Title:   "Move Driver: motorista aceitou ✅",
		Message: acceptanceBody(ride),
		Data:    rideData(ride),
	}
	s.send(ctx, notification)

	if s.push == nil {
		return nil
	}

	result, err := s.push.Broadcast(ctx, domain.PushMessage{
		Title: notification.Title,
		Body:  notification.Message,
		URL:   "/",
		Data:  notification.Data,
	})
	if err != nil {
		return fmt.Errorf("push acceptance of ride %d: %w", ride.ID, err)
	}
	log.Printf("[NOTIFICATION] acceptance of ride %d pushed: sent=%d failed=%d removed=%d",
		ride.ID, result.Sent, result.Failed, result.Removed)
	return nil
}

// NotifyRideFrozen announces a ride that stopped without a driver.
func (s *NotificationService) NotifyRideFrozen(ctx context.Context, ride domain.Ride) {
	s.send(ctx, Notification{
		Type:    NotificationRideFrozen,
		RideID:  ride.ID,
		Title:   "Ride Frozen",
		Message: fmt.Sprintf("#%d stopped: %s", ride.ID, ride.StatusText),
		Data:    rideData(ride),
	})
}

// NotifyRideFinished announces a completed ride and its final fare when known.
func (s *NotificationService) NotifyRideFinished(ctx context.Context, ride domain.Ride) {
	message := fmt.Sprintf("#%d finished", ride.ID)
	if ride.FinalFare != nil {
		message = fmt.Sprintf("#%d finished. Total fare: R$ %.2f", ride.ID, *ride.FinalFare)
	}
	s.send(ctx, Notification{
		Type:    NotificationRideFinished,
		RideID:  ride.ID,
		Title:   "Ride Finished",
		Message: message,
		Data:    rideData(ride),
	})
}

// NotifyRideCancelled announces a ride cancelled by the operator.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride domain.Ride) {
	s.send(ctx, Notification{
		Type:    NotificationRideCancelled,
		RideID:  ride.ID,
		Title:   "Ride Cancelled",
		Message: fmt.Sprintf("#%d cancelled", ride.ID),
		Data:    rideData(ride),
	})
}

// NotifyRideRelaunched announces the replacement of a frozen or cancelled ride.
func (s *NotificationService) NotifyRideRelaunched(ctx context.Context, from domain.Ride, to domain.Ride) {
	data := rideData(to)
	data["relaunchedFrom"] = from.ID
	s.send(ctx, Notification{
		Type:    NotificationRideRelaunched,
		RideID:  to.ID,
		Title:   "Ride Relaunched",
		Message: fmt.Sprintf("#%d relaunched as #%d", from.ID, to.ID),
		Data:    data,
	})
}

// send logs the notification and publishes it as a lifecycle event.
func (s *NotificationService) send(ctx context.Context, notification Notification) {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}

	log.Printf("[NOTIFICATION] Type=%s, Ride=%d, Title=%s, Message=%s",
		notification.Type, notification.RideID, notification.Title, notification.Message)

	if s.events == nil {
		return
	}
	body, err := json.Marshal(notification)
	if err != nil {
		log.Printf("[NOTIFICATION] encode event %s: %v", notification.ID, err)
		return
	}
	if err := s.events.Publish(ctx, routingKeys[notification.Type], body); err != nil {
		log.Printf("[NOTIFICATION] publish %s for ride %d: %v", notification.Type, notification.RideID, err)
	}
}

func acceptanceBody(ride domain.Ride) string {
	parts := []string{fmt.Sprintf("#%d", ride.ID)}
	for _, p := range []string{ride.DriverName, ride.Vehicle, ride.Plate} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " • ")
}

func rideData(ride domain.Ride) map[string]interface{} {
	data := map[string]interface{}{
		"id":          ride.ID,
		"driver":      ride.DriverName,
		"vehicle":     ride.Vehicle,
		"plate":       ride.Plate,
		"origin":      ride.Origin,
		"destination": ride.Destination,
		"status":      ride.StatusText,
	}
	if ride.FinalFare != nil {
		data["finalFare"] = *ride.FinalFare
	}
	return data
}
