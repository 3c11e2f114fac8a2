package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"ridewatch/internal/domain"
	"ridewatch/internal/service"
)

func subscription(endpoint string) domain.PushSubscription {
	return domain.PushSubscription{
		Endpoint: endpoint,
		Keys:     domain.PushSubscriptionKeys{P256dh: "p256dh-key", Auth: "auth-key"},
	}
}

func TestPushService_Subscribe_Validates(t *testing.T) {
	store := NewMockSubscriptionStore()
	pushService := service.NewPushService(store, NewMockPushSender(), nil, "public")

	err := pushService.Subscribe(context.Background(), domain.PushSubscription{Endpoint: "https://push.example/1"})
	if !errors.Is(err, service.ErrInvalidSubscription) {
		t.Errorf("expected ErrInvalidSubscription, got %v", err)
	}

	if err := pushService.Subscribe(context.Background(), subscription("https://push.example/1")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Same endpoint replaces the previous entry.
	if err := pushService.Subscribe(context.Background(), subscription("https://push.example/1")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 subscription, got %d", store.Count())
	}
}

func TestPushService_Broadcast_PrunesGoneSubscriptions(t *testing.T) {
	store := NewMockSubscriptionStore()
	sender := NewMockPushSender()
	pushService := service.NewPushService(store, sender, nil, "public")

	for _, ep := range []string{"https://push.example/a", "https://push.example/b", "https://push.example/c"} {
		_ = store.Save(context.Background(), subscription(ep))
	}
	sender.FailFor("https://push.example/a", fmt.Errorf("%w: status 410", service.ErrSubscriptionGone))
	sender.FailFor("https://push.example/b", errors.New("push service timeout"))

	result, err := pushService.Broadcast(context.Background(), domain.PushMessage{Title: "Oi"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if result.Sent != 1 || result.Failed != 1 || result.Removed != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if store.Count() != 2 {
		t.Errorf("expected only the gone subscription removed, %d left", store.Count())
	}
	if _, ok := sender.Payload("https://push.example/c"); !ok {
		t.Error("one failing recipient must not block the others")
	}
}

func TestPushService_Broadcast_AppliesDefaults(t *testing.T) {
	store := NewMockSubscriptionStore()
	sender := NewMockPushSender()
	pushService := service.NewPushService(store, sender, nil, "public")
	_ = store.Save(context.Background(), subscription("https://push.example/a"))

	if _, err := pushService.Broadcast(context.Background(), domain.PushMessage{}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	payload, ok := sender.Payload("https://push.example/a")
	if !ok {
		t.Fatal("expected a delivery")
	}
	var msg domain.PushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Title != "Move Driver" || msg.Body != "Atualização de corrida" || msg.URL != "/" {
		t.Errorf("unexpected defaults %+v", msg)
	}
}

func TestNotificationService_DriverAccepted(t *testing.T) {
	store := NewMockSubscriptionStore()
	sender := NewMockPushSender()
	events := NewMockEventPublisher()
	alerts := &MockAlertSink{}
	pushService := service.NewPushService(store, sender, nil, "public")
	notifications := service.NewNotificationService(alerts, pushService, events)
	_ = store.Save(context.Background(), subscription("https://push.example/a"))

	ride := domain.Ride{
		ID:          101,
		Origin:      "Rua A, 10",
		Destination: "Rua B, 20",
		DriverName:  "João",
		Vehicle:     "Onix",
		Plate:       "ABC1234",
	}
	if err := notifications.NotifyDriverAccepted(context.Background(), ride); err != nil {
		t.Fatalf("notify: %v", err)
	}

	payload, ok := sender.Payload("https://push.example/a")
	if !ok {
		t.Fatal("expected a push delivery")
	}
	var msg domain.PushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Body != "#101 • João • Onix • ABC1234" {
		t.Errorf("unexpected body %q", msg.Body)
	}
	if msg.Data["origin"] != "Rua A, 10" || msg.Data["destination"] != "Rua B, 20" {
		t.Errorf("expected addresses in data, got %v", msg.Data)
	}

	published := events.Events("ride.accepted")
	if len(published) != 1 {
		t.Fatalf("expected one ride.accepted event, got %d", len(published))
	}
	if !strings.Contains(string(published[0]), `"type":"DRIVER_ACCEPTED"`) {
		t.Errorf("unexpected event %s", published[0])
	}
}

func TestNotificationService_AlertFailureSwallowed(t *testing.T) {
	alerts := &MockAlertSink{Panic: true}
	notifications := service.NewNotificationService(alerts, nil, nil)

	notifications.PlayAlert(context.Background(), domain.Ride{ID: 1})

	if atomic.LoadInt32(&alerts.Count) != 1 {
		t.Error("expected the alert to be attempted")
	}
}
