package tests

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ridewatch/internal/config"
	"ridewatch/internal/domain"
	"ridewatch/internal/push"
	"ridewatch/internal/service"
)

// browserSubscription returns a subscription with real P-256 keys pointing at
// endpoint, so the sender can encrypt for it.
func browserSubscription(t *testing.T, endpoint string) domain.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return domain.PushSubscription{
		Endpoint: endpoint,
		Keys: domain.PushSubscriptionKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(secret),
		},
	}
}

func newPushEndpoint(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newWebPushSender(t *testing.T) *push.WebPushSender {
	t.Helper()
	sender, err := push.NewWebPushSender(config.PushConfig{Subscriber: "ops@example.com"})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if sender.PublicKey() == "" {
		t.Fatal("expected a generated VAPID public key")
	}
	return sender
}

func TestWebPushSender_Delivered(t *testing.T) {
	srv, calls := newPushEndpoint(t, http.StatusCreated)
	sender := newWebPushSender(t)

	err := sender.Send(context.Background(), browserSubscription(t, srv.URL+"/push/1"), []byte(`{"title":"Oi"}`))

	if err != nil {
		t.Fatalf("expected delivery, got %v", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("expected one request to the push service, got %d", atomic.LoadInt32(calls))
	}
}

func TestWebPushSender_GoneSubscription(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv, _ := newPushEndpoint(t, status)
		sender := newWebPushSender(t)

		err := sender.Send(context.Background(), browserSubscription(t, srv.URL+"/push/1"), []byte(`{}`))

		if !errors.Is(err, service.ErrSubscriptionGone) {
			t.Errorf("status %d: expected ErrSubscriptionGone, got %v", status, err)
		}
	}
}

func TestWebPushSender_RejectedIsNotGone(t *testing.T) {
	srv, _ := newPushEndpoint(t, http.StatusInternalServerError)
	sender := newWebPushSender(t)

	err := sender.Send(context.Background(), browserSubscription(t, srv.URL+"/push/1"), []byte(`{}`))

	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, service.ErrSubscriptionGone) {
		t.Error("a server error must not prune the subscription")
	}
}

func TestPushService_PrunesSubscriptionGoneAtPushService(t *testing.T) {
	gone, _ := newPushEndpoint(t, http.StatusGone)
	alive, aliveCalls := newPushEndpoint(t, http.StatusCreated)

	store := NewMockSubscriptionStore()
	_ = store.Save(context.Background(), browserSubscription(t, gone.URL+"/push/a"))
	_ = store.Save(context.Background(), browserSubscription(t, alive.URL+"/push/b"))
	pushService := service.NewPushService(store, newWebPushSender(t), nil, "public")

	result, err := pushService.Broadcast(context.Background(), domain.PushMessage{Title: "Oi"})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if result.Sent != 1 || result.Removed != 1 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if store.Count() != 1 || atomic.LoadInt32(aliveCalls) != 1 {
		t.Errorf("expected only the live subscription kept, %d left", store.Count())
	}
}
