package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ridewatch/internal/domain"
	"ridewatch/internal/ws"
)

type hubMessage struct {
	Type   string            `json:"type"`
	RideID int64             `json:"rideId"`
	Rides  []domain.RideView `json:"rides"`
}

func dialHub(t *testing.T) (*ws.Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	hub.RenderRides([]domain.Ride{{ID: 101, State: domain.RideStateActive, Origin: "Rua A"}})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return hub, conn
}

func readHubMessage(t *testing.T, conn *websocket.Conn) hubMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg hubMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestHub_ReplaysSnapshotToNewClient(t *testing.T) {
	_, conn := dialHub(t)

	msg := readHubMessage(t, conn)

	if msg.Type != "rides" || len(msg.Rides) != 1 || msg.Rides[0].ID != 101 {
		t.Fatalf("unexpected snapshot %+v", msg)
	}
	if msg.Rides[0].State != domain.RideStateActive {
		t.Errorf("expected active state, got %q", msg.Rides[0].State)
	}
}

func TestHub_BroadcastsAlert(t *testing.T) {
	hub, conn := dialHub(t)
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	hub.Alert(101)

	for i := 0; i < 3; i++ {
		msg := readHubMessage(t, conn)
		if msg.Type == "alert" {
			if msg.RideID != 101 {
				t.Errorf("expected alert for 101, got %d", msg.RideID)
			}
			return
		}
	}
	t.Error("expected an alert message")
}

func TestHub_ConnectAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub()
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
		atomic.AddInt32(&served, 1)
	}))
	t.Cleanup(srv.Close)

	// More clients than the registration buffer holds.
	const clients = 12
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	for i := 0; i < clients; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		t.Cleanup(func() { _ = conn.Close() })
	}

	waitFor(t, "every handler to return", func() bool {
		return atomic.LoadInt32(&served) == clients
	})
	if hub.ClientCount() != 0 {
		t.Errorf("expected no registered clients, got %d", hub.ClientCount())
	}
}
