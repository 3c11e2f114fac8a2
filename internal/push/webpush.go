package push

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"ridewatch/internal/config"
	"ridewatch/internal/domain"
	"ridewatch/internal/service"
)

// WebPushSender delivers payloads through the browser push services using
// VAPID authentication.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	httpClient *http.Client
}

// Ensure WebPushSender implements service.PushSender.
var _ service.PushSender = (*WebPushSender)(nil)

// NewWebPushSender creates a sender from configuration. When no VAPID key
// pair is configured an ephemeral one is generated; subscriptions made with it
// stop working after a restart.
func NewWebPushSender(cfg config.PushConfig) (*WebPushSender, error) {
	publicKey, privateKey := cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey
	if publicKey == "" || privateKey == "" {
		var err error
		privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		log.Printf("[PUSH] VAPID keys not configured, generated an ephemeral pair (public key %s)", publicKey)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 3600
	}

	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: cfg.Subscriber,
		ttl:        ttl,
		httpClient: &http.Client{},
	}, nil
}

// PublicKey returns the VAPID public key browsers subscribe with.
func (s *WebPushSender) PublicKey() string {
	return s.publicKey
}

// Send encrypts and delivers payload to one subscription.
func (s *WebPushSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return fmt.Errorf("web push request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", service.ErrSubscriptionGone, resp.StatusCode)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("web push rejected with status %d: %s", resp.StatusCode, body)
	}
	return nil
}
