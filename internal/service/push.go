package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"ridewatch/internal/domain"
)

// Defaults applied to push messages missing a field.
const (
	defaultPushTitle = "Move Driver"
	defaultPushBody  = "Atualização de corrida"
	defaultPushURL   = "/"
)

// SubscriptionStore is the registry of push subscriptions.
type SubscriptionStore interface {
	Save(ctx context.Context, sub domain.PushSubscription) error
	List(ctx context.Context) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

// PushSender delivers an encrypted payload to one subscription. It returns an
// error matching ErrSubscriptionGone when the subscription no longer exists.
type PushSender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// TopicSender broadcasts a message to a native push topic.
type TopicSender interface {
	SendToTopic(ctx context.Context, msg domain.PushMessage) error
}

// BroadcastResult summarizes one broadcast.
type BroadcastResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

// PushService owns the subscription registry and fans messages out to it.
type PushService struct {
	store     SubscriptionStore
	sender    PushSender
	topic     TopicSender
	publicKey string
}

// Ensure PushService implements Broadcaster.
var _ Broadcaster = (*PushService)(nil)

// NewPushService creates a new PushService. topic may be nil.
func NewPushService(store SubscriptionStore, sender PushSender, topic TopicSender, publicKey string) *PushService {
	return &PushService{
		store:     store,
		sender:    sender,
		topic:     topic,
		publicKey: publicKey,
	}
}

// PublicKey returns the VAPID application server key browsers subscribe with.
func (s *PushService) PublicKey() string {
	return s.publicKey
}

// Subscribe registers a subscription, replacing any with the same endpoint.
func (s *PushService) Subscribe(ctx context.Context, sub domain.PushSubscription) error {
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return ErrInvalidSubscription
	}
	return s.store.Save(ctx, sub)
}

// Broadcast delivers msg to every subscription sequentially. A gone
// subscription is pruned; any other per-recipient failure is logged and
// skipped.
func (s *PushService) Broadcast(ctx context.Context, msg domain.PushMessage) (*BroadcastResult, error) {
	msg = withDefaults(msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}

	subs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	result := &BroadcastResult{}
	for _, sub := range subs {
		err := s.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			result.Sent++
		case errors.Is(err, ErrSubscriptionGone):
			if delErr := s.store.Delete(ctx, sub.Endpoint); delErr != nil {
				log.Printf("[PUSH] failed to remove gone subscription: %v", delErr)
			}
			result.Removed++
		default:
			log.Printf("[PUSH] delivery failed: %v", err)
			result.Failed++
		}
	}

	if s.topic != nil {
		if err := s.topic.SendToTopic(ctx, msg); err != nil {
			log.Printf("[PUSH] topic delivery failed: %v", err)
		}
	}

	return result, nil
}

func withDefaults(msg domain.PushMessage) domain.PushMessage {
	if strings.TrimSpace(msg.Title) == "" {
		msg.Title = defaultPushTitle
	}
	if strings.TrimSpace(msg.Body) == "" {
		msg.Body = defaultPushBody
	}
	if strings.TrimSpace(msg.URL) == "" {
		msg.URL = defaultPushURL
	}
	return msg
}
