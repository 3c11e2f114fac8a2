package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"ridewatch/internal/domain"
)

const subscriptionsKey = "push:subscriptions"

// SubscriptionStore keeps push subscriptions in a Redis hash keyed by
// endpoint, so re-subscribing the same browser replaces its entry.
type SubscriptionStore struct {
	client *redis.Client
}

// NewSubscriptionStore creates a new SubscriptionStore.
func NewSubscriptionStore(client *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{client: client}
}

// Save stores or replaces a subscription.
func (s *SubscriptionStore) Save(ctx context.Context, sub domain.PushSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, subscriptionsKey, sub.Endpoint, data).Err()
}

// List returns every stored subscription. Entries that fail to decode are
// skipped.
func (s *SubscriptionStore) List(ctx context.Context) ([]domain.PushSubscription, error) {
	entries, err := s.client.HGetAll(ctx, subscriptionsKey).Result()
	if err != nil {
		return nil, err
	}

	subs := make([]domain.PushSubscription, 0, len(entries))
	for endpoint, raw := range entries {
		var sub domain.PushSubscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			log.Printf("[REDIS] skipping malformed subscription %s: %v", endpoint, err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Delete removes a subscription by endpoint.
func (s *SubscriptionStore) Delete(ctx context.Context, endpoint string) error {
	return s.client.HDel(ctx, subscriptionsKey, endpoint).Err()
}
