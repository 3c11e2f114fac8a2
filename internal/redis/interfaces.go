package redis

import (
	"ridewatch/internal/service"
)

// Ensure concrete types implement the service ports.
var (
	_ service.RecordCache       = (*CacheStore)(nil)
	_ service.SubscriptionStore = (*SubscriptionStore)(nil)
)
