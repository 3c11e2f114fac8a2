package domain

// PushSubscription is a browser push subscription descriptor as produced by
// PushManager.subscribe().
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime,omitempty"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

// PushSubscriptionKeys holds the client public key and auth secret.
type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushMessage is the payload delivered to every subscribed device.
type PushMessage struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	URL   string         `json:"url"`
	Data  map[string]any `json:"data,omitempty"`
}
