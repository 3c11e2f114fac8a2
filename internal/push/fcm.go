package push

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"ridewatch/internal/config"
	"ridewatch/internal/domain"
	"ridewatch/internal/service"
)

// FCMSender mirrors push messages to a Firebase Cloud Messaging topic for
// native clients.
type FCMSender struct {
	client *messaging.Client
	topic  string
}

// Ensure FCMSender implements service.TopicSender.
var _ service.TopicSender = (*FCMSender)(nil)

// NewFCMSender initialises the Firebase Admin SDK from a service-account file.
func NewFCMSender(ctx context.Context, cfg config.PushConfig) (*FCMSender, error) {
	var conf *firebase.Config
	if cfg.FirebaseProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}

	return &FCMSender{client: client, topic: cfg.FirebaseTopic}, nil
}

// SendToTopic publishes msg to the configured topic.
func (s *FCMSender) SendToTopic(ctx context.Context, msg domain.PushMessage) error {
	data := map[string]string{"url": msg.URL}
	for k, v := range msg.Data {
		data[k] = fmt.Sprint(v)
	}

	messageID, err := s.client.Send(ctx, &messaging.Message{
		Topic: s.topic,
		Data:  data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", s.topic, err)
	}

	log.Printf("[PUSH] FCM sent to topic %s, message_id=%s", s.topic, messageID)
	return nil
}
