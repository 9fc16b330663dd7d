package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// FCM sends push envelopes through Firebase Cloud Messaging
type FCM struct {
	client *messaging.Client
}

// NewFCM creates the FCM transport. It returns nil without error when no
// credentials are configured, leaving push disabled.
func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	if credentialsFile == "" {
		log.Warn().Msg("firebase credentials not provided, push notifications disabled")
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Info().Msg("firebase FCM initialized")
	return &FCM{client: client}, nil
}

// Send delivers msgs one request per token in a single batch call
func (f *FCM) Send(ctx context.Context, msgs []Message) (*Result, error) {
	if len(msgs) == 0 {
		return nil, ErrNoActiveTokens
	}

	batch := make([]*messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		batch = append(batch, toFCM(m))
	}

	br, err := f.client.SendEach(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("fcm send: %w", err)
	}

	res := &Result{Sent: br.SuccessCount}
	var firstErr error
	for idx, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsUnregistered(resp.Error) {
			res.Unregistered = append(res.Unregistered, msgs[idx].To)
			continue
		}
		log.Warn().Err(resp.Error).Int("index", idx).Msg("fcm delivery failure")
		if firstErr == nil {
			firstErr = resp.Error
		}
	}

	if res.Sent > 0 {
		return res, nil
	}
	if firstErr != nil {
		return res, fmt.Errorf("fcm send: %w", firstErr)
	}
	return res, ErrNoActiveTokens
}

func toFCM(m Message) *messaging.Message {
	return &messaging.Message{
		Token: m.To,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Data: m.Data,
		Android: &messaging.AndroidConfig{
			Priority: m.Priority,
			Notification: &messaging.AndroidNotification{
				Sound: m.Sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: m.Sound,
				},
			},
		},
	}
}
