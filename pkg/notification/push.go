package notification

import (
	"context"
	"errors"
)

const (
	SoundDefault = "default"
	PriorityHigh = "high"
)

// ErrNoActiveTokens is returned when none of the addressed tokens can receive a push
var ErrNoActiveTokens = errors.New("no active push tokens")

// Message is one push envelope, addressed to a single device token
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound"`
	Priority string            `json:"priority"`
}

// NewMessages builds one envelope per token with the same content
func NewMessages(tokens []string, title, body string, data map[string]string) []Message {
	msgs := make([]Message, 0, len(tokens))
	for _, t := range tokens {
		msgs = append(msgs, Message{
			To:       t,
			Title:    title,
			Body:     body,
			Data:     data,
			Sound:    SoundDefault,
			Priority: PriorityHigh,
		})
	}
	return msgs
}

// Result reports what the gateway accepted
type Result struct {
	Sent int
	// Unregistered lists tokens the gateway no longer recognizes
	Unregistered []string
}

// Transport delivers push envelopes to an external gateway.
// A returned error other than ErrNoActiveTokens means the delivery failed.
type Transport interface {
	Send(ctx context.Context, msgs []Message) (*Result, error)
}
