// Package mail hands account-action tokens to the mail delivery pipeline.
// Rendering and sending the email itself happens downstream of the queue.
package mail

import (
	"context"
	"time"

	"postboard/internal/observability"
)

type Kind string

const (
	KindVerify Kind = "verify"
	KindReset  Kind = "reset_password"
)

type Message struct {
	Kind      Kind      `json:"kind"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// LogPublisher is used when no broker is configured. It logs the event
// without the token so development setups still see the flow.
type LogPublisher struct {
	logger *observability.Logger
}

func NewLogPublisher(logger *observability.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("mail_event", map[string]any{
		"kind":       string(msg.Kind),
		"email":      msg.Email,
		"expires_at": msg.ExpiresAt.Format(time.RFC3339),
	})
	return nil
}
