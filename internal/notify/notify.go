// Package notify delivers unlock notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/config"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// Message is one notification addressed to a recipient list.
type Message struct {
	CapsuleID  uuid.UUID `json:"capsule_id"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
}

// Dispatcher sends a message to every recipient. A nil error means the
// transport accepted it.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the dispatcher selected by cfg.Transport.
func New(cfg *config.Config, log logger.Logger) (Dispatcher, error) {
	switch cfg.Transport {
	case config.TransportLog:
		return NewLogDispatcher(log), nil
	case config.TransportWebhook:
		return NewWebhookDispatcher(cfg.WebhookURL, cfg.WebhookTimeout), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}

// LogDispatcher only logs the message and always reports success.
type LogDispatcher struct {
	log logger.Logger
}

func NewLogDispatcher(log logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With(logger.String("component", "notify"))}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.log.Info("unlock notification",
		logger.String("capsule_id", msg.CapsuleID.String()),
		logger.String("subject", msg.Subject),
		logger.Strings("recipients", msg.Recipients))
	return nil
}
