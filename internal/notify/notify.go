// Package notify delivers admin notifications raised by the sync engine.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Alert describes one condition an operator should look at.
type Alert struct {
	Kind      shared.ErrorKind `json:"kind"`
	TaskID    string           `json:"task_id"`
	UserID    string           `json:"user_id"`
	Platform  models.Platform  `json:"platform"`
	Attempt   int              `json:"attempt"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// Notifier is the admin notification sink.
type Notifier interface {
	NotifyAdmin(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyAdmin(_ context.Context, a Alert) error {
	n.logger.Warn("admin notification",
		"kind", a.Kind, "task_id", a.TaskID, "user_id", a.UserID,
		"platform", a.Platform, "attempt", a.Attempt, "message", a.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyAdmin(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAdmin(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notifier described by cfg: always the log, plus a webhook when configured.
func New(cfg shared.NotifyConfig, logger *log.Logger) Notifier {
	logN := NewLogNotifier(logger)
	if cfg.WebhookURL == "" {
		return logN
	}
	return Multi{logN, NewWebhookNotifier(cfg.WebhookURL, nil)}
}
