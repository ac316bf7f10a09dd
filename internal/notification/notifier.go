// Package notification delivers trading-event alerts to external channels.
package notification

import (
	"context"
	"errors"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Title carries its own leading
// emoji; Message is the pre-formatted Markdown body.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
	// SendFile delivers a document with a caption.
	SendFile(ctx context.Context, path, caption string) error
}

// LogNotifier writes alerts to the process log (useful for development and
// as the always-on fallback channel).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

func (n *LogNotifier) SendFile(ctx context.Context, path, caption string) error {
	log.Printf("[notify] [FILE] %s (%s)", path, caption)
	return nil
}

// Multi fans every alert out to all backends, collecting delivery errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SendFile(ctx context.Context, path, caption string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendFile(ctx, path, caption); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
