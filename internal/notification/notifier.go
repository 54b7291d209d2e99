// Package notification provides alert delivery to external channels
// (Telegram, webhooks) for trading events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Field is one labelled line of an alert body.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Fields  []Field    `json:"fields,omitempty"`
	Time    time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	args := []any{"level", alert.Level, "title", alert.Title, "message", alert.Message}
	for _, f := range alert.Fields {
		args = append(args, f.Name, f.Value)
	}
	lvl := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		lvl = slog.LevelWarn
	case AlertCritical:
		lvl = slog.LevelError
	}
	n.logger.Log(context.Background(), lvl, "alert", args...)
	return nil
}

// Multi fans an alert out to every notifier. A failing backend does not
// stop delivery to the others; all failures are joined into the result.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti creates a fan-out notifier. nil entries are skipped.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger.With("component", "notify")}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of backends.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now().UTC()
	}
	var errs []error
	for i, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			m.logger.Error("alert delivery failed", "backend", fmt.Sprintf("%T", n), "index", i,
				"title", alert.Title, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
