// Package notify delivers user-facing alerts.
package notify

import (
	"context"
	"log/slog"

	"github.com/starford/onyx/internal/sse"
)

// EventAlert is the SSE event type of alerts.
const EventAlert = "alert"

// Notifier shows an alert to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Alert is the payload of an alert event.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Publisher is the subset of sse.Broker the SSE notifier needs.
type Publisher interface {
	Publish(event sse.Event)
}

// SSE publishes alerts to connected UIs and logs them.
type SSE struct {
	pub    Publisher
	logger *slog.Logger
}

// NewSSE returns a notifier publishing through pub.
func NewSSE(pub Publisher, logger *slog.Logger) *SSE {
	return &SSE{pub: pub, logger: logger}
}

// Notify publishes an alert event.
func (n *SSE) Notify(_ context.Context, title, body string) error {
	n.logger.Info("notify: alert", slog.String("title", title), slog.String("body", body))
	n.pub.Publish(sse.Event{Type: EventAlert, Data: Alert{Title: title, Body: body}})
	return nil
}

// Nop drops every alert, as when notification permission was never granted.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string, string) error { return nil }
