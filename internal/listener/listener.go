// Package listener provides a Postgres LISTEN/NOTIFY consumer for inserted
// rows. It holds a dedicated pgx connection (not from the pool) listening on
// the `notification_events` channel. Each payload has the webhook's shape and
// is handed to the event notifier, so a database trigger can call
// pg_notify instead of an HTTP webhook.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/hifz-notify/internal/jobs"
)

const (
	Channel          = "notification_events"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// EventHandler processes one decoded payload.
type EventHandler interface {
	Handle(ctx context.Context, p jobs.EventPayload) (jobs.EventResult, error)
}

// Listener consumes notification_events.
type Listener struct {
	dbURL   string
	handler EventHandler
	logger  *slog.Logger
}

// New creates a listener for dbURL.
func New(dbURL string, handler EventHandler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{dbURL: dbURL, handler: handler, logger: logger.With("component", "listener")}
}

// Start opens a dedicated connection and listens on the channel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (l *Listener) Start(ctx context.Context) {
	backoff := reconnectBackoff

	for {
		err := l.listenLoop(ctx)
		if ctx.Err() != nil {
			l.logger.Info("event listener stopped (context cancelled)")
			return
		}

		l.logger.Error("event listener disconnected, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	l.logger.Info("event listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.Dispatch(ctx, notification.Payload)
	}
}

// Dispatch decodes one payload and runs it through the handler. Payloads
// are processed in arrival order; failures are logged and dropped.
func (l *Listener) Dispatch(ctx context.Context, payload string) {
	var event jobs.EventPayload
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.Warn("failed to parse event payload", "payload", payload, "error", err)
		return
	}

	res, err := l.handler.Handle(ctx, event)
	if err != nil {
		l.logger.Warn("event notification failed", "table", event.Table, "error", err)
		return
	}
	l.logger.Info("event processed",
		"table", event.Table,
		"sent", res.Sent,
		"skipped", res.Skipped,
		"errors", res.Errors)
}
