package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pscheid92/projectpulse/internal/domain"
)

var ErrEmptyNotification = errors.New("notification kind and message are required")

// Notify pushes a free-form notification (project invitation, assignment)
// to each user that is online. Nothing is persisted; offline users miss it.
// It returns how many users received the event.
func (d *Dispatcher) Notify(ctx context.Context, userIDs []int64, kind, message string, data map[string]any) (int, error) {
	if kind == "" || message == "" {
		return 0, ErrEmptyNotification
	}

	ev := domain.Event{
		Name: domain.EventNotification,
		Data: domain.Notification{
			Kind:    kind,
			Message: message,
			Data:    data,
			SentAt:  d.clock.Now().UTC(),
		},
	}

	delivered := 0
	for _, userID := range dedupe(userIDs) {
		if d.pusher.Push(userID, ev) {
			delivered++
		}
	}

	slog.InfoContext(ctx, "Notification pushed", "kind", kind, "recipients", len(userIDs), "delivered_live", delivered)
	return delivered, nil
}
