package app

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/pscheid92/projectpulse/internal/domain"
)

// ConversationMessages returns the caller's delivery records for a
// conversation, oldest first.
func (d *Dispatcher) ConversationMessages(ctx context.Context, userID, conversationID int64) ([]domain.DeliveryRecord, error) {
	if err := d.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	records, err := d.messages.ListConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return records, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	count, err := d.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UnreadByConversation returns unread counts keyed by conversation.
// Concurrent calls for the same user share one query, which is not tied
// to the cancellation of whichever caller started it.
func (d *Dispatcher) UnreadByConversation(ctx context.Context, userID int64) (map[int64]int64, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := d.unreadGroup.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return d.messages.CountUnreadByConversation(shared, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages per conversation: %w", err)
	}

	// Callers sharing a flight get the same map.
	return maps.Clone(v.(map[int64]int64)), nil
}
