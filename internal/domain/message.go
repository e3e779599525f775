package domain

import (
	"context"
	"time"
)

// MaxContentLength bounds a single message body (bytes).
const MaxContentLength = 4000

// DeliveryRecord is one recipient's copy of an authored message. A send to N
// participants persists N records sharing SentAt, each with its own IsRead.
type DeliveryRecord struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"senderId"`
	RecipientID    int64     `json:"recipientId"`
	ConversationID int64     `json:"conversationId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// MessageRepository stores delivery records. SaveBatch is all-or-nothing.
type MessageRepository interface {
	SaveBatch(ctx context.Context, records []DeliveryRecord) ([]DeliveryRecord, error)
	// MarkConversationRead flips the user's unread records in the
	// conversation to read and reports how many rows changed.
	MarkConversationRead(ctx context.Context, userID, conversationID int64) (int64, error)
	// UnreadCounts returns the unread count in one conversation for each of
	// userIDs; users with nothing unread map to 0.
	UnreadCounts(ctx context.Context, conversationID int64, userIDs []int64) (map[int64]int64, error)
	ListConversation(ctx context.Context, userID, conversationID int64) ([]DeliveryRecord, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	CountUnreadByConversation(ctx context.Context, userID int64) (map[int64]int64, error)
}

// MembershipResolver answers who takes part in a conversation.
type MembershipResolver interface {
	// Participants returns ErrConversationNotFound for unknown conversations.
	Participants(ctx context.Context, conversationID int64) ([]int64, error)
}
