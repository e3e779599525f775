package domain

import "time"

// Event names as seen by clients.
const (
	EventConnectionEstablished  = "connection-established"
	EventNewMessage             = "new-message"
	EventUnreadCountChanged     = "unread-count-changed"
	EventConversationMarkedRead = "conversation-marked-read"
	EventNotification           = "notification"
)

// Event is a named payload pushed to one user's channel. Data is encoded
// as JSON by the transport.
type Event struct {
	Name string
	Data any
}

type ConnectionEstablished struct {
	UserID       int64     `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

type UnreadCountChanged struct {
	ConversationID int64 `json:"conversationId"`
	Count          int64 `json:"count"`
}

type ConversationMarkedRead struct {
	ConversationID int64 `json:"conversationId"`
}

// Notification is a free-form user notification, e.g. a project invitation.
type Notification struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	SentAt  time.Time      `json:"sentAt"`
}

// Pusher delivers an event to a user's live channel. It never blocks on
// offline users and reports whether the event was written.
type Pusher interface {
	Push(userID int64, ev Event) bool
}

// PresenceReader reports which conversation a user is currently viewing.
type PresenceReader interface {
	IsActive(userID, conversationID int64) bool
}
