package domain

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
	ErrEmptyContent         = errors.New("message content must not be empty")
	ErrContentTooLong       = errors.New("message content too long")
	ErrConnectionClosed     = errors.New("connection closed")
)
