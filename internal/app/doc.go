// Package app provides the application service layer.
//
// The Dispatcher orchestrates the messaging use cases: fan-out on send,
// bulk mark-read, unread counters, conversation history and ad-hoc user
// notifications. It depends on domain interfaces only; persistence and live
// delivery are injected.
package app
