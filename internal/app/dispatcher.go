package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/pscheid92/projectpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Dispatcher fans authored messages out to every conversation participant
// and keeps their read state and unread counters in sync.
type Dispatcher struct {
	messages    domain.MessageRepository
	members     domain.MembershipResolver
	presence    domain.PresenceReader
	pusher      domain.Pusher
	clock       clockwork.Clock
	metrics     *metrics.FanoutMetrics
	unreadGroup singleflight.Group
}

// NewDispatcher wires the fan-out use cases. m may be nil.
func NewDispatcher(messages domain.MessageRepository, members domain.MembershipResolver, presence domain.PresenceReader, pusher domain.Pusher, clock clockwork.Clock, m *metrics.FanoutMetrics) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		members:  members,
		presence: presence,
		pusher:   pusher,
		clock:    clock,
		metrics:  m,
	}
}

// SendMessage resolves the conversation's participants and fans the message
// out to them. It returns the sender's own delivery record.
func (d *Dispatcher) SendMessage(ctx context.Context, senderID, conversationID int64, content string) (domain.DeliveryRecord, error) {
	participants, err := d.members.Participants(ctx, conversationID)
	if err != nil {
		d.countSend("rejected")
		return domain.DeliveryRecord{}, err
	}
	return d.Fanout(ctx, senderID, conversationID, content, participants)
}

// Fanout persists one record per participant in a single batch and, once
// the batch is committed, pushes new-message and unread-count-changed to
// each of them. The sender's copy is always read; other copies are read
// only if the recipient is viewing the conversation right now.
func (d *Dispatcher) Fanout(ctx context.Context, senderID, conversationID int64, content string, participants []int64) (domain.DeliveryRecord, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		d.countSend("rejected")
		return domain.DeliveryRecord{}, err
	}

	recipients := dedupe(participants)
	if !slices.Contains(recipients, senderID) {
		d.countSend("rejected")
		return domain.DeliveryRecord{}, domain.ErrNotParticipant
	}

	start := d.clock.Now()
	// Postgres keeps microseconds; truncating keeps pushed and stored
	// timestamps identical.
	sentAt := start.UTC().Truncate(time.Microsecond)

	records := make([]domain.DeliveryRecord, 0, len(recipients))
	for _, recipientID := range recipients {
		records = append(records, domain.DeliveryRecord{
			SenderID:       senderID,
			RecipientID:    recipientID,
			ConversationID: conversationID,
			Content:        content,
			SentAt:         sentAt,
			IsRead:         recipientID == senderID || d.presence.IsActive(recipientID, conversationID),
		})
	}

	saved, err := d.messages.SaveBatch(ctx, records)
	if err != nil {
		d.countSend("failed")
		return domain.DeliveryRecord{}, fmt.Errorf("failed to persist message: %w", err)
	}
	if d.metrics != nil {
		d.metrics.RecordsPersisted.Add(float64(len(saved)))
	}

	// The batch is committed; the caller going away must not cut the
	// pushes short.
	pushCtx := context.WithoutCancel(ctx)
	counts, err := d.messages.UnreadCounts(pushCtx, conversationID, recipients)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load unread counts, skipping count events", "conversation_id", conversationID, "error", err)
		counts = nil
	}

	var own domain.DeliveryRecord
	delivered := 0
	for _, rec := range saved {
		if rec.RecipientID == senderID {
			own = rec
		}
		if d.deliver(pushCtx, rec, counts) {
			delivered++
		}
	}

	d.countSend("sent")
	if d.metrics != nil {
		d.metrics.FanoutDuration.Observe(d.clock.Since(start).Seconds())
	}
	slog.InfoContext(ctx, "Message fanned out",
		"conversation_id", conversationID,
		"sender_id", senderID,
		"recipients", len(saved),
		"delivered_live", delivered)

	return own, nil
}

// deliver pushes one recipient's events. Whatever happens here stays with
// this recipient.
func (d *Dispatcher) deliver(ctx context.Context, rec domain.DeliveryRecord, counts map[int64]int64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic while pushing to recipient", "recipient_id", rec.RecipientID, "panic", r)
			ok = false
		}
	}()

	ok = d.pusher.Push(rec.RecipientID, domain.Event{Name: domain.EventNewMessage, Data: rec})
	if counts == nil {
		return ok
	}

	d.pusher.Push(rec.RecipientID, domain.Event{
		Name: domain.EventUnreadCountChanged,
		Data: domain.UnreadCountChanged{ConversationID: rec.ConversationID, Count: counts[rec.RecipientID]},
	})
	return ok
}

// MarkConversationRead flips every unread record of userID in the
// conversation to read. When something changed the user is told their
// count is now zero; a repeated call changes nothing and pushes nothing.
func (d *Dispatcher) MarkConversationRead(ctx context.Context, userID, conversationID int64) (int64, error) {
	if err := d.requireParticipant(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	updated, err := d.messages.MarkConversationRead(ctx, userID, conversationID)
	if err != nil {
		d.countMarkRead("error")
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if updated == 0 {
		d.countMarkRead("noop")
		return 0, nil
	}
	d.countMarkRead("updated")

	d.pusher.Push(userID, domain.Event{
		Name: domain.EventUnreadCountChanged,
		Data: domain.UnreadCountChanged{ConversationID: conversationID, Count: 0},
	})
	d.pusher.Push(userID, domain.Event{
		Name: domain.EventConversationMarkedRead,
		Data: domain.ConversationMarkedRead{ConversationID: conversationID},
	})

	slog.DebugContext(ctx, "Conversation marked read", "conversation_id", conversationID, "updated", updated)
	return updated, nil
}

func (d *Dispatcher) requireParticipant(ctx context.Context, userID, conversationID int64) error {
	participants, err := d.members.Participants(ctx, conversationID)
	if err != nil {
		return err
	}
	if !slices.Contains(participants, userID) {
		return domain.ErrNotParticipant
	}
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return domain.ErrEmptyContent
	}
	if len(content) > domain.MaxContentLength {
		return domain.ErrContentTooLong
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) countSend(result string) {
	if d.metrics != nil {
		d.metrics.MessagesSent.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) countMarkRead(outcome string) {
	if d.metrics != nil {
		d.metrics.MarkReadTotal.WithLabelValues(outcome).Inc()
	}
}
