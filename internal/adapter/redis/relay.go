package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/pscheid92/projectpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	relayChannel   = "projectpulse:events"
	publishTimeout = 2 * time.Second
	// publishQueueSize bounds envelopes waiting for the publisher; beyond it
	// events are dropped.
	publishQueueSize = 1024
)

// LocalPusher is the per-instance connection registry.
type LocalPusher interface {
	domain.Pusher
	IsOnline(userID int64) bool
}

// envelope is the wire format on the relay channel.
type envelope struct {
	Origin string          `json:"origin"`
	UserID int64           `json:"userId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Relay forwards events for users connected to another instance. Users
// connected locally are served by the local registry directly.
type Relay struct {
	rdb     *goredis.Client
	local   LocalPusher
	origin  string
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.RedisMetrics
	queue   chan []byte
	ready   chan struct{}
}

var _ domain.Pusher = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, local LocalPusher, origin string, m *metrics.RedisMetrics) *Relay {
	return &Relay{
		rdb:     rdb,
		local:   local,
		origin:  origin,
		cb:      newBreaker(),
		metrics: m,
		queue:   make(chan []byte, publishQueueSize),
		ready:   make(chan struct{}),
	}
}

// newBreaker opens after 60% failures over at least 5 publishes and probes
// again after 30s.
func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-relay",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
}

// Push delivers locally when the user is connected here, otherwise it
// queues the event for the other instances and returns at once. Only local
// delivery is reported as true.
func (r *Relay) Push(userID int64, ev domain.Event) bool {
	if r.local.IsOnline(userID) {
		return r.local.Push(userID, ev)
	}

	payload, err := r.encode(userID, ev)
	if err != nil {
		r.countPublished("failed")
		slog.Warn("Failed to relay event", "user_id", userID, "event", ev.Name, "error", err)
		return false
	}

	select {
	case r.queue <- payload:
	default:
		r.countPublished("dropped")
		slog.Warn("Relay queue full, dropping event", "user_id", userID, "event", ev.Name)
	}
	return false
}

func (r *Relay) encode(userID int64, ev domain.Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	payload, err := json.Marshal(envelope{Origin: r.origin, UserID: userID, Event: ev.Name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return payload, nil
}

// runPublisher drains the queue until ctx is cancelled.
func (r *Relay) runPublisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.queue:
			r.publish(payload)
		}
	}
}

func (r *Relay) publish(payload []byte) {
	_, err := r.cb.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return nil, r.rdb.Publish(ctx, relayChannel, payload).Err()
	})
	if err != nil {
		result := "failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		r.countPublished(result)
		slog.Warn("Failed to publish relay event", "error", err)
		return
	}
	r.countPublished("published")
}

// Start runs the publisher and subscribes to the relay channel, delivering
// events published by other instances until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	go r.runPublisher(ctx)

	sub := r.rdb.Subscribe(ctx, relayChannel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", relayChannel, err)
	}
	close(r.ready)
	slog.Info("Relay subscribed", "channel", relayChannel, "origin", r.origin)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.countReceived(r.handle(msg.Payload))
		}
	}
}

// Ready is closed once the subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

func (r *Relay) handle(payload string) string {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("Dropping malformed relay message", "error", err)
		return "invalid"
	}
	if env.Origin == r.origin {
		return "ignored"
	}
	if !r.local.IsOnline(env.UserID) {
		return metrics.ResultOffline
	}
	if !r.local.Push(env.UserID, domain.Event{Name: env.Event, Data: env.Data}) {
		return metrics.ResultFailed
	}
	return metrics.ResultDelivered
}

func (r *Relay) countPublished(result string) {
	if r.metrics != nil {
		r.metrics.RelayPublished.WithLabelValues(result).Inc()
	}
}

func (r *Relay) countReceived(result string) {
	if r.metrics != nil {
		r.metrics.RelayReceived.WithLabelValues(result).Inc()
	}
}
