package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/pscheid92/projectpulse/internal/domain"
	"golang.org/x/sync/errgroup"
)

// heartbeatParallelism bounds concurrent heartbeat writes so one slow peer
// cannot hold up the whole tick.
const heartbeatParallelism = 32

// Registry holds at most one Connection per user.
//
// Any goroutine may read or insert-or-replace; removal is compare-and-remove
// on the connection handle.
type Registry struct {
	clock   clockwork.Clock
	metrics *metrics.RealtimeMetrics

	mu    sync.RWMutex
	conns map[int64]*Connection
}

var _ domain.Pusher = (*Registry)(nil)

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(clock clockwork.Clock, m *metrics.RealtimeMetrics) *Registry {
	return &Registry{
		clock:   clock,
		metrics: m,
		conns:   make(map[int64]*Connection),
	}
}

// Register stores a new connection for userID, replacing and closing any
// previous one, then writes connection-established synchronously. If that
// write fails the registration is rolled back and the error returned.
func (r *Registry) Register(userID int64, sink Sink) (*Connection, error) {
	now := r.clock.Now()
	conn := newConnection(userID, sink, now)

	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.updateGauge()
	r.mu.Unlock()

	if prev != nil {
		slog.Info("Connection replaced", "user_id", userID, "old_connection_id", prev.handle, "connection_id", conn.handle)
		if r.metrics != nil {
			r.metrics.Replacements.Inc()
		}
		// A replaced connection may be mid-write to a dead peer; the new
		// subscriber does not wait for it.
		go prev.close()
	}

	data, err := json.Marshal(domain.ConnectionEstablished{
		UserID:       userID,
		ConnectionID: conn.handle.String(),
		ConnectedAt:  now,
	})
	if err != nil {
		r.remove(userID, conn)
		return nil, fmt.Errorf("failed to encode connection-established: %w", err)
	}

	if err := conn.writeEvent(domain.EventConnectionEstablished, data); err != nil {
		r.remove(userID, conn)
		if r.metrics != nil {
			r.metrics.RegisterFailures.Inc()
		}
		return nil, fmt.Errorf("failed to send connection-established: %w", err)
	}
	conn.touch(r.clock.Now())

	slog.Info("Connection registered", "user_id", userID, "connection_id", conn.handle)
	return conn, nil
}

// Unregister removes conn if it is still the user's current connection and
// closes it either way. It reports whether the entry was removed.
func (r *Registry) Unregister(userID int64, conn *Connection) bool {
	removed := r.remove(userID, conn)
	if removed {
		slog.Info("Connection unregistered", "user_id", userID, "connection_id", conn.handle)
	}
	return removed
}

// Push writes ev to the user's current connection. It returns false without
// blocking when the user has no connection. A failed write removes the
// connection; the error never reaches the caller.
func (r *Registry) Push(userID int64, ev domain.Event) bool {
	conn := r.lookup(userID)
	if conn == nil {
		r.countPush(ev.Name, metrics.ResultOffline)
		return false
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		slog.Error("Failed to encode event", "event", ev.Name, "user_id", userID, "error", err)
		r.countPush(ev.Name, metrics.ResultFailed)
		return false
	}

	if err := conn.writeEvent(ev.Name, data); err != nil {
		slog.Warn("Push failed, dropping connection", "user_id", userID, "event", ev.Name, "connection_id", conn.handle, "error", err)
		r.remove(userID, conn)
		r.countPush(ev.Name, metrics.ResultFailed)
		return false
	}

	conn.touch(r.clock.Now())
	r.countPush(ev.Name, metrics.ResultDelivered)
	return true
}

// Heartbeat writes a keep-alive to every registered connection and prunes
// those that fail.
func (r *Registry) Heartbeat(ctx context.Context) (sent, pruned int) {
	conns := r.snapshot()

	var sentCount, prunedCount atomic.Int64
	var g errgroup.Group
	g.SetLimit(heartbeatParallelism)

	for _, conn := range conns {
		g.Go(func() error {
			if err := conn.writeHeartbeat(); err != nil {
				slog.InfoContext(ctx, "Heartbeat failed, pruning connection", "user_id", conn.userID, "connection_id", conn.handle, "error", err)
				r.remove(conn.userID, conn)
				prunedCount.Add(1)
				return nil
			}
			conn.touch(r.clock.Now())
			sentCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	sent, pruned = int(sentCount.Load()), int(prunedCount.Load())
	if r.metrics != nil {
		r.metrics.HeartbeatsSent.Add(float64(sent))
		r.metrics.HeartbeatPrunes.Add(float64(pruned))
	}
	return sent, pruned
}

func (r *Registry) IsOnline(userID int64) bool {
	return r.lookup(userID) != nil
}

// LastSeenAt is the time of the last successful write to the user's current
// connection. It reports false when the user is offline.
func (r *Registry) LastSeenAt(userID int64) (time.Time, bool) {
	conn := r.lookup(userID)
	if conn == nil {
		return time.Time{}, false
	}
	return conn.LastSeenAt(), true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll removes and closes every connection. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int64]*Connection)
	r.updateGauge()
	r.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	slog.Info("Closed all connections", "count", len(conns))
}

func (r *Registry) lookup(userID int64) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) remove(userID int64, conn *Connection) bool {
	r.mu.Lock()
	removed := false
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
		removed = true
		r.updateGauge()
	}
	r.mu.Unlock()

	conn.close()
	return removed
}

// updateGauge must be called with mu held.
func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(len(r.conns)))
	}
}

func (r *Registry) countPush(event, result string) {
	if r.metrics != nil {
		r.metrics.EventsPushed.WithLabelValues(event, result).Inc()
	}
}
