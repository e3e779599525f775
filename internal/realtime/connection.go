package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/projectpulse/internal/domain"
)

// Sink is the transport half of a connection (an SSE stream, a WebSocket).
// Calls are serialised by the owning Connection.
type Sink interface {
	WriteEvent(name string, data []byte) error
	WriteHeartbeat() error
	Close() error
}

// Connection is one user's registered push channel. The handle identifies
// this particular registration so that a late teardown of a replaced
// connection cannot evict its successor.
type Connection struct {
	userID   int64
	handle   uuid.UUID
	openedAt time.Time
	sink     Sink

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	lastSeen atomic.Int64
}

func newConnection(userID int64, sink Sink, now time.Time) *Connection {
	c := &Connection{
		userID:   userID,
		handle:   uuid.New(),
		openedAt: now,
		sink:     sink,
		done:     make(chan struct{}),
	}
	c.touch(now)
	return c
}

func (c *Connection) UserID() int64       { return c.userID }
func (c *Connection) Handle() uuid.UUID   { return c.handle }
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

// Done is closed once the connection has been removed from the registry,
// replaced, or pruned. Transport handlers block on it.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) LastSeenAt() time.Time {
	return time.Unix(0, c.lastSeen.Load()).UTC()
}

func (c *Connection) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *Connection) writeEvent(name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	return c.sink.WriteEvent(name, data)
}

func (c *Connection) writeHeartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	return c.sink.WriteHeartbeat()
}

// close is idempotent. Once it returns no write is in flight and none
// will start, so the transport may release its resources.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	if err := c.sink.Close(); err != nil {
		slog.Debug("Sink close failed", "user_id", c.userID, "connection_id", c.handle, "error", err)
	}
}
