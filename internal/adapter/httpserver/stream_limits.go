package httpserver

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/projectpulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const (
	connectLimiterIdle    = 10 * time.Minute
	connectLimiterCleanup = 5 * time.Minute
)

// Reasons used as the "reason" label when a stream is refused.
const (
	limitReasonCapacity = "capacity"
	limitReasonRate     = "rate"
)

// streamCapacity caps the number of open push streams on this instance.
type streamCapacity struct {
	current atomic.Int64
	max     int64
}

func (l *streamCapacity) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *streamCapacity) release() {
	l.current.Add(-1)
}

type connectEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// connectRate throttles how often a single user may (re)open a stream, so a
// client stuck in a reconnect loop cannot churn the registry.
type connectRate struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*connectEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

func newConnectRate(clock clockwork.Clock, perSecond float64, burst int) *connectRate {
	return &connectRate{
		clock:     clock,
		limiters:  make(map[string]*connectEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(connectLimiterCleanup),
	}
}

func (l *connectRate) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(connectLimiterCleanup)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &connectEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup must be called with mu held.
func (l *connectRate) cleanup(now time.Time) {
	cutoff := now.Add(-connectLimiterIdle)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *connectRate) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// streamLimits guards the subscribe endpoints. The slot is held for the
// lifetime of the handler, i.e. until the stream ends.
type streamLimits struct {
	capacity *streamCapacity
	connects *connectRate
	rejected func(reason string)
}

func newStreamLimits(clock clockwork.Clock, maxStreams int64, perSecond float64, burst int, rejected func(reason string)) *streamLimits {
	return &streamLimits{
		capacity: &streamCapacity{max: maxStreams},
		connects: newConnectRate(clock, perSecond, burst),
		rejected: rejected,
	}
}

func (l *streamLimits) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "user:" + strconv.FormatInt(currentUser(c), 10)
			if !l.connects.allow(key) {
				l.reject(limitReasonRate)
				return apperrors.RateLimitedError("too many stream connects")
			}
			if !l.capacity.acquire() {
				l.reject(limitReasonCapacity)
				return apperrors.UnavailableError("stream capacity reached")
			}
			defer l.capacity.release()
			return next(c)
		}
	}
}

func (l *streamLimits) reject(reason string) {
	if l.rejected != nil {
		l.rejected(reason)
	}
}
