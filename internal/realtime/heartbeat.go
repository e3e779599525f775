package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/projectpulse/internal/platform/correlation"
)

// Heartbeat periodically pings every registered connection. It is the only
// way a silently dead peer gets pruned. Exactly one runs per registry.
type Heartbeat struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
}

func NewHeartbeat(registry *Registry, clock clockwork.Clock, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		clock:    clock,
		interval: interval,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	slog.Info("Heartbeat started", "interval", h.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat stopped")
			return
		case <-ticker.Chan():
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	ctx = correlation.WithID(ctx, correlation.NewID())

	sent, pruned := h.registry.Heartbeat(ctx)
	if pruned > 0 {
		slog.InfoContext(ctx, "Heartbeat: pruned dead connections", "pruned", pruned, "alive", sent)
		return
	}
	slog.DebugContext(ctx, "Heartbeat: tick", "alive", sent)
}
