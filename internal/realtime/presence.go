package realtime

import (
	"sync"

	"github.com/pscheid92/projectpulse/internal/domain"
)

// Presence records the conversation each user is currently viewing. It is
// advisory only and independent of connections: last writer wins.
type Presence struct {
	mu     sync.RWMutex
	active map[int64]int64
}

var _ domain.PresenceReader = (*Presence)(nil)

func NewPresence() *Presence {
	return &Presence{active: make(map[int64]int64)}
}

func (p *Presence) SetActive(userID, conversationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[userID] = conversationID
}

func (p *Presence) ClearActive(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, userID)
}

func (p *Presence) IsActive(userID, conversationID int64) bool {
	active, ok := p.Active(userID)
	return ok && active == conversationID
}

// Active returns the user's current conversation, if any.
func (p *Presence) Active(userID int64) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conversationID, ok := p.active[userID]
	return conversationID, ok
}
