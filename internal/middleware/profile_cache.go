package middleware

import (
	"sync"
	"time"
)

const (
	profileCacheTTL  = 10 * time.Minute
	profileCacheSize = 10000
)

// profileCache remembers which users recently had their profile ensured.
// Entries expire so a deleted profile is recreated on a later request.
type profileCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	now  func() time.Time
	seen map[string]time.Time
}

func newProfileCache(ttl time.Duration, max int) *profileCache {
	return &profileCache{
		ttl:  ttl,
		max:  max,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

func (p *profileCache) fresh(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	expires, ok := p.seen[userID]
	if !ok {
		return false
	}
	if p.now().After(expires) {
		delete(p.seen, userID)
		return false
	}
	return true
}

func (p *profileCache) mark(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if len(p.seen) >= p.max {
		for id, expires := range p.seen {
			if now.After(expires) {
				delete(p.seen, id)
			}
		}
		if len(p.seen) >= p.max {
			p.seen = make(map[string]time.Time)
		}
	}
	p.seen[userID] = now.Add(p.ttl)
}
