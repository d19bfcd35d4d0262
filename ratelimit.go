package roomsocket

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter interface {
	AllowClient(clientID string) bool

	RemoveClient(clientID string)

	// MaxViolations is how many rejected frames close the connection.
	MaxViolations() int

	Stop()
}

// RateLimiterManager keeps one token bucket per client. Idle buckets are
// dropped by a background cleanup loop.
type RateLimiterManager struct {
	config RateLimiterConfig

	clientsMu sync.Mutex
	clients   map[string]*limiterEntry

	quit     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiterManager(config RateLimiterConfig) *RateLimiterManager {
	rl := &RateLimiterManager{
		config:  config,
		clients: make(map[string]*limiterEntry),
		quit:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// AllowClient returns true if client with given id is allowed (token available).
// Should be called for each incoming frame from the client.
func (r *RateLimiterManager) AllowClient(clientID string) bool {
	r.clientsMu.Lock()
	entry, ok := r.clients[clientID]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(r.config.PerClientRate), r.config.PerClientBurst),
		}
		r.clients[clientID] = entry
	}
	entry.lastSeen = time.Now()
	lim := entry.limiter
	r.clientsMu.Unlock()

	return lim.Allow()
}

func (r *RateLimiterManager) RemoveClient(clientID string) {
	r.clientsMu.Lock()
	delete(r.clients, clientID)
	r.clientsMu.Unlock()
}

func (r *RateLimiterManager) MaxViolations() int {
	return r.config.MaxRateLimitViolations
}

func (r *RateLimiterManager) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *RateLimiterManager) cleanupLoop() {
	t := time.NewTicker(r.config.CleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			r.cleanup()
		case <-r.quit:
			return
		}
	}
}

func (r *RateLimiterManager) cleanup() {
	threshold := time.Now().Add(-r.config.EntryTTL)

	r.clientsMu.Lock()
	for k, v := range r.clients {
		if v.lastSeen.Before(threshold) {
			delete(r.clients, k)
		}
	}
	r.clientsMu.Unlock()
}
