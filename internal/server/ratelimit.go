package server

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// visitorIdleTTL is how long a client's bucket survives without requests
const visitorIdleTTL = 10 * time.Minute

// clientLimiterStore is an echo RateLimiterStore with one token bucket per
// client. Buckets expire after ttl without traffic so the set of tracked
// clients stays bounded by recent activity.
type clientLimiterStore struct {
	rate     rate.Limit
	burst    int
	mu       sync.Mutex
	visitors *gocache.Cache
}

func newClientLimiterStore(rps float64, burst int, ttl time.Duration) *clientLimiterStore {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = visitorIdleTTL
	}
	return &clientLimiterStore{
		rate:     rate.Limit(rps),
		burst:    burst,
		visitors: gocache.New(ttl, ttl),
	}
}

// Allow spends one token from the client's bucket
func (s *clientLimiterStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	var lim *rate.Limiter
	if v, ok := s.visitors.Get(identifier); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(s.rate, s.burst)
	}
	// Re-setting pushes the idle deadline forward
	s.visitors.SetDefault(identifier, lim)
	s.mu.Unlock()

	return lim.Allow(), nil
}

// Prune drops expired buckets now and returns how many remain
func (s *clientLimiterStore) Prune() int {
	s.visitors.DeleteExpired()
	return s.visitors.ItemCount()
}
