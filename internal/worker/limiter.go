package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter paces page fetches with one token bucket per host. Hosts are
// compared case-insensitively and without port, so every URL of a site
// shares one budget.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// NewHostLimiter creates a limiter allowing rps requests per second per host
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		hosts: make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// Wait blocks until a request to rawURL's host may proceed
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	lim, err := l.forURL(rawURL)
	if err != nil {
		return err
	}
	return lim.Wait(ctx)
}

// Allow reports whether a request to rawURL's host may proceed now
func (l *HostLimiter) Allow(rawURL string) bool {
	lim, err := l.forURL(rawURL)
	if err != nil {
		return false
	}
	return lim.Allow()
}

// WaitWithDelay waits for the host's turn, then for delay, e.g. a robots.txt crawl delay
func (l *HostLimiter) WaitWithDelay(ctx context.Context, rawURL string, delay time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetHostRate overrides the pace for one host
func (l *HostLimiter) SetHostRate(host string, rps float64, burst int) {
	if burst <= 0 {
		burst = l.burst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts[strings.ToLower(host)] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Hosts returns the number of hosts seen so far
func (l *HostLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *HostLimiter) forURL(rawURL string) (*rate.Limiter, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.hosts[host] = lim
	}
	return lim, nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	return host, nil
}
