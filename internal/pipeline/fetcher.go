package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/epimap/internal/model"
)

const fetchMaxRetries = 3

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

// ErrDisallowed is returned when robots.txt forbids fetching a URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// RateLimiter paces outbound requests per host
type RateLimiter interface {
	WaitWithDelay(ctx context.Context, rawURL string, additionalDelay time.Duration) error
}

// RobotsPolicy decides whether a URL may be fetched
type RobotsPolicy interface {
	CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error)
}

// Fetcher fetches HTML pages whose visible text is tagged passage by passage
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    RateLimiter
	robots     RobotsPolicy
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithRateLimiter paces requests per host
func WithRateLimiter(l RateLimiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRobots enforces a robots.txt policy
func WithRobots(r RobotsPolicy) FetcherOption {
	return func(f *Fetcher) { f.robots = r }
}

// NewFetcher creates a fetcher from the fetch configuration
func NewFetcher(cfg model.FetchConfig, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{Proxy: ProxyFunc(cfg)},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ProxyFunc selects the proxy for a page or robots.txt request: https_proxy
// for https targets, http_proxy for the rest and as the https fallback.
// With neither configured the environment decides.
func ProxyFunc(cfg model.FetchConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	plain, plainErr := parseProxy(cfg.HTTPProxy)
	secure, secureErr := parseProxy(cfg.HTTPSProxy)
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
			return secure, secureErr
		}
		if cfg.HTTPProxy != "" {
			return plain, plainErr
		}
		return http.ProxyFromEnvironment(req)
	}
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", raw)
	}
	return u, nil
}

// FetchResult contains the fetched HTML and response metadata
type FetchResult struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
}

// Fetch retrieves a page once, honouring robots.txt and the rate limiter
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	var crawlDelay time.Duration
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("check robots.txt: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		crawlDelay = delay
	}

	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		HTML:        string(data),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// FetchWithRetry retries transient failures with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) {
			return nil, err
		}
		if attempt < fetchMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			fetchSleepFunc(backoff)
		}
	}
	return nil, lastErr
}

// isRetryableFetchError returns true for 5xx, 429 and transient network errors
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisallowed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "unexpected status: 5") || strings.Contains(s, "unexpected status: 429") {
		return true
	}
	if strings.HasPrefix(s, "fetch:") {
		return strings.Contains(s, "timeout") ||
			strings.Contains(s, "connection refused") ||
			strings.Contains(s, "connection reset") ||
			strings.Contains(s, "eof")
	}
	return false
}
