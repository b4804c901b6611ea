package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/epimap/internal/catalogue"
	"github.com/ppiankov/epimap/internal/classify"
	"github.com/ppiankov/epimap/internal/graph"
	"github.com/ppiankov/epimap/internal/metrics"
	"github.com/ppiankov/epimap/internal/model"
	"github.com/ppiankov/epimap/internal/pipeline"
)

func newTestServer(t *testing.T, mutate func(*model.Config), opts ...Option) *Server {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Server.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}

	cls, err := classify.New(catalogue.MustDefault(), cfg.Engine.MinConfidenceThreshold)
	if err != nil {
		t.Fatalf("classify.New failed: %v", err)
	}
	p := pipeline.New(cls, graph.New(), cfg.Engine)

	s, err := NewServer(p, cfg.Server, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s
}

func postText(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, model.TagResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tag/text", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp model.TagResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not a TagResponse: %v (%s)", err, rec.Body.String())
	}
	return rec, resp
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresPipeline(t *testing.T) {
	if _, err := NewServer(nil, model.DefaultConfig().Server, nil); err == nil {
		t.Error("expected error for nil pipeline")
	}
}

func TestHandleTagText(t *testing.T) {
	s := newTestServer(t, nil)

	rec, resp := postText(t, s, `{"text": "The p<0.05 value indicates statistical significance in our measurements."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !resp.Success || resp.Error != nil || resp.Node == nil {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Node.Tags[0].Category != model.CategoryEmpiricalQuantitative {
		t.Errorf("expected Empirical-Quantitative, got %s", resp.Node.Tags[0].Category)
	}
	if resp.Node.SourceType != "text" {
		t.Errorf("expected source_type text, got %s", resp.Node.SourceType)
	}

	// Wire format uses the display label under "type"
	if !strings.Contains(rec.Body.String(), `"type":"Empirical-Quantitative"`) {
		t.Errorf("expected display label on the wire, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"processing_time"`) {
		t.Error("expected processing_time field")
	}
}

func TestHandleTagText_Errors(t *testing.T) {
	s := newTestServer(t, func(c *model.Config) { c.Engine.MaxTextLength = 20 })

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty", `{"text": ""}`, "Text cannot be empty"},
		{"whitespace", `{"text": "   "}`, "Text cannot be empty"},
		{"missing field", `{}`, "Text cannot be empty"},
		{"too long", `{"text": "this passage is clearly longer than twenty characters"}`, "Text too long (max 20)"},
		{"bad json", `{"text": `, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := postText(t, s, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if resp.Success || resp.Node != nil {
				t.Errorf("expected failure envelope, got %+v", resp)
			}
			if resp.Error == nil || *resp.Error != tt.wantMsg {
				t.Errorf("expected error %q, got %v", tt.wantMsg, resp.Error)
			}
		})
	}

	// Padding is trimmed before the length check
	rec, _ := postText(t, s, `{"text": "    short passage       "}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected trimmed text to pass, got %d", rec.Code)
	}
}

func TestGraphAndStats(t *testing.T) {
	s := newTestServer(t, nil)

	for _, text := range []string{
		"Our elders say that this tradition has been passed down for generations.",
		"This is a generic text with no specific epistemological markers.",
	} {
		body, _ := json.Marshal(TagRequest{Text: text})
		if rec, _ := postText(t, s, string(body)); rec.Code != http.StatusOK {
			t.Fatalf("tagging failed: %d", rec.Code)
		}
	}

	rec := get(t, s, "/api/graph")
	var snap model.GraphSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if len(snap.Nodes) != 2 || len(snap.Links) != 1 {
		t.Fatalf("expected 2 nodes and 1 link, got %d and %d", len(snap.Nodes), len(snap.Links))
	}
	if snap.Links[0].Source != snap.Nodes[0].ID || snap.Links[0].Target != snap.Nodes[1].ID {
		t.Errorf("link does not join consecutive nodes: %+v", snap.Links[0])
	}

	rec = get(t, s, "/api/stats")
	var stats model.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalNodes != 2 || stats.TotalLinks != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.TagDistribution["Oral-Intergenerational"] != 1 || stats.TagDistribution["Experiential-Personal"] != 1 {
		t.Errorf("unexpected distribution: %+v", stats.TagDistribution)
	}

	rec = get(t, s, "/api/graph?format=yaml")
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/yaml" {
		t.Errorf("expected yaml content type, got %s", ct)
	}
	var ysnap model.GraphSnapshot
	if err := yaml.Unmarshal(rec.Body.Bytes(), &ysnap); err != nil {
		t.Fatalf("decode yaml graph: %v", err)
	}
	if len(ysnap.Nodes) != 2 || ysnap.Nodes[0].ID != snap.Nodes[0].ID {
		t.Errorf("yaml graph differs from json graph")
	}
}

func TestEmptyGraph(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/graph")
	if strings.TrimSpace(rec.Body.String()) != `{"nodes":[],"links":[]}` {
		t.Errorf("unexpected empty graph body: %s", rec.Body.String())
	}

	rec = get(t, s, "/api/stats")
	if strings.TrimSpace(rec.Body.String()) != `{"total_nodes":0,"total_links":0,"tag_distribution":{}}` {
		t.Errorf("unexpected empty stats body: %s", rec.Body.String())
	}
}

func TestHandleEpistemologies(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/epistemologies")
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 12 {
		t.Errorf("expected 12 explanations, got %d", len(out))
	}
	if out["Legal-Precedential"] != "Based on laws, regulations, and precedents." {
		t.Errorf("unexpected explanation: %q", out["Legal-Precedential"])
	}
}

func TestHandleCategories(t *testing.T) {
	s := newTestServer(t, nil)

	rec := get(t, s, "/api/categories")
	var out []catalogue.Description
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 12 || out[0].ID != "EMPIRICAL_QUANTITATIVE" {
		t.Errorf("unexpected categories: %+v", out)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SetGraphNodes(0)

	s := newTestServer(t, nil, WithGatherer(reg), WithVersion("1.2.3"))

	rec := get(t, s, "/health")
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Version != "1.2.3" {
		t.Errorf("unexpected health: %+v", health)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected request id header")
	}

	rec = get(t, s, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "epimap_graph_nodes") {
		t.Errorf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	s := newTestServer(t, nil)
	if rec := get(t, s, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without gatherer, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *model.Config) {
		c.Server.RateLimitRPS = 0.001
		c.Server.RateLimitBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, get(t, s, "/api/stats").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200, 200, 429, got %v", codes)
	}

	// Health checks are never limited
	if rec := get(t, s, "/health"); rec.Code != http.StatusOK {
		t.Errorf("expected health to bypass the limiter, got %d", rec.Code)
	}

	var body map[string]string
	rec := get(t, s, "/api/stats")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body["message"] != "rate limit exceeded" {
		t.Errorf("unexpected error body: %v", body)
	}
	if n := s.limiter.Prune(); n != 1 {
		t.Errorf("expected one tracked client, got %d", n)
	}
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		wantCodes  []int
		wantKeys   int
	}{
		{"spoofed header ignored", false, "192.0.2.1:1234", []int{200, 429, 429}, 1},
		{"trusted proxy hops", true, "10.0.0.1:5555", []int{200, 200, 200}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(c *model.Config) {
				c.Server.RateLimitRPS = 0.001
				c.Server.RateLimitBurst = 1
				c.Server.TrustProxy = tt.trustProxy
			})

			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
				req.RemoteAddr = tt.remoteAddr
				req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("203.0.113.%d", i+1))
				rec := httptest.NewRecorder()
				s.Handler().ServeHTTP(rec, req)
				codes = append(codes, rec.Code)
			}
			if diff := cmp.Diff(tt.wantCodes, codes); diff != "" {
				t.Errorf("status codes mismatch (-want +got):\n%s", diff)
			}
			if n := s.limiter.Prune(); n != tt.wantKeys {
				t.Errorf("expected %d tracked clients, got %d", tt.wantKeys, n)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(c *model.Config) { c.Server.CORSOrigins = []string{"https://app.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/tag/text", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.example" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(c *model.Config) { c.Server.BodyLimit = "1K" })

	body := `{"text": "` + strings.Repeat("a", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tag/text", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	s := newTestServer(t, nil)
	s.echo.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})

	rec := get(t, s, "/panic")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	s := newTestServer(t, func(c *model.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = 0
		c.Server.ShutdownTimeout = 2 * time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Addr() == nil {
		t.Fatal("server did not start listening")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
