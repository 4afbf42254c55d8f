// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/newsdesk/internal/admission"
	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/diversity"
	"github.com/tomtom215/newsdesk/internal/events"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/middleware"
	"github.com/tomtom215/newsdesk/internal/pipeline"
	"github.com/tomtom215/newsdesk/internal/preference"
	"github.com/tomtom215/newsdesk/internal/scoring"
	"github.com/tomtom215/newsdesk/internal/transform"
)

const (
	chipBody   = "A new domestic chip design entered mass production this week."
	budgetBody = "The annual budget passed its final reading in parliament today."
	gossipBody = "A weekly roundup of celebrity sightings and red carpet outfits."
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []feedback.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev feedback.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, ev)
	return "fb_queued", nil
}

type testServer struct {
	handler  http.Handler
	profiles *preference.Store
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) testServer {
	t.Helper()

	repo := kv.NewMemoryRepository()
	reg := prometheus.NewRegistry()
	obs := metrics.NewPrometheus(reg)

	a := transform.DefaultStubAnalysis()
	a.Topics = nil
	proc := pipeline.NewProcessor(pipeline.DefaultProcessConfig(), &transform.StubService{Analysis: &a}, nil, obs)
	filter := admission.NewFilter(admission.DefaultConfig(), content.NewRecordStore(nil))
	selector, err := diversity.New(diversity.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	profiles := preference.NewStore(repo)
	curator := pipeline.NewCurator(pipeline.DefaultConfig(), filter, proc, scoring.NewEngine(scoring.DefaultConfig()),
		selector, profiles, pipeline.WithRepository(repo), pipeline.WithObserver(obs))
	processor := feedback.NewProcessor(feedback.DefaultConfig(), profiles, feedback.WithRepository(repo), feedback.WithObserver(obs))

	opts = append([]Option{WithRepository(repo), WithGatherer(reg), WithHTTPMetrics(middleware.NewHTTPMetrics(reg))}, opts...)
	h := NewHandler(curator, profiles, processor, opts...)
	return testServer{handler: NewRouter(h, cfg), profiles: profiles, registry: reg}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitDisabled = true
	return cfg
}

func (s testServer) do(t *testing.T, method, target, contentType, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec, env
}

func (s testServer) ingest(t *testing.T, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body, err := json.Marshal(IngestRequest{Items: []IngestItem{
		{Title: "chip", Body: chipBody, Source: "Tech Daily", Topics: []string{"tech"}},
		{Title: "budget", Body: budgetBody, Source: "Daily Bulletin", Topics: []string{"politics"}},
		{Title: "gossip", Body: gossipBody, Source: "Daily Bulletin", Topics: []string{"gossip"}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	return s.do(t, http.MethodPost, target, "application/json", string(body))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())

	rec, env := s.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
	health := decode[HealthStatus](t, env.Data)
	if health.Status != "healthy" || !health.StorageHealthy || !health.BusRunning {
		t.Errorf("health = %+v", health)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}

	if rec, _ := s.do(t, http.MethodGet, "/health/ready", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /health/ready = %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodGet, "/nope", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

func TestHealthReadyWithStoppedBus(t *testing.T) {
	t.Parallel()

	bus, err := events.NewBus(events.DefaultConfig(), nil, metrics.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	s := newTestServer(t, testConfig(), WithPublisher(bus))

	rec, _ := s.do(t, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health/ready = %d, want 503", rec.Code)
	}
}

func TestIngestAndRecommend(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())

	rec, env := s.ingest(t, "/api/v1/ingest")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d %s", rec.Code, rec.Body.String())
	}
	report := decode[pipeline.IngestReport](t, env.Data)
	if report.Received != 3 || report.Admitted != 3 || report.Kept != 3 {
		t.Errorf("report = %+v", report)
	}

	rec, env = s.do(t, http.MethodGet, "/api/v1/recommendations?user=u1&k=2", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /recommendations = %d %s", rec.Code, rec.Body.String())
	}
	first := decode[RecommendationsResponse](t, env.Data)
	if first.UserID != "u1" || len(first.Recommendations) != 2 {
		t.Fatalf("recommendations = %+v", first)
	}

	// The remaining pool item is all that is left for u1.
	_, env = s.do(t, http.MethodGet, "/api/v1/recommendations?user=u1&k=2", "", "")
	second := decode[RecommendationsResponse](t, env.Data)
	if len(second.Recommendations) != 1 {
		t.Fatalf("second round = %d items, want 1", len(second.Recommendations))
	}
	for _, r := range first.Recommendations {
		if r.Item.ID == second.Recommendations[0].Item.ID {
			t.Errorf("item %s recommended twice", r.Item.Title)
		}
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/recommendations?user=u1", "", "")
	if empty := decode[RecommendationsResponse](t, env.Data); empty.Recommendations == nil || len(empty.Recommendations) != 0 {
		t.Errorf("exhausted pool = %+v, want empty list", empty)
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/users/u1/history", "", "")
	if history := decode[[]pipeline.HistoryEntry](t, env.Data); len(history) != 2 {
		t.Errorf("history = %d entries, want 2", len(history))
	}
}

func TestIngestCurate(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())

	rec, env := s.ingest(t, "/api/v1/ingest?user=u9&k=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[RecommendationsResponse](t, env.Data)
	if len(resp.Recommendations) != 1 || resp.Ingest == nil || resp.Ingest.Admitted != 3 {
		t.Errorf("curate = %+v", resp)
	}
}

func TestIngestFeed(t *testing.T) {
	t.Parallel()

	const doc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title><language>en</language>
<item><title>Battery plant opens</title><description>&lt;p&gt;A new solid-state battery plant opened in the north.&lt;/p&gt;</description>
<category>Tech</category><pubDate>Mon, 02 Mar 2026 08:00:00 GMT</pubDate></item>
</channel></rss>`

	s := newTestServer(t, testConfig())
	rec, env := s.do(t, http.MethodPost, "/api/v1/ingest?source=Wire", "application/rss+xml; charset=utf-8", doc)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest feed = %d %s", rec.Code, rec.Body.String())
	}
	if report := decode[pipeline.IngestReport](t, env.Data); report.Received != 1 || report.Kept != 1 {
		t.Errorf("report = %+v", report)
	}

	if rec, _ := s.do(t, http.MethodPost, "/api/v1/ingest", "application/xml", "<rss"); rec.Code != http.StatusBadRequest {
		t.Errorf("broken feed = %d, want 400", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{"missing user", http.MethodGet, "/api/v1/recommendations", "", "", http.StatusBadRequest, ErrCodeValidationFailed},
		{"non-numeric k", http.MethodGet, "/api/v1/recommendations?user=u1&k=abc", "", "", http.StatusBadRequest, ErrCodeBadRequest},
		{"k too large", http.MethodGet, "/api/v1/recommendations?user=u1&k=51", "", "", http.StatusBadRequest, ErrCodeValidationFailed},
		{"empty batch", http.MethodPost, "/api/v1/ingest", "application/json", `{"items":[]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown field", http.MethodPost, "/api/v1/ingest", "application/json", `{"entries":[]}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"item without source", http.MethodPost, "/api/v1/ingest", "application/json", `{"items":[{"title":"t","body":"b"}]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"plain text", http.MethodPost, "/api/v1/ingest", "text/plain", "hello", http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia},
		{"unknown reaction", http.MethodPost, "/api/v1/feedback", "application/json", `{"user_id":"u1","content_id":"c1","reaction":"love","content":{"topics":["tech"]}}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown bucket", http.MethodPut, "/api/v1/users/u1/schedule", "application/json", `{"bucket":"noon","types":["tech"]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown blacklist kind", http.MethodPost, "/api/v1/users/u1/blacklist", "application/json", `{"kind":"topic","value":"x"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"wrong method", http.MethodGet, "/api/v1/feedback", "", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, env := s.do(t, tt.method, tt.target, tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestFeedbackApplied(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())
	if rec, _ := s.ingest(t, "/api/v1/ingest"); rec.Code != http.StatusOK {
		t.Fatalf("ingest = %d", rec.Code)
	}
	chipID := content.Hash("chip", chipBody)

	body := `{"user_id":"u1","content_id":"` + chipID + `","reaction":"Like"}`
	rec, env := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /feedback = %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[FeedbackResponse](t, env.Data)
	if resp.Status != "applied" || !strings.HasPrefix(resp.EventID, "fb_") || resp.Comfort == nil {
		t.Errorf("feedback = %+v", resp)
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/users/u1/profile", "", "")
	profile := decode[preference.Profile](t, env.Data)
	if w := profile.TopicWeights["tech"]; w <= preference.NeutralWeight {
		t.Errorf("tech weight = %v, want above neutral after like", w)
	}

	// Re-sending the same event id is acknowledged without effect.
	dup := `{"id":"` + resp.EventID + `","user_id":"u1","content_id":"` + chipID + `","reaction":"like"}`
	if _, env = s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", dup); decode[FeedbackResponse](t, env.Data).Status != "duplicate" {
		t.Errorf("resend = %s, want duplicate", env.Data)
	}

	unknown := `{"user_id":"u1","content_id":"gone","reaction":"dislike"}`
	if rec, _ := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", unknown); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown content = %d, want 422", rec.Code)
	}

	explicit := `{"user_id":"u1","content_id":"gone","reaction":"dislike","content":{"topics":["gossip"],"source":"entertainment"}}`
	if rec, _ := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", explicit); rec.Code != http.StatusOK {
		t.Errorf("explicit descriptor = %d, want 200", rec.Code)
	}

	_, env = s.do(t, http.MethodGet, "/api/v1/users/u1/insights", "", "")
	insights := decode[feedback.Insights](t, env.Data)
	if insights.Trend != feedback.TrendInsufficientData || insights.Statistics.Total != 2 || insights.Statistics.Likes != 1 {
		t.Errorf("insights = %+v", insights)
	}
}

func TestFeedbackQueued(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	s := newTestServer(t, testConfig(), WithPublisher(pub))
	if rec, _ := s.ingest(t, "/api/v1/ingest"); rec.Code != http.StatusOK {
		t.Fatalf("ingest = %d", rec.Code)
	}

	body := `{"user_id":"u1","content_id":"` + content.Hash("chip", chipBody) + `","reaction":"refresh","comment":"seen it"}`
	rec, env := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /feedback = %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[FeedbackResponse](t, env.Data); resp.Status != "queued" || resp.EventID != "fb_queued" {
		t.Errorf("feedback = %+v", resp)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Reaction != feedback.Refresh || ev.Comment != "seen it" || len(ev.Content.Topics) != 1 ||
		ev.Content.Topics[0] != "tech" || ev.Content.Source != scoring.SourceTechMedia {
		t.Errorf("event = %+v", ev)
	}
}

func TestFeedbackClassifiesExplicitSource(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())
	ctx := context.Background()

	body := `{"user_id":"u1","content_id":"gone","reaction":"like","content":{"topics":["policy"],"source":"Xinhua"}}`
	if rec, _ := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", body); rec.Code != http.StatusOK {
		t.Fatalf("POST /feedback = %d %s", rec.Code, rec.Body.String())
	}
	body = `{"user_id":"u1","content_id":"gone2","reaction":"like","content":{"source":"official_media"}}`
	if rec, _ := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", body); rec.Code != http.StatusOK {
		t.Fatalf("POST /feedback = %d %s", rec.Code, rec.Body.String())
	}

	p, err := s.profiles.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.SourceWeights["Xinhua"]; ok {
		t.Errorf("raw source learned: %v", p.SourceWeights)
	}
	if w := p.SourceWeight(scoring.SourceOfficialMedia); w <= preference.NeutralWeight {
		t.Errorf("official_media weight = %v, want above %v", w, preference.NeutralWeight)
	}
	if len(p.SourceWeights) != 1 {
		t.Errorf("source weights = %v, want only %s", p.SourceWeights, scoring.SourceOfficialMedia)
	}
}

func TestFeedbackBusNotRunning(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(), WithPublisher(&recordingPublisher{err: events.ErrNotRunning}))
	body := `{"user_id":"u1","content_id":"c1","reaction":"like","content":{"topics":["tech"]}}`
	if rec, _ := s.do(t, http.MethodPost, "/api/v1/feedback", "application/json", body); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("POST /feedback = %d, want 503", rec.Code)
	}
}

func TestBlacklistAndSchedule(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())

	rec, env := s.do(t, http.MethodPost, "/api/v1/users/u1/blacklist", "application/json", `{"kind":"author","value":"Spammer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST blacklist = %d %s", rec.Code, rec.Body.String())
	}
	if bl := decode[preference.Blacklist](t, env.Data); len(bl.Authors) != 1 || bl.Authors[0] != "Spammer" {
		t.Errorf("blacklist = %+v", bl)
	}

	_, env = s.do(t, http.MethodDelete, "/api/v1/users/u1/blacklist", "application/json", `{"kind":"author","value":"Spammer"}`)
	if bl := decode[preference.Blacklist](t, env.Data); len(bl.Authors) != 0 {
		t.Errorf("blacklist after delete = %+v", bl)
	}

	rec, env = s.do(t, http.MethodPut, "/api/v1/users/u1/schedule", "application/json", `{"bucket":"Night","types":["tech","science"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT schedule = %d %s", rec.Code, rec.Body.String())
	}
	schedule := decode[map[preference.Bucket][]string](t, env.Data)
	if got := strings.Join(schedule[preference.Night], ","); got != "tech,science" {
		t.Errorf("night schedule = %q", got)
	}

	p, err := s.profiles.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.PrefersType(preference.Night, "science") {
		t.Error("schedule not stored in profile")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RateLimitRequests = 2
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec, _ := s.do(t, http.MethodGet, "/api/v1/users/u1/profile", "", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec, env := s.do(t, http.MethodGet, "/api/v1/users/u1/profile", "", "")
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request = %d %+v, want 429", rec.Code, env.Error)
	}

	// Health checks are not rate limited.
	if rec, _ := s.do(t, http.MethodGet, "/health/live", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /health/live = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig())
	s.ingest(t, "/api/v1/ingest")
	s.do(t, http.MethodGet, "/api/v1/recommendations?user=u1&k=2", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	for _, want := range []string{
		"newsdesk_recommendations_served_total 2",
		`newsdesk_content_processed_total{outcome="kept"} 3`,
		`newsdesk_http_requests_total{method="GET",route="/api/v1/recommendations",status="200"} 1`,
	} {
		if !bytes.Contains(rec.Body.Bytes(), []byte(want)) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
