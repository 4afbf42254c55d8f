// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package transform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/newsdesk/internal/metrics"
)

type fakeChat struct {
	mu      sync.Mutex
	calls   int
	replies []string
	errs    []error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	reply := "ok"
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply}}},
		Usage:   openai.Usage{TotalTokens: 42},
	}, nil
}

func (f *fakeChat) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRemoteConfig() RemoteConfig {
	cfg := DefaultRemoteConfig()
	cfg.RequestsPerSecond = 0
	cfg.Timeout = time.Second
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestStubServiceDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStubService()

	a, err := s.Analyze(ctx, "anything")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Action != ActionKeep || a.Sentiment != 0.7 || a.Clickbait != 0.2 {
		t.Errorf("Analyze = %+v, want default stub analysis", a)
	}

	long := strings.Repeat("x", 300)
	rw, err := s.Rewrite(ctx, long, StyleSpec{})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if want := "[rewritten] " + strings.Repeat("x", 200); rw != want {
		t.Errorf("Rewrite length = %d, want %d", len(rw), len(want))
	}

	tr, err := s.Translate(ctx, "hello", "ZH")
	if err != nil || tr != "[zh] hello" {
		t.Errorf("Translate = %q, %v", tr, err)
	}

	if got := s.Calls(); got != 3 {
		t.Errorf("Calls = %d, want 3", got)
	}
}

func TestStubServiceError(t *testing.T) {
	t.Parallel()

	s := &StubService{Err: errors.New("down")}
	_, err := s.Analyze(context.Background(), "x")

	var se *ServiceError
	if !errors.As(err, &se) || se.Op != OpAnalyze {
		t.Fatalf("err = %v, want *ServiceError{Op: analyze}", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected errors.Is(err, ErrUnavailable)")
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    AnalysisResult
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"sentiment_score":-0.4,"clickbait_score":0.8,"recommended_action":"rewrite","main_topics":["tech"]}`,
			want:  AnalysisResult{Sentiment: -0.4, Clickbait: 0.8, Action: ActionRewrite, Topics: []string{"tech"}},
		},
		{
			name:  "fenced with prose and out of range values",
			reply: "Here you go:\n```json\n{\"sentiment_score\": 3, \"formality\": -1, \"recommended_action\": \"publish\"}\n```",
			want:  AnalysisResult{Sentiment: 1, Formality: 0, Action: ActionKeep},
		},
		{name: "no json", reply: "I cannot help with that", wantErr: true},
		{name: "broken json", reply: "{sentiment_score: }", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAnalysis(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAnalysis(%q) expected error", tt.reply)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnalysis: %v", err)
			}
			if got.Sentiment != tt.want.Sentiment || got.Clickbait != tt.want.Clickbait ||
				got.Formality != tt.want.Formality || got.Action != tt.want.Action {
				t.Errorf("ParseAnalysis = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}
	ctx := context.Background()

	t.Run("succeeds on third attempt", func(t *testing.T) {
		t.Parallel()
		n := 0
		err := retry(ctx, cfg, zerolog.Nop(), func(context.Context) error {
			n++
			if n < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil || n != 3 {
			t.Errorf("retry = %v after %d attempts, want nil after 3", err, n)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()
		n := 0
		err := retry(ctx, cfg, zerolog.Nop(), func(context.Context) error {
			n++
			return errors.New("down")
		})
		if err == nil || n != 3 {
			t.Errorf("retry = %v after %d attempts, want error after 3", err, n)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		t.Parallel()
		n := 0
		base := errors.New("bad request")
		err := retry(ctx, cfg, zerolog.Nop(), func(context.Context) error {
			n++
			return permanent(base)
		})
		if !errors.Is(err, base) || n != 1 {
			t.Errorf("retry = %v after %d attempts, want bad request after 1", err, n)
		}
	})
}

func TestRetryCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, Multiplier: 2}
	down := errors.New("down")
	n := 0
	err := retry(ctx, cfg, zerolog.Nop(), func(context.Context) error {
		n++
		cancel()
		return down
	})
	if !errors.Is(err, down) || n != 1 {
		t.Errorf("retry = %v after %d attempts, want down after 1", err, n)
	}
}

func TestNewBackOffSchedule(t *testing.T) {
	t.Parallel()

	b := newBackOff(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 500 * time.Millisecond, Multiplier: 3})
	b.Reset()
	want := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("interval %d = %v, want %v", i, got, w)
		}
	}
}

func TestRemoteServiceAnalyze(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{replies: []string{`{"sentiment_score":0.5,"recommended_action":"keep","main_topics":["economy"]}`}}
	obs := metrics.NewPrometheus(prometheus.NewRegistry())
	s := NewRemoteServiceWithClient(chat, testRemoteConfig(), obs)

	a, err := s.Analyze(context.Background(), "markets rallied")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Sentiment != 0.5 || len(a.Topics) != 1 || a.Topics[0] != "economy" {
		t.Errorf("Analyze = %+v", a)
	}
}

func TestRemoteServiceRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{
		errs:    []error{errors.New("connection reset"), errors.New("connection reset")},
		replies: []string{"", "", "translated"},
	}
	s := NewRemoteServiceWithClient(chat, testRemoteConfig(), metrics.Nop{})

	got, err := s.Translate(context.Background(), "hello", "zh")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "translated" {
		t.Errorf("Translate = %q, want translated", got)
	}
	if chat.Calls() != 3 {
		t.Errorf("calls = %d, want 3", chat.Calls())
	}
}

func TestRemoteServiceClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad"}}}
	s := NewRemoteServiceWithClient(chat, testRemoteConfig(), metrics.Nop{})

	_, err := s.Complete(context.Background(), "score this")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if chat.Calls() != 1 {
		t.Errorf("calls = %d, want 1", chat.Calls())
	}
}

func TestRemoteServiceBreakerOpens(t *testing.T) {
	t.Parallel()

	cfg := testRemoteConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.MinRequests = 2
	cfg.Breaker.FailureRatio = 0.5
	cfg.Breaker.Timeout = time.Hour

	failures := make([]error, 10)
	for i := range failures {
		failures[i] = errors.New("upstream 500")
	}
	chat := &fakeChat{errs: failures}
	s := NewRemoteServiceWithClient(chat, cfg, metrics.Nop{})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := s.Complete(ctx, "p"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := s.Complete(ctx, "p")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("breaker rejection should match ErrUnavailable")
	}
	if chat.Calls() != 2 {
		t.Errorf("calls = %d, want 2 (third rejected by breaker)", chat.Calls())
	}
}

func TestRemoteServiceCanceledContext(t *testing.T) {
	t.Parallel()

	s := NewRemoteServiceWithClient(&fakeChat{}, testRemoteConfig(), metrics.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Complete(ctx, "p"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestFormatStyle(t *testing.T) {
	t.Parallel()

	got := formatStyle(StyleSpec{
		Preferences: map[string]float64{"formality": 0.8, "emotional_level": 0.7},
		Guidelines:  []string{"keep all facts"},
	})
	want := "Style requirements:\n- emotional level: 70%\n- formality: 80%\n- keep all facts\n"
	if got != want {
		t.Errorf("formatStyle = %q, want %q", got, want)
	}
}
