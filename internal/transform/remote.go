// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package transform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
)

// RemoteConfig configures RemoteService.
type RemoteConfig struct {
	// BaseURL of an OpenAI-compatible API, e.g. https://api.deepseek.com/v1.
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`

	// MaxTokens caps each completion.
	MaxTokens int `koanf:"max_tokens" validate:"min=1"`

	// Timeout bounds a single attempt.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond and Burst rate limit outgoing requests. Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=0"`

	Retry   RetryConfig   `koanf:"retry"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultRemoteConfig returns conservative defaults for a DeepSeek-style endpoint.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:           "https://api.deepseek.com/v1",
		Model:             "deepseek-chat",
		MaxTokens:         2000,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		Retry:             DefaultRetryConfig(),
		Breaker:           DefaultBreakerConfig(),
	}
}

// ChatClient is the subset of *openai.Client RemoteService needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RemoteService implements Service against an OpenAI-compatible chat completion API.
// Calls pass through a rate limiter, a circuit breaker and a bounded retry loop, in that order.
type RemoteService struct {
	client   ChatClient
	cfg      RemoteConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
	observer metrics.Observer
	logger   zerolog.Logger
}

var _ Service = (*RemoteService)(nil)

// NewRemoteService builds a go-openai client for cfg.BaseURL.
func NewRemoteService(cfg RemoteConfig, observer metrics.Observer) *RemoteService {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	return NewRemoteServiceWithClient(openai.NewClientWithConfig(oc), cfg, observer)
}

// NewRemoteServiceWithClient wires an existing chat client; tests pass a fake.
func NewRemoteServiceWithClient(client ChatClient, cfg RemoteConfig, observer metrics.Observer) *RemoteService {
	if observer == nil {
		observer = metrics.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log := logging.WithComponent("transform")
	log.Info().Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("Remote transform service configured")

	return &RemoteService{
		client:   client,
		cfg:      cfg,
		limiter:  limiter,
		breaker:  newBreaker("transform", cfg.Breaker, observer),
		observer: observer,
		logger:   log,
	}
}

const (
	analyzeSystemPrompt = "You are a content analyst. You assess sentiment, style and topics of news text " +
		"and answer with a single JSON object only."
	rewriteSystemPrompt = "You are a professional news editor. Rewrite text into a calm, precise, well structured " +
		"style, remove exaggeration and slang, and keep every core fact."
	translateSystemPrompt = "You are a professional translator. Translate accurately and keep a neutral, professional register."
	completeSystemPrompt  = "You are a recommendation expert who judges how well content fits a reader's preferences."
)

// Analyze asks the service for a JSON analysis and decodes it.
func (s *RemoteService) Analyze(ctx context.Context, text string) (*AnalysisResult, error) {
	prompt := "Analyze the following content:\n\n" + text + "\n\n" +
		"Return a JSON object with these fields:\n" +
		"- sentiment_score: -1 to 1, negative values are negative sentiment\n" +
		"- patriotic_level: 0 to 1\n" +
		"- tech_relevance: 0 to 1\n" +
		"- formality: 0 to 1\n" +
		"- sensationalism: 0 to 1\n" +
		"- clickbait_score: 0 to 1\n" +
		"- main_topics: list of topic strings\n" +
		"- recommended_action: one of keep, rewrite, filter"

	reply, err := s.call(ctx, OpAnalyze, analyzeSystemPrompt, prompt, 0.1)
	if err != nil {
		return nil, err
	}
	result, err := ParseAnalysis(reply)
	if err != nil {
		return nil, &ServiceError{Op: OpAnalyze, Err: err}
	}
	return result, nil
}

// Rewrite restyles text toward style.
func (s *RemoteService) Rewrite(ctx context.Context, text string, style StyleSpec) (string, error) {
	prompt := formatStyle(style) + "\nRewrite the following content:\n" + text + "\n\nRewritten content:"
	return s.call(ctx, OpRewrite, rewriteSystemPrompt, prompt, 0.4)
}

// Translate translates text into targetLang.
func (s *RemoteService) Translate(ctx context.Context, text, targetLang string) (string, error) {
	prompt := fmt.Sprintf("Translate the following content into %s, keeping a professional and accurate style:\n\n%s", targetLang, text)
	return s.call(ctx, OpTranslate, translateSystemPrompt, prompt, 0.1)
}

// Complete answers a free-form prompt.
func (s *RemoteService) Complete(ctx context.Context, prompt string) (string, error) {
	return s.call(ctx, OpComplete, completeSystemPrompt, prompt, 0.2)
}

// call performs one logical request: rate limit, breaker, then retried attempts each bounded by cfg.Timeout.
func (s *RemoteService) call(ctx context.Context, op, system, prompt string, temperature float32) (string, error) {
	start := time.Now()

	if err := s.limiter.Wait(ctx); err != nil {
		s.observer.TransformCall(op, time.Since(start), err)
		return "", &ServiceError{Op: op, Err: err}
	}

	req := openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	reply, err := s.breaker.Execute(func() (string, error) {
		var content string
		err := retry(ctx, s.cfg.Retry, s.logger, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()

			resp, err := s.client.CreateChatCompletion(attemptCtx, req)
			if err != nil {
				return classify(err)
			}
			if len(resp.Choices) == 0 {
				return errors.New("empty completion")
			}
			s.observer.TransformTokens(op, resp.Usage.TotalTokens)
			content = strings.TrimSpace(resp.Choices[0].Message.Content)
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", errCallerCanceled, err)
		}
		return content, err
	})

	s.observer.TransformCall(op, time.Since(start), err)
	if err != nil {
		if isBreakerRejection(err) {
			s.observer.BreakerRejected("transform")
		}
		s.logger.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("Transform request failed")
		return "", &ServiceError{Op: op, Err: err}
	}
	return reply, nil
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return permanent(err)
		}
	}
	return err
}

// ParseAnalysis decodes the first JSON object found in reply. Code fences and
// surrounding prose are tolerated.
func ParseAnalysis(reply string) (*AnalysisResult, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in analysis reply")
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(reply[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	result.Clamp()
	return &result, nil
}

func formatStyle(style StyleSpec) string {
	var b strings.Builder
	b.WriteString("Style requirements:\n")

	names := make([]string, 0, len(style.Preferences))
	for name := range style.Preferences {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %.0f%%\n", strings.ReplaceAll(name, "_", " "), style.Preferences[name]*100)
	}
	for _, g := range style.Guidelines {
		b.WriteString("- ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	return b.String()
}
