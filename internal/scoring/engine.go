// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package scoring computes how well an item fits a user's preference profile.
//
// The score is a weighted sum of six sub-scores in [0,1] minus a weighted
// blacklist penalty, optionally blended with an external advisor's opinion,
// and always clamped to [0,1].
package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// Weights of each sub-score. BlacklistPenalty is subtracted.
type Weights struct {
	Topic            float64 `koanf:"topic" validate:"gte=0"`
	Style            float64 `koanf:"style" validate:"gte=0"`
	Source           float64 `koanf:"source" validate:"gte=0"`
	Time             float64 `koanf:"time" validate:"gte=0"`
	Freshness        float64 `koanf:"freshness" validate:"gte=0"`
	Quality          float64 `koanf:"quality" validate:"gte=0"`
	BlacklistPenalty float64 `koanf:"blacklist_penalty" validate:"gte=0"`
}

// DefaultWeights sum to 1 before the penalty.
func DefaultWeights() Weights {
	return Weights{
		Topic:            0.35,
		Style:            0.20,
		Source:           0.15,
		Time:             0.10,
		Freshness:        0.05,
		Quality:          0.15,
		BlacklistPenalty: 0.10,
	}
}

// Config configures the Engine.
type Config struct {
	Weights Weights `koanf:"weights"`

	// AdvisorEnabled blends the transform service's opinion into each score.
	AdvisorEnabled bool          `koanf:"advisor_enabled"`
	AdvisorTimeout time.Duration `koanf:"advisor_timeout"`

	// Concurrency bounds parallel scoring in Rank.
	Concurrency int `koanf:"concurrency" validate:"gte=1"`
}

// DefaultConfig uses DefaultWeights, no advisor and 4 parallel scorers.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		AdvisorTimeout: 10 * time.Second,
		Concurrency:    4,
	}
}

// Style preference values assumed when a profile does not set them.
const (
	defaultPatrioticPref = 0.8
	defaultFormalityPref = 0.8
	defaultEmotionalPref = 0.7
)

// Factors are the individual sub-scores behind a Result.
type Factors struct {
	Topic     float64 `json:"topic"`
	Style     float64 `json:"style"`
	Source    float64 `json:"source"`
	Time      float64 `json:"time"`
	Freshness float64 `json:"freshness"`
	Quality   float64 `json:"quality"`
	Penalty   float64 `json:"blacklist_penalty"`
}

// Result is the outcome of scoring one item.
type Result struct {
	// Score is the final score in [0,1].
	Score float64 `json:"score"`
	// Base is the weighted sum before any advisor adjustment, clamped to [0,1].
	Base     float64 `json:"base"`
	Factors  Factors `json:"factors"`
	Adjusted bool    `json:"adjusted"`
}

// Scored pairs an item with its Result.
type Scored struct {
	Item   *content.Item
	Result Result
}

// TimeOfDay returns the schedule bucket for t.
func TimeOfDay(t time.Time) preference.Bucket {
	return preference.BucketOf(t)
}

// Engine scores items against profiles. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	classifier SourceClassifier
	advisor    *Advisor
	observer   metrics.Observer
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSourceClassifier replaces DefaultSourceClassifier.
func WithSourceClassifier(c SourceClassifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithAdvisor enables score adjustment through a.
func WithAdvisor(a *Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithObserver reports scoring latency.
func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the clock used for freshness.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	e := &Engine{
		cfg:        cfg,
		classifier: DefaultSourceClassifier(),
		observer:   metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes item's score for profile in the given time-of-day bucket.
// Advisor failures leave the base score in place.
func (e *Engine) Score(ctx context.Context, item *content.Item, profile *preference.Profile, bucket preference.Bucket) Result {
	start := time.Now()

	f := Factors{
		Topic:     topicScore(item, profile),
		Style:     styleScore(item, profile),
		Source:    e.sourceScore(item, profile),
		Time:      timeScore(item, profile, bucket),
		Freshness: freshnessScore(item, e.now()),
		Quality:   item.Quality(),
		Penalty:   blacklistPenalty(item, profile),
	}

	w := e.cfg.Weights
	base := clamp01(f.Topic*w.Topic + f.Style*w.Style + f.Source*w.Source + f.Time*w.Time +
		f.Freshness*w.Freshness + f.Quality*w.Quality - f.Penalty*w.BlacklistPenalty)

	res := Result{Score: base, Base: base, Factors: f}
	if e.advisor != nil {
		if ext, ok := e.advisor.Advise(ctx, item, profile, base); ok {
			res.Score = clamp01(0.7*base + 0.3*ext)
			res.Adjusted = true
		}
	}

	e.observer.ItemScored(time.Since(start), res.Adjusted)
	return res
}

// Rank scores items, drops those scoring zero or less and sorts the rest by
// descending score. Ties keep input order.
func (e *Engine) Rank(ctx context.Context, items []*content.Item, profile *preference.Profile, bucket preference.Bucket) []Scored {
	results := make([]Result, len(items))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = e.Score(ctx, item, profile, bucket)
			return nil
		})
	}
	_ = g.Wait()

	ranked := make([]Scored, 0, len(items))
	for i, item := range items {
		if results[i].Score > 0 {
			ranked = append(ranked, Scored{Item: item, Result: results[i]})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Score > ranked[j].Result.Score
	})
	return ranked
}

// ClassifySource returns the category scoring looks up in Profile.SourceWeights,
// or "" for an empty source.
func (e *Engine) ClassifySource(source string) string {
	if source == "" {
		return ""
	}
	return e.classifier.ClassifySource(source)
}

func topicScore(item *content.Item, profile *preference.Profile) float64 {
	if len(item.Topics) == 0 {
		return preference.NeutralWeight
	}
	best := 0.0
	for _, topic := range item.Topics {
		best = math.Max(best, profile.TopicWeight(topic))
	}
	return best
}

func styleScore(item *content.Item, profile *preference.Profile) float64 {
	a := item.Analysis
	if a == nil {
		return 0.5
	}

	patriotic := 1 - math.Abs(a.PatrioticLevel-profile.StylePreference(preference.StylePatrioticTone, defaultPatrioticPref))
	formality := 1 - math.Abs(a.Formality-profile.StylePreference(preference.StyleFormality, defaultFormalityPref))

	emotional := 0.2
	if a.Sentiment >= 0 {
		emotional = 1 - math.Abs(a.Sentiment-profile.StylePreference(preference.StyleEmotionalLevel, defaultEmotionalPref))
	}
	return patriotic*0.4 + formality*0.3 + emotional*0.3
}

func (e *Engine) sourceScore(item *content.Item, profile *preference.Profile) float64 {
	if item.Source == "" {
		return 0.5
	}
	return profile.SourceWeight(e.classifier.ClassifySource(item.Source))
}

func timeScore(item *content.Item, profile *preference.Profile, bucket preference.Bucket) float64 {
	contentType := item.ContentType
	if contentType == "" {
		contentType = content.TypeGeneral
	}
	if profile.PrefersType(bucket, contentType) {
		return 0.9
	}
	return 0.5
}

func freshnessScore(item *content.Item, now time.Time) float64 {
	if item.PublishedAt.IsZero() {
		return 0.5
	}
	switch age := now.Sub(item.PublishedAt); {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 168*time.Hour:
		return 0.7
	default:
		return 0.3
	}
}

func blacklistPenalty(item *content.Item, profile *preference.Profile) float64 {
	penalty := 0.0
	if profile.IsBlacklistedAuthor(item.Author) {
		penalty += 0.5
	}
	if profile.IsBlacklistedSource(item.Source) {
		penalty += 0.3
	}
	if _, ok := profile.BlacklistedKeyword(item.Text()); ok {
		penalty += 0.2
	}
	return penalty
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
