// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package pipeline

import (
	"context"
	"errors"

	"github.com/tomtom215/newsdesk/internal/cache"
	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/transform"
)

// Content processing outcomes reported to the Observer.
const (
	OutcomeKept       = "kept"
	OutcomeRewritten  = "rewritten"
	OutcomeFiltered   = "filtered"
	OutcomeTranslated = "translated"
	OutcomeUnanalyzed = "unanalyzed"
)

// Thresholds applied to an analysis.
const (
	filterSentiment       = -0.3
	rewriteClickbait      = 0.5
	rewriteSensationalism = 0.6
	dropClickbait         = 0.7
	rewriteQualityBonus   = 1.1
)

// Cache key namespaces. Keys are "<op>:<hash of the input text>".
const (
	keyTranslate = "translate"
	keyAnalyze   = "analyze"
	keyRewrite   = "rewrite"
)

// ProcessConfig configures the content processor.
type ProcessConfig struct {
	// TargetLanguage is what NeedsTranslation items are translated into.
	TargetLanguage string `koanf:"target_language" validate:"required"`

	// ClickbaitPatterns raise an item's clickbait score by 0.1 per occurrence in its title.
	ClickbaitPatterns []string `koanf:"clickbait_patterns"`

	// RewriteStyle is passed to the transform service when restyling.
	RewriteStyle transform.StyleSpec `koanf:"rewrite_style"`
}

// DefaultProcessConfig translates into Chinese and rewrites toward a calm, formal register.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		TargetLanguage: "zh",
		ClickbaitPatterns: []string{
			"震惊", "惊呆", "吓尿", "重磅", "突发", "速看", "竟然", "原来", "真相", "秘密",
			"SHOCKING", "You Won't Believe", "BREAKING",
		},
		RewriteStyle: transform.StyleSpec{
			Preferences: map[string]float64{"formality": 0.8, "emotional_level": 0.7, "patriotic_tone": 0.8},
			Guidelines: []string{
				"keep a rational, calm tone with precise wording",
				"clear logic with the key points first",
				"no flippant tone, exaggeration or internet slang",
			},
		},
	}
}

// Processor translates, analyzes and rewrites admitted items through the transform cache.
type Processor struct {
	cfg       ProcessConfig
	service   transform.Service
	cache     *cache.TransformCache
	clickbait *content.KeywordMatcher
	observer  metrics.Observer
}

// NewProcessor creates a Processor. A nil cache disables caching.
func NewProcessor(cfg ProcessConfig, service transform.Service, tc *cache.TransformCache, observer metrics.Observer) *Processor {
	if observer == nil {
		observer = metrics.Nop{}
	}
	if tc == nil {
		tc = cache.NewTransformCache(cache.DefaultTTL, cache.WithObserver(observer))
	}
	return &Processor{
		cfg:       cfg,
		service:   service,
		cache:     tc,
		clickbait: content.NewKeywordMatcher(cfg.ClickbaitPatterns),
		observer:  observer,
	}
}

// Process enriches item in place and reports whether it should be kept.
//
// Translation failures keep the original text. Analysis failures keep the item
// without analysis or quality. Items whose analysis says filter, or whose
// sentiment is below -0.3, are dropped; items needing a rewrite whose rewrite
// fails are dropped only when their clickbait score exceeds 0.7.
func (p *Processor) Process(ctx context.Context, item *content.Item) bool {
	log := logging.Ctx(ctx).With().Str("component", "pipeline").Str("item", item.ID).Logger()

	if item.NeedsTranslation {
		text, err := p.cache.GetOrCompute(ctx, cacheKey(keyTranslate+"_"+p.cfg.TargetLanguage, item.Body), func(ctx context.Context) (string, error) {
			return p.service.Translate(ctx, item.Body, p.cfg.TargetLanguage)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Translation failed, keeping original text")
		} else {
			item.Body = text
			item.NeedsTranslation = false
			p.observer.ContentProcessed(OutcomeTranslated)
		}
	}

	analysis, err := p.analyze(ctx, item)
	if err != nil {
		log.Warn().Err(err).Msg("Analysis failed, keeping item unscored")
		p.observer.ContentProcessed(OutcomeUnanalyzed)
		return true
	}
	item.Analysis = analysis
	item.Topics = mergeTopics(item.Topics, analysis.Topics)

	switch decide(analysis) {
	case transform.ActionFilter:
		log.Debug().Float64("sentiment", analysis.Sentiment).Msg("Item filtered by analysis")
		p.observer.ContentProcessed(OutcomeFiltered)
		return false

	case transform.ActionRewrite:
		text, err := p.rewrite(ctx, item, analysis)
		switch {
		case err == nil:
			item.Body = text
			item.WasTransformed = true
		case analysis.Clickbait > dropClickbait:
			log.Debug().Err(err).Float64("clickbait", analysis.Clickbait).Msg("Rewrite failed for clickbait item, dropping")
			p.observer.ContentProcessed(OutcomeFiltered)
			return false
		default:
			log.Warn().Err(err).Msg("Rewrite failed, keeping original text")
		}
	}

	item.SetQuality(Quality(analysis, item.WasTransformed))
	if item.WasTransformed {
		p.observer.ContentProcessed(OutcomeRewritten)
	} else {
		p.observer.ContentProcessed(OutcomeKept)
	}
	return true
}

// analyze returns the cached or freshly computed analysis of item's body, with the
// title clickbait heuristic folded in.
func (p *Processor) analyze(ctx context.Context, item *content.Item) (*transform.AnalysisResult, error) {
	e, err := p.cache.GetOrComputeEntry(ctx, cacheKey(keyAnalyze, item.Body), func(ctx context.Context) (cache.Entry, error) {
		a, err := p.service.Analyze(ctx, item.Body)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{OriginalHash: content.HashText(item.Body), Analysis: a}, nil
	})
	if err != nil {
		return nil, err
	}
	if e.Analysis == nil {
		return nil, errors.New("cached analysis entry has no analysis")
	}

	a := *e.Analysis
	a.Topics = append([]string(nil), e.Analysis.Topics...)
	if n := p.clickbait.Count(item.Title); n > 0 {
		a.Clickbait = max(a.Clickbait, min(1, 0.1*float64(n)))
	}
	return &a, nil
}

func (p *Processor) rewrite(ctx context.Context, item *content.Item, analysis *transform.AnalysisResult) (string, error) {
	e, err := p.cache.GetOrComputeEntry(ctx, cacheKey(keyRewrite, item.Body), func(ctx context.Context) (cache.Entry, error) {
		text, err := p.service.Rewrite(ctx, item.Body, p.cfg.RewriteStyle)
		if err != nil {
			return cache.Entry{}, err
		}
		if text == "" {
			return cache.Entry{}, errors.New("empty rewrite")
		}
		snapshot := *analysis
		return cache.Entry{OriginalHash: content.HashText(item.Body), Text: text, Analysis: &snapshot}, nil
	})
	return e.Text, err
}

// decide resolves the action for an analysis. Local thresholds can escalate
// the service's recommendation but a filter recommendation always stands.
func decide(a *transform.AnalysisResult) transform.Action {
	switch {
	case a.Action == transform.ActionFilter, a.Sentiment < filterSentiment:
		return transform.ActionFilter
	case a.Action == transform.ActionRewrite, a.Clickbait > rewriteClickbait, a.Sensationalism > rewriteSensationalism:
		return transform.ActionRewrite
	default:
		return transform.ActionKeep
	}
}

// Quality is patriotic·0.3 + tech·0.25 + formality·0.2 + max(0,sentiment)·0.15 + (1−clickbait)·0.1,
// multiplied by 1.1 and capped at 1 for rewritten items.
func Quality(a *transform.AnalysisResult, rewritten bool) float64 {
	q := a.PatrioticLevel*0.3 + a.TechRelevance*0.25 + a.Formality*0.2 +
		max(0, a.Sentiment)*0.15 + (1-a.Clickbait)*0.1
	if rewritten {
		q = min(1, q*rewriteQualityBonus)
	}
	return q
}

func cacheKey(op, text string) string {
	return op + ":" + content.HashText(text)
}

func mergeTopics(have, extra []string) []string {
	if len(extra) == 0 {
		return have
	}
	seen := make(map[string]struct{}, len(have)+len(extra))
	out := make([]string, 0, len(have)+len(extra))
	for _, list := range [][]string{have, extra} {
		for _, t := range list {
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
