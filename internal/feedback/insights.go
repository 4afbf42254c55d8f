// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package feedback

import (
	"context"
	"sort"

	"github.com/tomtom215/newsdesk/internal/preference"
)

// Trend classifies overall satisfaction.
type Trend string

const (
	TrendInsufficientData Trend = "insufficient_data"
	TrendHighlySatisfied  Trend = "highly_satisfied"
	TrendMostlySatisfied  Trend = "mostly_satisfied"
	TrendNeedsAdjustment  Trend = "needs_adjustment"
)

// Suggestions produced by Insights.
const (
	SuggestLowComfort  = "Comfort is low: mark content you enjoy with like so recommendations can adapt."
	SuggestHighComfort = "Comfort is very high: recommendations will include slightly more variety to avoid an echo chamber."
	SuggestRefreshes   = "Frequent refreshes detected: recommendation diversity will be adjusted."
)

// DefaultOptimalTimes is suggested when no likes have been recorded.
var DefaultOptimalTimes = []string{"08:00", "12:00", "20:00"}

// Summary condenses the profile for display.
type Summary struct {
	FavoriteTopics       map[string]float64 `json:"favorite_topics,omitempty"`
	DislikedTopics       map[string]float64 `json:"disliked_topics,omitempty"`
	Comfort              preference.Comfort `json:"comfort"`
	ReactionDistribution map[Reaction]int   `json:"reaction_distribution,omitempty"`
}

// Insights is a read-only view derived from the log and the profile.
type Insights struct {
	Trend        Trend    `json:"satisfaction_trend"`
	Stability    float64  `json:"preference_stability"`
	OptimalTimes []string `json:"optimal_times"`
	Suggestions  []string `json:"improvement_suggestions"`
	Statistics   Stats    `json:"statistics"`
	Summary      Summary  `json:"summary"`
	Streak       Streak   `json:"streak"`
}

// Insights derives the user's insights. It never modifies state.
func (p *Processor) Insights(ctx context.Context, userID string) (Insights, error) {
	profile, err := p.store.Snapshot(ctx, userID)
	if err != nil {
		return Insights{}, err
	}

	log := p.userLog(userID)
	log.mu.Lock()
	if err := p.ensureLoaded(ctx, userID, log); err != nil {
		log.mu.Unlock()
		return Insights{}, err
	}
	stats := log.stats
	patterns := log.patterns.clone()
	recent := append([]Event(nil), tail(log.recent, p.cfg.PatternWindow)...)
	log.mu.Unlock()

	return Insights{
		Trend:        trend(stats),
		Stability:    stability(recent),
		OptimalTimes: optimalTimes(patterns.PreferredTimes),
		Suggestions:  suggestions(profile.Comfort, stats),
		Statistics:   stats,
		Summary:      summarize(&profile, patterns),
		Streak:       patterns.Streak,
	}, nil
}

func trend(s Stats) Trend {
	if s.Total < 10 {
		return TrendInsufficientData
	}
	likeRatio := float64(s.Likes) / float64(s.Total)
	switch {
	case likeRatio > 0.7:
		return TrendHighlySatisfied
	case likeRatio > 0.5:
		return TrendMostlySatisfied
	default:
		return TrendNeedsAdjustment
	}
}

// stability is the share of the most common reaction among recent, or 0.5 with fewer than 5 events.
func stability(recent []Event) float64 {
	if len(recent) < 5 {
		return 0.5
	}
	counts := make(map[Reaction]int, 3)
	best := 0
	for _, e := range recent {
		counts[e.Reaction]++
		best = max(best, counts[e.Reaction])
	}
	return float64(best) / float64(len(recent))
}

// optimalTimes returns the three time keys with the most likes; ties sort by key.
func optimalTimes(preferred map[string]int) []string {
	if len(preferred) == 0 {
		return append([]string(nil), DefaultOptimalTimes...)
	}
	keys := make([]string, 0, len(preferred))
	for k := range preferred {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if preferred[keys[i]] != preferred[keys[j]] {
			return preferred[keys[i]] > preferred[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > 3 {
		keys = keys[:3]
	}
	return keys
}

func suggestions(c preference.Comfort, s Stats) []string {
	out := []string{}
	if c.Overall < 0.6 {
		out = append(out, SuggestLowComfort)
	}
	if c.Overall > 0.9 {
		out = append(out, SuggestHighComfort)
	}
	if s.Total > 0 && float64(s.Refreshes) > float64(s.Total)*0.3 {
		out = append(out, SuggestRefreshes)
	}
	return out
}

func summarize(profile *preference.Profile, patterns Patterns) Summary {
	s := Summary{Comfort: profile.Comfort}
	for topic, w := range profile.TopicWeights {
		switch {
		case w > 0.7:
			if s.FavoriteTopics == nil {
				s.FavoriteTopics = make(map[string]float64)
			}
			s.FavoriteTopics[topic] = w
		case w < 0.3:
			if s.DislikedTopics == nil {
				s.DislikedTopics = make(map[string]float64)
			}
			s.DislikedTopics[topic] = w
		}
	}
	if len(patterns.Reactions) > 0 {
		s.ReactionDistribution = patterns.Reactions
	}
	return s
}
