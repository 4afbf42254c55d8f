// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package diversity picks the final recommendation set from a ranked list,
// trading a little relevance for topic variety.
package diversity

import (
	"fmt"

	"github.com/tomtom215/newsdesk/internal/scoring"
)

// Selector chooses up to k items from scored, which is sorted by descending score.
type Selector interface {
	Name() string
	Select(scored []scoring.Scored, k int) []scoring.Scored
}

// Strategy names accepted by New.
const (
	StrategyTopic = "topic"
	StrategyMMR   = "mmr"
)

// Config selects and tunes the selector.
type Config struct {
	Strategy string `koanf:"strategy" validate:"oneof=topic mmr"`

	// RepeatRatio is the fraction of k below which a repeated topic is still accepted.
	RepeatRatio float64 `koanf:"repeat_ratio" validate:"gte=0,lte=1"`

	// Lambda balances relevance against diversity for MMR (1 = relevance only).
	Lambda float64 `koanf:"lambda" validate:"gte=0,lte=1"`
}

// DefaultConfig uses the topic selector with a 0.7 repeat ratio.
func DefaultConfig() Config {
	return Config{Strategy: StrategyTopic, RepeatRatio: 0.7, Lambda: 0.7}
}

// New builds the selector named by cfg.Strategy.
func New(cfg Config) (Selector, error) {
	switch cfg.Strategy {
	case "", StrategyTopic:
		return NewTopicSelector(cfg.RepeatRatio), nil
	case StrategyMMR:
		return NewMMR(cfg.Lambda), nil
	default:
		return nil, fmt.Errorf("unknown diversity strategy %q", cfg.Strategy)
	}
}

// TopicSelector walks the ranking greedily. An item whose topics are all new is
// always taken and claims its topics; an item repeating a selected topic is taken
// only while fewer than RepeatRatio*k items are selected, and claims nothing.
// Remaining slots are backfilled in score order.
type TopicSelector struct {
	repeatRatio float64
}

// NewTopicSelector creates a TopicSelector.
func NewTopicSelector(repeatRatio float64) *TopicSelector {
	if repeatRatio < 0 || repeatRatio > 1 {
		repeatRatio = 0.7
	}
	return &TopicSelector{repeatRatio: repeatRatio}
}

// Name returns the strategy identifier.
func (s *TopicSelector) Name() string { return StrategyTopic }

// Select returns min(k, len(scored)) items.
func (s *TopicSelector) Select(scored []scoring.Scored, k int) []scoring.Scored {
	if k <= 0 || len(scored) == 0 {
		return nil
	}
	if len(scored) <= k {
		return append([]scoring.Scored(nil), scored...)
	}

	repeatLimit := float64(k) * s.repeatRatio
	picked := make([]bool, len(scored))
	selected := make([]scoring.Scored, 0, k)
	topics := make(map[string]struct{})

	for i, sc := range scored {
		if len(selected) >= k {
			break
		}
		overlaps := false
		for _, t := range sc.Item.Topics {
			if _, ok := topics[t]; ok {
				overlaps = true
				break
			}
		}
		if overlaps && float64(len(selected)) >= repeatLimit {
			continue
		}
		selected = append(selected, sc)
		picked[i] = true
		if overlaps {
			continue
		}
		for _, t := range sc.Item.Topics {
			topics[t] = struct{}{}
		}
	}

	for i, sc := range scored {
		if len(selected) >= k {
			break
		}
		if !picked[i] {
			selected = append(selected, sc)
		}
	}
	return selected
}

var _ Selector = (*TopicSelector)(nil)
