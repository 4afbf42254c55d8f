// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package preference holds per-user preference profiles and the store that
// serializes updates to them.
package preference

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Style dimensions with built-in meaning. Profiles may carry others.
const (
	StylePatrioticTone  = "patriotic_tone"
	StyleFormality      = "formality"
	StyleEmotionalLevel = "emotional_level"
)

// Bucket is a time-of-day bucket used for schedule preferences.
type Bucket string

const (
	Morning   Bucket = "morning"
	Afternoon Bucket = "afternoon"
	Evening   Bucket = "evening"
	Night     Bucket = "night"
)

// Buckets lists every bucket in day order.
var Buckets = []Bucket{Morning, Afternoon, Evening, Night}

// BucketOf maps t's local hour to a bucket: 05-11 morning, 12-16 afternoon,
// 17-21 evening, otherwise night.
func BucketOf(t time.Time) Bucket {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Buckets, b) {
		return b, nil
	}
	return "", fmt.Errorf("unknown time-of-day bucket %q", s)
}

// BlacklistKind selects a blacklist.
type BlacklistKind string

const (
	BlacklistAuthor  BlacklistKind = "author"
	BlacklistSource  BlacklistKind = "source"
	BlacklistKeyword BlacklistKind = "keyword"
)

// Blacklist lists authors, sources and keywords the user never wants to see.
type Blacklist struct {
	Authors  []string `json:"authors"`
	Sources  []string `json:"sources"`
	Keywords []string `json:"keywords"`
}

// Comfort tracks how satisfied the user has been with recommendations.
type Comfort struct {
	Overall            float64 `json:"overall_comfort"`
	RecentSatisfaction float64 `json:"recent_satisfaction"`
}

// Profile is a user's preference model. Weights are in [0,1]; unknown keys read as 0.5.
type Profile struct {
	UserID           string              `json:"user_id"`
	TopicWeights     map[string]float64  `json:"topic_weights"`
	StylePreferences map[string]float64  `json:"style_preferences"`
	SourceWeights    map[string]float64  `json:"source_weights"`
	Blacklist        Blacklist           `json:"blacklist"`
	Comfort          Comfort             `json:"comfort"`
	Schedule         map[Bucket][]string `json:"schedule"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// NeutralWeight is the weight of a topic, source or style never seen before.
const NeutralWeight = 0.5

// DefaultProfile is the profile a user starts with on first use.
func DefaultProfile(userID string) Profile {
	return Profile{
		UserID:       userID,
		TopicWeights: map[string]float64{},
		StylePreferences: map[string]float64{
			StylePatrioticTone:  0.8,
			StyleFormality:      0.8,
			StyleEmotionalLevel: 0.7,
		},
		SourceWeights: map[string]float64{},
		Comfort:       Comfort{Overall: 0.7, RecentSatisfaction: 0.5},
		Schedule: map[Bucket][]string{
			Morning:   {"politics", "economy"},
			Afternoon: {"tech", "economy"},
			Evening:   {"tech", "social"},
			Night:     {"general"},
		},
	}
}

// TopicWeight returns the weight for topic, NeutralWeight when unknown.
func (p *Profile) TopicWeight(topic string) float64 {
	if w, ok := p.TopicWeights[topic]; ok {
		return w
	}
	return NeutralWeight
}

// SourceWeight returns the weight for a source or source category, NeutralWeight when unknown.
func (p *Profile) SourceWeight(source string) float64 {
	if w, ok := p.SourceWeights[source]; ok {
		return w
	}
	return NeutralWeight
}

// StylePreference returns the preferred value of a style dimension, def when unset.
func (p *Profile) StylePreference(name string, def float64) float64 {
	if v, ok := p.StylePreferences[name]; ok {
		return v
	}
	return def
}

// IsBlacklistedAuthor reports an exact match against the author blacklist.
func (p *Profile) IsBlacklistedAuthor(author string) bool {
	return author != "" && slices.Contains(p.Blacklist.Authors, author)
}

// IsBlacklistedSource reports an exact match against the source blacklist.
func (p *Profile) IsBlacklistedSource(source string) bool {
	return source != "" && slices.Contains(p.Blacklist.Sources, source)
}

// BlacklistedKeyword returns the first blacklisted keyword, in list order, contained in text.
func (p *Profile) BlacklistedKeyword(text string) (string, bool) {
	for _, kw := range p.Blacklist.Keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// PrefersType reports whether contentType is scheduled for bucket.
func (p *Profile) PrefersType(bucket Bucket, contentType string) bool {
	return slices.Contains(p.Schedule[bucket], contentType)
}

// AddBlacklist appends value to the kind blacklist. Adding an existing value is a no-op.
func (p *Profile) AddBlacklist(kind BlacklistKind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty %s blacklist value", kind)
	}

	var list *[]string
	switch kind {
	case BlacklistAuthor:
		list = &p.Blacklist.Authors
	case BlacklistSource:
		list = &p.Blacklist.Sources
	case BlacklistKeyword:
		list = &p.Blacklist.Keywords
	default:
		return fmt.Errorf("unknown blacklist kind %q", kind)
	}
	if !slices.Contains(*list, value) {
		*list = append(*list, value)
	}
	return nil
}

// RemoveBlacklist deletes value from the kind blacklist.
func (p *Profile) RemoveBlacklist(kind BlacklistKind, value string) error {
	switch kind {
	case BlacklistAuthor:
		p.Blacklist.Authors = slices.DeleteFunc(p.Blacklist.Authors, func(s string) bool { return s == value })
	case BlacklistSource:
		p.Blacklist.Sources = slices.DeleteFunc(p.Blacklist.Sources, func(s string) bool { return s == value })
	case BlacklistKeyword:
		p.Blacklist.Keywords = slices.DeleteFunc(p.Blacklist.Keywords, func(s string) bool { return s == value })
	default:
		return fmt.Errorf("unknown blacklist kind %q", kind)
	}
	return nil
}

// SetSchedule replaces the preferred content types for bucket.
func (p *Profile) SetSchedule(bucket Bucket, types []string) {
	if p.Schedule == nil {
		p.Schedule = make(map[Bucket][]string, len(Buckets))
	}
	p.Schedule[bucket] = slices.Clone(types)
}

// Clone returns a deep copy.
func (p *Profile) Clone() Profile {
	c := *p
	c.TopicWeights = cloneWeights(p.TopicWeights)
	c.StylePreferences = cloneWeights(p.StylePreferences)
	c.SourceWeights = cloneWeights(p.SourceWeights)
	c.Blacklist = Blacklist{
		Authors:  slices.Clone(p.Blacklist.Authors),
		Sources:  slices.Clone(p.Blacklist.Sources),
		Keywords: slices.Clone(p.Blacklist.Keywords),
	}
	c.Schedule = make(map[Bucket][]string, len(p.Schedule))
	for b, types := range p.Schedule {
		c.Schedule[b] = slices.Clone(types)
	}
	return c
}

// normalize fills nil maps after decoding a stored profile.
func (p *Profile) normalize() {
	if p.TopicWeights == nil {
		p.TopicWeights = map[string]float64{}
	}
	if p.StylePreferences == nil {
		p.StylePreferences = map[string]float64{}
	}
	if p.SourceWeights == nil {
		p.SourceWeights = map[string]float64{}
	}
	if p.Schedule == nil {
		p.Schedule = map[Bucket][]string{}
	}
}

func cloneWeights(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
