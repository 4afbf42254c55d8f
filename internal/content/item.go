// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package content holds the ingested item model, identity hashing and the
// record store used for cross-batch deduplication.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tomtom215/newsdesk/internal/transform"
)

// Item is a single ingested news item.
//
// Ownership passes linearly through the pipeline: admission enriches it, content
// processing may replace Body, scoring annotates it. No two stages hold it at once.
type Item struct {
	// ID is the identity hash of the normalized title and body. See Hash.
	ID string `json:"id"`

	// Title is the headline as supplied by the feed.
	Title string `json:"title"`

	// Body is the article text (or summary when the feed carries no full text).
	Body string `json:"body"`

	// Source is the publishing outlet name.
	Source string `json:"source"`

	// Author is the byline, when known.
	Author string `json:"author,omitempty"`

	// URL is the canonical article link.
	URL string `json:"url,omitempty"`

	// Topics are the topic tags attached by the feed or by analysis.
	Topics []string `json:"topics,omitempty"`

	// Language is the origin language code (e.g. "en", "zh").
	Language string `json:"language,omitempty"`

	// PublishedRaw is the publish time exactly as the feed supplied it.
	PublishedRaw string `json:"published_raw,omitempty"`

	// PublishedAt is the parsed publish time. Zero means missing or unparseable.
	PublishedAt time.Time `json:"published_at"`

	// NeedsTranslation marks items whose origin language differs from the reader's.
	NeedsTranslation bool `json:"needs_translation,omitempty"`

	// ContentType is the inferred category used for schedule matching (tech, politics, ...).
	ContentType string `json:"content_type,omitempty"`

	// QualityScore is the 0..1 quality estimate; only meaningful when HasQuality is set.
	QualityScore float64 `json:"quality_score"`
	HasQuality   bool    `json:"has_quality"`

	// WasTransformed reports whether Body was replaced by a rewritten variant.
	WasTransformed bool `json:"was_transformed"`

	// Analysis is the transform service analysis, when one was produced.
	Analysis *transform.AnalysisResult `json:"analysis,omitempty"`
}

// Quality returns the quality score, or 0.5 when none was computed.
func (it *Item) Quality() float64 {
	if !it.HasQuality {
		return 0.5
	}
	return it.QualityScore
}

// SetQuality records a quality score clamped to [0,1].
func (it *Item) SetQuality(q float64) {
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	it.QualityScore = q
	it.HasQuality = true
}

// BodyLength returns the body length in runes.
func (it *Item) BodyLength() int {
	return utf8.RuneCountInString(it.Body)
}

// Text returns title and body joined by a space, the haystack for keyword matching.
func (it *Item) Text() string {
	return it.Title + " " + it.Body
}

// EnsureID fills ID from the current title and body when empty and returns it.
func (it *Item) EnsureID() string {
	if it.ID == "" {
		it.ID = Hash(it.Title, it.Body)
	}
	return it.ID
}

// Normalize applies NFKC, lower-cases and collapses runs of whitespace.
// Two texts that differ only in width variants, case or spacing normalize equal.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Hash returns the hex SHA-256 identity of the normalized title and body.
func Hash(title, body string) string {
	sum := sha256.Sum256([]byte(Normalize(title) + "|" + Normalize(body)))
	return hex.EncodeToString(sum[:])
}

// HashText returns the hex SHA-256 of a single normalized text; transform cache keys use it.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the publish time formats feeds commonly emit, including unix seconds.
// It reports false when raw matches none of them.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
