// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package feedback turns user reactions into preference profile updates and
// derives read-only insights from the reaction log.
package feedback

import (
	"crypto/md5" //nolint:gosec // short identifier suffix, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/newsdesk/internal/preference"
)

// Reaction is a user's response to a recommendation.
type Reaction string

const (
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
	Refresh Reaction = "refresh"
)

// Valid reports whether r is a known reaction.
func (r Reaction) Valid() bool {
	switch r {
	case Like, Dislike, Refresh:
		return true
	default:
		return false
	}
}

// ParseReaction accepts a reaction name in any case.
func ParseReaction(s string) (Reaction, error) {
	r := Reaction(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown reaction %q", ErrMalformedFeedback, s)
	}
	return r, nil
}

// ErrMalformedFeedback marks events missing a user, a valid reaction or a content descriptor.
var ErrMalformedFeedback = errors.New("malformed feedback")

// Descriptor describes the content a reaction refers to.
type Descriptor struct {
	Topics []string           `json:"topics,omitempty"`
	Style  map[string]float64 `json:"style_features,omitempty"`
	// Source is the key whose weight the reaction moves in Profile.SourceWeights.
	Source string `json:"source,omitempty"`
}

// Empty reports whether d carries nothing to learn from.
func (d Descriptor) Empty() bool {
	return len(d.Topics) == 0 && len(d.Style) == 0 && d.Source == ""
}

// EventContext records when, in user terms, the reaction happened.
type EventContext struct {
	TimeOfDay preference.Bucket `json:"time_of_day"`
	DayOfWeek string            `json:"day_of_week"`
}

// Event is one recorded reaction. Events are immutable once recorded.
type Event struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	ContentID string       `json:"content_id"`
	MessageID string       `json:"message_id,omitempty"`
	Reaction  Reaction     `json:"reaction"`
	Timestamp time.Time    `json:"timestamp"`
	Content   Descriptor   `json:"content"`
	Comment   string       `json:"comment,omitempty"`
	Context   EventContext `json:"context"`
}

// Validate returns ErrMalformedFeedback, wrapped with the missing part, when e cannot be applied.
func (e *Event) Validate() error {
	switch {
	case strings.TrimSpace(e.UserID) == "":
		return fmt.Errorf("%w: missing user", ErrMalformedFeedback)
	case !e.Reaction.Valid():
		return fmt.Errorf("%w: invalid reaction %q", ErrMalformedFeedback, e.Reaction)
	case e.Content.Empty():
		return fmt.Errorf("%w: missing content descriptor", ErrMalformedFeedback)
	}
	return nil
}

// NewEventID returns fb_<unix ms>_<first 8 hex of md5(user|content|ms)>.
func NewEventID(userID, contentID string, at time.Time) string {
	ms := strconv.FormatInt(at.UnixMilli(), 10)
	sum := md5.Sum([]byte(userID + "|" + contentID + "|" + ms)) //nolint:gosec // see import
	return "fb_" + ms + "_" + hex.EncodeToString(sum[:])[:8]
}

// fill sets the defaults an incoming event may omit.
func (e *Event) fill(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.ID == "" {
		e.ID = NewEventID(e.UserID, e.ContentID, e.Timestamp)
	}
	if e.Context.TimeOfDay == "" {
		e.Context.TimeOfDay = preference.BucketOf(e.Timestamp)
	}
	if e.Context.DayOfWeek == "" {
		e.Context.DayOfWeek = e.Timestamp.Weekday().String()
	}
}

// timeKey is the behavior pattern key for preferred times, e.g. "Monday_morning".
func (e *Event) timeKey() string {
	return e.Context.DayOfWeek + "_" + string(e.Context.TimeOfDay)
}
