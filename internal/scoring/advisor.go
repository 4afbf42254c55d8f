// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package scoring

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/preference"
	"github.com/tomtom215/newsdesk/internal/transform"
)

// Advisor asks the transform service for a second opinion on a base score.
type Advisor struct {
	service transform.Service
	timeout time.Duration
}

// NewAdvisor creates an Advisor whose calls are bounded by timeout.
func NewAdvisor(service transform.Service, timeout time.Duration) *Advisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Advisor{service: service, timeout: timeout}
}

// Advise returns the external score in [0,1]. ok is false when the service failed,
// timed out or replied without a number.
func (a *Advisor) Advise(ctx context.Context, item *content.Item, profile *preference.Profile, base float64) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.service.Complete(ctx, BuildAdvicePrompt(item, profile, base))
	if err != nil {
		return 0, false
	}
	return ParseAdvice(reply)
}

// BuildAdvicePrompt renders the preference digest and item summary sent to the service.
func BuildAdvicePrompt(item *content.Item, profile *preference.Profile, base float64) string {
	var favorite, disliked []string
	for topic, w := range profile.TopicWeights {
		switch {
		case w > 0.8:
			favorite = append(favorite, topic)
		case w < 0.2:
			disliked = append(disliked, topic)
		}
	}
	sort.Strings(favorite)
	sort.Strings(disliked)

	topics := "uncategorized"
	if len(item.Topics) > 0 {
		topics = strings.Join(item.Topics, ", ")
	}

	var b strings.Builder
	b.WriteString("Judge whether the following content suits this reader.\n\n")
	b.WriteString("Reader preferences:\n")
	fmt.Fprintf(&b, "- favorite topics: %s\n", strings.Join(favorite, ", "))
	fmt.Fprintf(&b, "- disliked topics: %s\n", strings.Join(disliked, ", "))
	fmt.Fprintf(&b, "- recent satisfaction: %.1f%%\n\n", profile.Comfort.RecentSatisfaction*100)
	b.WriteString("Content:\n")
	fmt.Fprintf(&b, "- title: %s\n", item.Title)
	fmt.Fprintf(&b, "- source: %s\n", item.Source)
	fmt.Fprintf(&b, "- topics: %s\n", topics)
	fmt.Fprintf(&b, "- quality: %.0f%%\n", item.Quality()*100)
	fmt.Fprintf(&b, "- base score: %.0f%%\n\n", base*100)
	b.WriteString("Reply with a final recommendation score between 0 and 1 and a one-line reason.")
	return b.String()
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseAdvice extracts the first number in reply. Values above 1 are read as a
// 10-point scale when at most 10, otherwise as a percentage. The result is clamped to [0,1].
func ParseAdvice(reply string) (float64, bool) {
	m := numberPattern.FindString(reply)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if v > 1 {
		if v <= 10 {
			v /= 10
		} else {
			v /= 100
		}
	}
	return clamp01(v), true
}
