// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package feedback

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// Sunday 1 March 2026, 09:00 UTC.
var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newProcessor(t *testing.T, opts ...Option) (*Processor, *preference.Store) {
	t.Helper()
	store := preference.NewStore(nil)
	clock := t0
	opts = append([]Option{WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	return NewProcessor(DefaultConfig(), store, opts...), store
}

func event(user string, r Reaction, topics ...string) Event {
	return Event{UserID: user, ContentID: "c1", Reaction: r, Content: Descriptor{Topics: topics}}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLikeMonotonicity(t *testing.T) {
	t.Parallel()

	p, _ := newProcessor(t)
	ctx := context.Background()

	prev := preference.NeutralWeight
	for i := 0; i < 10; i++ {
		out, err := p.Apply(ctx, event("u", Like, "tech"))
		if err != nil {
			t.Fatal(err)
		}
		w := out.Profile.TopicWeight("tech")
		if w < prev || (w == prev && w != 1) {
			t.Fatalf("like %d: weight %v did not increase from %v", i, w, prev)
		}
		if w > 1 {
			t.Fatalf("weight %v exceeds 1", w)
		}
		prev = w
	}
	if prev != 1 {
		t.Errorf("weight after 10 likes = %v, want 1", prev)
	}
}

func TestTwentyDislikes(t *testing.T) {
	t.Parallel()

	p, store := newProcessor(t)
	ctx := context.Background()

	prev := preference.NeutralWeight
	for i := 0; i < 20; i++ {
		out, err := p.Apply(ctx, event("u", Dislike, "gossip"))
		if err != nil {
			t.Fatal(err)
		}
		w := out.Profile.TopicWeight("gossip")
		if w > prev || (w == prev && w != 0) {
			t.Fatalf("dislike %d: weight %v did not decrease from %v", i, w, prev)
		}
		if out.Profile.Comfort.Overall < 0 {
			t.Fatalf("comfort went negative: %v", out.Profile.Comfort.Overall)
		}
		prev = w
	}

	prof, _ := store.Snapshot(ctx, "u")
	if prof.TopicWeight("gossip") != 0 {
		t.Errorf("gossip weight = %v, want 0", prof.TopicWeight("gossip"))
	}
	if prof.Comfort.Overall != 0 {
		t.Errorf("comfort = %v, want 0 after 20 dislikes", prof.Comfort.Overall)
	}
	if prof.Comfort.RecentSatisfaction != 0 {
		t.Errorf("recent satisfaction = %v, want 0", prof.Comfort.RecentSatisfaction)
	}
}

func TestUpdateRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reaction Reaction
		topic    float64
		style    float64
		source   float64
		comfort  float64
	}{
		{"like", Like, 0.6, 0.5 + (0.9-0.5)*0.1, 0.58, 0.72},
		{"dislike", Dislike, 0.35, 0.5 + (0.5-0.9)*0.15, 0.38, 0.65},
		{"refresh", Refresh, 0.45, 0.5, 0.5, 0.69},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _ := newProcessor(t)
			ev := Event{UserID: "u", Reaction: tt.reaction, Content: Descriptor{
				Topics: []string{"tech"},
				Style:  map[string]float64{"brevity": 0.9},
				Source: "academic",
			}}
			out, err := p.Apply(context.Background(), ev)
			if err != nil {
				t.Fatal(err)
			}
			prof := out.Profile
			if !near(prof.TopicWeight("tech"), tt.topic) {
				t.Errorf("topic = %v, want %v", prof.TopicWeight("tech"), tt.topic)
			}
			if got := prof.StylePreference("brevity", 0.5); !near(got, tt.style) {
				t.Errorf("style = %v, want %v", got, tt.style)
			}
			if !near(prof.SourceWeight("academic"), tt.source) {
				t.Errorf("source = %v, want %v", prof.SourceWeight("academic"), tt.source)
			}
			if !near(prof.Comfort.Overall, tt.comfort) {
				t.Errorf("comfort = %v, want %v", prof.Comfort.Overall, tt.comfort)
			}
		})
	}
}

func TestSourceWeightFloor(t *testing.T) {
	t.Parallel()

	p, _ := newProcessor(t)
	var out Outcome
	for i := 0; i < 10; i++ {
		var err error
		out, err = p.Apply(context.Background(), Event{UserID: "u", Reaction: Dislike, Content: Descriptor{Source: "tabloid"}})
		if err != nil {
			t.Fatal(err)
		}
	}
	if w := out.Profile.SourceWeight("tabloid"); !near(w, 0.1) {
		t.Errorf("source weight = %v, want floor 0.1", w)
	}
}

func TestSatisfaction(t *testing.T) {
	t.Parallel()

	mk := func(rs ...Reaction) []Event {
		out := make([]Event, len(rs))
		for i, r := range rs {
			out[i] = Event{Reaction: r}
		}
		return out
	}
	tests := []struct {
		name string
		in   []Event
		want float64
	}{
		{"empty", nil, 0.5},
		{"all likes", mk(Like, Like), 1},
		{"all dislikes", mk(Dislike), 0},
		{"mixed", mk(Like, Refresh, Dislike, Like), ((2+0.3-1.5)/4 + 1) / 2},
		{"refreshes only", mk(Refresh, Refresh), (0.3 + 1) / 2},
	}
	for _, tt := range tests {
		if got := Satisfaction(tt.in); !near(got, tt.want) {
			t.Errorf("%s: Satisfaction = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSatisfactionWindow(t *testing.T) {
	t.Parallel()

	p, _ := newProcessor(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := p.Apply(ctx, event("u", Dislike, "x")); err != nil {
			t.Fatal(err)
		}
	}
	var out Outcome
	for i := 0; i < 20; i++ {
		var err error
		if out, err = p.Apply(ctx, event("u", Like, "x")); err != nil {
			t.Fatal(err)
		}
	}
	if out.Profile.Comfort.RecentSatisfaction != 1 {
		t.Errorf("satisfaction = %v, want 1 once the dislikes left the window", out.Profile.Comfort.RecentSatisfaction)
	}
}

func TestMalformedFeedback(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := metrics.NewPrometheus(reg)
	p, store := newProcessor(t, WithObserver(obs))
	ctx := context.Background()

	bad := []Event{
		{Reaction: Like, Content: Descriptor{Topics: []string{"x"}}},
		{UserID: "u", Reaction: "love", Content: Descriptor{Topics: []string{"x"}}},
		{UserID: "u", Reaction: Like},
	}
	for _, ev := range bad {
		if _, err := p.Apply(ctx, ev); !errors.Is(err, ErrMalformedFeedback) {
			t.Errorf("Apply(%+v) err = %v, want ErrMalformedFeedback", ev, err)
		}
	}

	const want = `
# HELP newsdesk_feedback_malformed_total Total number of feedback events dropped as malformed
# TYPE newsdesk_feedback_malformed_total counter
newsdesk_feedback_malformed_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "newsdesk_feedback_malformed_total"); err != nil {
		t.Error(err)
	}
	prof, _ := store.Snapshot(ctx, "u")
	if len(prof.TopicWeights) != 0 || prof.Comfort.Overall != 0.7 {
		t.Error("malformed events must not change the profile")
	}
	if _, err := ParseReaction("LIKE"); err != nil {
		t.Errorf("ParseReaction(LIKE): %v", err)
	}
}

func TestEventDefaults(t *testing.T) {
	t.Parallel()

	p, _ := newProcessor(t)
	out, err := p.Apply(context.Background(), event("u", Like, "x"))
	if err != nil {
		t.Fatal(err)
	}
	ev := out.Event
	if !regexp.MustCompile(`^fb_\d+_[0-9a-f]{8}$`).MatchString(ev.ID) {
		t.Errorf("ID = %q, want fb_<ms>_<8 hex>", ev.ID)
	}
	if ev.Context.TimeOfDay != preference.Morning || ev.Context.DayOfWeek != "Sunday" {
		t.Errorf("context = %+v, want Sunday morning", ev.Context)
	}
	if NewEventID("u", "c", t0) != NewEventID("u", "c", t0) || NewEventID("u", "c", t0) == NewEventID("v", "c", t0) {
		t.Error("NewEventID should be deterministic per user/content/time")
	}
}

func TestDuplicateEventIgnored(t *testing.T) {
	t.Parallel()

	p, _ := newProcessor(t)
	ctx := context.Background()
	ev := event("u", Like, "tech")
	ev.ID = "fb_1_deadbeef"

	first, err := p.Apply(ctx, ev)
	if err != nil || first.Duplicate {
		t.Fatalf("first Apply = %+v, %v", first, err)
	}
	second, err := p.Apply(ctx, ev)
	if err != nil || !second.Duplicate {
		t.Fatalf("second Apply = %+v, %v; want duplicate", second, err)
	}
	if second.Profile.TopicWeight("tech") != first.Profile.TopicWeight("tech") {
		t.Error("duplicate event changed the profile")
	}
	if s, _ := p.Stats(ctx, "u"); s.Total != 1 {
		t.Errorf("stats total = %d, want 1", s.Total)
	}
}

func TestPatternsAndPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := kv.NewMemoryRepository()
	store := preference.NewStore(repo)
	p := NewProcessor(DefaultConfig(), store, WithRepository(repo), WithClock(func() time.Time { return t0 }))

	for _, r := range []Reaction{Like, Like, Dislike, Refresh, Refresh, Refresh} {
		if _, err := p.Apply(ctx, event("u", r, "x")); err != nil {
			t.Fatal(err)
		}
	}

	check := func(p *Processor) {
		t.Helper()
		pt, err := p.Patterns(ctx, "u")
		if err != nil {
			t.Fatal(err)
		}
		if pt.PreferredTimes["Sunday_morning"] != 2 {
			t.Errorf("preferred times = %v", pt.PreferredTimes)
		}
		if pt.Transitions["like_to_like"] != 1 || pt.Transitions["like_to_dislike"] != 1 ||
			pt.Transitions["dislike_to_refresh"] != 1 || pt.Transitions["refresh_to_refresh"] != 2 {
			t.Errorf("transitions = %v", pt.Transitions)
		}
		if pt.Streak != (Streak{Reaction: Refresh, Length: 3}) {
			t.Errorf("streak = %+v, want refresh x3", pt.Streak)
		}
		stats, _ := p.Stats(ctx, "u")
		if stats != (Stats{Total: 6, Likes: 2, Dislikes: 1, Refreshes: 3}) {
			t.Errorf("stats = %+v", stats)
		}
	}
	check(p)

	reloaded := NewProcessor(DefaultConfig(), preference.NewStore(repo), WithRepository(repo))
	check(reloaded)

	history, err := reloaded.History(ctx, "u")
	if err != nil || len(history) != 6 || history[0].Reaction != Like || history[5].Reaction != Refresh {
		t.Errorf("History = %d events, %v", len(history), err)
	}

	// The next event continues the sequence rather than overwriting the log.
	if _, err := reloaded.Apply(ctx, event("u", Like, "x")); err != nil {
		t.Fatal(err)
	}
	if history, _ = reloaded.History(ctx, "u"); len(history) != 7 {
		t.Errorf("History after reload = %d events, want 7", len(history))
	}
}

func TestInsights(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("new user", func(t *testing.T) {
		t.Parallel()
		p, _ := newProcessor(t)
		in, err := p.Insights(ctx, "nobody")
		if err != nil {
			t.Fatal(err)
		}
		if in.Trend != TrendInsufficientData || in.Stability != 0.5 {
			t.Errorf("insights = %+v", in)
		}
		if len(in.OptimalTimes) != 3 || in.OptimalTimes[0] != "08:00" {
			t.Errorf("optimal times = %v, want fallback", in.OptimalTimes)
		}
		if len(in.Suggestions) != 0 {
			t.Errorf("suggestions = %v, want none at default comfort", in.Suggestions)
		}
	})

	t.Run("highly satisfied", func(t *testing.T) {
		t.Parallel()
		p, _ := newProcessor(t)
		for i := 0; i < 11; i++ {
			if _, err := p.Apply(ctx, event("u", Like, "tech")); err != nil {
				t.Fatal(err)
			}
		}
		in, _ := p.Insights(ctx, "u")
		if in.Trend != TrendHighlySatisfied || in.Stability != 1 {
			t.Errorf("trend = %s stability = %v", in.Trend, in.Stability)
		}
		if in.Summary.FavoriteTopics["tech"] != 1 {
			t.Errorf("favorite topics = %v", in.Summary.FavoriteTopics)
		}
		if len(in.Suggestions) != 1 || in.Suggestions[0] != SuggestHighComfort {
			t.Errorf("suggestions = %v, want high comfort", in.Suggestions)
		}
	})

	t.Run("needs adjustment", func(t *testing.T) {
		t.Parallel()
		p, _ := newProcessor(t)
		reactions := []Reaction{Like, Like, Like, Like, Like, Dislike, Dislike, Refresh, Refresh, Refresh, Refresh}
		for _, r := range reactions {
			if _, err := p.Apply(ctx, event("u", r, "econ")); err != nil {
				t.Fatal(err)
			}
		}
		in, _ := p.Insights(ctx, "u")
		if in.Trend != TrendNeedsAdjustment {
			t.Errorf("trend = %s, want needs adjustment (5/11 likes)", in.Trend)
		}
		// Last 10: 4 likes, 2 dislikes, 4 refreshes.
		if !near(in.Stability, 0.4) {
			t.Errorf("stability = %v, want 0.4", in.Stability)
		}
		found := false
		for _, s := range in.Suggestions {
			found = found || s == SuggestRefreshes
		}
		if !found {
			t.Errorf("suggestions = %v, want refresh suggestion (4/11 > 30%%)", in.Suggestions)
		}
	})
}

func TestOptimalTimesOrdering(t *testing.T) {
	t.Parallel()

	got := optimalTimes(map[string]int{"Monday_morning": 2, "Friday_evening": 5, "Sunday_night": 2, "Tuesday_afternoon": 1})
	want := []string{"Friday_evening", "Monday_morning", "Sunday_night"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("optimalTimes = %v, want %v", got, want)
		}
	}
}
