// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package feedback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsdesk/internal/cache"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/preference"
)

// Config configures the Processor.
type Config struct {
	// SatisfactionWindow is how many recent events feed recent_satisfaction.
	SatisfactionWindow int `koanf:"satisfaction_window" validate:"min=1"`

	// PatternWindow is how many recent events feed streaks, transitions and stability.
	PatternWindow int `koanf:"pattern_window" validate:"min=1"`

	// DedupSize and DedupTTL bound the memory of applied event ids.
	DedupSize int           `koanf:"dedup_size" validate:"gte=0"`
	DedupTTL  time.Duration `koanf:"dedup_ttl"`
}

// DefaultConfig uses a 20 event satisfaction window and a 10 event pattern window.
func DefaultConfig() Config {
	return Config{
		SatisfactionWindow: 20,
		PatternWindow:      10,
		DedupSize:          10000,
		DedupTTL:           time.Hour,
	}
}

// Update rule constants.
const (
	topicLikeStep      = 0.10
	topicDislikeStep   = 0.15
	topicRefreshStep   = 0.05
	styleLikeRate      = 0.10
	styleDislikeRate   = 0.15
	sourceLikeStep     = 0.08
	sourceDislikeStep  = 0.12
	sourceFloor        = 0.10
	comfortLikeStep    = 0.02
	comfortDislikeStep = 0.05
	comfortRefreshStep = 0.01
)

// Outcome is the result of applying one event.
type Outcome struct {
	Event   Event
	Profile preference.Profile
	// Duplicate is set when the event id was already applied; nothing changed.
	Duplicate bool
}

// Streak is the current run of identical reactions.
type Streak struct {
	Reaction Reaction `json:"reaction"`
	Length   int      `json:"length"`
}

// Patterns are behavior statistics derived from the whole log.
type Patterns struct {
	// PreferredTimes counts likes per "<weekday>_<bucket>".
	PreferredTimes map[string]int   `json:"preferred_times"`
	Reactions      map[Reaction]int `json:"reaction_patterns"`
	// Transitions counts "<previous>_to_<current>" reaction pairs.
	Transitions map[string]int `json:"transitions"`
	Streak      Streak         `json:"streak"`
}

// Stats counts reactions over the whole log.
type Stats struct {
	Total     int `json:"total_feedbacks"`
	Likes     int `json:"likes"`
	Dislikes  int `json:"dislikes"`
	Refreshes int `json:"refreshes"`
}

// userLog is the in-memory view of one user's reaction log.
type userLog struct {
	mu       sync.Mutex
	loaded   bool
	seq      uint64
	recent   []Event // last max(SatisfactionWindow, PatternWindow) events, oldest first
	all      []Event // full history, kept only without a repository
	stats    Stats
	patterns Patterns
}

// Processor applies feedback events to preference profiles. Events for the same
// user are applied one at a time in arrival order; different users proceed in parallel.
type Processor struct {
	cfg      Config
	store    *preference.Store
	repo     kv.Repository
	dedup    *cache.DedupLRU
	observer metrics.Observer
	now      func() time.Time
	logger   zerolog.Logger

	mu   sync.Mutex
	logs map[string]*userLog
}

// Option configures a Processor.
type Option func(*Processor)

// WithRepository persists the reaction log under the "feedback:" prefix.
func WithRepository(repo kv.Repository) Option {
	return func(p *Processor) { p.repo = repo }
}

// WithObserver reports applied and malformed events.
func WithObserver(o metrics.Observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithClock overrides the clock used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor updating profiles in store.
func NewProcessor(cfg Config, store *preference.Store, opts ...Option) *Processor {
	if cfg.SatisfactionWindow < 1 {
		cfg.SatisfactionWindow = 20
	}
	if cfg.PatternWindow < 1 {
		cfg.PatternWindow = 10
	}
	p := &Processor{
		cfg:      cfg,
		store:    store,
		observer: metrics.Nop{},
		now:      time.Now,
		logger:   logging.WithComponent("feedback"),
		logs:     make(map[string]*userLog),
	}
	if cfg.DedupSize > 0 {
		p.dedup = cache.NewDedupLRU(cfg.DedupSize, cfg.DedupTTL)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply validates ev, updates the user's profile and appends ev to the log.
// Malformed events are counted and rejected with an error wrapping ErrMalformedFeedback.
// Re-delivered events with an already applied id are acknowledged without effect.
func (p *Processor) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		p.observer.FeedbackMalformed()
		logging.Ctx(ctx).Warn().Err(err).Str("component", "feedback").Str("user", ev.UserID).Msg("Dropping malformed feedback")
		return Outcome{}, err
	}
	explicitID := ev.ID != ""
	ev.fill(p.now())

	log := p.userLog(ev.UserID)
	log.mu.Lock()
	defer log.mu.Unlock()

	if explicitID && p.dedup != nil && p.dedup.Seen(ev.ID) {
		profile, err := p.store.Snapshot(ctx, ev.UserID)
		return Outcome{Event: ev, Profile: profile, Duplicate: true}, err
	}

	if err := p.ensureLoaded(ctx, ev.UserID, log); err != nil {
		p.forget(ev.ID, explicitID)
		return Outcome{}, err
	}

	window := append(append([]Event(nil), tail(log.recent, p.cfg.SatisfactionWindow-1)...), ev)
	satisfaction := Satisfaction(window)

	profile, err := p.store.Update(ctx, ev.UserID, func(prof *preference.Profile) error {
		applyRules(prof, ev)
		prof.Comfort.RecentSatisfaction = satisfaction
		return nil
	})
	if err != nil {
		p.forget(ev.ID, explicitID)
		return Outcome{}, fmt.Errorf("apply feedback %s: %w", ev.ID, err)
	}

	log.seq++
	if err := p.persist(ctx, ev, log.seq); err != nil {
		// The profile already reflects the event; the log entry is kept in memory.
		p.logger.Warn().Err(err).Str("event", ev.ID).Msg("Feedback event not persisted")
	}
	p.record(log, ev)
	if !explicitID && p.dedup != nil {
		// Generated ids are remembered so a client resending the event is deduplicated.
		p.dedup.Seen(ev.ID)
	}

	p.observer.FeedbackApplied(string(ev.Reaction))
	p.observer.SatisfactionObserved(satisfaction)
	logging.Ctx(ctx).Debug().
		Str("component", "feedback").
		Str("user", ev.UserID).
		Str("reaction", string(ev.Reaction)).
		Float64("recent_satisfaction", satisfaction).
		Float64("overall_comfort", profile.Comfort.Overall).
		Msg("Feedback applied")

	return Outcome{Event: ev, Profile: profile}, nil
}

// applyRules mutates prof according to ev's reaction.
func applyRules(prof *preference.Profile, ev Event) {
	for _, topic := range ev.Content.Topics {
		w := prof.TopicWeight(topic)
		switch ev.Reaction {
		case Like:
			w = min(1, w+topicLikeStep)
		case Dislike:
			w = max(0, w-topicDislikeStep)
		case Refresh:
			w = max(0, w-topicRefreshStep)
		}
		prof.TopicWeights[topic] = w
	}

	if ev.Reaction != Refresh {
		for feature, v := range ev.Content.Style {
			cur := prof.StylePreference(feature, preference.NeutralWeight)
			if ev.Reaction == Like {
				cur += (v - cur) * styleLikeRate
			} else {
				cur += (cur - v) * styleDislikeRate
			}
			prof.StylePreferences[feature] = clamp01(cur)
		}
	}

	if src := ev.Content.Source; src != "" {
		w := prof.SourceWeight(src)
		switch ev.Reaction {
		case Like:
			prof.SourceWeights[src] = min(1, w+sourceLikeStep)
		case Dislike:
			prof.SourceWeights[src] = max(sourceFloor, w-sourceDislikeStep)
		}
	}

	c := &prof.Comfort
	switch ev.Reaction {
	case Like:
		c.Overall = min(1, c.Overall+comfortLikeStep)
	case Dislike:
		c.Overall = max(0, c.Overall-comfortDislikeStep)
	case Refresh:
		c.Overall = max(0, c.Overall-comfortRefreshStep)
	}
}

// Satisfaction is clamp01(((likes + 0.3*refreshes - 1.5*dislikes)/total + 1)/2) over events.
// An empty window is neutral.
func Satisfaction(events []Event) float64 {
	var likes, dislikes, refreshes float64
	for _, e := range events {
		switch e.Reaction {
		case Like:
			likes++
		case Dislike:
			dislikes++
		case Refresh:
			refreshes++
		}
	}
	total := likes + dislikes + refreshes
	if total == 0 {
		return 0.5
	}
	return clamp01(((likes+0.3*refreshes-1.5*dislikes)/total + 1) / 2)
}

// Stats returns the user's reaction counts.
func (p *Processor) Stats(ctx context.Context, userID string) (Stats, error) {
	log := p.userLog(userID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if err := p.ensureLoaded(ctx, userID, log); err != nil {
		return Stats{}, err
	}
	return log.stats, nil
}

// Patterns returns a copy of the user's behavior patterns.
func (p *Processor) Patterns(ctx context.Context, userID string) (Patterns, error) {
	log := p.userLog(userID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if err := p.ensureLoaded(ctx, userID, log); err != nil {
		return Patterns{}, err
	}
	return log.patterns.clone(), nil
}

// Recent returns up to n of the user's most recent events, oldest first.
func (p *Processor) Recent(ctx context.Context, userID string, n int) ([]Event, error) {
	log := p.userLog(userID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if err := p.ensureLoaded(ctx, userID, log); err != nil {
		return nil, err
	}
	return append([]Event(nil), tail(log.recent, n)...), nil
}

// History returns the user's full reaction log, oldest first.
func (p *Processor) History(ctx context.Context, userID string) ([]Event, error) {
	if p.repo == nil {
		log := p.userLog(userID)
		log.mu.Lock()
		defer log.mu.Unlock()
		return append([]Event(nil), log.all...), nil
	}
	var events []Event
	err := p.scan(ctx, userID, func(_ uint64, ev Event) {
		events = append(events, ev)
	})
	return events, err
}

func (p *Processor) userLog(userID string) *userLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.logs[userID]
	if !ok {
		l = &userLog{patterns: newPatterns()}
		p.logs[userID] = l
	}
	return l
}

// CleanupDedup drops expired entries from the applied-id set and returns how many were removed.
func (p *Processor) CleanupDedup() int {
	if p.dedup == nil {
		return 0
	}
	return p.dedup.CleanupExpired()
}

// forget releases an id marked seen by the dedup set when applying it failed,
// so a redelivery is retried.
func (p *Processor) forget(id string, explicit bool) {
	if explicit && p.dedup != nil {
		p.dedup.Forget(id)
	}
}

// ensureLoaded replays the persisted log into l. Caller holds l.mu.
func (p *Processor) ensureLoaded(ctx context.Context, userID string, l *userLog) error {
	if l.loaded {
		return nil
	}
	if p.repo != nil {
		err := p.scan(ctx, userID, func(seq uint64, ev Event) {
			l.seq = max(l.seq, seq)
			p.record(l, ev)
		})
		if err != nil {
			return fmt.Errorf("load feedback log for %s: %w", userID, err)
		}
	}
	l.loaded = true
	return nil
}

func (p *Processor) scan(ctx context.Context, userID string, fn func(seq uint64, ev Event)) error {
	prefix := kv.Key(kv.PrefixFeedback, userID) + ":"
	return p.repo.ScanPrefix(ctx, prefix, func(key string, value []byte) error {
		seq, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			// Belongs to a user id that extends this one with ':'.
			return nil
		}
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("Skipping undecodable feedback event")
			return nil
		}
		fn(seq, ev)
		return nil
	})
}

func (p *Processor) persist(ctx context.Context, ev Event, seq uint64) error {
	if p.repo == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode feedback event: %w", err)
	}
	key := kv.Key(kv.PrefixFeedback, ev.UserID, fmt.Sprintf("%020d", seq))
	if err := p.repo.Put(ctx, key, data); err != nil {
		return fmt.Errorf("persist feedback event: %w", err)
	}
	return nil
}

// record folds ev into l's window, stats and patterns. Caller holds l.mu.
func (p *Processor) record(l *userLog, ev Event) {
	if n := len(l.recent); n > 0 {
		prev := l.recent[n-1].Reaction
		l.patterns.Transitions[string(prev)+"_to_"+string(ev.Reaction)]++
		if prev == ev.Reaction {
			l.patterns.Streak.Length++
		} else {
			l.patterns.Streak = Streak{Reaction: ev.Reaction, Length: 1}
		}
	} else {
		l.patterns.Streak = Streak{Reaction: ev.Reaction, Length: 1}
	}
	if ev.Reaction == Like {
		l.patterns.PreferredTimes[ev.timeKey()]++
	}
	l.patterns.Reactions[ev.Reaction]++

	l.stats.Total++
	switch ev.Reaction {
	case Like:
		l.stats.Likes++
	case Dislike:
		l.stats.Dislikes++
	case Refresh:
		l.stats.Refreshes++
	}

	keep := max(p.cfg.SatisfactionWindow, p.cfg.PatternWindow)
	l.recent = append(l.recent, ev)
	if len(l.recent) > keep {
		l.recent = append([]Event(nil), l.recent[len(l.recent)-keep:]...)
	}
	if p.repo == nil {
		l.all = append(l.all, ev)
	}
}

func newPatterns() Patterns {
	return Patterns{
		PreferredTimes: make(map[string]int),
		Reactions:      make(map[Reaction]int),
		Transitions:    make(map[string]int),
	}
}

func (pt Patterns) clone() Patterns {
	c := newPatterns()
	for k, v := range pt.PreferredTimes {
		c.PreferredTimes[k] = v
	}
	for k, v := range pt.Reactions {
		c.Reactions[k] = v
	}
	for k, v := range pt.Transitions {
		c.Transitions[k] = v
	}
	c.Streak = pt.Streak
	return c
}

func tail(events []Event, n int) []Event {
	if n <= 0 {
		return nil
	}
	if len(events) > n {
		return events[len(events)-n:]
	}
	return events
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
