// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package admission decides which ingested items enter the pipeline.
//
// Rules run in a fixed order and stop at the first failure:
//
//  1. missing body or source
//  2. blacklisted keyword in title or body
//  3. body shorter than the minimum length
//  4. duplicate by hash, title containment or URL
//
// Items that pass are registered with the content.RecordStore, so a repeat
// later in the same batch or in a later batch is rejected as a duplicate.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
)

// Reason identifies why an item was rejected.
type Reason string

const (
	MissingField Reason = "missing_field"
	Blacklisted  Reason = "blacklisted"
	TooShort     Reason = "too_short"
	Duplicate    Reason = "duplicate"
)

// Rejected is returned by Admit for items that fail a rule.
type Rejected struct {
	Reason Reason
	// Detail names the field, keyword or duplicate kind that triggered the rejection.
	Detail string
}

func (r *Rejected) Error() string {
	if r.Detail == "" {
		return "item rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("item rejected: %s (%s)", r.Reason, r.Detail)
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejected
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

// Config configures the Filter.
type Config struct {
	// MinLength is the minimum body length in runes.
	MinLength int `koanf:"min_length" validate:"gte=0"`

	// TranslationMinLength replaces MinLength for items flagged NeedsTranslation.
	TranslationMinLength int `koanf:"translation_min_length" validate:"gte=0"`

	// BlacklistKeywords are matched case-sensitively against title and body.
	BlacklistKeywords []string `koanf:"blacklist_keywords"`
}

// DefaultConfig returns a 20 rune minimum, 10 for items awaiting translation.
func DefaultConfig() Config {
	return Config{
		MinLength:            20,
		TranslationMinLength: 10,
	}
}

// Admitted is an item that passed every rule.
type Admitted struct {
	Item *content.Item
	Hash string
}

// Filter applies the admission rules.
type Filter struct {
	cfg        Config
	blacklist  *content.KeywordMatcher
	store      *content.RecordStore
	classifier content.TypeClassifier
	observer   metrics.Observer
	logger     zerolog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithClassifier sets the classifier used to fill Item.ContentType on admission.
func WithClassifier(c content.TypeClassifier) Option {
	return func(f *Filter) { f.classifier = c }
}

// WithObserver reports admissions and rejections.
func WithObserver(o metrics.Observer) Option {
	return func(f *Filter) { f.observer = o }
}

// NewFilter creates a Filter registering admitted items with store.
func NewFilter(cfg Config, store *content.RecordStore, opts ...Option) *Filter {
	f := &Filter{
		cfg:        cfg,
		blacklist:  content.NewKeywordMatcher(cfg.BlacklistKeywords),
		store:      store,
		classifier: content.DefaultTypeClassifier(),
		observer:   metrics.Nop{},
		logger:     logging.WithComponent("admission"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Admit checks item and, when it passes, registers it and fills ID and ContentType.
// Rejections are returned as *Rejected.
func (f *Filter) Admit(ctx context.Context, item *content.Item) (Admitted, error) {
	if err := f.check(ctx, item); err != nil {
		var r *Rejected
		if errors.As(err, &r) {
			f.observer.ItemRejected(string(r.Reason))
			logging.Ctx(ctx).Debug().
				Str("component", "admission").
				Str("reason", string(r.Reason)).
				Str("detail", r.Detail).
				Str("source", item.Source).
				Str("title", item.Title).
				Msg("Item rejected")
		}
		return Admitted{}, err
	}

	if item.ContentType == "" && f.classifier != nil {
		item.ContentType = f.classifier.ClassifyType(item)
	}
	f.observer.ItemAdmitted()
	return Admitted{Item: item, Hash: item.ID}, nil
}

func (f *Filter) check(ctx context.Context, item *content.Item) error {
	if item == nil {
		return &Rejected{Reason: MissingField, Detail: "item"}
	}
	if strings.TrimSpace(item.Body) == "" {
		return &Rejected{Reason: MissingField, Detail: "body"}
	}
	if strings.TrimSpace(item.Source) == "" {
		return &Rejected{Reason: MissingField, Detail: "source"}
	}

	if kw, ok := f.blacklist.First(item.Text()); ok {
		return &Rejected{Reason: Blacklisted, Detail: kw}
	}

	if n := item.BodyLength(); n < f.cfg.MinLength {
		if !item.NeedsTranslation || n < f.cfg.TranslationMinLength {
			return &Rejected{Reason: TooShort, Detail: fmt.Sprintf("%d runes", n)}
		}
	}

	hash := content.Hash(item.Title, item.Body)
	kind, err := f.store.CheckAndRegister(ctx, hash, item.Title, item.URL)
	if kind != content.NotDuplicate {
		return &Rejected{Reason: Duplicate, Detail: string(kind)}
	}
	if err != nil {
		// The in-memory registration stands; only durability across restarts is lost.
		f.logger.Warn().Err(err).Str("hash", hash).Msg("Admitted item not persisted")
	}
	item.ID = hash
	return nil
}

// Report summarizes one AdmitBatch call.
type Report struct {
	Admitted int
	Rejected map[Reason]int
}

// AdmitBatch admits items in order and returns the survivors. Rejections are counted, not returned.
func (f *Filter) AdmitBatch(ctx context.Context, items []*content.Item) ([]*content.Item, Report) {
	out := make([]*content.Item, 0, len(items))
	report := Report{Rejected: make(map[Reason]int)}

	for _, item := range items {
		adm, err := f.Admit(ctx, item)
		if err != nil {
			reason, ok := ReasonOf(err)
			if !ok {
				reason = MissingField
			}
			report.Rejected[reason]++
			continue
		}
		out = append(out, adm.Item)
	}
	report.Admitted = len(out)

	if len(items) > 0 {
		logging.Ctx(ctx).Info().
			Str("component", "admission").
			Int("received", len(items)).
			Int("admitted", report.Admitted).
			Interface("rejected", report.Rejected).
			Msg("Batch admitted")
	}
	return out, report
}
