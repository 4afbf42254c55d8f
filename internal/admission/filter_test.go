// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package admission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/newsdesk/internal/content"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/metrics"
)

const longBody = "The ministry published its quarterly report on regional infrastructure spending."

func newFilter(cfg Config) *Filter {
	return NewFilter(cfg, content.NewRecordStore(nil))
}

func TestAdmitRules(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.BlacklistKeywords = []string{"八卦", "Celebrity"}

	tests := []struct {
		name       string
		item       *content.Item
		wantReason Reason
		wantErr    bool
	}{
		{
			name:       "missing body",
			item:       &content.Item{Title: "Headline", Source: "Wire"},
			wantReason: MissingField,
			wantErr:    true,
		},
		{
			name:       "missing source",
			item:       &content.Item{Title: "Headline", Body: longBody},
			wantReason: MissingField,
			wantErr:    true,
		},
		{
			name:       "blacklisted keyword in title",
			item:       &content.Item{Title: "Celebrity wedding", Body: longBody, Source: "Wire"},
			wantReason: Blacklisted,
			wantErr:    true,
		},
		{
			name:       "blacklisted keyword in body",
			item:       &content.Item{Title: "娱乐新闻", Body: "今天的八卦新闻非常多而且内容也很丰富多彩值得一看再看", Source: "Wire"},
			wantReason: Blacklisted,
			wantErr:    true,
		},
		{
			name: "blacklist match is case-sensitive",
			item: &content.Item{Title: "celebrity chef opens school", Body: longBody, Source: "Wire"},
		},
		{
			name:       "too short",
			item:       &content.Item{Title: "Short", Body: "Too brief to matter", Source: "Wire"},
			wantReason: TooShort,
			wantErr:    true,
		},
		{
			name: "short but awaiting translation",
			item: &content.Item{Title: "Kurz", Body: "Zehn Zeichen!", Source: "Wire", NeedsTranslation: true},
		},
		{
			name:       "too short even for translation",
			item:       &content.Item{Title: "Kurz", Body: "Neun", Source: "Wire", NeedsTranslation: true},
			wantReason: TooShort,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFilter(cfg)
			adm, err := f.Admit(context.Background(), tt.item)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Admit: %v", err)
				}
				if adm.Item != tt.item || adm.Hash == "" || tt.item.ID != adm.Hash {
					t.Errorf("Admitted = %+v, want item with ID set", adm)
				}
				if tt.item.ContentType == "" {
					t.Error("ContentType not classified")
				}
				return
			}
			var r *Rejected
			if !errors.As(err, &r) {
				t.Fatalf("err = %v, want *Rejected", err)
			}
			if r.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", r.Reason, tt.wantReason)
			}
		})
	}
}

func TestAdmitDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFilter(DefaultConfig())

	first := &content.Item{Title: "Rail line opens to passengers", Body: longBody, Source: "Wire", URL: "https://a.example/1"}
	if _, err := f.Admit(ctx, first); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	tests := []struct {
		name string
		item *content.Item
	}{
		{"identical after normalization", &content.Item{Title: "  RAIL line opens to passengers ", Body: strings.ToUpper(longBody), Source: "Other"}},
		{"title containment", &content.Item{Title: "Rail line opens", Body: longBody + " Extra detail.", Source: "Other"}},
		{"same url", &content.Item{Title: "Something else entirely happened", Body: longBody + " More.", Source: "Other", URL: "https://a.example/1"}},
	}
	for _, tt := range tests {
		_, err := f.Admit(ctx, tt.item)
		if reason, ok := ReasonOf(err); !ok || reason != Duplicate {
			t.Errorf("%s: err = %v, want duplicate", tt.name, err)
		}
	}
}

func TestAdmitPersistsAcrossRestarts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := kv.NewMemoryRepository()

	f1 := NewFilter(DefaultConfig(), content.NewRecordStore(repo))
	item := &content.Item{Title: "Harbor expansion approved", Body: longBody, Source: "Wire"}
	if _, err := f1.Admit(ctx, item); err != nil {
		t.Fatal(err)
	}

	store := content.NewRecordStore(repo)
	if err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	f2 := NewFilter(DefaultConfig(), store)
	again := &content.Item{Title: "Harbor expansion approved", Body: longBody, Source: "Wire"}
	if reason, _ := ReasonOf(mustErr(f2.Admit(ctx, again))); reason != Duplicate {
		t.Errorf("reason = %q, want duplicate after reload", reason)
	}
}

func mustErr(_ Admitted, err error) error { return err }

func TestAdmitBatchCountsRejections(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := metrics.NewPrometheus(reg)
	f := NewFilter(DefaultConfig(), content.NewRecordStore(nil), WithObserver(obs))

	items := []*content.Item{
		{Title: "Bridge reopens after repairs", Body: longBody, Source: "Wire"},
		{Title: "Bridge reopens after repairs", Body: longBody, Source: "Wire"},
		{Title: "Tiny", Body: "short", Source: "Wire"},
		{Title: "No source", Body: longBody},
	}
	out, report := f.AdmitBatch(context.Background(), items)

	if len(out) != 1 || report.Admitted != 1 {
		t.Fatalf("admitted = %d (%d), want 1", len(out), report.Admitted)
	}
	want := map[Reason]int{Duplicate: 1, TooShort: 1, MissingField: 1}
	for reason, n := range want {
		if report.Rejected[reason] != n {
			t.Errorf("Rejected[%s] = %d, want %d", reason, report.Rejected[reason], n)
		}
	}

	expected := `
# HELP newsdesk_admission_admitted_total Total number of items admitted into scoring
# TYPE newsdesk_admission_admitted_total counter
newsdesk_admission_admitted_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "newsdesk_admission_admitted_total"); err != nil {
		t.Error(err)
	}
}
