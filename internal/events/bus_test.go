// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
	"github.com/tomtom215/newsdesk/internal/preference"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond
	cfg.CloseTimeout = time.Second
	return cfg
}

func startBus(t *testing.T, applier Applier, observer metrics.Observer) *Bus {
	t.Helper()
	bus, err := NewBus(testConfig(), applier, observer)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})
	<-bus.Running()
	return bus
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// flakyApplier fails the first failures calls, then records events.
type flakyApplier struct {
	mu       sync.Mutex
	failures int
	calls    int
	applied  []feedback.Event
}

func (f *flakyApplier) Apply(_ context.Context, ev feedback.Event) (feedback.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return feedback.Outcome{}, errors.New("store unavailable")
	}
	if err := ev.Validate(); err != nil {
		return feedback.Outcome{}, err
	}
	f.applied = append(f.applied, ev)
	return feedback.Outcome{Event: ev}, nil
}

func (f *flakyApplier) snapshot() (int, []feedback.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]feedback.Event(nil), f.applied...)
}

func like(user, contentID string) feedback.Event {
	return feedback.Event{
		UserID:    user,
		ContentID: contentID,
		Reaction:  feedback.Like,
		Content:   feedback.Descriptor{Topics: []string{"tech"}},
	}
}

func TestPublishAppliesThroughProcessor(t *testing.T) {
	t.Parallel()

	store := preference.NewStore(nil)
	proc := feedback.NewProcessor(feedback.DefaultConfig(), store)
	bus := startBus(t, proc, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := bus.Publish(ctx, like("u", fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	eventually(t, "three applied events", func() bool { return bus.Stats().Applied == 3 })

	prof, err := store.Snapshot(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if w := prof.TopicWeight("tech"); w < 0.79 || w > 0.81 {
		t.Errorf("tech weight = %v, want 0.8 after three likes", w)
	}
}

func TestPublishAssignsIDAndDeduplicates(t *testing.T) {
	t.Parallel()

	store := preference.NewStore(nil)
	proc := feedback.NewProcessor(feedback.DefaultConfig(), store)
	bus := startBus(t, proc, nil)
	ctx := context.Background()

	ev := like("u", "c")
	ev.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id, err := bus.Publish(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if want := feedback.NewEventID("u", "c", ev.Timestamp); id != want {
		t.Errorf("id = %q, want %q", id, want)
	}

	// A redelivery carries the same id and has no effect.
	ev.ID = id
	if _, err := bus.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}

	eventually(t, "both deliveries handled", func() bool {
		s := bus.Stats()
		return s.Applied+s.Duplicates == 2
	})
	if s := bus.Stats(); s.Applied != 1 || s.Duplicates != 1 {
		t.Errorf("stats = %+v, want 1 applied and 1 duplicate", s)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	t.Parallel()

	applier := &flakyApplier{failures: 2}
	bus := startBus(t, applier, nil)

	if _, err := bus.Publish(context.Background(), like("u", "c")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "event applied after retries", func() bool { return bus.Stats().Applied == 1 })

	calls, applied := applier.snapshot()
	if calls != 3 || len(applied) != 1 {
		t.Errorf("calls = %d applied = %d, want 3 and 1", calls, len(applied))
	}
	if bus.Stats().DeadLettered != 0 {
		t.Error("nothing should be dead-lettered")
	}
}

func TestPersistentFailureIsDeadLettered(t *testing.T) {
	t.Parallel()

	applier := &flakyApplier{failures: 100}
	bus := startBus(t, applier, nil)

	if _, err := bus.Publish(context.Background(), like("u", "c")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "event dead-lettered", func() bool { return bus.Stats().DeadLettered == 1 })

	// One attempt plus two retries.
	if calls, _ := applier.snapshot(); calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestMalformedEventsAreDropped(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := metrics.NewPrometheus(reg)
	proc := feedback.NewProcessor(feedback.DefaultConfig(), preference.NewStore(nil), feedback.WithObserver(obs))
	bus := startBus(t, proc, obs)

	bad := like("", "c")
	if _, err := bus.Publish(context.Background(), bad); err != nil {
		t.Fatal(err)
	}
	eventually(t, "malformed event dropped", func() bool { return bus.Stats().Dropped == 1 })

	const want = `
# HELP newsdesk_feedback_malformed_total Total number of feedback events dropped as malformed
# TYPE newsdesk_feedback_malformed_total counter
newsdesk_feedback_malformed_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "newsdesk_feedback_malformed_total"); err != nil {
		t.Error(err)
	}
	if bus.Stats().DeadLettered != 0 {
		t.Error("malformed events must not be retried into the poison topic")
	}
}

func TestPublishBeforeRunTimesOut(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.StartTimeout = 20 * time.Millisecond
	bus, err := NewBus(cfg, &flakyApplier{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()

	if _, err := bus.Publish(context.Background(), like("u", "c")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Publish err = %v, want ErrNotRunning", err)
	}
}

func TestLoggerAdapter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewLoggerAdapter(logging.NewTestLogger(&buf)).With(watermill.LogFields{"handler": "h1"})
	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{"attempt": 2})

	out := buf.String()
	for _, want := range []string{`"handler":"h1"`, `"attempt":2`, `"error":"boom"`, `"message":"handler failed"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}
