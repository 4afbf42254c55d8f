// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// mockService runs until canceled, optionally failing its first maxFails starts.
type mockService struct {
	name       string
	maxFails   int32
	startCount atomic.Int32
}

func (m *mockService) Serve(ctx context.Context) error {
	if n := m.startCount.Add(1); n <= m.maxFails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("creates hierarchical supervisor tree", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.Root() == nil {
			t.Error("root supervisor should not be nil")
		}
	})

	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
		}
	})
}

func TestSupervisorTreeLayers(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}

	data := &mockService{name: "record-pruner"}
	messaging := &mockService{name: "feedback-bus"}
	api := &mockService{name: "http-server"}
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if data.startCount.Load() > 0 && messaging.startCount.Load() > 0 && api.startCount.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, svc := range []*mockService{data, messaging, api} {
		if svc.startCount.Load() < 1 {
			t.Errorf("%s was not started", svc.name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport() error = %v", err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services = %v", report)
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	poller := &mockService{name: "feed-poller", maxFails: 2}
	server := &mockService{name: "http-server"}
	tree.AddMessagingService(poller)
	tree.AddAPIService(server)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	errCh := tree.ServeBackground(ctx)
	<-errCh

	if got := poller.startCount.Load(); got < 3 {
		t.Errorf("feed-poller starts = %d, want at least 3", got)
	}
	if got := server.startCount.Load(); got != 1 {
		t.Errorf("http-server starts = %d, want 1", got)
	}
}

func TestRemoveMessagingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	poller := &mockService{name: "feed-poller"}
	token := tree.AddMessagingService(poller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	time.Sleep(50 * time.Millisecond)
	if err := tree.RemoveMessagingService(token); err != nil {
		t.Fatalf("RemoveMessagingService() error = %v", err)
	}
	cancel()
	<-errCh
}

func TestDefaultTreeConfig(t *testing.T) {
	config := DefaultTreeConfig()

	if config.FailureThreshold != 5.0 {
		t.Errorf("expected FailureThreshold 5.0, got %f", config.FailureThreshold)
	}
	if config.FailureDecay != 30.0 {
		t.Errorf("expected FailureDecay 30.0, got %f", config.FailureDecay)
	}
	if config.FailureBackoff != 15*time.Second {
		t.Errorf("expected FailureBackoff 15s, got %v", config.FailureBackoff)
	}
	if config.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected ShutdownTimeout 10s, got %v", config.ShutdownTimeout)
	}
}
