// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package events carries feedback events from the delivery boundary to the
// feedback processor over an in-process watermill pub/sub.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/metrics"
)

// Topics used on the bus.
const (
	TopicFeedback       = "feedback.events"
	TopicFeedbackPoison = "feedback.poison"
)

// Metadata keys set on published messages.
const (
	metaCorrelationID = "correlation_id"
	metaUserID        = "user_id"
)

// Config configures the bus and its router.
type Config struct {
	// BufferSize is the per-subscriber channel buffer.
	BufferSize int64 `koanf:"buffer_size" validate:"gte=0"`

	// CloseTimeout bounds how long Close waits for in-flight handlers.
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// Retry settings for a failing handler.
	RetryMaxRetries      int           `koanf:"retry_max_retries" validate:"gte=0"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier" validate:"gte=1"`

	// StartTimeout bounds how long Publish waits for the router to start.
	StartTimeout time.Duration `koanf:"start_timeout"`
}

// DefaultConfig returns defaults suited to an in-process bus.
func DefaultConfig() Config {
	return Config{
		BufferSize:           256,
		CloseTimeout:         10 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		RetryMultiplier:      2,
		StartTimeout:         5 * time.Second,
	}
}

// Applier applies a feedback event. *feedback.Processor implements it.
type Applier interface {
	Apply(ctx context.Context, ev feedback.Event) (feedback.Outcome, error)
}

// ErrNotRunning is returned by Publish when the router has not started in time.
var ErrNotRunning = errors.New("events: bus not running")

// Stats counts bus activity.
type Stats struct {
	Published    int64 `json:"published"`
	Applied      int64 `json:"applied"`
	Duplicates   int64 `json:"duplicates"`
	Dropped      int64 `json:"dropped"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Bus publishes feedback events and applies them in a router handler.
//
// Delivery is at-least-once: a handler error is retried with backoff and then
// routed to the poison topic. Events carry their id before publishing so that a
// redelivery is recognized by the processor's dedup set.
type Bus struct {
	cfg      Config
	pubSub   *gochannel.GoChannel
	router   *message.Router
	applier  Applier
	observer metrics.Observer
	logger   zerolog.Logger
	now      func() time.Time

	published    atomic.Int64
	applied      atomic.Int64
	duplicates   atomic.Int64
	dropped      atomic.Int64
	deadLettered atomic.Int64
}

// NewBus creates a bus whose handler hands events to applier.
func NewBus(cfg Config, applier Applier, observer metrics.Observer) (*Bus, error) {
	if observer == nil {
		observer = metrics.Nop{}
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}

	logger := logging.WithComponent("events")
	wmLogger := NewLoggerAdapter(logger)

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.BufferSize,
		BlockPublishUntilSubscriberAck: false,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	b := &Bus{
		cfg:      cfg,
		pubSub:   pubSub,
		router:   router,
		applier:  applier,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}

	// Outer to inner: dead letter what still fails after retries, recover panics into errors, retry.
	poison, err := middleware.PoisonQueue(pubSub, TopicFeedbackPoison)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	router.AddMiddleware(
		poison,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      cfg.RetryMaxRetries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      cfg.RetryMultiplier,
			Logger:          wmLogger,
		}.Middleware,
	)

	router.AddConsumerHandler("feedback_processor", TopicFeedback, pubSub, b.handleFeedback)
	router.AddConsumerHandler("feedback_poison", TopicFeedbackPoison, pubSub, b.handlePoison)
	return b, nil
}

// Serve runs the router until ctx is canceled. It satisfies suture.Service.
// A closed router cannot run again, so a router failure is not restarted.
func (b *Bus) Serve(ctx context.Context) error {
	b.logger.Info().Msg("Feedback bus starting")
	err := b.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: feedback router: %w", suture.ErrDoNotRestart, err)
	}
	return suture.ErrDoNotRestart
}

// Running is closed once the router handlers are subscribed.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	return errors.Join(b.router.Close(), b.pubSub.Close())
}

// String names the service in supervisor logs.
func (b *Bus) String() string { return "feedback-bus" }

// Publish enqueues ev for asynchronous application and returns the event id.
// A missing id and timestamp are assigned here.
func (b *Bus) Publish(ctx context.Context, ev feedback.Event) (string, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if ev.ID == "" {
		ev.ID = feedback.NewEventID(ev.UserID, ev.ContentID, ev.Timestamp)
	}

	wait, cancel := context.WithTimeout(ctx, b.cfg.StartTimeout)
	defer cancel()
	select {
	case <-b.router.Running():
	case <-wait.Done():
		return "", ErrNotRunning
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode feedback event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaUserID, ev.UserID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(metaCorrelationID, id)
	}

	if err := b.pubSub.Publish(TopicFeedback, msg); err != nil {
		return "", fmt.Errorf("publish feedback event: %w", err)
	}
	b.published.Add(1)
	return ev.ID, nil
}

// Stats returns bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:    b.published.Load(),
		Applied:      b.applied.Load(),
		Duplicates:   b.duplicates.Load(),
		Dropped:      b.dropped.Load(),
		DeadLettered: b.deadLettered.Load(),
	}
}

// handleFeedback applies one message. Undecodable and malformed events are
// acknowledged and dropped; other failures are returned for retry.
func (b *Bus) handleFeedback(msg *message.Message) error {
	ctx := msg.Context()
	if id := msg.Metadata.Get(metaCorrelationID); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}

	var ev feedback.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.dropped.Add(1)
		b.observer.FeedbackMalformed()
		b.logger.Warn().Err(err).Str("message", msg.UUID).Msg("Dropping undecodable feedback message")
		return nil
	}

	out, err := b.applier.Apply(ctx, ev)
	switch {
	case errors.Is(err, feedback.ErrMalformedFeedback):
		b.dropped.Add(1)
		return nil
	case err != nil:
		return fmt.Errorf("apply feedback %s: %w", ev.ID, err)
	case out.Duplicate:
		b.duplicates.Add(1)
		logging.Ctx(ctx).Debug().Str("component", "events").Str("event", ev.ID).Msg("Duplicate feedback event ignored")
	default:
		b.applied.Add(1)
	}
	return nil
}

func (b *Bus) handlePoison(msg *message.Message) error {
	b.deadLettered.Add(1)
	b.logger.Error().
		Str("message", msg.UUID).
		Str("user", msg.Metadata.Get(metaUserID)).
		Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)).
		Msg("Feedback event dead-lettered")
	return nil
}
