// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

// Package config loads the Newsdesk configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: the DefaultConfig of every component
//  2. Config File: optional YAML file (CONFIG_PATH, then config.yaml, then /etc/newsdesk/config.yaml)
//  3. Environment Variables: NEWSDESK_* variables listed in envMappings
//
// The merged result is validated with go-playground/validator tags and the
// cross-field checks in Validate.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repo, err := kv.Open(ctx, cfg.Storage)
package config

import (
	"time"

	"github.com/tomtom215/newsdesk/internal/admission"
	"github.com/tomtom215/newsdesk/internal/api"
	"github.com/tomtom215/newsdesk/internal/cache"
	"github.com/tomtom215/newsdesk/internal/diversity"
	"github.com/tomtom215/newsdesk/internal/events"
	"github.com/tomtom215/newsdesk/internal/feedback"
	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
	"github.com/tomtom215/newsdesk/internal/pipeline"
	"github.com/tomtom215/newsdesk/internal/scoring"
	"github.com/tomtom215/newsdesk/internal/supervisor"
	"github.com/tomtom215/newsdesk/internal/transform"
)

// Config holds all application configuration.
type Config struct {
	Server      api.Config            `koanf:"server"`
	Logging     LoggingConfig         `koanf:"logging"`
	Storage     kv.Config             `koanf:"storage"`
	Admission   admission.Config      `koanf:"admission"`
	Cache       cache.Config          `koanf:"cache"`
	Scoring     scoring.Config        `koanf:"scoring"`
	Diversity   diversity.Config      `koanf:"diversity"`
	Feedback    feedback.Config       `koanf:"feedback"`
	Pipeline    pipeline.Config       `koanf:"pipeline"`
	Events      events.Config         `koanf:"events"`
	Transform   TransformConfig       `koanf:"transform"`
	Feeds       FeedsConfig           `koanf:"feeds"`
	Maintenance MaintenanceConfig     `koanf:"maintenance"`
	Supervisor  supervisor.TreeConfig `koanf:"supervisor"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level     string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format    string `koanf:"format" validate:"oneof=json console"`
	Caller    bool   `koanf:"caller"`
	Timestamp bool   `koanf:"timestamp"`
}

// ToLogging converts to the logging package's Config.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		Caller:    c.Caller,
		Timestamp: c.Timestamp,
	}
}

// Transform providers.
const (
	ProviderStub   = "stub"
	ProviderRemote = "remote"
)

// TransformConfig selects the text transform service.
type TransformConfig struct {
	// Provider is "stub" (deterministic, offline) or "remote" (OpenAI-compatible API).
	Provider string                 `koanf:"provider" validate:"oneof=stub remote"`
	Remote   transform.RemoteConfig `koanf:"remote"`
}

// FeedSource is a local RSS/Atom file polled for new items.
type FeedSource struct {
	Name string `koanf:"name" validate:"required"`
	Path string `koanf:"path" validate:"required"`
}

// FeedsConfig configures the feed poller. No sources disables it.
type FeedsConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	Sources      []FeedSource  `koanf:"sources" validate:"dive"`
}

// MaintenanceConfig schedules the periodic housekeeping services.
type MaintenanceConfig struct {
	// RecordMaxAge is how long content records are kept for cross-batch deduplication.
	RecordMaxAge time.Duration `koanf:"record_max_age"`

	// RecordPruneInterval, PoolPruneInterval and DedupCleanupInterval are the
	// tick periods of the respective maintenance jobs.
	RecordPruneInterval  time.Duration `koanf:"record_prune_interval"`
	PoolPruneInterval    time.Duration `koanf:"pool_prune_interval"`
	DedupCleanupInterval time.Duration `koanf:"dedup_cleanup_interval"`
}

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/newsdesk/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfig returns the built-in defaults: badger storage under ./data,
// the stub transform service and no feed sources.
func DefaultConfig() *Config {
	remote := transform.DefaultRemoteConfig()

	return &Config{
		Server: api.DefaultConfig(),
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Timestamp: true,
		},
		Storage: kv.Config{
			Backend:   "badger",
			Path:      "data/newsdesk",
			RedisAddr: "127.0.0.1:6379",
		},
		Admission: admission.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Scoring:   scoring.DefaultConfig(),
		Diversity: diversity.DefaultConfig(),
		Feedback:  feedback.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Events:    events.DefaultConfig(),
		Transform: TransformConfig{
			Provider: ProviderStub,
			Remote:   remote,
		},
		Feeds: FeedsConfig{PollInterval: 15 * time.Minute},
		Maintenance: MaintenanceConfig{
			RecordMaxAge:         7 * 24 * time.Hour,
			RecordPruneInterval:  time.Hour,
			PoolPruneInterval:    10 * time.Minute,
			DedupCleanupInterval: 5 * time.Minute,
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}
