// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/newsdesk/internal/validation"
)

// Validate checks struct tags first, then the rules that span several fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	validators := []func() error{
		c.validateLogging,
		c.validateStorage,
		c.validateScoring,
		c.validateTransform,
		c.validateFeeds,
		c.validateMaintenance,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level %q: %w", c.Logging.Level, err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "badger", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	}
	return nil
}

func (c *Config) validateScoring() error {
	w := c.Scoring.Weights
	if w.Topic+w.Style+w.Source+w.Time+w.Freshness+w.Quality <= 0 {
		return errors.New("scoring.weights: at least one positive weight is required")
	}
	if c.Scoring.AdvisorEnabled && c.Scoring.AdvisorTimeout <= 0 {
		return errors.New("scoring.advisor_timeout must be positive when the advisor is enabled")
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.Provider != ProviderRemote {
		return nil
	}
	r := c.Transform.Remote
	if r.BaseURL == "" {
		return errors.New("transform.remote.base_url is required for the remote provider")
	}
	if r.APIKey == "" {
		return errors.New("transform.remote.api_key is required for the remote provider")
	}
	if r.Model == "" {
		return errors.New("transform.remote.model is required for the remote provider")
	}
	return nil
}

func (c *Config) validateFeeds() error {
	if len(c.Feeds.Sources) == 0 {
		return nil
	}
	if c.Feeds.PollInterval <= 0 {
		return errors.New("feeds.poll_interval must be positive when sources are configured")
	}
	seen := make(map[string]struct{}, len(c.Feeds.Sources))
	for _, src := range c.Feeds.Sources {
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("feeds.sources: duplicate name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	m := c.Maintenance
	if m.RecordMaxAge < 0 {
		return errors.New("maintenance.record_max_age must not be negative")
	}
	if m.RecordPruneInterval < 0 || m.PoolPruneInterval < 0 || m.DedupCleanupInterval < 0 {
		return errors.New("maintenance intervals must not be negative")
	}
	return nil
}
