// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every recognized environment variable.
const EnvPrefix = "NEWSDESK_"

// Load builds the configuration from defaults, the config file and the environment,
// then validates it. Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path; an empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// NEWSDESK_STORAGE_BACKEND -> storage.backend
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first existing default path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as strings.
var sliceConfigPaths = []string{
	"admission.blacklist_keywords",
	"server.cors_allowed_origins",
	"pipeline.process.clickbait_patterns",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased variable names, without EnvPrefix, to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"http_addr":                "server.addr",
	"http_read_timeout":        "server.read_timeout",
	"http_write_timeout":       "server.write_timeout",
	"http_shutdown_timeout":    "server.shutdown_timeout",
	"http_max_body_bytes":      "server.max_body_bytes",
	"rate_limit_requests":      "server.rate_limit_requests",
	"rate_limit_window":        "server.rate_limit_window",
	"disable_rate_limit":       "server.rate_limit_disabled",
	"cors_allowed_origins":     "server.cors_allowed_origins",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
	"storage_backend":          "storage.backend",
	"storage_path":             "storage.path",
	"storage_sync_writes":      "storage.sync_writes",
	"redis_addr":               "storage.redis_addr",
	"redis_password":           "storage.redis_password",
	"redis_db":                 "storage.redis_db",
	"min_length":               "admission.min_length",
	"translation_min_length":   "admission.translation_min_length",
	"blacklist_keywords":       "admission.blacklist_keywords",
	"cache_ttl":                "cache.ttl",
	"cache_sweep_interval":     "cache.sweep_interval",
	"advisor_enabled":          "scoring.advisor_enabled",
	"advisor_timeout":          "scoring.advisor_timeout",
	"scoring_concurrency":      "scoring.concurrency",
	"diversity_strategy":       "diversity.strategy",
	"diversity_lambda":         "diversity.lambda",
	"satisfaction_window":      "feedback.satisfaction_window",
	"target_language":          "pipeline.process.target_language",
	"clickbait_patterns":       "pipeline.process.clickbait_patterns",
	"pool_size":                "pipeline.pool_size",
	"pool_max_age":             "pipeline.pool_max_age",
	"history_size":             "pipeline.history_size",
	"default_count":            "pipeline.default_count",
	"pipeline_concurrency":     "pipeline.concurrency",
	"bus_buffer_size":          "events.buffer_size",
	"bus_retry_max_retries":    "events.retry_max_retries",
	"transform_provider":       "transform.provider",
	"transform_base_url":       "transform.remote.base_url",
	"transform_api_key":        "transform.remote.api_key",
	"transform_model":          "transform.remote.model",
	"transform_timeout":        "transform.remote.timeout",
	"transform_max_tokens":     "transform.remote.max_tokens",
	"transform_rps":            "transform.remote.requests_per_second",
	"transform_burst":          "transform.remote.burst",
	"transform_retry_attempts": "transform.remote.retry.max_attempts",
	"feed_poll_interval":       "feeds.poll_interval",
	"record_max_age":           "maintenance.record_max_age",
	"shutdown_timeout":         "supervisor.shutdown_timeout",
}

// envTransformFunc maps NEWSDESK_CACHE_TTL to cache.ttl and drops unknown variables.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}
