// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/newsdesk/internal/logging"
)

const redisScanCount = 256

// RedisRepository stores keys in a Redis database.
type RedisRepository struct {
	client redis.UniversalClient
}

var _ Repository = (*RedisRepository)(nil)

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}

	logging.Info().Str("addr", addr).Int("db", db).Msg("Key/value store opened")
	return &RedisRepository{client: client}, nil
}

// NewRedisRepository wraps an existing client.
func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

// Get retrieves the value at key.
func (r *RedisRepository) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Put stores value at key without expiry; TTL semantics live in the callers.
func (r *RedisRepository) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ScanPrefix collects matching keys with SCAN, sorts them, then fetches each value.
// Keys deleted between SCAN and GET are skipped.
func (r *RedisRepository) ScanPrefix(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := r.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close closes the client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
