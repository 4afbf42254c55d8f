// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package preference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/newsdesk/internal/kv"
	"github.com/tomtom215/newsdesk/internal/logging"
)

// Store owns every user's profile. Reads take a deep-copy snapshot; Update is the
// only write path and serializes writers per user.
//
// Profiles are loaded lazily from the repository. A user with no stored profile
// gets DefaultProfile, which is persisted on the first Update.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	repo kv.Repository
	now  func() time.Time
}

type entry struct {
	mu      sync.RWMutex
	loaded  bool
	profile Profile
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store. repo may be nil for an ephemeral store.
func NewStore(repo kv.Repository, opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		repo:    repo,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrEmptyUser is returned for operations without a user id.
var ErrEmptyUser = errors.New("empty user id")

// Snapshot returns a deep copy of user's profile. Unknown users get DefaultProfile.
func (s *Store) Snapshot(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrEmptyUser
	}
	e := s.entry(userID)

	e.mu.RLock()
	if e.loaded {
		p := e.profile.Clone()
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, userID, e); err != nil {
		return Profile{}, err
	}
	return e.profile.Clone(), nil
}

// Update applies fn to a copy of user's profile and commits it when fn succeeds
// and the profile is persisted. On any error the stored profile is unchanged.
func (s *Store) Update(ctx context.Context, userID string, fn func(*Profile) error) (Profile, error) {
	if userID == "" {
		return Profile{}, ErrEmptyUser
	}
	e := s.entry(userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.ensureLoaded(ctx, userID, e); err != nil {
		return Profile{}, err
	}

	next := e.profile.Clone()
	if err := fn(&next); err != nil {
		return Profile{}, err
	}
	next.UserID = userID
	next.UpdatedAt = s.now()

	if err := s.persist(ctx, &next); err != nil {
		return Profile{}, err
	}
	e.profile = next
	return next.Clone(), nil
}

// AddBlacklist adds value to one of user's blacklists.
func (s *Store) AddBlacklist(ctx context.Context, userID string, kind BlacklistKind, value string) (Profile, error) {
	return s.Update(ctx, userID, func(p *Profile) error {
		return p.AddBlacklist(kind, value)
	})
}

// SetSchedule replaces user's preferred content types for bucket.
func (s *Store) SetSchedule(ctx context.Context, userID string, bucket Bucket, types []string) (Profile, error) {
	return s.Update(ctx, userID, func(p *Profile) error {
		p.SetSchedule(bucket, types)
		return nil
	})
}

// Users returns the ids of all stored and cached profiles, sorted.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	s.mu.Lock()
	for id := range s.entries {
		seen[id] = struct{}{}
	}
	s.mu.Unlock()

	if s.repo != nil {
		err := s.repo.ScanPrefix(ctx, kv.PrefixProfile, func(key string, _ []byte) error {
			seen[key[len(kv.PrefixProfile):]] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list profiles: %w", err)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) entry(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}
	return e
}

// ensureLoaded must be called with e.mu held for writing.
func (s *Store) ensureLoaded(ctx context.Context, userID string, e *entry) error {
	if e.loaded {
		return nil
	}
	if s.repo == nil {
		e.profile = DefaultProfile(userID)
		e.loaded = true
		return nil
	}

	data, err := s.repo.Get(ctx, kv.Key(kv.PrefixProfile, userID))
	switch {
	case errors.Is(err, kv.ErrNotFound):
		logging.Ctx(ctx).Debug().Str("component", "preference").Str("user", userID).Msg("Initializing default profile")
		e.profile = DefaultProfile(userID)
	case err != nil:
		return fmt.Errorf("load profile %s: %w", userID, err)
	default:
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode profile %s: %w", userID, err)
		}
		p.normalize()
		p.UserID = userID
		e.profile = p
	}
	e.loaded = true
	return nil
}

func (s *Store) persist(ctx context.Context, p *Profile) error {
	if s.repo == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	if err := s.repo.Put(ctx, kv.Key(kv.PrefixProfile, p.UserID), data); err != nil {
		return fmt.Errorf("persist profile %s: %w", p.UserID, err)
	}
	return nil
}
