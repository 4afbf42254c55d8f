// Newsdesk - Personalized News Curation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsdesk

package cache

import (
	"sync"
	"time"
)

// DedupLRU remembers recently seen keys for a bounded time and capacity.
// The feedback consumer uses it to drop redelivered event IDs.
//
// O(1) Seen via a map plus a doubly-linked recency list; the least recently
// seen key is evicted when capacity is exceeded, expired keys are treated as unseen.
type DedupLRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*lruEntry
	head  *lruEntry // sentinel; head.next is most recent
	tail  *lruEntry // sentinel; tail.prev is least recent

	duplicates int64
}

type lruEntry struct {
	key       string
	expiresAt time.Time
	prev      *lruEntry
	next      *lruEntry
}

// NewDedupLRU creates a set holding at most capacity keys for ttl each.
func NewDedupLRU(capacity int, ttl time.Duration) *DedupLRU {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &DedupLRU{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Seen reports whether key was recorded and has not expired. Unseen keys are recorded.
func (c *DedupLRU) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.unlink(e)
			c.pushFront(e)
			c.duplicates++
			return true
		}
		c.remove(e)
	}

	e := &lruEntry{key: key, expiresAt: now.Add(c.ttl)}
	c.pushFront(e)
	c.items[key] = e
	for len(c.items) > c.capacity {
		c.remove(c.tail.prev)
	}
	return false
}

// Forget removes key so a later Seen records it afresh.
func (c *DedupLRU) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// CleanupExpired drops expired keys and returns how many were removed.
func (c *DedupLRU) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if !now.Before(e.expiresAt) {
			c.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Len returns the number of tracked keys, expired ones included until cleanup.
func (c *DedupLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Duplicates returns how many Seen calls returned true.
func (c *DedupLRU) Duplicates() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicates
}

func (c *DedupLRU) pushFront(e *lruEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *DedupLRU) unlink(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *DedupLRU) remove(e *lruEntry) {
	c.unlink(e)
	delete(c.items, e.key)
}
