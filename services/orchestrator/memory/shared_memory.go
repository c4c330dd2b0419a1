// Copyright (C) 2025 SEOCHO Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory implements the request-scoped shared memory used during
// multi-agent runs.
//
// A SharedMemory instance lives for exactly one request. It serves two
// purposes:
//
//   - A bounded LRU cache of per-(database, cypher) results so that
//     concurrent agents do not re-execute identical queries.
//   - A collection point for per-agent answer fragments consumed by the
//     supervisor during debate synthesis.
//
// All operations are serialized by a mutex; reads return a consistent
// snapshot of entries written before the call.
package memory

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// DefaultCacheCapacity is the LRU bound K for the query cache.
const DefaultCacheCapacity = 100

type cacheEntry struct {
	key    string
	result string
}

// SharedMemory is the per-request store shared across agents.
//
// Never reuse an instance across requests; tool closures receive it by
// reference to the current request's instance only.
type SharedMemory struct {
	mu       sync.Mutex
	capacity int

	cache   map[string]*list.Element
	lru     *list.List
	results map[string]string

	hits   int64
	misses int64
}

// New creates a SharedMemory with the given query-cache capacity.
// A non-positive capacity uses DefaultCacheCapacity.
func New(capacity int) *SharedMemory {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &SharedMemory{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
		results:  make(map[string]string),
	}
}

// GetCached looks up a previously cached query result. A hit refreshes the
// entry's LRU position.
func (m *SharedMemory) GetCached(database, cypher string) (string, bool) {
	key := Fingerprint(database, cypher)

	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.cache[key]
	if !ok {
		m.misses++
		return "", false
	}
	m.lru.MoveToFront(elem)
	m.hits++
	return elem.Value.(*cacheEntry).result, true
}

// PutCached stores a query result, evicting the least recently used entry
// when the capacity bound is reached.
func (m *SharedMemory) PutCached(database, cypher, result string) {
	key := Fingerprint(database, cypher)

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.cache[key]; ok {
		elem.Value.(*cacheEntry).result = result
		m.lru.MoveToFront(elem)
		return
	}

	elem := m.lru.PushFront(&cacheEntry{key: key, result: result})
	m.cache[key] = elem

	for m.lru.Len() > m.capacity {
		oldest := m.lru.Back()
		if oldest == nil {
			break
		}
		m.lru.Remove(oldest)
		delete(m.cache, oldest.Value.(*cacheEntry).key)
	}
}

// PutResult records an agent's answer fragment for its database.
func (m *SharedMemory) PutResult(database, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[database] = answer
}

// AllResults returns a copy of every recorded answer fragment.
func (m *SharedMemory) AllResults() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.results))
	for db, answer := range m.results {
		out[db] = answer
	}
	return out
}

// Stats returns cache hit/miss counters for span metadata.
func (m *SharedMemory) Stats() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Fingerprint derives the cache key hash(db ‖ normalize(cypher)).
func Fingerprint(database, cypher string) string {
	sum := sha256.Sum256([]byte(database + "\x00" + NormalizeCypher(cypher)))
	return hex.EncodeToString(sum[:])
}

// NormalizeCypher strips // line comments and trailing whitespace so that
// cosmetic differences do not defeat the cache.
func NormalizeCypher(cypher string) string {
	lines := strings.Split(cypher, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
