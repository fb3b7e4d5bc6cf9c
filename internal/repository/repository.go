// Package repository stores analysis results by image fingerprint.
//
// A Store is a small key/value cache with expiry. Implementations:
//   - memoryStore: in-process map for development and single instances
//   - badgerStore: embedded on-disk store that survives restarts
//   - redisStore: shared cache for horizontally scaled deployments
//
// Values are opaque bytes; the pipeline owns the encoding.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

// Common errors
var (
	ErrClosed    = errors.New("store closed")
	ErrEmptyKey  = errors.New("empty key")
	ErrNoBackend = errors.New("caching disabled")
)

// keyPrefix namespaces result entries in shared backends.
const keyPrefix = "unreal:result:"

// Store is a fingerprint-keyed result cache.
type Store interface {
	// Get returns the value for key. A missing or expired key is not an
	// error: ok is false.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for the store's TTL.
	Set(ctx context.Context, key string, value []byte) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Open builds the store selected by cfg.CacheBackend. It returns
// ErrNoBackend when caching is disabled.
func Open(cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.CacheBackend {
	case config.CacheNone:
		return nil, ErrNoBackend
	case config.CacheMemory:
		return NewMemory(cfg.CacheTTL, defaultMaxEntries), nil
	case config.CacheBadger:
		return NewBadger(BadgerConfig{Path: cfg.BadgerPath, TTL: cfg.CacheTTL, GCInterval: 5 * time.Minute}, log)
	case config.CacheRedis:
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// =============================================================================
// In-Memory Implementation
// =============================================================================

const defaultMaxEntries = 10000

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// memoryStore keeps entries in a map. When full, expired entries are purged
// first and then the entry closest to expiry is evicted.
type memoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	closed     bool
}

// NewMemory creates an in-memory store. ttl <= 0 means entries never
// expire; maxEntries <= 0 means the default capacity.
func NewMemory(ttl time.Duration, maxEntries int) Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &memoryStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return nil, false, nil
	}
	// Return copy
	return append([]byte(nil), e.value...), true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evict()
	}

	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}
	s.entries[key] = memoryEntry{value: append([]byte(nil), value...), expires: expires}
	return nil
}

func (s *memoryStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

// evict makes room for one entry. Caller holds the write lock.
func (s *memoryStore) evict() {
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}
	var victim string
	var soonest time.Time
	for k, e := range s.entries {
		if victim == "" || e.expires.Before(soonest) {
			victim, soonest = k, e.expires
		}
	}
	delete(s.entries, victim)
}

// Ping always succeeds for an open in-memory store.
func (s *memoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all entries.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
