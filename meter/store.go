// Copyright 2025 ScriptFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package meter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"scriptflow/platform/shared/logger"
)

// Store is the persistence contract for usage records. Get reports whether
// the key exists; absence is not an error. Implementations replace whole
// records, so concurrent writers for the same key are last-writer-wins.
// An atomic increment primitive would close that gap and can be added to
// this interface without touching the ledger.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// redisStore persists records in Redis with per-key TTLs.
type redisStore struct {
	client *redis.Client
}

// newRedisStore connects to Redis using a redis:// URL and verifies the
// connection with a short ping before the store is handed out.
func newRedisStore(redisURL string) (*redisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *redisStore) Close() error {
	return s.client.Close()
}

// memoryStore is the process-local fallback. Values never expire and are
// lost on restart; fallback mode already implies best-effort semantics.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.entries[key]
	return val, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return nil
}

// fallbackStore fronts Redis with a sticky in-memory substitute. The state
// machine has two states, connected and degraded, and only ever moves
// forward: once degraded the process stays on the memory store for its
// remaining lifetime. Read errors against Redis are reported as not-found
// without degrading; write errors degrade permanently and the value is
// rewritten to the memory store so it is not lost.
type fallbackStore struct {
	redis    *redisStore
	memory   *memoryStore
	degraded atomic.Bool
	log      *logger.Logger
}

// NewStore builds the store stack for the service. An empty redisURL or a
// failed connection degrades immediately; the HTTP contract is unaffected
// either way.
func NewStore(redisURL string, log *logger.Logger) Store {
	fs := &fallbackStore{
		memory: newMemoryStore(),
		log:    log,
	}

	if redisURL == "" {
		fs.degrade("STORAGE_REDIS_URL not set")
		return fs
	}

	rs, err := newRedisStore(redisURL)
	if err != nil {
		fs.degrade(err.Error())
		return fs
	}

	fs.redis = rs
	log.Info("", "", "Connected to Redis", nil)
	return fs
}

func (s *fallbackStore) degrade(reason string) {
	if s.degraded.CompareAndSwap(false, true) {
		promStoreDegraded.Set(1)
		s.log.Warn("", "", "Falling back to in-memory store, word usage will reset on restart", map[string]interface{}{
			"reason": reason,
		})
		if s.redis != nil {
			_ = s.redis.Close()
		}
	}
}

func (s *fallbackStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.degraded.Load() {
		return s.memory.Get(ctx, key)
	}

	val, ok, err := s.redis.Get(ctx, key)
	if err != nil {
		// Read errors fail open as "no record" so usage tracking never
		// blocks generation.
		s.log.Warn("", "", "Redis read failed, treating as missing", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return "", false, nil
	}
	return val, ok, nil
}

func (s *fallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.degraded.Load() {
		return s.memory.Set(ctx, key, value, ttl)
	}

	if err := s.redis.Set(ctx, key, value, ttl); err != nil {
		s.degrade(err.Error())
		return s.memory.Set(ctx, key, value, ttl)
	}
	return nil
}

// Degraded reports whether the store has switched to the in-memory
// fallback. Exposed for health reporting and tests.
func (s *fallbackStore) Degraded() bool {
	return s.degraded.Load()
}
