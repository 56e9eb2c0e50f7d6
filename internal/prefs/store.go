// Package prefs persists the small set of named string preferences the
// workflow depends on: the phone-type default, the three message template
// bodies, and the active template slot.
package prefs

import (
	"context"
	"errors"
	"sync"

	"github.com/afshinator/BatchSMS/pkg/redis"
)

// ErrNotFound is returned when a preference has never been written. Absence
// is an expected state on first run, not a failure.
var ErrNotFound = errors.New("preference not found")

// Store is a string-keyed, string-valued persisted store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps preferences in-process. Used when no redis backend is
// configured, and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// RedisStore persists preferences through the shared redis adapter.
type RedisStore struct {
	adapter redis.RedisAdapter
	prefix  string
}

func NewRedisStore(adapter redis.RedisAdapter, prefix string) *RedisStore {
	return &RedisStore{adapter: adapter, prefix: prefix}
}

func (s *RedisStore) Get(_ context.Context, key string) (string, error) {
	b, err := s.adapter.Get(s.prefix + key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(b), nil
}

func (s *RedisStore) Set(_ context.Context, key, value string) error {
	return s.adapter.Set(s.prefix+key, []byte(value), 0)
}
