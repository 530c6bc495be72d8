package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alturino/storefront/cart/internal/cache"
)

// LocalStorage is the key-value medium behind the ephemeral strategy. Get
// returns a nil slice and no error for a missing key.
type LocalStorage interface {
	Get(c context.Context, key string) ([]byte, error)
	Set(c context.Context, key string, value []byte) error
	Del(c context.Context, key string) error
}

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string][]byte{}}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

func (m *MemoryStorage) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RedisStorage keeps anonymous carts in redis under carts:anonymous:<key>,
// expiring after ttl of inactivity. A zero ttl never expires.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStorage(client *redis.Client, ttl time.Duration) RedisStorage {
	return RedisStorage{client: client, ttl: ttl}
}

func (r RedisStorage) Get(c context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(c, fmt.Sprintf(cache.KEY_ANONYMOUS, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

func (r RedisStorage) Set(c context.Context, key string, value []byte) error {
	return r.client.Set(c, fmt.Sprintf(cache.KEY_ANONYMOUS, key), value, r.ttl).Err()
}

func (r RedisStorage) Del(c context.Context, key string) error {
	return r.client.Del(c, fmt.Sprintf(cache.KEY_ANONYMOUS, key)).Err()
}
