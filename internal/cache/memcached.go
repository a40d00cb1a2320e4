package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore is the shared snapshot layer for deployments that run memcached instead of Redis.
type MemcachedStore struct {
	client *memcache.Client
}

func NewMemcachedStore(addr ...string) *MemcachedStore {
	return &MemcachedStore{client: memcache.New(addr...)}
}

func (m *MemcachedStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := m.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (m *MemcachedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return m.client.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(ttl / time.Second)})
}

func (m *MemcachedStore) Delete(_ context.Context, key string) error {
	err := m.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
