package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore keeps values in memcached. Items never expire on the
// server; Cache enforces the TTL.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a store for a comma-separated server list.
func NewMemcachedStore(addrs string) *MemcachedStore {
	var servers []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			servers = append(servers, a)
		}
	}
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	return &MemcachedStore{client: memcache.New(servers...)}
}

func (s *MemcachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (s *MemcachedStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: key, Value: value})
}

func (s *MemcachedStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
