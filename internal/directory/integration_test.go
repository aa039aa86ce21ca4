//go:build integration

package directory_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/internal/directory"
)

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	store, err := directory.OpenRedisStore(context.Background(), addr)
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemcachedStore_Integration(t *testing.T) {
	store := directory.NewMemcachedStore(os.Getenv("MEMCACHED_ADDRS"))
	if err := store.Put(context.Background(), "probe", []byte("1")); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}
	require.NoError(t, store.Delete(context.Background(), "probe"))
	exerciseStore(t, store)
}

func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	store, err := directory.OpenPostgresStore(context.Background(), url)
	require.NoError(t, err)
	exerciseStore(t, store)
}
