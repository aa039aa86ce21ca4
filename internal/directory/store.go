package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Store.Get for an absent key.
var ErrNotFound = errors.New("cache key not found")

// Store is durable key-value storage for the serialized directory entry.
// Delete must succeed when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store backends.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
)

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	Backend string

	// Path is the file or SQLite database path.
	Path string

	DatabaseURL    string
	RedisAddr      string
	MemcachedAddrs string

	Logger zerolog.Logger
}

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Logger.Debug().Str("backend", backend).Msg("opening directory store")

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(cfg.Path)
	case BackendSQLite:
		path, err := sqlitePath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return OpenSQLiteStore(ctx, path)
	case BackendPostgres:
		return OpenPostgresStore(ctx, cfg.DatabaseURL)
	case BackendRedis:
		return OpenRedisStore(ctx, cfg.RedisAddr)
	case BackendMemcached:
		return NewMemcachedStore(cfg.MemcachedAddrs), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// sqlitePath places the database inside path when path names a directory.
func sqlitePath(path string) (string, error) {
	if path == "" {
		if base, err := os.UserCacheDir(); err == nil {
			path = filepath.Join(base, "nearair")
		}
	}
	if path == ":memory:" || filepath.Ext(path) != "" {
		return path, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create sqlite cache directory: %w", err)
	}
	return filepath.Join(path, "directory.db"), nil
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
