// Package directory persists the sensor directory between cycles and
// process restarts under a versioned, time-boxed envelope.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/metrics"
	"github.com/nearair/nearair/internal/sensor"
)

const (
	// CurrentVersion is the only entry schema version Load accepts.
	CurrentVersion = 1

	// DefaultTTL is how long a saved directory stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultKey is the store key holding the entry.
	DefaultKey = "nearair:sensor-directory"
)

// ErrCacheInvalid is returned by Load when the entry is missing, malformed,
// from another schema version or expired.
var ErrCacheInvalid = errors.New("sensor directory cache invalid")

// Entry is the persisted envelope.
type Entry struct {
	Version int `json:"version"`

	// Timestamp is the save time in Unix milliseconds.
	Timestamp int64            `json:"timestamp"`
	Data      []sensor.Summary `json:"data"`
}

// SavedAt returns Timestamp as a time.
func (e *Entry) SavedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// CacheConfig holds configuration for the directory cache.
type CacheConfig struct {
	Store Store

	// Key defaults to DefaultKey.
	Key string

	// TTL defaults to DefaultTTL.
	TTL time.Duration

	// Version defaults to CurrentVersion.
	Version int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Cache loads, validates, saves and clears the directory entry.
type Cache struct {
	store   Store
	key     string
	ttl     time.Duration
	version int
	logger  zerolog.Logger
	now     func() time.Time
}

// NewCache creates a Cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Cache{
		store:   cfg.Store,
		key:     cfg.Key,
		ttl:     cfg.TTL,
		version: cfg.Version,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Load returns the stored entry if it is valid. Any invalid entry is removed
// before ErrCacheInvalid is returned; nothing is ever partially trusted.
func (c *Cache) Load(ctx context.Context) (*Entry, error) {
	entry, reason, err := c.read(ctx)
	if reason == "" {
		metrics.DirectoryCacheTotal.WithLabelValues("hit").Inc()
		return entry, nil
	}

	if reason == reasonMissing {
		metrics.DirectoryCacheTotal.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w: %s", ErrCacheInvalid, reason)
	}

	metrics.DirectoryCacheTotal.WithLabelValues("invalid").Inc()
	c.logger.Info().Err(err).Str("reason", reason).Msg("discarding sensor directory cache")
	if derr := c.store.Delete(ctx, c.key); derr != nil {
		c.logger.Warn().Err(derr).Msg("failed to clear invalid sensor directory cache")
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheInvalid, reason, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrCacheInvalid, reason)
}

const (
	reasonMissing   = "missing"
	reasonUnread    = "unreadable"
	reasonMalformed = "malformed"
	reasonVersion   = "version mismatch"
	reasonExpired   = "expired"
)

// read classifies the stored value without side effects. An empty reason
// means the entry is valid.
func (c *Cache) read(ctx context.Context) (*Entry, string, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil, reasonMissing, nil
	}
	if err != nil {
		return nil, reasonUnread, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, reasonMalformed, err
	}
	if entry.Timestamp <= 0 || entry.Data == nil {
		return nil, reasonMalformed, nil
	}
	if entry.Version != c.version {
		return nil, reasonVersion, nil
	}
	if c.now().UnixMilli() > entry.Timestamp+c.ttl.Milliseconds() {
		return nil, reasonExpired, nil
	}

	return &entry, "", nil
}

// Save replaces the stored entry with list, stamped with the current version
// and time. Computed distances are not persisted.
func (c *Cache) Save(ctx context.Context, list []sensor.Summary) error {
	data := make([]sensor.Summary, len(list))
	for i, s := range list {
		s.Distance = nil
		data[i] = s
	}

	raw, err := json.Marshal(Entry{
		Version:   c.version,
		Timestamp: c.now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encode sensor directory: %w", err)
	}

	if err := c.store.Put(ctx, c.key, raw); err != nil {
		return fmt.Errorf("save sensor directory: %w", err)
	}
	return nil
}

// Clear removes the stored entry. Clearing an absent entry is not an error.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("clear sensor directory: %w", err)
	}
	return nil
}

// Status describes the stored entry without modifying it.
type Status struct {
	Present   bool      `json:"present"`
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Sensors   int       `json:"sensors"`
	SavedAt   time.Time `json:"savedAt,omitzero"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Status reports on the stored entry.
func (c *Cache) Status(ctx context.Context) Status {
	entry, reason, _ := c.read(ctx)
	if reason != "" {
		return Status{Present: reason != reasonMissing, Reason: reason}
	}
	return Status{
		Present:   true,
		Valid:     true,
		Sensors:   len(entry.Data),
		SavedAt:   entry.SavedAt(),
		ExpiresAt: entry.SavedAt().Add(c.ttl),
	}
}
