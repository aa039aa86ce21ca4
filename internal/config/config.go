// Package config holds the runtime settings shared by every nearair command.
// Fields carry kong tags, so each setting is both a flag and an environment
// variable; an optional .env file is loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/telemetry"
	"github.com/nearair/nearair/pkg/geo"
)

// ServiceName identifies the service in logs and telemetry.
const ServiceName = "nearair"

// Config is the full set of runtime settings.
type Config struct {
	ProviderURL    string        `name:"provider-url" env:"NEARAIR_PROVIDER_URL" default:"https://www.purpleair.com" help:"Legacy sensor provider base URL." group:"Provider"`
	ProviderAPIURL string        `name:"provider-api-url" env:"NEARAIR_PROVIDER_API_URL" default:"https://api.purpleair.com/v1" help:"Named-field provider API base URL." group:"Provider"`
	ProviderAPIKey string        `name:"provider-api-key" env:"NEARAIR_PROVIDER_API_KEY" help:"Provider API key. Switches to the named-field API." group:"Provider"`
	MaxAge         time.Duration `name:"max-age" env:"NEARAIR_MAX_AGE" default:"5m" help:"Drop directory sensors not seen within this age. Negative disables." group:"Provider"`

	Dwell           time.Duration `name:"dwell" env:"NEARAIR_DWELL" default:"60s" help:"How long a result is displayed before the next cycle." group:"Cycle"`
	Location        string        `name:"location" env:"NEARAIR_LOCATION" help:"Fixed location as lat,lon. IP geolocation is used when empty." group:"Cycle"`
	GeoIPURL        string        `name:"geoip-url" env:"NEARAIR_GEOIP_URL" default:"http://ip-api.com/json" help:"IP geolocation endpoint." group:"Cycle"`
	Correction      string        `name:"correction" env:"NEARAIR_CORRECTION" default:"epa" enum:"epa,linear,none" help:"PM2.5 correction (${enum})." group:"Cycle"`
	FaultyZeroCheck bool          `name:"faulty-zero-check" env:"NEARAIR_FAULTY_ZERO_CHECK" default:"true" negatable:"" help:"Reject channels whose sub-fields are all zero." group:"Cycle"`

	CacheBackend   string        `name:"cache-backend" env:"NEARAIR_CACHE_BACKEND" default:"file" enum:"memory,file,sqlite,postgres,redis,memcached" help:"Directory cache store (${enum})." group:"Cache"`
	CachePath      string        `name:"cache-path" env:"NEARAIR_CACHE_PATH" help:"File or SQLite cache location. Defaults to the user cache dir." group:"Cache"`
	CacheTTL       time.Duration `name:"cache-ttl" env:"NEARAIR_CACHE_TTL" default:"24h" help:"Directory cache lifetime." group:"Cache"`
	DatabaseURL    string        `name:"database-url" env:"DATABASE_URL" help:"Postgres DSN for the postgres cache backend." group:"Cache"`
	RedisAddr      string        `name:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" group:"Cache"`
	MemcachedAddrs string        `name:"memcached-addrs" env:"MEMCACHED_ADDRS" default:"localhost:11211" help:"Comma separated memcached servers." group:"Cache"`

	Port               int    `name:"port" env:"APP_PORT" default:"8080" help:"HTTP port. 0 disables the HTTP server." group:"Outputs"`
	ResetSigningKey    string `name:"reset-signing-key" env:"RESET_SIGNING_KEY" help:"HS256 key; when set POST /v1/reset needs a bearer token." group:"Outputs"`
	MQTTBroker         string `name:"mqtt-broker" env:"MQTT_BROKER" help:"MQTT broker URL for announcements." group:"Outputs"`
	MQTTTopic          string `name:"mqtt-topic" env:"MQTT_TOPIC" default:"nearair/announcement" group:"Outputs"`
	PubSubProjectID    string `name:"pubsub-project" env:"PUBSUB_PROJECT_ID" help:"Google Cloud project for Pub/Sub." group:"Outputs"`
	PubSubTopic        string `name:"pubsub-topic" env:"PUBSUB_TOPIC" help:"Pub/Sub topic for announcements." group:"Outputs"`
	PubSubSubscription string `name:"pubsub-subscription" env:"PUBSUB_SUBSCRIPTION" help:"Pub/Sub subscription carrying remote commands." group:"Outputs"`

	OTelEnabled  bool   `name:"otel" env:"OTEL_ENABLED" help:"Export traces and metrics over OTLP." group:"Observability"`
	OTLPEndpoint string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317" group:"Observability"`
	Environment  string `name:"env" env:"APP_ENV" default:"development" group:"Observability"`
	LogLevel     string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"trace,debug,info,warn,error" help:"Log level (${enum})." group:"Observability"`
	Pretty       bool   `name:"pretty" env:"LOG_PRETTY" help:"Human readable console logs." group:"Observability"`
}

// LoadDotEnv loads the given .env files, skipping missing ones. Variables that
// are already set keep their values.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks settings that kong cannot check on its own.
func (c *Config) Validate() error {
	var errs []error

	if c.Dwell <= 0 {
		errs = append(errs, fmt.Errorf("invalid NEARAIR_DWELL: %s must be positive", c.Dwell))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid NEARAIR_CACHE_TTL: %s must be positive", c.CacheTTL))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid APP_PORT: %d", c.Port))
	}
	if _, err := c.StaticLocation(); err != nil {
		errs = append(errs, err)
	}
	if c.CacheBackend == directory.BackendPostgres && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres cache backend"))
	}
	if (c.PubSubTopic != "" || c.PubSubSubscription != "") && c.PubSubProjectID == "" {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required for Pub/Sub"))
	}
	if c.OTelEnabled && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED"))
	}

	return errors.Join(errs...)
}

// StaticLocation returns the configured fixed location, or nil when the
// location should be resolved at runtime.
func (c *Config) StaticLocation() (*geo.Coordinate, error) {
	if strings.TrimSpace(c.Location) == "" {
		return nil, nil
	}
	coord, err := geo.Parse(c.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid NEARAIR_LOCATION: %w", err)
	}
	return &coord, nil
}

// Level returns the zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Converter returns the AQI converter settings.
func (c *Config) Converter() aqi.Config {
	return aqi.Config{
		Correction:       aqi.Correction(c.Correction),
		KeepZeroChannels: !c.FaultyZeroCheck,
	}
}

// Store returns the directory store settings.
func (c *Config) Store(logger zerolog.Logger) directory.StoreConfig {
	return directory.StoreConfig{
		Backend:        c.CacheBackend,
		Path:           c.CachePath,
		DatabaseURL:    c.DatabaseURL,
		RedisAddr:      c.RedisAddr,
		MemcachedAddrs: c.MemcachedAddrs,
		Logger:         logger,
	}
}

// Telemetry returns the OpenTelemetry settings.
func (c *Config) Telemetry(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		Enabled:        c.OTelEnabled,
		Insecure:       true,
	}
}
