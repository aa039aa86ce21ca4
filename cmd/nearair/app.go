package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/config"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/location"
	"github.com/nearair/nearair/internal/orchestrator"
	"github.com/nearair/nearair/internal/provider/resilience"
	"github.com/nearair/nearair/internal/sensor/purpleair"
)

// app holds the wired components of one process.
type app struct {
	registry *resilience.Registry
	store    directory.Store
	cache    *directory.Cache
	fetcher  *purpleair.Client
	latest   *announce.Latest
	orch     *orchestrator.Orchestrator

	closers []func() error
}

// newApp wires the refresh loop. Remote sinks are only connected when
// remote is set; the log and latest sinks are always present.
func newApp(ctx context.Context, rt *runtime, remote bool) (_ *app, err error) {
	cfg := rt.cfg
	a := &app{
		registry: resilience.NewRegistry(),
		latest:   announce.NewLatest(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = directory.OpenStore(ctx, cfg.Store(rt.log))
	if err != nil {
		return nil, fmt.Errorf("open %s cache store: %w", cfg.CacheBackend, err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.cache = directory.NewCache(directory.CacheConfig{
		Store:  a.store,
		TTL:    cfg.CacheTTL,
		Logger: rt.log,
	})

	a.fetcher = purpleair.NewClient(purpleair.ClientConfig{
		BaseURL:  cfg.ProviderURL,
		APIURL:   cfg.ProviderAPIURL,
		APIKey:   cfg.ProviderAPIKey,
		MaxAge:   cfg.MaxAge,
		Registry: a.registry,
		Logger:   rt.log,
	})

	locator, err := newLocator(cfg, a.registry, rt)
	if err != nil {
		return nil, err
	}

	fanout := announce.NewFanout().
		Add("log", announce.NewLog(rt.log)).
		Add("latest", a.latest)
	if remote {
		if err := a.addRemoteSinks(ctx, rt, fanout); err != nil {
			return nil, err
		}
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		Locator:   locator,
		Fetcher:   a.fetcher,
		Cache:     a.cache,
		Converter: aqi.NewConverter(cfg.Converter()),
		Announcer: fanout,
		Dwell:     cfg.Dwell,
		Logger:    rt.log,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newLocator(cfg *config.Config, registry *resilience.Registry, rt *runtime) (location.Locator, error) {
	static, err := cfg.StaticLocation()
	if err != nil {
		return nil, err
	}
	if static != nil {
		rt.log.Info().Str("location", static.String()).Msg("using fixed location")
		return location.Static(*static), nil
	}
	return location.NewGeoIP(location.GeoIPConfig{
		URL:      cfg.GeoIPURL,
		Registry: registry,
		Logger:   rt.log,
	}), nil
}

func (a *app) addRemoteSinks(ctx context.Context, rt *runtime, fanout *announce.Fanout) error {
	cfg := rt.cfg

	if cfg.MQTTBroker != "" {
		hostname, _ := os.Hostname()
		client, err := announce.ConnectMQTT(cfg.MQTTBroker, config.ServiceName+"-"+hostname)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			client.Disconnect(250)
			return nil
		})
		fanout.Add("mqtt", announce.NewMQTT(client, cfg.MQTTTopic))
		rt.log.Info().Str("broker", cfg.MQTTBroker).Str("topic", cfg.MQTTTopic).Msg("mqtt sink connected")
	}

	if cfg.PubSubTopic != "" {
		sink, err := announce.NewPubSub(ctx, announce.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    rt.log,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sink.Close)
		fanout.Add("pubsub", sink)
		rt.log.Info().Str("topic", cfg.PubSubTopic).Msg("pubsub sink ready")
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]() //nolint:errcheck // best effort cleanup
	}
	a.closers = nil
}
