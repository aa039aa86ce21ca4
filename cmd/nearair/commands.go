package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/api"
	"github.com/nearair/nearair/internal/api/middleware"
	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/auth"
	"github.com/nearair/nearair/internal/config"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/metrics"
	"github.com/nearair/nearair/internal/provider/resilience"
	"github.com/nearair/nearair/internal/sensor"
	"github.com/nearair/nearair/internal/telemetry"
	"github.com/nearair/nearair/internal/worker"
	"github.com/nearair/nearair/pkg/geo"
)

const shutdownTimeout = 30 * time.Second

// RunCmd runs the refresh loop until interrupted.
type RunCmd struct {
	RequireTLS bool `name:"require-tls" env:"REQUIRE_TLS" help:"Reject requests a proxy reports as plain HTTP."`
}

// Run implements the run command.
func (c *RunCmd) Run(rt *runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, rt.cfg.Telemetry(Version))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			rt.log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if rt.cfg.OTelEnabled {
		rt.log.Info().Str("otlp_endpoint", rt.cfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	a, err := newApp(ctx, rt, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Everything that can fail is built before the first goroutine starts.
	var subscriber *worker.PubSubHandler
	if rt.cfg.PubSubSubscription != "" {
		subscriber, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        rt.cfg.PubSubProjectID,
			SubscriptionName: rt.cfg.PubSubSubscription,
			Dispatcher:       worker.NewDispatcher(a.orch, rt.log),
			Logger:           rt.log,
		})
		if err != nil {
			return err
		}
		defer subscriber.Close()
	}

	var server *http.Server
	if rt.cfg.Port > 0 {
		if server, err = c.newServer(rt, a); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.orch.Run(ctx)
	})

	if subscriber != nil {
		g.Go(func() error {
			return subscriber.Start(ctx)
		})
	}

	if server != nil {
		g.Go(func() error {
			rt.log.Info().Str("addr", server.Addr).Msg("server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			rt.log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	rt.log.Info().Msg("nearair stopped")
	return err
}

func (c *RunCmd) newServer(rt *runtime, a *app) (*http.Server, error) {
	httpMetrics, err := middleware.NewMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("initialize http metrics: %w", err)
	}

	var tokens *auth.Tokens
	if rt.cfg.ResetSigningKey != "" {
		tokens = auth.NewTokens(auth.TokenConfig{SigningKey: rt.cfg.ResetSigningKey})
	} else {
		rt.log.Warn().Msg("RESET_SIGNING_KEY not set - POST /v1/reset is open")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         rt.log,
		ServiceName:    config.ServiceName,
		Metrics:        httpMetrics,
		MetricsHandler: metrics.Handler(),
		Controller:     a.orch,
		Latest:         a.latest,
		Registry:       a.registry,
		Cache:          a.cache,
		Tokens:         tokens,
		RequireTLS:     c.RequireTLS,
	})

	return &http.Server{
		Addr:         ":" + strconv.Itoa(rt.cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

// OnceCmd runs one cycle and prints the final announcement.
type OnceCmd struct {
	JSON    bool          `name:"json" help:"Print the announcement as JSON."`
	Timeout time.Duration `name:"timeout" default:"1m" help:"Give up after this long."`
}

// Run implements the once command.
func (c *OnceCmd) Run(rt *runtime) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	a, err := newApp(ctx, rt, false)
	if err != nil {
		return err
	}
	defer a.Close()

	state, cycleErr := a.orch.RunCycle(ctx)
	if err := printAnnouncement(os.Stdout, state.Announcement, c.JSON); err != nil {
		return err
	}
	return cycleErr
}

func printAnnouncement(w io.Writer, a announce.Announcement, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	if a.SensorURL != "" {
		_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", a.Headline, a.Description, a.SensorURL)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n", a.Headline, a.Description)
	return err
}

// NearestCmd prints the sensor nearest to a coordinate.
type NearestCmd struct {
	Lat     float64 `name:"lat" required:"" help:"Latitude in degrees."`
	Lon     float64 `name:"lon" required:"" help:"Longitude in degrees."`
	Refresh bool    `name:"refresh" help:"Ignore the cached directory."`
}

// Run implements the nearest command.
func (c *NearestCmd) Run(rt *runtime) error {
	origin := geo.Coordinate{Latitude: c.Lat, Longitude: c.Lon}
	if !origin.Valid() {
		return fmt.Errorf("coordinate %s out of range", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx, rt, false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := loadDirectory(ctx, a.cache, a.fetcher, c.Refresh, rt.log)
	if err != nil {
		return err
	}

	nearest, err := sensor.SelectNearest(origin, list)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%.2f km\t%s\n", nearest.ID, nearest.DistanceKm(), nearest.MapURL())
	return nil
}

// loadDirectory returns the cached directory, fetching and caching a fresh one
// when the cache is invalid or refresh is set. Empty directories are not saved
// so the refresh loop fetches again on its next cycle.
func loadDirectory(ctx context.Context, cache *directory.Cache, fetcher sensor.Fetcher, refresh bool, log zerolog.Logger) ([]sensor.Summary, error) {
	if !refresh {
		if entry, err := cache.Load(ctx); err == nil {
			return entry.Data, nil
		}
	}
	list, err := fetcher.FetchDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		if err := cache.Save(ctx, list); err != nil {
			log.Warn().Err(err).Msg("failed to save sensor directory")
		}
	}
	return list, nil
}

// TokenCmd mints a reset token signed with RESET_SIGNING_KEY.
type TokenCmd struct {
	Subject string        `name:"subject" default:"cli" help:"Who the token is for."`
	TTL     time.Duration `name:"ttl" default:"24h" help:"Token lifetime."`
}

// Run implements the token command.
func (c *TokenCmd) Run(rt *runtime) error {
	if rt.cfg.ResetSigningKey == "" {
		return errors.New("RESET_SIGNING_KEY is required to mint tokens")
	}
	tokens := auth.NewTokens(auth.TokenConfig{SigningKey: rt.cfg.ResetSigningKey, TTL: c.TTL})
	token, expiresAt, err := tokens.Issue(c.Subject, auth.ScopeReset)
	if err != nil {
		return err
	}
	fmt.Println(token)
	rt.log.Info().Str("subject", c.Subject).Time("expires_at", expiresAt).Msg("reset token issued")
	return nil
}

// ResetCmd posts a reset to a running instance, or with --local clears the
// persisted sensor directory directly.
type ResetCmd struct {
	URL   string `name:"url" default:"http://localhost:8080" help:"Base URL of the running instance."`
	Token string `name:"token" env:"NEARAIR_RESET_TOKEN" help:"Bearer token. Minted from RESET_SIGNING_KEY when empty."`
	Local bool   `name:"local" help:"Clear the configured cache store instead of calling a running instance."`
}

// Run implements the reset command.
func (c *ResetCmd) Run(rt *runtime) error {
	if c.Local {
		return c.clearLocal(rt)
	}

	token := c.Token
	if token == "" && rt.cfg.ResetSigningKey != "" {
		var err error
		tokens := auth.NewTokens(auth.TokenConfig{SigningKey: rt.cfg.ResetSigningKey, TTL: time.Minute})
		if token, _, err = tokens.Issue("cli", auth.ScopeReset); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.URL, "/")+"/v1/reset", http.NoBody)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rc := resilience.DefaultClientConfig(config.ServiceName)
	rc.Retries = 0
	rc.Logger = rt.log
	resp, err := resilience.NewClient(rc).Do(req)
	if err != nil {
		return fmt.Errorf("post reset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var problem models.Problem
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		return fmt.Errorf("reset rejected: %s %s", resp.Status, problem.Detail)
	}

	var accepted models.ResetAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return fmt.Errorf("decode reset response: %w", err)
	}
	fmt.Printf("reset accepted, generation %d\n", accepted.Generation)
	return nil
}

func (c *ResetCmd) clearLocal(rt *runtime) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := directory.OpenStore(ctx, rt.cfg.Store(rt.log))
	if err != nil {
		return fmt.Errorf("open %s cache store: %w", rt.cfg.CacheBackend, err)
	}
	defer store.Close()

	cache := directory.NewCache(directory.CacheConfig{Store: store, TTL: rt.cfg.CacheTTL, Logger: rt.log})
	if err := cache.Clear(ctx); err != nil {
		return err
	}
	fmt.Printf("sensor directory cleared from %s store\n", rt.cfg.CacheBackend)
	return nil
}
