// Package purpleair fetches the sensor directory and live readings from the
// PurpleAir network, through either the legacy public JSON feeds or the
// keyed v1 API.
package purpleair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/metrics"
	"github.com/nearair/nearair/internal/provider/resilience"
	"github.com/nearair/nearair/internal/sensor"
)

const (
	// DefaultBaseURL serves the legacy data.json and json?show feeds.
	DefaultBaseURL = "https://www.purpleair.com"

	// DefaultAPIURL is the keyed v1 API.
	DefaultAPIURL = "https://api.purpleair.com/v1"

	// ProviderName identifies this provider in logs and health checks.
	ProviderName = "purpleair"

	// DefaultMaxAge is the directory freshness threshold.
	DefaultMaxAge = 5 * time.Minute

	maxBodyBytes = 64 << 20

	opDirectory = "directory"
	opReading   = "reading"
)

// directoryFields are the v1 columns requested for the directory.
var directoryFields = []string{"name", "latitude", "longitude", "location_type", "last_seen"}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the PurpleAir client.
type ClientConfig struct {
	// BaseURL is the legacy feed host (defaults to DefaultBaseURL).
	BaseURL string

	// APIURL is the v1 API root (defaults to DefaultAPIURL).
	APIURL string

	// APIKey switches the client to the v1 API when set.
	APIKey string

	// MaxAge drops directory entries not updated within this window.
	// Negative disables the age filter. Default: DefaultMaxAge.
	MaxAge time.Duration

	// HTTPClient is the HTTP client to use.
	// If nil, a resilient client is created and registered with Registry.
	HTTPClient HTTPDoer

	Registry *resilience.Registry
	Logger   zerolog.Logger

	// Now is the clock used for age filtering.
	Now func() time.Time
}

// Client is a PurpleAir client. It implements sensor.Fetcher.
type Client struct {
	baseURL    string
	apiURL     string
	apiKey     string
	maxAge     time.Duration
	httpClient HTTPDoer
	logger     zerolog.Logger
	now        func() time.Time
}

var _ sensor.Fetcher = (*Client)(nil)

// NewClient creates a new PurpleAir client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		maxAge:     cfg.MaxAge,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:        cfg.Now,
	}
}

// UsesAPI reports whether the keyed v1 API is in use.
func (c *Client) UsesAPI() bool {
	return c.apiKey != ""
}

// FetchDirectory returns outdoor sensors updated within MaxAge. Failures of
// any kind, including errors embedded in a 200 response, are returned as
// *sensor.FetchError.
func (c *Client) FetchDirectory(ctx context.Context) ([]sensor.Summary, error) {
	body, err := c.get(ctx, opDirectory, c.directoryURL())
	if err != nil {
		return nil, err
	}

	sensors, err := parseDirectory(body, directoryFilter{now: c.now(), maxAge: c.maxAge})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Int("sensors", len(sensors)).Msg("fetched sensor directory")
	return sensors, nil
}

// FetchReading returns the live reading of one sensor.
func (c *Client) FetchReading(ctx context.Context, id string) (*sensor.Reading, error) {
	if id == "" {
		return nil, sensor.NewFetchError(opReading, "empty sensor id", nil)
	}

	body, err := c.get(ctx, opReading, c.readingURL(id))
	if err != nil {
		return nil, err
	}

	reading, err := parseReading(id, body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("sensor_id", reading.SensorID).
		Int("channels", len(reading.Channels)).
		Msg("fetched sensor reading")
	return reading, nil
}

func (c *Client) directoryURL() string {
	if !c.UsesAPI() {
		return c.baseURL + "/data.json"
	}

	q := url.Values{}
	q.Set("fields", strings.Join(directoryFields, ","))
	q.Set("location_type", "0")
	if c.maxAge > 0 {
		q.Set("max_age", strconv.Itoa(int(c.maxAge.Seconds())))
	}
	return c.apiURL + "/sensors?" + q.Encode()
}

func (c *Client) readingURL(id string) string {
	if !c.UsesAPI() {
		return c.baseURL + "/json?show=" + url.QueryEscape(id)
	}
	return c.apiURL + "/sensors/" + url.PathEscape(id)
}

// get performs one GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, op, target string) ([]byte, error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.SourceRequestsTotal.WithLabelValues(op, status).Inc()
		metrics.SourceLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, sensor.NewFetchError(op, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, sensor.NewFetchError(op, "provider unavailable", err)
		}
		return nil, sensor.NewFetchError(op, "network error", err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, sensor.NewFetchError(op, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if perr := embeddedError(body); perr != nil {
			return nil, sensor.NewFetchError(op, fmt.Sprintf("status %d", resp.StatusCode), perr)
		}
		return nil, sensor.NewFetchError(op, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	return body, nil
}
