package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/provider/resilience"
	"github.com/nearair/nearair/pkg/geo"
)

const (
	// DefaultGeoIPURL is the ip-api.com JSON endpoint.
	DefaultGeoIPURL = "http://ip-api.com/json"

	// GeoIPProviderName identifies the geolocation upstream.
	GeoIPProviderName = "geoip"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GeoIPConfig holds configuration for the IP geolocation locator.
type GeoIPConfig struct {
	URL        string
	HTTPClient HTTPDoer
	Registry   *resilience.Registry
	Logger     zerolog.Logger
}

// GeoIP locates the host by its public IP address.
type GeoIP struct {
	url        string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewGeoIP creates a GeoIP locator.
func NewGeoIP(cfg GeoIPConfig) *GeoIP {
	if cfg.URL == "" {
		cfg.URL = DefaultGeoIPURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(GeoIPProviderName)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}
	return &GeoIP{url: cfg.URL, httpClient: httpClient, logger: cfg.Logger}
}

type geoIPResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	City    string   `json:"city"`
}

// Locate queries the endpoint once. Every failure is reported as
// ErrLocationDenied wrapping the cause.
func (g *GeoIP) Locate(ctx context.Context) (geo.Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, http.NoBody)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: create request: %w", ErrLocationDenied, err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrLocationDenied, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, fmt.Errorf("%w: unexpected status %d", ErrLocationDenied, resp.StatusCode)
	}

	var body geoIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: decode response: %w", ErrLocationDenied, err)
	}
	if body.Status != "" && body.Status != "success" {
		return geo.Coordinate{}, fmt.Errorf("%w: %s", ErrLocationDenied, body.Message)
	}
	if body.Lat == nil || body.Lon == nil {
		return geo.Coordinate{}, fmt.Errorf("%w: response has no coordinate", ErrLocationDenied)
	}

	c := geo.Coordinate{Latitude: *body.Lat, Longitude: *body.Lon}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("%w: coordinate out of range", ErrLocationDenied)
	}

	g.logger.Debug().Str("city", body.City).Msg("located by ip")
	return c, nil
}
