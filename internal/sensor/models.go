// Package sensor defines the sensor directory and reading model shared by the
// fetcher, the directory cache and the orchestrator.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nearair/nearair/pkg/geo"
)

// Sensor errors.
var (
	ErrNoSensorsAvailable = errors.New("no sensors available")
	ErrFetchFailed        = errors.New("fetch failed")
)

// MapBaseURL is the provider map used for sensor links.
const MapBaseURL = "https://map.purpleair.com/1/mAQI/a10/p604800/cC0"

// Summary is a directory entry: a sensor and where it is.
type Summary struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Distance is the distance in km from the cycle's origin.
	// Nil until computed by SelectNearest.
	Distance *float64 `json:"distance,omitempty"`
}

// Coordinate returns the sensor position.
func (s *Summary) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
}

// DistanceKm returns the computed distance, or -1 when it has not been computed.
func (s *Summary) DistanceKm() float64 {
	if s.Distance == nil {
		return -1
	}
	return *s.Distance
}

// MapURL links to the provider map focused on this sensor.
func (s *Summary) MapURL() string {
	q := url.Values{}
	q.Set("select", s.ID)
	return fmt.Sprintf("%s?%s#14/%.5f/%.5f", MapBaseURL, q.Encode(), s.Latitude, s.Longitude)
}

// Channel is one redundant measurement path of a sensor unit.
type Channel struct {
	// Name is the channel label, "A" or "B".
	Name string

	// PM25 is the raw PM2.5 mass concentration in µg/m³.
	PM25 float64

	// SubFields holds every raw particle count and mass value the provider
	// reported for this channel, keyed by provider field name.
	SubFields map[string]float64
}

// Reading is a single sensor's live data. It is never persisted.
type Reading struct {
	SensorID string
	Label    string
	Channels []Channel

	// Humidity is relative humidity in percent; nil when not reported.
	Humidity *float64

	LastSeen time.Time
}

// Fetcher retrieves sensor data from a remote provider.
type Fetcher interface {
	// FetchDirectory returns outdoor, recently updated sensors.
	FetchDirectory(ctx context.Context) ([]Summary, error)

	// FetchReading returns the live reading of one sensor.
	FetchReading(ctx context.Context, id string) (*Reading, error)
}

// FetchError reports a failed provider fetch. It matches ErrFetchFailed.
type FetchError struct {
	// Op is the fetch that failed: "directory" or "reading".
	Op     string
	Reason string
	Err    error
}

// NewFetchError creates a FetchError.
func NewFetchError(op, reason string, err error) *FetchError {
	return &FetchError{Op: op, Reason: reason, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fetch failed: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s fetch failed: %s", e.Op, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) true for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
