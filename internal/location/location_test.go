package location_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/internal/location"
	"github.com/nearair/nearair/pkg/geo"
)

func TestStatic(t *testing.T) {
	c, err := location.Static{Latitude: 37, Longitude: -122}.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Latitude: 37, Longitude: -122}, c)

	_, err = location.Static{Latitude: 91}.Locate(context.Background())
	assert.ErrorIs(t, err, location.ErrLocationDenied)
}

func TestStatic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := location.Static{Latitude: 1, Longitude: 1}.Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocatorFunc(t *testing.T) {
	want := errors.New("boom")
	l := location.LocatorFunc(func(context.Context) (geo.Coordinate, error) {
		return geo.Coordinate{}, want
	})

	_, err := l.Locate(context.Background())
	assert.ErrorIs(t, err, want)
}

func geoIPServer(t *testing.T, status int, body string) *location.GeoIP {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return location.NewGeoIP(location.GeoIPConfig{URL: server.URL, HTTPClient: server.Client()})
}

func TestGeoIP_Success(t *testing.T) {
	l := geoIPServer(t, http.StatusOK, `{"status":"success","city":"Oakland","lat":37.8044,"lon":-122.2712}`)

	c, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37.8044, c.Latitude)
	assert.Equal(t, -122.2712, c.Longitude)
}

func TestGeoIP_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"provider fail", http.StatusOK, `{"status":"fail","message":"private range"}`},
		{"no coordinate", http.StatusOK, `{"status":"success"}`},
		{"out of range", http.StatusOK, `{"status":"success","lat":123,"lon":0}`},
		{"bad json", http.StatusOK, `nope`},
		{"http error", http.StatusTooManyRequests, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geoIPServer(t, tt.status, tt.body).Locate(context.Background())
			assert.ErrorIs(t, err, location.ErrLocationDenied)
		})
	}
}
