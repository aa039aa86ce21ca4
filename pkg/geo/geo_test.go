package geo_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/pkg/geo"
)

func randomCoordinate(r *rand.Rand) geo.Coordinate {
	return geo.Coordinate{
		Latitude:  r.Float64()*180 - 90,
		Longitude: r.Float64()*360 - 180,
	}
}

func TestDistance_Symmetric(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		a := randomCoordinate(r)
		b := randomCoordinate(r)

		ab := geo.Distance(a, b)
		ba := geo.Distance(b, a)

		assert.InDelta(t, ab, ba, 1e-9, "distance(%s, %s)", a, b)
		assert.False(t, math.IsNaN(ab))
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, math.Pi*geo.EarthDiameterKm/2+1e-6)
	}
}

func TestDistance_SamePointIsZero(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		a := randomCoordinate(r)
		assert.InDelta(t, 0.0, geo.Distance(a, a), 1e-9)
	}
}

func TestDistance_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		a, b     geo.Coordinate
		expected float64
		delta    float64
	}{
		{
			name:     "San Francisco to Los Angeles",
			a:        geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194},
			b:        geo.Coordinate{Latitude: 34.0522, Longitude: -118.2437},
			expected: 559,
			delta:    2,
		},
		{
			name:     "one degree of latitude",
			a:        geo.Coordinate{Latitude: 0, Longitude: 0},
			b:        geo.Coordinate{Latitude: 1, Longitude: 0},
			expected: geo.EarthDiameterKm * math.Pi / 360,
			delta:    1e-6,
		},
		{
			name:     "across the antimeridian",
			a:        geo.Coordinate{Latitude: 0, Longitude: 179.5},
			b:        geo.Coordinate{Latitude: 0, Longitude: -179.5},
			expected: geo.EarthDiameterKm * math.Pi / 360,
			delta:    1e-6,
		},
		{
			name:     "antipodal points",
			a:        geo.Coordinate{Latitude: 10, Longitude: 20},
			b:        geo.Coordinate{Latitude: -10, Longitude: -160},
			expected: geo.EarthDiameterKm * math.Pi / 2,
			delta:    1e-3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, geo.Distance(tt.a, tt.b), tt.delta)
		})
	}
}

func TestParse(t *testing.T) {
	c, err := geo.Parse(" 37.0, -122.0 ")
	require.NoError(t, err)
	assert.Equal(t, geo.Coordinate{Latitude: 37, Longitude: -122}, c)

	for _, bad := range []string{"", "37.0", "a,b", "91,0", "0,181", "1,2,3"} {
		_, err := geo.Parse(bad)
		assert.ErrorIs(t, err, geo.ErrInvalidCoordinate, "input %q", bad)
	}
}
