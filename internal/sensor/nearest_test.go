package sensor_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/internal/sensor"
	"github.com/nearair/nearair/pkg/geo"
)

// offsetNorth returns a sensor km kilometers due north of origin.
func offsetNorth(id string, origin geo.Coordinate, km float64) sensor.Summary {
	degPerKm := 360 / (geo.EarthDiameterKm * 3.141592653589793)
	return sensor.Summary{
		ID:        id,
		Latitude:  origin.Latitude + km*degPerKm,
		Longitude: origin.Longitude,
	}
}

func TestSelectNearest_PicksClosest(t *testing.T) {
	origin := geo.Coordinate{Latitude: 37.0, Longitude: -122.0}
	sensors := []sensor.Summary{
		offsetNorth("far", origin, 50.0),
		offsetNorth("near", origin, 2.0),
	}

	nearest, err := sensor.SelectNearest(origin, sensors)
	require.NoError(t, err)

	assert.Equal(t, "near", nearest.ID)
	assert.InDelta(t, 2.0, nearest.DistanceKm(), 1e-6)
	assert.InDelta(t, 50.0, sensors[0].DistanceKm(), 1e-6)
}

func TestSelectNearest_AssignsDistanceToEveryRecord(t *testing.T) {
	origin := geo.Coordinate{Latitude: 52.37, Longitude: 4.89}
	sensors := []sensor.Summary{
		{ID: "1", Latitude: 52.0, Longitude: 4.0},
		{ID: "2", Latitude: 51.0, Longitude: 5.0},
		{ID: "3", Latitude: 53.0, Longitude: 6.0},
	}

	_, err := sensor.SelectNearest(origin, sensors)
	require.NoError(t, err)

	for _, s := range sensors {
		require.NotNil(t, s.Distance, "sensor %s", s.ID)
		assert.InDelta(t, geo.Distance(origin, s.Coordinate()), *s.Distance, 1e-9)
	}
}

func TestSelectNearest_TieReturnsFirst(t *testing.T) {
	origin := geo.Coordinate{Latitude: 0, Longitude: 0}
	sensors := []sensor.Summary{
		{ID: "west", Latitude: 0, Longitude: -1},
		{ID: "east", Latitude: 0, Longitude: 1},
	}

	nearest, err := sensor.SelectNearest(origin, sensors)
	require.NoError(t, err)
	assert.Equal(t, "west", nearest.ID)
}

func TestSelectNearest_KeepsExistingDistance(t *testing.T) {
	origin := geo.Coordinate{Latitude: 0, Longitude: 0}
	preset := 0.5
	sensors := []sensor.Summary{
		{ID: "computed", Latitude: 0, Longitude: 0.001},
		{ID: "preset", Latitude: 10, Longitude: 10, Distance: &preset},
	}

	nearest, err := sensor.SelectNearest(origin, sensors)
	require.NoError(t, err)
	assert.Equal(t, "computed", nearest.ID)
	assert.Equal(t, 0.5, *sensors[1].Distance)
}

func TestSelectNearest_MinimumOverRandomLists(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for round := 0; round < 100; round++ {
		origin := geo.Coordinate{Latitude: r.Float64()*160 - 80, Longitude: r.Float64()*360 - 180}
		sensors := make([]sensor.Summary, 1+r.Intn(50))
		for i := range sensors {
			sensors[i] = sensor.Summary{
				ID:        strconv.Itoa(i),
				Latitude:  r.Float64()*180 - 90,
				Longitude: r.Float64()*360 - 180,
			}
		}

		nearest, err := sensor.SelectNearest(origin, sensors)
		require.NoError(t, err)

		for _, s := range sensors {
			assert.LessOrEqual(t, *nearest.Distance, *s.Distance)
		}
	}
}

func TestSelectNearest_Empty(t *testing.T) {
	_, err := sensor.SelectNearest(geo.Coordinate{}, nil)
	assert.ErrorIs(t, err, sensor.ErrNoSensorsAvailable)
	assert.NotErrorIs(t, err, sensor.ErrFetchFailed)
}

func TestFetchError_MatchesErrFetchFailed(t *testing.T) {
	var err error = sensor.NewFetchError("directory", "provider error", nil)
	assert.ErrorIs(t, err, sensor.ErrFetchFailed)
	assert.Equal(t, "directory fetch failed: provider error", err.Error())
}

func TestSummary_MapURL(t *testing.T) {
	s := sensor.Summary{ID: "131075", Latitude: 37.5, Longitude: -122.25}
	assert.Equal(t,
		"https://map.purpleair.com/1/mAQI/a10/p604800/cC0?select=131075#14/37.50000/-122.25000",
		s.MapURL())
}
