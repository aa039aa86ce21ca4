// Package geo provides WGS84 coordinates and great-circle distance.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthDiameterKm is the mean Earth diameter used for distance calculations.
const EarthDiameterKm = 12742.0

// ErrInvalidCoordinate is returned when a coordinate cannot be parsed or is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate represents a geographic point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// Parse parses a "lat,lon" pair such as "37.7749,-122.4194".
func Parse(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("%w: %q is not lat,lon", ErrInvalidCoordinate, s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude: %v", ErrInvalidCoordinate, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude: %v", ErrInvalidCoordinate, err)
	}

	c := Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: %s out of range", ErrInvalidCoordinate, c)
	}
	return c, nil
}

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	const rad = math.Pi / 180

	sinLat := math.Sin((b.Latitude - a.Latitude) * rad / 2)
	sinLon := math.Sin((b.Longitude - a.Longitude) * rad / 2)

	h := sinLat*sinLat +
		math.Cos(a.Latitude*rad)*math.Cos(b.Latitude*rad)*sinLon*sinLon

	// Rounding can push h a hair outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthDiameterKm * math.Asin(math.Sqrt(h))
}
