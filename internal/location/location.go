// Package location answers the single-shot "where is the user" query made at
// the start of every cycle.
package location

import (
	"context"
	"errors"

	"github.com/nearair/nearair/pkg/geo"
)

// ErrLocationDenied is returned when no coordinate can be obtained: the
// provider refused, is unsupported, or failed.
var ErrLocationDenied = errors.New("location denied")

// Locator resolves the current coordinate.
type Locator interface {
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (geo.Coordinate, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (geo.Coordinate, error) {
	return f(ctx)
}

// Static always returns the same coordinate.
type Static geo.Coordinate

// Locate returns the coordinate, or ErrLocationDenied if it is out of range.
func (s Static) Locate(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	c := geo.Coordinate(s)
	if !c.Valid() {
		return geo.Coordinate{}, ErrLocationDenied
	}
	return c, nil
}
