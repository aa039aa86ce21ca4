package sensor

import (
	"github.com/nearair/nearair/pkg/geo"
)

// SelectNearest assigns the distance from origin to every sensor that does not
// have one yet and returns a pointer to the closest. Ties resolve to the first
// sensor in input order. It returns ErrNoSensorsAvailable for an empty list.
func SelectNearest(origin geo.Coordinate, sensors []Summary) (*Summary, error) {
	if len(sensors) == 0 {
		return nil, ErrNoSensorsAvailable
	}

	nearest := -1
	for i := range sensors {
		s := &sensors[i]
		if s.Distance == nil {
			d := geo.Distance(origin, s.Coordinate())
			s.Distance = &d
		}
		if nearest < 0 || *s.Distance < *sensors[nearest].Distance {
			nearest = i
		}
	}

	return &sensors[nearest], nil
}
