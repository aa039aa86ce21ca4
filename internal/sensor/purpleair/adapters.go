package purpleair

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nearair/nearair/internal/sensor"
)

// directoryFilter keeps outdoor sensors seen within maxAge of now.
type directoryFilter struct {
	now    time.Time
	maxAge time.Duration
}

func (f directoryFilter) freshMinutes(age float64) bool {
	return f.maxAge <= 0 || age <= f.maxAge.Minutes()
}

func (f directoryFilter) freshSince(lastSeen int64) bool {
	return f.maxAge <= 0 || f.now.Sub(time.Unix(lastSeen, 0)) <= f.maxAge
}

// directoryAdapter normalizes one provider directory layout.
type directoryAdapter interface {
	name() string
	matches(root gjson.Result) bool
	parse(root gjson.Result, f directoryFilter) ([]sensor.Summary, error)
}

var directoryAdapters = []directoryAdapter{
	columnTable{},
	namedRecords{},
}

func parseDirectory(body []byte, f directoryFilter) ([]sensor.Summary, error) {
	if !gjson.ValidBytes(body) {
		return nil, sensor.NewFetchError(opDirectory, "response is not JSON", nil)
	}
	if err := embeddedError(body); err != nil {
		return nil, sensor.NewFetchError(opDirectory, "provider error", err)
	}

	root := gjson.ParseBytes(body)
	for _, a := range directoryAdapters {
		if !a.matches(root) {
			continue
		}
		sensors, err := a.parse(root, f)
		if err != nil {
			return nil, sensor.NewFetchError(opDirectory, a.name(), err)
		}
		return sensors, nil
	}
	return nil, sensor.NewFetchError(opDirectory, "unrecognized directory layout", nil)
}

// embeddedError extracts an application error from a JSON body, either as
// {"code": 4xx, "message": ...} or as {"error": "...", "description": ...}.
func embeddedError(body []byte) error {
	if !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}

	if code := root.Get("code"); code.Type == gjson.Number && code.Int() >= 400 {
		msg := firstString(root, "message", "description", "error")
		return fmt.Errorf("provider error %d: %s", code.Int(), msg)
	}
	if e := root.Get("error"); e.Type == gjson.String && e.Str != "" {
		if desc := firstString(root, "description", "message"); desc != "" {
			return fmt.Errorf("provider error %s: %s", e.Str, desc)
		}
		return fmt.Errorf("provider error: %s", e.Str)
	}
	return nil
}

func firstString(root gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := root.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

// columnTable is the header-indexed layout of data.json and of the v1
// /sensors endpoint: a "fields" header and positional "data" rows.
type columnTable struct{}

func (columnTable) name() string { return "column table" }

func (columnTable) matches(root gjson.Result) bool {
	return root.Get("fields").IsArray() && root.Get("data").IsArray()
}

func (columnTable) parse(root gjson.Result, f directoryFilter) ([]sensor.Summary, error) {
	index := make(map[string]int)
	for i, field := range root.Get("fields").Array() {
		index[field.String()] = i
	}
	column := func(aliases ...string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}

	var (
		idCol       = column("ID", "sensor_index")
		latCol      = column("Lat", "latitude")
		lonCol      = column("Lon", "longitude")
		typeCol     = column("Type", "location_type")
		ageCol      = column("age")
		lastSeenCol = column("last_seen")
	)
	if idCol < 0 || latCol < 0 || lonCol < 0 {
		return nil, errors.New("missing id or coordinate column")
	}

	var sensors []sensor.Summary
	root.Get("data").ForEach(func(_, row gjson.Result) bool {
		cells := row.Array()
		cell := func(i int) gjson.Result {
			if i < 0 || i >= len(cells) {
				return gjson.Result{}
			}
			return cells[i]
		}

		if typeCol >= 0 {
			t := cell(typeCol)
			if t.Type != gjson.Number || t.Int() != 0 {
				return true
			}
		}
		if age := cell(ageCol); present(age) && !f.freshMinutes(age.Float()) {
			return true
		}
		if seen := cell(lastSeenCol); present(seen) && !f.freshSince(seen.Int()) {
			return true
		}

		id, lat, lon := cell(idCol), cell(latCol), cell(lonCol)
		if !present(id) || lat.Type != gjson.Number || lon.Type != gjson.Number {
			return true
		}

		sensors = append(sensors, sensor.Summary{
			ID:        id.String(),
			Latitude:  lat.Float(),
			Longitude: lon.Float(),
		})
		return true
	})

	return sensors, nil
}

// namedRecords is the per-object layout: {"results": [{ID, Lat, Lon, ...}]}
// or {"sensors": [...]}. Secondary channel rows carry a ParentID and are
// dropped.
type namedRecords struct{}

func (namedRecords) name() string { return "named records" }

func (namedRecords) matches(root gjson.Result) bool {
	return root.Get("results").IsArray() || root.Get("sensors").IsArray()
}

func (namedRecords) parse(root gjson.Result, f directoryFilter) ([]sensor.Summary, error) {
	records := root.Get("results")
	if !records.IsArray() {
		records = root.Get("sensors")
	}

	var sensors []sensor.Summary
	records.ForEach(func(_, rec gjson.Result) bool {
		if present(rec.Get("ParentID")) {
			return true
		}
		if !outdoor(rec) {
			return true
		}
		if age := rec.Get("AGE"); present(age) && !f.freshMinutes(age.Float()) {
			return true
		}
		if seen := rec.Get("last_seen"); present(seen) && !f.freshSince(seen.Int()) {
			return true
		}

		id := first(rec, "ID", "sensor_index")
		lat := first(rec, "Lat", "latitude")
		lon := first(rec, "Lon", "longitude")
		if !present(id) || lat.Type != gjson.Number || lon.Type != gjson.Number {
			return true
		}

		sensors = append(sensors, sensor.Summary{
			ID:        id.String(),
			Latitude:  lat.Float(),
			Longitude: lon.Float(),
		})
		return true
	})

	return sensors, nil
}

func outdoor(rec gjson.Result) bool {
	if t := rec.Get("DEVICE_LOCATIONTYPE"); present(t) {
		return strings.EqualFold(t.String(), "outside")
	}
	if t := rec.Get("location_type"); present(t) {
		return t.Int() == 0
	}
	return true
}

func first(rec gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := rec.Get(k); present(v) {
			return v
		}
	}
	return gjson.Result{}
}
