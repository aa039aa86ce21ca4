package purpleair

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nearair/nearair/internal/sensor"
)

// Raw sub-fields of a legacy json?show record.
var legacySubFields = []string{
	"pm1_0_cf_1", "pm2_5_cf_1", "pm10_0_cf_1",
	"pm1_0_atm", "pm2_5_atm", "pm10_0_atm",
	"p_0_3_um", "p_0_5_um", "p_1_0_um", "p_2_5_um", "p_5_0_um", "p_10_0_um",
}

// Raw sub-fields of a v1 sensor object, without the _a/_b channel suffix.
var apiSubFields = []string{
	"pm1.0_cf_1", "pm2.5_cf_1", "pm10.0_cf_1",
	"pm1.0_atm", "pm2.5_atm", "pm10.0_atm",
	"0.3_um_count", "0.5_um_count", "1.0_um_count",
	"2.5_um_count", "5.0_um_count", "10.0_um_count",
}

var channelNames = []string{"A", "B"}

func parseReading(id string, body []byte) (*sensor.Reading, error) {
	if !gjson.ValidBytes(body) {
		return nil, sensor.NewFetchError(opReading, "response is not JSON", nil)
	}
	if err := embeddedError(body); err != nil {
		return nil, sensor.NewFetchError(opReading, "provider error", err)
	}

	payload := unwrap(gjson.ParseBytes(body))

	var reading *sensor.Reading
	if results := payload.Get("results"); results.IsArray() {
		reading = legacyReading(results)
	} else {
		reading = apiReading(payload)
	}

	if len(reading.Channels) == 0 {
		return nil, sensor.NewFetchError(opReading, "reading has no channels", nil)
	}
	if reading.SensorID == "" {
		reading.SensorID = id
	}
	return reading, nil
}

// unwrap strips {"sensor": {...}} and {"data": {...}} envelopes.
func unwrap(root gjson.Result) gjson.Result {
	for _, key := range []string{"sensor", "data"} {
		if inner := root.Get(key); inner.IsObject() {
			root = inner
		}
	}
	return root
}

// legacyReading reads one record per channel; the parent record is A.
func legacyReading(results gjson.Result) *sensor.Reading {
	r := &sensor.Reading{}

	for i, rec := range results.Array() {
		if i >= len(channelNames) {
			break
		}
		if i == 0 {
			r.SensorID = rec.Get("ID").String()
			r.Label = rec.Get("Label").String()
			if seen := rec.Get("LastSeen"); present(seen) {
				r.LastSeen = time.Unix(seen.Int(), 0).UTC()
			}
		}
		if r.Humidity == nil {
			if h := rec.Get("humidity"); present(h) {
				v := h.Float()
				r.Humidity = &v
			}
		}

		ch := sensor.Channel{Name: channelNames[i], SubFields: make(map[string]float64)}
		for _, f := range legacySubFields {
			if v := rec.Get(f); present(v) {
				ch.SubFields[f] = v.Float()
			}
		}
		pm := first(rec, "pm2_5_cf_1", "PM2_5Value")
		if !present(pm) && len(ch.SubFields) == 0 {
			continue
		}
		ch.PM25 = pm.Float()
		r.Channels = append(r.Channels, ch)
	}

	return r
}

// apiReading reads a flat v1 sensor object whose channel fields carry _a and
// _b suffixes.
func apiReading(obj gjson.Result) *sensor.Reading {
	r := &sensor.Reading{
		SensorID: obj.Get("sensor_index").String(),
		Label:    obj.Get("name").String(),
	}
	if seen := obj.Get("last_seen"); present(seen) {
		r.LastSeen = time.Unix(seen.Int(), 0).UTC()
	}
	if h := first(obj, "humidity", "humidity_a"); present(h) {
		v := h.Float()
		r.Humidity = &v
	}

	for _, name := range channelNames {
		suffix := "_" + strings.ToLower(name)
		ch := sensor.Channel{Name: name, SubFields: make(map[string]float64)}
		for _, f := range apiSubFields {
			if v := obj.Get(path(f + suffix)); present(v) {
				ch.SubFields[f] = v.Float()
			}
		}
		pm := first(obj, path("pm2.5_cf_1"+suffix), path("pm2.5_atm"+suffix))
		if !present(pm) && len(ch.SubFields) == 0 {
			continue
		}
		ch.PM25 = pm.Float()
		r.Channels = append(r.Channels, ch)
	}

	return r
}

// path escapes the dots in a v1 field name for gjson.
func path(field string) string {
	return strings.ReplaceAll(field, ".", `\.`)
}
