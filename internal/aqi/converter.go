package aqi

import (
	"errors"
	"math"

	"github.com/nearair/nearair/internal/sensor"
)

// ErrReadingUnavailable is returned when a reading cannot produce an index:
// every channel was rejected or the concentration is outside the table.
var ErrReadingUnavailable = errors.New("reading unavailable")

// Config holds converter settings.
type Config struct {
	// Correction is the requested correction (default: CorrectionEPA).
	Correction Correction

	// KeepZeroChannels disables faulty-channel rejection.
	KeepZeroChannels bool
}

// Result is a computed AQI. It is derived per cycle and never stored.
type Result struct {
	Index    Index
	Severity Severity

	// RawPM25 is the mean of the accepted channels.
	RawPM25 float64

	// CorrectedPM25 is the concentration that was indexed.
	CorrectedPM25 float64

	// Correction is the correction actually applied.
	Correction Correction

	Humidity         *float64
	ChannelsUsed     []string
	ChannelsRejected []string
}

// Converter turns sensor readings into AQI results.
type Converter struct {
	config Config
}

// NewConverter creates a Converter.
func NewConverter(cfg Config) *Converter {
	if cfg.Correction == "" {
		cfg.Correction = CorrectionEPA
	}
	return &Converter{config: cfg}
}

// Faulty reports whether every raw sub-field of the channel, PM2.5 included,
// is exactly zero. A dead laser counter reports all zeros.
func Faulty(ch sensor.Channel) bool {
	if ch.PM25 != 0 {
		return false
	}
	for _, v := range ch.SubFields {
		if v != 0 {
			return false
		}
	}
	return true
}

// Convert rejects faulty channels, averages the rest, corrects the mean and
// indexes it. On ErrReadingUnavailable the returned Result still carries the
// Unavailable index and the channel bookkeeping.
func (c *Converter) Convert(r sensor.Reading) (Result, error) {
	res := Result{
		Index:    Unavailable,
		Severity: SeverityUnknown,
		Humidity: r.Humidity,
	}

	var sum float64
	for _, ch := range r.Channels {
		if !c.config.KeepZeroChannels && Faulty(ch) {
			res.ChannelsRejected = append(res.ChannelsRejected, ch.Name)
			continue
		}
		res.ChannelsUsed = append(res.ChannelsUsed, ch.Name)
		sum += ch.PM25
	}

	if len(res.ChannelsUsed) == 0 {
		return res, ErrReadingUnavailable
	}

	res.RawPM25 = sum / float64(len(res.ChannelsUsed))
	if math.IsNaN(res.RawPM25) || res.RawPM25 < 0 {
		return res, ErrReadingUnavailable
	}

	res.CorrectedPM25, res.Correction = c.correct(res.RawPM25, r.Humidity)
	res.Index = FromConcentration(res.CorrectedPM25)
	res.Severity = Classify(res.Index)

	if !res.Index.Available() {
		return res, ErrReadingUnavailable
	}
	return res, nil
}

func (c *Converter) correct(pm float64, humidity *float64) (float64, Correction) {
	switch c.config.Correction {
	case CorrectionNone:
		return pm, CorrectionNone
	case CorrectionLinear:
		return CorrectLinear(pm), CorrectionLinear
	default:
		if humidity == nil {
			return CorrectLinear(pm), CorrectionLinear
		}
		return CorrectEPA(pm, *humidity), CorrectionEPA
	}
}
