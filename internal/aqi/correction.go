package aqi

import "math"

// Correction selects how raw sensor PM2.5 is adjusted before indexing.
type Correction string

const (
	// CorrectionEPA applies the US EPA humidity-corrected fit, falling back to
	// CorrectionLinear when humidity is not reported.
	CorrectionEPA Correction = "epa"

	// CorrectionLinear applies a fixed-coefficient linear fit.
	CorrectionLinear Correction = "linear"

	// CorrectionNone indexes the raw concentration.
	CorrectionNone Correction = "none"
)

// EPA regime boundaries in µg/m³ of raw PM2.5.
const (
	epaLowRegimeMax = 50.0
	epaMidRegimeMax = 229.0
)

// CorrectEPA applies the US EPA correction for low-cost optical sensors to a
// raw cf=1 PM2.5 value with relative humidity in percent. Results below zero
// are clamped to zero.
func CorrectEPA(pm, humidity float64) float64 {
	var c float64
	switch {
	case pm < epaLowRegimeMax:
		c = 0.52*pm - 0.086*humidity + 5.75
	case pm < epaMidRegimeMax:
		c = 0.786*pm - 0.086*humidity + 5.75
	default:
		c = 0.69*pm + 8.84e-4*pm*pm + 2.97
	}
	return math.Max(0, c)
}

// CorrectLinear applies the humidity-free AQandU fit.
func CorrectLinear(pm float64) float64 {
	return math.Max(0, 0.778*pm+2.65)
}
