// Package aqi converts PM2.5 concentrations into the US EPA Air Quality Index.
package aqi

import (
	"math"
	"strconv"
)

// Index is an AQI value. Unavailable marks a concentration the breakpoint
// table does not cover.
type Index int

// Unavailable is the sentinel for concentrations outside the table.
const Unavailable Index = -1

// Available reports whether the index holds a real value.
func (i Index) Available() bool {
	return i >= 0
}

func (i Index) String() string {
	if !i.Available() {
		return "unavailable"
	}
	return strconv.Itoa(int(i))
}

// band maps a concentration range linearly onto an index range. A band covers
// [cLow, next), where next is the lower bound of the following band.
type band struct {
	cLow, cHigh float64
	next        float64
	iLow, iHigh int
}

// breakpoints is the PM2.5 table in µg/m³.
var breakpoints = []band{
	{cLow: 0.0, cHigh: 12.0, next: 12.1, iLow: 0, iHigh: 50},
	{cLow: 12.1, cHigh: 35.4, next: 35.5, iLow: 51, iHigh: 100},
	{cLow: 35.5, cHigh: 55.4, next: 55.5, iLow: 101, iHigh: 150},
	{cLow: 55.5, cHigh: 150.4, next: 150.5, iLow: 151, iHigh: 200},
	{cLow: 150.5, cHigh: 250.4, next: 250.5, iLow: 201, iHigh: 300},
	{cLow: 250.5, cHigh: 350.4, next: 350.5, iLow: 301, iHigh: 400},
	{cLow: 350.5, cHigh: 500.0, next: 500.5, iLow: 401, iHigh: 500},
}

// MaxConcentration is the exclusive upper bound of the table.
const MaxConcentration = 500.5

// FromConcentration interpolates the index for a PM2.5 concentration.
// Negative, NaN and out-of-table concentrations return Unavailable; the
// table is never extrapolated.
func FromConcentration(c float64) Index {
	if math.IsNaN(c) || c < 0 {
		return Unavailable
	}

	for _, b := range breakpoints {
		if c < b.next {
			v := float64(b.iHigh-b.iLow)/(b.cHigh-b.cLow)*(c-b.cLow) + float64(b.iLow)
			return Index(math.Round(v))
		}
	}

	return Unavailable
}
