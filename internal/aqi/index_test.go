package aqi_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nearair/nearair/internal/aqi"
)

func TestFromConcentration_Breakpoints(t *testing.T) {
	tests := []struct {
		concentration float64
		expected      aqi.Index
	}{
		{0, 0},
		{6.0, 25},
		{12.0, 50},
		{12.05, 50},
		{12.1, 51},
		{35.4, 100},
		{35.5, 101},
		{55.4, 150},
		{55.5, 151},
		{150.4, 200},
		{150.5, 201},
		{250.4, 300},
		{250.5, 301},
		{350.4, 400},
		{350.5, 401},
		{500.0, 500},
		{500.4, 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, aqi.FromConcentration(tt.concentration), "concentration %v", tt.concentration)
	}
}

func TestFromConcentration_OutOfRange(t *testing.T) {
	for _, c := range []float64{-0.1, -50, math.NaN(), aqi.MaxConcentration, 600, math.Inf(1), math.Inf(-1)} {
		idx := aqi.FromConcentration(c)
		assert.Equal(t, aqi.Unavailable, idx, "concentration %v", c)
		assert.False(t, idx.Available())
	}
	assert.Equal(t, "unavailable", aqi.Unavailable.String())
}

func TestFromConcentration_Monotonic(t *testing.T) {
	prev := aqi.FromConcentration(0)
	for i := 1; float64(i)/100 < aqi.MaxConcentration; i++ {
		c := float64(i) / 100
		idx := aqi.FromConcentration(c)
		if !assert.GreaterOrEqual(t, int(idx), int(prev), "index dropped at %v", c) {
			return
		}
		prev = idx
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		index    aqi.Index
		expected aqi.Severity
	}{
		{0, aqi.SeverityGood},
		{50, aqi.SeverityGood},
		{51, aqi.SeverityModerate},
		{100, aqi.SeverityModerate},
		{101, aqi.SeveritySensitive},
		{150, aqi.SeveritySensitive},
		{151, aqi.SeverityUnhealthy},
		{200, aqi.SeverityUnhealthy},
		{201, aqi.SeverityVeryUnhealthy},
		{300, aqi.SeverityVeryUnhealthy},
		{301, aqi.SeverityHazardous},
		{400, aqi.SeverityHazardous},
		{401, aqi.SeverityVeryHazardous},
		{500, aqi.SeverityVeryHazardous},
		{aqi.Unavailable, aqi.SeverityUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, aqi.Classify(tt.index), "index %d", tt.index)
	}
}

func TestSeverity_Labels(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range aqi.Severities {
		label := s.Label()
		assert.NotEmpty(t, label)
		assert.NotEmpty(t, s.Advice())
		assert.False(t, seen[label], "duplicate label %q", label)
		seen[label] = true
	}
	assert.Equal(t, "Unhealthy for Sensitive Groups", aqi.SeveritySensitive.Label())
	assert.Equal(t, "Unavailable", aqi.SeverityUnknown.Label())
}
