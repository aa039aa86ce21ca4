package aqi_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/sensor"
)

func humidity(v float64) *float64 {
	return &v
}

func channel(name string, pm float64, counts ...float64) sensor.Channel {
	ch := sensor.Channel{Name: name, PM25: pm, SubFields: map[string]float64{}}
	for i, c := range counts {
		ch.SubFields[string(rune('a'+i))] = c
	}
	return ch
}

func TestCorrectEPA_Regimes(t *testing.T) {
	assert.InDelta(t, 6.65, aqi.CorrectEPA(10, 50), 1e-9)
	assert.InDelta(t, 80.91, aqi.CorrectEPA(100, 40), 1e-9)
	assert.InDelta(t, 289.53, aqi.CorrectEPA(300, 40), 1e-9)
	assert.Equal(t, 0.0, aqi.CorrectEPA(0, 100), "negative corrections clamp to zero")
}

func TestCorrectLinear(t *testing.T) {
	assert.InDelta(t, 10.43, aqi.CorrectLinear(10), 1e-9)
	assert.InDelta(t, 2.65, aqi.CorrectLinear(0), 1e-9)
}

func TestConvert_HumidityCorrectedGood(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{})

	res, err := conv.Convert(sensor.Reading{
		SensorID: "1",
		Channels: []sensor.Channel{channel("A", 10, 100, 30)},
		Humidity: humidity(50),
	})
	require.NoError(t, err)

	assert.Equal(t, aqi.CorrectionEPA, res.Correction)
	assert.InDelta(t, 6.65, res.CorrectedPM25, 1e-9)
	assert.Equal(t, aqi.Index(28), res.Index)
	assert.Equal(t, aqi.SeverityGood, res.Severity)
}

func TestConvert_NoHumidityUsesLinear(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionEPA})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{channel("A", 10, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, aqi.CorrectionLinear, res.Correction)
	assert.InDelta(t, 10.43, res.CorrectedPM25, 1e-9)
}

func TestConvert_NoCorrection(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionNone})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{channel("A", 35.5, 1)},
		Humidity: humidity(50),
	})
	require.NoError(t, err)
	assert.Equal(t, aqi.Index(101), res.Index)
	assert.Equal(t, aqi.SeveritySensitive, res.Severity)
}

func TestConvert_RejectsFaultyChannelBeforeAveraging(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionNone})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{
			channel("A", 20, 500, 120),
			channel("B", 0, 0, 0),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, res.ChannelsUsed)
	assert.Equal(t, []string{"B"}, res.ChannelsRejected)
	assert.Equal(t, 20.0, res.RawPM25)
}

func TestConvert_ZeroPMWithCountsIsNotFaulty(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionNone})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{
			channel("A", 0, 12, 0),
			channel("B", 4, 30, 2),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.ChannelsUsed)
	assert.Equal(t, 2.0, res.RawPM25)
}

func TestConvert_KeepZeroChannels(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionNone, KeepZeroChannels: true})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{
			channel("A", 20, 1),
			channel("B", 0, 0),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.RawPM25)
	assert.Empty(t, res.ChannelsRejected)
}

func TestConvert_AllChannelsFaulty(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{})

	res, err := conv.Convert(sensor.Reading{
		Channels: []sensor.Channel{
			channel("A", 0, 0, 0, 0),
			channel("B", 0, 0, 0, 0),
		},
		Humidity: humidity(40),
	})
	assert.ErrorIs(t, err, aqi.ErrReadingUnavailable)
	assert.Equal(t, aqi.Unavailable, res.Index)
	assert.Equal(t, aqi.SeverityUnknown, res.Severity)
	assert.Equal(t, []string{"A", "B"}, res.ChannelsRejected)
}

func TestConvert_NoChannels(t *testing.T) {
	_, err := aqi.NewConverter(aqi.Config{}).Convert(sensor.Reading{})
	assert.ErrorIs(t, err, aqi.ErrReadingUnavailable)
}

func TestConvert_OutOfTable(t *testing.T) {
	conv := aqi.NewConverter(aqi.Config{Correction: aqi.CorrectionNone})

	for _, pm := range []float64{-3, math.NaN(), 900} {
		res, err := conv.Convert(sensor.Reading{Channels: []sensor.Channel{channel("A", pm, 1)}})
		assert.ErrorIs(t, err, aqi.ErrReadingUnavailable, "pm %v", pm)
		assert.Equal(t, aqi.Unavailable, res.Index)
	}
}
