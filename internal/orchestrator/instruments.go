package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/metrics"
)

type instruments struct {
	cycles    metric.Int64Counter
	index     metric.Int64Gauge
	directory metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	cycles, err := meter.Int64Counter("nearair.cycles",
		metric.WithDescription("Completed refresh cycles by outcome"),
	)
	if err != nil {
		return nil, err
	}

	index, err := meter.Int64Gauge("nearair.aqi",
		metric.WithDescription("Last displayed AQI, -1 when unavailable"),
	)
	if err != nil {
		return nil, err
	}

	directory, err := meter.Int64Counter("nearair.directory.fetches",
		metric.WithDescription("Sensor directory resolutions by source"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{cycles: cycles, index: index, directory: directory}, nil
}

func (i *instruments) recordCycle(ctx context.Context, outcome string) {
	i.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
}

func (i *instruments) recordDirectory(ctx context.Context, source string) {
	i.directory.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (i *instruments) recordResult(ctx context.Context, res aqi.Result, distanceKm float64) {
	i.index.Record(ctx, int64(res.Index))
	metrics.CurrentAQI.Set(float64(res.Index))
	metrics.NearestDistanceKm.Set(distanceKm)
	metrics.ChannelsRejectedTotal.Add(float64(len(res.ChannelsRejected)))
}
