// Package announce delivers orchestrator announcements to presentation
// surfaces: the log, the HTTP API, MQTT and Pub/Sub.
package announce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/metrics"
)

// Announcement is what the user sees after one state transition.
type Announcement struct {
	Generation uint64 `json:"generation"`
	Phase      string `json:"phase"`

	// Tag is the styling hint: a severity bucket for results, or one of
	// "progress", "denied", "error", "no-sensors", "unavailable".
	Tag string `json:"tag"`

	Headline    string `json:"headline"`
	Description string `json:"description"`
	Status      string `json:"status"`

	SensorID   string   `json:"sensorId,omitempty"`
	SensorURL  string   `json:"sensorUrl,omitempty"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
	AQI        *int     `json:"aqi,omitempty"`

	At time.Time `json:"at"`
}

// Announcer delivers announcements.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// Func adapts a function to Announcer.
type Func func(ctx context.Context, a Announcement) error

// Announce calls f.
func (f Func) Announce(ctx context.Context, a Announcement) error {
	return f(ctx, a)
}

// Fanout delivers every announcement to all sinks in registration order.
// A failing sink does not stop delivery to the others.
type Fanout struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Announcer
}

// NewFanout creates an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under name.
func (f *Fanout) Add(name string, sink Announcer) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Announce implements Announcer.
func (f *Fanout) Announce(ctx context.Context, a Announcement) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Announce(ctx, a); err != nil {
			metrics.AnnouncementsTotal.WithLabelValues(s.name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		metrics.AnnouncementsTotal.WithLabelValues(s.name, "ok").Inc()
	}
	return errors.Join(errs...)
}

// Log writes announcements to a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a Log sink.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Announce implements Announcer.
func (l *Log) Announce(_ context.Context, a Announcement) error {
	event := l.logger.Info()
	if a.Tag == "error" || a.Tag == "denied" || a.Tag == "no-sensors" {
		event = l.logger.Warn()
	}
	event = event.
		Uint64("generation", a.Generation).
		Str("phase", a.Phase).
		Str("tag", a.Tag).
		Str("status", a.Status)
	if a.SensorID != "" {
		event = event.Str("sensor_id", a.SensorID)
	}
	if a.AQI != nil {
		event = event.Int("aqi", *a.AQI)
	}
	event.Msg(a.Headline)
	return nil
}

// Latest remembers the newest announcement for readers such as the HTTP API.
type Latest struct {
	mu      sync.RWMutex
	current *Announcement
}

// NewLatest creates an empty Latest sink.
func NewLatest() *Latest {
	return &Latest{}
}

// Announce implements Announcer. Announcements from an older generation than
// the stored one are ignored.
func (l *Latest) Announce(_ context.Context, a Announcement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil && a.Generation < l.current.Generation {
		return nil
	}
	l.current = &a
	return nil
}

// Get returns the newest announcement, if any.
func (l *Latest) Get() (Announcement, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Announcement{}, false
	}
	return *l.current, true
}
