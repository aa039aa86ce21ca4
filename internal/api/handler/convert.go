package handler

import (
	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/orchestrator"
	"github.com/nearair/nearair/internal/sensor"
	"github.com/nearair/nearair/pkg/geo"
)

func toStateModel(s orchestrator.State) models.State {
	out := models.State{
		Generation: s.Generation,
		Phase:      string(s.Phase),
		Halted:     s.Phase.Halted(),
		Coordinate: toPoint(s.Coordinate),
		Sensor:     toSensorModel(s.Sensor),
		AQI:        toAQIModel(s.Result),
		UpdatedAt:  models.NewTimestamp(s.UpdatedAt),
	}
	if s.Announcement.Headline != "" {
		a := toAnnouncementModel(s.Announcement)
		out.Announcement = &a
	}
	if s.NextCycleAt != nil {
		out.NextCycleAt = models.NewTimestamp(*s.NextCycleAt)
	}
	return out
}

func toPoint(c *geo.Coordinate) *models.Point {
	if c == nil {
		return nil
	}
	return &models.Point{Lat: c.Latitude, Lon: c.Longitude}
}

func toSensorModel(s *sensor.Summary) *models.Sensor {
	if s == nil {
		return nil
	}
	return &models.Sensor{
		ID:         s.ID,
		Lat:        s.Latitude,
		Lon:        s.Longitude,
		DistanceKm: s.Distance,
		MapURL:     s.MapURL(),
	}
}

func toAQIModel(r *aqi.Result) *models.AQI {
	if r == nil {
		return nil
	}
	out := &models.AQI{
		Severity:         string(r.Severity),
		Label:            r.Severity.Label(),
		RawPM25:          r.RawPM25,
		CorrectedPM25:    r.CorrectedPM25,
		Correction:       string(r.Correction),
		Humidity:         r.Humidity,
		ChannelsUsed:     r.ChannelsUsed,
		ChannelsRejected: r.ChannelsRejected,
	}
	if r.Index.Available() {
		index := int(r.Index)
		out.Index = &index
	}
	return out
}

func toAnnouncementModel(a announce.Announcement) models.Announcement {
	return models.Announcement{
		Generation:  a.Generation,
		Phase:       a.Phase,
		Tag:         a.Tag,
		Headline:    a.Headline,
		Description: a.Description,
		Status:      a.Status,
		SensorID:    a.SensorID,
		SensorURL:   a.SensorURL,
		DistanceKm:  a.DistanceKm,
		AQI:         a.AQI,
		At:          models.Timestamp(a.At),
	}
}
