package models

// State is the refresh loop snapshot served by GET /v1/state.
type State struct {
	Generation   uint64        `json:"generation"`
	Phase        string        `json:"phase"`
	Halted       bool          `json:"halted"`
	Coordinate   *Point        `json:"coordinate,omitempty"`
	Sensor       *Sensor       `json:"sensor,omitempty"`
	AQI          *AQI          `json:"aqi,omitempty"`
	Announcement *Announcement `json:"announcement,omitempty"`
	UpdatedAt    *Timestamp    `json:"updatedAt,omitempty"`
	NextCycleAt  *Timestamp    `json:"nextCycleAt,omitempty"`
}

// Sensor is the selected nearest sensor.
type Sensor struct {
	ID         string   `json:"id"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
	MapURL     string   `json:"mapUrl"`
}

// AQI is the computed air quality result. Index is absent when unavailable.
type AQI struct {
	Index            *int     `json:"index,omitempty"`
	Severity         string   `json:"severity"`
	Label            string   `json:"label"`
	RawPM25          float64  `json:"rawPm25"`
	CorrectedPM25    float64  `json:"correctedPm25"`
	Correction       string   `json:"correction,omitempty"`
	Humidity         *float64 `json:"humidity,omitempty"`
	ChannelsUsed     []string `json:"channelsUsed,omitempty"`
	ChannelsRejected []string `json:"channelsRejected,omitempty"`
}

// Announcement is the presentation tuple emitted on every transition.
type Announcement struct {
	Generation  uint64    `json:"generation"`
	Phase       string    `json:"phase"`
	Tag         string    `json:"tag"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	SensorID    string    `json:"sensorId,omitempty"`
	SensorURL   string    `json:"sensorUrl,omitempty"`
	DistanceKm  *float64  `json:"distanceKm,omitempty"`
	AQI         *int      `json:"aqi,omitempty"`
	At          Timestamp `json:"at"`
}

// ResetAccepted is the response to POST /v1/reset.
type ResetAccepted struct {
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
}
