package orchestrator

import (
	"fmt"
	"strings"

	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/sensor"
)

// Styling tags for non-result announcements.
const (
	TagProgress    = "progress"
	TagDenied      = "denied"
	TagError       = "error"
	TagNoSensors   = "no-sensors"
	TagUnavailable = "unavailable"
)

type message struct {
	tag         string
	headline    string
	description string
	status      string
}

func locatingMessage() message {
	return message{
		tag:         TagProgress,
		headline:    "Finding your location",
		description: "Looking up where you are to find the closest sensor.",
		status:      "Locating…",
	}
}

func listingMessage() message {
	return message{
		tag:         TagProgress,
		headline:    "Finding sensors near you",
		description: "Loading the list of outdoor sensors.",
		status:      "Listing sensors…",
	}
}

func fetchingMessage(s *sensor.Summary) message {
	return message{
		tag:         TagProgress,
		headline:    "Reading the closest sensor",
		description: fmt.Sprintf("Sensor %s is %.1f km away.", s.ID, s.DistanceKm()),
		status:      "Fetching readings…",
	}
}

func computingMessage() message {
	return message{
		tag:         TagProgress,
		headline:    "Computing air quality",
		description: "Converting particulate readings to AQI.",
		status:      "Computing…",
	}
}

func displayMessage(res aqi.Result, s *sensor.Summary, r *sensor.Reading) message {
	status := fmt.Sprintf("Sensor %s, %.1f km away", s.ID, s.DistanceKm())
	if r.Label != "" {
		status = fmt.Sprintf("%s (%s)", status, r.Label)
	}

	if !res.Index.Available() {
		return message{
			tag:         TagUnavailable,
			headline:    "AQI unavailable",
			description: "The closest sensor is not reporting a usable reading right now.",
			status:      status,
		}
	}

	return message{
		tag:         strings.ToLower(string(res.Severity)),
		headline:    fmt.Sprintf("AQI %d: %s", res.Index, res.Severity.Label()),
		description: res.Severity.Advice(),
		status:      status,
	}
}

func deniedMessage(err error) message {
	return message{
		tag:         TagDenied,
		headline:    "We couldn't find you",
		description: "Location is unavailable or access was denied. Reset to try again.",
		status:      errorStatus(err),
	}
}

func fetchErrorMessage(err error) message {
	return message{
		tag:         TagError,
		headline:    "Couldn't reach the sensor network",
		description: "There was a problem talking to the sensor provider. Reset to try again.",
		status:      errorStatus(err),
	}
}

// errorStatus flattens joined errors onto one line.
func errorStatus(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}

func noSensorsMessage() message {
	return message{
		tag:         TagNoSensors,
		headline:    "No sensors near you",
		description: "No outdoor sensors have reported recently. Reset to try again.",
		status:      "No sensors available",
	}
}
