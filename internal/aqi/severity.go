package aqi

// Severity is the health bucket of an index.
type Severity string

const (
	SeverityGood          Severity = "GOOD"
	SeverityModerate      Severity = "MODERATE"
	SeveritySensitive     Severity = "UNHEALTHY_FOR_SENSITIVE_GROUPS"
	SeverityUnhealthy     Severity = "UNHEALTHY"
	SeverityVeryUnhealthy Severity = "VERY_UNHEALTHY"
	SeverityHazardous     Severity = "HAZARDOUS"
	SeverityVeryHazardous Severity = "VERY_HAZARDOUS"
	SeverityUnknown       Severity = "UNKNOWN"
)

// Severities lists the buckets from best to worst.
var Severities = []Severity{
	SeverityGood,
	SeverityModerate,
	SeveritySensitive,
	SeverityUnhealthy,
	SeverityVeryUnhealthy,
	SeverityHazardous,
	SeverityVeryHazardous,
}

// Classify returns the bucket an index falls in.
func Classify(i Index) Severity {
	switch {
	case !i.Available():
		return SeverityUnknown
	case i <= 50:
		return SeverityGood
	case i <= 100:
		return SeverityModerate
	case i <= 150:
		return SeveritySensitive
	case i <= 200:
		return SeverityUnhealthy
	case i <= 300:
		return SeverityVeryUnhealthy
	case i <= 400:
		return SeverityHazardous
	default:
		return SeverityVeryHazardous
	}
}

// Label is the human-readable bucket name.
func (s Severity) Label() string {
	switch s {
	case SeverityGood:
		return "Good"
	case SeverityModerate:
		return "Moderate"
	case SeveritySensitive:
		return "Unhealthy for Sensitive Groups"
	case SeverityUnhealthy:
		return "Unhealthy"
	case SeverityVeryUnhealthy:
		return "Very Unhealthy"
	case SeverityHazardous:
		return "Hazardous"
	case SeverityVeryHazardous:
		return "Very Hazardous"
	default:
		return "Unavailable"
	}
}

// Advice is a one-line health message for the bucket.
func (s Severity) Advice() string {
	switch s {
	case SeverityGood:
		return "Air quality is satisfactory. Enjoy being outside."
	case SeverityModerate:
		return "Unusually sensitive people should consider limiting prolonged exertion outdoors."
	case SeveritySensitive:
		return "People with heart or lung disease, older adults and children should reduce prolonged exertion."
	case SeverityUnhealthy:
		return "Everyone should reduce prolonged or heavy exertion outdoors."
	case SeverityVeryUnhealthy:
		return "Everyone should avoid prolonged exertion; move activities indoors."
	case SeverityHazardous, SeverityVeryHazardous:
		return "Health warning of emergency conditions. Everyone should stay indoors."
	default:
		return "The sensor did not report a usable reading."
	}
}
