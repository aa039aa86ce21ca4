package orchestrator

// Phase is the user-visible stage of the current cycle.
type Phase string

const (
	PhaseIdle             Phase = "Idle"
	PhaseLocating         Phase = "Locating"
	PhaseListingSensors   Phase = "ListingSensors"
	PhaseFetchingReadings Phase = "FetchingReadings"
	PhaseComputingAQI     Phase = "ComputingAQI"
	PhaseDisplaying       Phase = "Displaying"
	PhaseLocationDenied   Phase = "LocationDenied"
	PhaseFetchError       Phase = "FetchError"
)

// Halted reports whether the phase waits for a user reset instead of
// scheduling another cycle.
func (p Phase) Halted() bool {
	return p == PhaseLocationDenied || p == PhaseFetchError
}

// InFlight reports whether a cycle is working in this phase.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseLocating, PhaseListingSensors, PhaseFetchingReadings, PhaseComputingAQI:
		return true
	default:
		return false
	}
}
