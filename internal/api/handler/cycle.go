// Package handler provides the HTTP handlers of the nearair API.
package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/api/middleware"
	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/api/response"
	"github.com/nearair/nearair/internal/orchestrator"
)

// announcementRetryAfter is the Retry-After hint, in seconds, while no
// announcement exists yet.
const announcementRetryAfter = 5

// Controller is the part of the orchestrator the API drives.
type Controller interface {
	State() orchestrator.State
	Generation() uint64
	Reset()
}

// LatestAnnouncement returns the newest announcement, if any.
type LatestAnnouncement interface {
	Get() (announce.Announcement, bool)
}

// CycleHandler serves the refresh cycle: its state, its latest
// announcement and the user reset.
type CycleHandler struct {
	controller Controller
	latest     LatestAnnouncement
	log        zerolog.Logger
}

// NewCycleHandler creates a new CycleHandler.
func NewCycleHandler(controller Controller, latest LatestAnnouncement, log zerolog.Logger) *CycleHandler {
	return &CycleHandler{
		controller: controller,
		latest:     latest,
		log:        log,
	}
}

// GetAnnouncement handles GET /v1/announcement.
func (h *CycleHandler) GetAnnouncement(w http.ResponseWriter, r *http.Request) {
	a, ok := h.latest.Get()
	if !ok {
		response.ServiceUnavailable(w, r, "no announcement has been made yet", announcementRetryAfter)
		return
	}
	response.JSON(w, r, http.StatusOK, toAnnouncementModel(a))
}

// GetState handles GET /v1/state.
func (h *CycleHandler) GetState(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toStateModel(h.controller.State()))
}

// Reset handles POST /v1/reset. It abandons the current cycle, clears the
// directory cache and starts over.
func (h *CycleHandler) Reset(w http.ResponseWriter, r *http.Request) {
	previous := h.controller.State()
	h.controller.Reset()
	generation := h.controller.Generation()

	h.log.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("subject", middleware.GetSubject(r.Context())).
		Str("previous_phase", string(previous.Phase)).
		Uint64("generation", generation).
		Msg("reset requested")

	response.Accepted(w, r, models.ResetAccepted{
		Generation: generation,
		Status:     "accepted",
	})
}
