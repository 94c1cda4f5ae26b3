package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api/response"
	"github.com/breatheroute/wayfinder/internal/journal"
)

// TripHandler serves trip summaries from the journal.
type TripHandler struct {
	repo   journal.Repository
	logger zerolog.Logger
}

// NewTripHandler creates a TripHandler.
func NewTripHandler(repo journal.Repository, logger zerolog.Logger) *TripHandler {
	return &TripHandler{repo: repo, logger: logger}
}

// GetTrip handles GET /v1/trips/{sessionId}.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	trip, err := journal.Summary(r.Context(), h.repo, id)
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, trip)
	case errors.Is(err, journal.ErrTripNotFound):
		response.NotFound(w, r, "no journal entries for this session")
	default:
		h.logger.Error().Err(err).Str("session_id", id).Msg("trip summary failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
