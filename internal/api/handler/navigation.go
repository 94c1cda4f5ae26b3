// Package handler provides HTTP handlers for the navigation API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
	"github.com/breatheroute/wayfinder/internal/api/models"
	"github.com/breatheroute/wayfinder/internal/api/response"
	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/navigation"
	"github.com/breatheroute/wayfinder/internal/position"
	"github.com/breatheroute/wayfinder/internal/routing"
)

// maxBodyBytes bounds request bodies; sessions and fixes are tiny.
const maxBodyBytes = 64 << 10

// Sessions is the session lifecycle the handlers drive.
// *navigation.Manager satisfies it.
type Sessions interface {
	Create(ctx context.Context, req routing.DirectionsRequest) (navigation.Info, error)
	Get(id string) (navigation.Info, error)
	List() []navigation.Info
	Start(ctx context.Context, id string) (navigation.Info, error)
	Stop(ctx context.Context, id string) (navigation.Info, error)
	Refresh(ctx context.Context, id string) (navigation.Info, error)
	Fix(ctx context.Context, id string, fix position.Fix) (navigation.Result, error)
	Enqueue(id string, fix position.Fix) error
	Delete(ctx context.Context, id string) error
}

// NavigationHandler serves /v1/navigation/sessions.
type NavigationHandler struct {
	sessions Sessions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewNavigationHandler creates a NavigationHandler.
func NewNavigationHandler(sessions Sessions, logger zerolog.Logger) *NavigationHandler {
	return &NavigationHandler{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateSession handles POST /v1/navigation/sessions. The route is fetched
// synchronously; with "start": true navigation begins right away when the
// route has steps.
func (h *NavigationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionRequest
	if !decodeBody(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "origin and destination are required", errs)
		return
	}
	profile, err := routing.ParseProfile(input.Profile)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "profile", Message: "must be walk or bike", Code: "INVALID"},
		})
		return
	}

	info, err := h.sessions.Create(r.Context(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: input.Origin.Lat, Lon: input.Origin.Lon},
		Destination: geo.Coordinate{Lat: input.Destination.Lat, Lon: input.Destination.Lon},
		Profile:     profile,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if input.Start {
		started, err := h.sessions.Start(r.Context(), info.ID)
		switch {
		case err == nil:
			info = started
		case errors.Is(err, navigation.ErrRouteNotReady):
			// Created but not startable; the snapshot says so.
		default:
			h.writeError(w, r, err)
			return
		}
	}

	h.logger.Info().
		Str("session_id", info.ID).
		Str("device_id", GetDeviceID(r.Context())).
		Str("state", info.Snapshot.State.String()).
		Msg("navigation session opened")
	response.Created(w, r, "/v1/navigation/sessions/"+info.ID, info)
}

// ListSessions handles GET /v1/navigation/sessions.
func (h *NavigationHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List()
	response.JSON(w, r, http.StatusOK, models.SessionList{Sessions: infos, Count: len(infos)})
}

// GetSession handles GET /v1/navigation/sessions/{sessionId}.
func (h *NavigationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, info)
}

// StartSession handles POST /v1/navigation/sessions/{sessionId}/start.
func (h *NavigationHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Start)
}

// StopSession handles POST /v1/navigation/sessions/{sessionId}/stop.
func (h *NavigationHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Stop)
}

// RefreshSession handles POST /v1/navigation/sessions/{sessionId}/refresh.
// The session keeps its old route when the provider fails.
func (h *NavigationHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Refresh)
}

func (h *NavigationHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (navigation.Info, error)) {
	info, err := op(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, info)
}

// DeleteSession handles DELETE /v1/navigation/sessions/{sessionId}.
func (h *NavigationHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// PostFix handles POST /v1/navigation/sessions/{sessionId}/fixes. The fix is
// applied before responding unless ?async=true, in which case it is queued
// and 202 is returned.
func (h *NavigationHandler) PostFix(w http.ResponseWriter, r *http.Request) {
	var input models.FixRequest
	if !decodeBody(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid fix", errs)
		return
	}

	id := chi.URLParam(r, "sessionId")
	fix := toFix(input, h.now)

	if r.URL.Query().Get("async") == "true" {
		if err := h.sessions.Enqueue(id, fix); err != nil {
			h.writeError(w, r, err)
			return
		}
		response.Accepted(w, r, "", nil)
		return
	}

	res, err := h.sessions.Fix(r.Context(), id, fix)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func toFix(in models.FixRequest, now func() time.Time) position.Fix {
	fix := position.Fix{Lat: *in.Lat, Lon: *in.Lon, Accuracy: in.Accuracy}
	if in.Timestamp != nil {
		fix.Timestamp = in.Timestamp.Time()
	} else {
		fix.Timestamp = now().UTC()
	}
	return fix
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// writeError maps navigation and routing errors to problems.
func (h *NavigationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var routeErr *routing.Error

	switch {
	case errors.Is(err, navigation.ErrSessionNotFound):
		response.NotFound(w, r, "navigation session not found")
	case errors.Is(err, navigation.ErrRouteNotReady):
		response.RouteNotReady(w, r, "session has no route to follow; refresh it first")
	case errors.Is(err, navigation.ErrSessionActive):
		response.Conflict(w, r, "session is already navigating")
	case errors.Is(err, navigation.ErrTooManySessions):
		response.TooManySessions(w, r, "session limit reached; delete finished sessions")
	case errors.Is(err, navigation.ErrFixQueueFull):
		response.TooManyRequests(w, r, "fix queue is full", time.Second)
	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, routing.ErrInvalidCoordinates):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NoRoute(w, r, "no route found between origin and destination")
	case errors.Is(err, routing.ErrRateLimitExceeded):
		response.DirectionsUnavailable(w, r, "directions quota exhausted", time.Minute)
	case errors.Is(err, routing.ErrProviderUnavailable), errors.As(err, &routeErr):
		response.DirectionsUnavailable(w, r, "directions provider unavailable", 0)
	case errors.Is(err, navigation.ErrManagerClosed), errors.Is(err, navigation.ErrRunnerClosed):
		response.ServiceUnavailable(w, r, "navigation is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("navigation request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
