// Package response writes JSON and problem responses for the navigation API.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/breatheroute/wayfinder/internal/api/middleware"
	"github.com/breatheroute/wayfinder/internal/api/models"
)

// JSON writes data with the given status. X-Request-Id is echoed for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "", data)
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusCreated, location, data)
}

// Accepted writes a 202 for work that was queued, not yet applied.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusAccepted, location, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnauthorized(traceID(r), detail))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(traceID(r), detail))
}

// RouteNotReady writes a 409 for a session that cannot start without a route.
func RouteNotReady(w http.ResponseWriter, r *http.Request, detail string) {
	p := models.NewProblem(models.ProblemTypeRouteNotReady, "Route not ready", http.StatusConflict, traceID(r))
	p.Detail = detail
	Error(w, r, p)
}

// NoRoute writes a 422 when the provider found no route between the points.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	p := models.NewProblem(models.ProblemTypeNoRoute, "No route", http.StatusUnprocessableEntity, traceID(r))
	p.Detail = detail
	Error(w, r, p)
}

// TooManyRequests writes a 429. A positive retryAfter sets Retry-After.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	setRetryAfter(w, retryAfter)
	Error(w, r, models.NewTooManyRequests(traceID(r), detail))
}

// TooManySessions writes a 429 when the session limit is reached.
func TooManySessions(w http.ResponseWriter, r *http.Request, detail string) {
	p := models.NewProblem(models.ProblemTypeTooManySessions, "Too many sessions", http.StatusTooManyRequests, traceID(r))
	p.Detail = detail
	Error(w, r, p)
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}

// DirectionsUnavailable writes a 503 when the route provider failed and no
// cached route could stand in.
func DirectionsUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	setRetryAfter(w, retryAfter)
	p := models.NewProblem(models.ProblemTypeDirections, "Directions unavailable", http.StatusServiceUnavailable, traceID(r))
	p.Detail = detail
	Error(w, r, p)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if secs := int(d.Round(time.Second).Seconds()); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}
