package models

import (
	"github.com/breatheroute/wayfinder/internal/navigation"
)

// CreateSessionRequest is the body of POST /v1/navigation/sessions.
type CreateSessionRequest struct {
	Origin      *Point `json:"origin"`
	Destination *Point `json:"destination"`
	// Profile is "walk" or "bike", or an openrouteservice profile name.
	Profile string `json:"profile,omitempty"`
	// Start begins navigation immediately after the route is loaded.
	Start bool `json:"start,omitempty"`
}

// Validate returns field errors for missing or out of range points.
func (r CreateSessionRequest) Validate() []FieldError {
	var errs []FieldError
	errs = append(errs, validatePoint("origin", r.Origin)...)
	errs = append(errs, validatePoint("destination", r.Destination)...)
	return errs
}

// FixRequest is one position report, posted to /fixes or sent over the
// session stream.
type FixRequest struct {
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
	Accuracy  float64    `json:"accuracy,omitempty"`
}

// Validate returns field errors for missing or out of range coordinates.
func (r FixRequest) Validate() []FieldError {
	var errs []FieldError
	switch {
	case r.Lat == nil:
		errs = append(errs, FieldError{Field: "lat", Message: "required", Code: "REQUIRED"})
	case *r.Lat < -90 || *r.Lat > 90:
		errs = append(errs, FieldError{Field: "lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	switch {
	case r.Lon == nil:
		errs = append(errs, FieldError{Field: "lon", Message: "required", Code: "REQUIRED"})
	case *r.Lon < -180 || *r.Lon > 180:
		errs = append(errs, FieldError{Field: "lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	if r.Accuracy < 0 {
		errs = append(errs, FieldError{Field: "accuracy", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	return errs
}

func validatePoint(field string, p *Point) []FieldError {
	if p == nil {
		return []FieldError{{Field: field, Message: "required", Code: "REQUIRED"}}
	}
	var errs []FieldError
	if p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, FieldError{Field: field + ".lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, FieldError{Field: field + ".lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// SessionList is the body of GET /v1/navigation/sessions.
type SessionList struct {
	Sessions []navigation.Info `json:"sessions"`
	Count    int               `json:"count"`
}

// StreamMessage is a client frame on the session stream.
type StreamMessage struct {
	// Type is "fix" or "ping".
	Type string      `json:"type"`
	Fix  *FixRequest `json:"fix,omitempty"`
}
