// Package gpsfeed forwards fixes from a position source to a navigation
// session over the HTTP API.
package gpsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/position"
	"github.com/breatheroute/wayfinder/internal/provider/resilience"
)

// ClientName identifies the API client in the resilience registry.
const ClientName = "wayfinder-api"

var (
	// ErrSessionGone is returned when the API no longer knows the session.
	ErrSessionGone = errors.New("navigation session not found")

	// ErrUnauthorized is returned when the API rejects the device token.
	ErrUnauthorized = errors.New("device token rejected")
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for a Feeder.
type Config struct {
	// BaseURL of the API, e.g. https://wayfinder.example.nl (required).
	BaseURL string

	// SessionID receives the fixes (required).
	SessionID string

	// Token is the device bearer token.
	Token string

	// Sync waits for each fix to be applied instead of queueing it.
	Sync bool

	// HTTPClient overrides the resilient client.
	HTTPClient HTTPDoer

	// Timeout per request (default: 5s).
	Timeout time.Duration

	Logger zerolog.Logger
}

// Stats counts what a Run did.
type Stats struct {
	Sent    int
	Dropped int
	Failed  int
}

// Feeder posts fixes to one session.
type Feeder struct {
	endpoint   string
	token      string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

type fixBody struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  float64   `json:"accuracy,omitempty"`
}

// New creates a Feeder.
func New(cfg Config) (*Feeder, error) {
	if cfg.BaseURL == "" || cfg.SessionID == "" {
		return nil, errors.New("gpsfeed: base url and session id are required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ClientName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 1
		clientCfg.MaxInterval = 500 * time.Millisecond
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") +
		"/v1/navigation/sessions/" + url.PathEscape(cfg.SessionID) + "/fixes"
	if !cfg.Sync {
		endpoint += "?async=true"
	}

	return &Feeder{
		endpoint:   endpoint,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("session_id", cfg.SessionID).Logger(),
	}, nil
}

// Run forwards fixes from src until it is exhausted, ctx is done, or the
// session is gone. Fixes the server drops or fails are counted and skipped.
func (f *Feeder) Run(ctx context.Context, src position.Source) (Stats, error) {
	var stats Stats
	for {
		fix, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, position.ErrSourceClosed) {
				return stats, nil
			}
			return stats, err
		}

		err = f.Post(ctx, fix)
		switch {
		case err == nil:
			stats.Sent++
		case errors.Is(err, errDropped):
			stats.Dropped++
		case errors.Is(err, ErrSessionGone), errors.Is(err, ErrUnauthorized), ctx.Err() != nil:
			return stats, err
		default:
			stats.Failed++
			f.logger.Warn().Err(err).Msg("fix not delivered")
		}
	}
}

var errDropped = errors.New("fix dropped by server")

// Post sends one fix.
func (f *Feeder) Post(ctx context.Context, fix position.Fix) error {
	payload, err := json.Marshal(fixBody{Lat: fix.Lat, Lon: fix.Lon, Timestamp: fix.Timestamp.UTC(), Accuracy: fix.Accuracy})
	if err != nil {
		return fmt.Errorf("marshaling fix: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errDropped
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionGone
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
}
