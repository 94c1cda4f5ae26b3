package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/provider/resilience"
)

// RelayName identifies the speech relay in the provider registry.
const RelayName = "speech-relay"

// ErrInvalidToneAsset is returned by LoadToneAsset for empty or unrecognized files.
var ErrInvalidToneAsset = errors.New("invalid tone asset")

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RelayConfig holds configuration for the HTTP speech relay.
type RelayConfig struct {
	// BaseURL of the relay (required), e.g. the phone companion endpoint.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient overrides the resilient client.
	HTTPClient HTTPDoer

	// Timeout per request (default: 3s). Announcements are stale quickly.
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// HTTPAnnouncer delivers speech and tones to a relay over HTTP.
type HTTPAnnouncer struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

type speakRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Volume   float64 `json:"volume"`
}

type toneRequest struct {
	Audio  []byte  `json:"audio"`
	Volume float64 `json:"volume"`
}

// NewHTTPAnnouncer creates a relay announcer.
func NewHTTPAnnouncer(cfg RelayConfig) *HTTPAnnouncer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(RelayName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 1
		clientCfg.MaxInterval = 500 * time.Millisecond
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &HTTPAnnouncer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Speak posts the text to /v1/speak.
func (a *HTTPAnnouncer) Speak(ctx context.Context, text string, voice Voice) error {
	body := speakRequest{
		Text:     text,
		Language: voice.Language,
		Rate:     voice.Rate,
		Volume:   ClampVolume(voice.Volume),
	}
	if err := a.post(ctx, "/v1/speak", body); err != nil {
		return &Failure{Op: "speak", Err: err}
	}
	return nil
}

// PlayTone posts the tone asset to /v1/tone.
func (a *HTTPAnnouncer) PlayTone(ctx context.Context, tone []byte, volume float64) error {
	body := toneRequest{Audio: tone, Volume: ClampVolume(volume)}
	if err := a.post(ctx, "/v1/tone", body); err != nil {
		return &Failure{Op: "tone", Err: err}
	}
	return nil
}

func (a *HTTPAnnouncer) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}

// LoadToneAsset reads a WAV, MP3 or Ogg tone from disk. The returned slice is
// shared by every session and must not be modified.
func LoadToneAsset(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tone asset: %w", err)
	}
	if !isAudio(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToneAsset, path)
	}
	return data, nil
}

func isAudio(data []byte) bool {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return true
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return true
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0: // MPEG frame sync
		return true
	}
	return false
}

var _ Announcer = (*HTTPAnnouncer)(nil)
