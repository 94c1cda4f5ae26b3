package navigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/events"
	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/position"
	"github.com/breatheroute/wayfinder/internal/route"
	"github.com/breatheroute/wayfinder/internal/routing"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("navigation session not found")
	ErrTooManySessions = errors.New("too many navigation sessions")
	ErrManagerClosed   = errors.New("navigation manager closed")
)

const (
	defaultMaxSessions  = 1000
	defaultEventBacklog = 256
)

// Directions fetches routes. *routing.Service satisfies it.
type Directions interface {
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	// Directions is used to create and refresh routes (required).
	Directions Directions

	// Announcer receives every session's speech and tones. Wrap slow
	// announcers in an audio.Dispatcher.
	Announcer audio.Announcer

	// Publisher receives lifecycle events (optional).
	Publisher events.Publisher

	// Session is the tuning for new sessions; see SetConfig.
	Session Config

	// QueueSize is the per-session fix queue size.
	QueueSize int

	// MaxSessions bounds live sessions (default: 1000).
	MaxSessions int

	// OnUpdate is called after every applied fix, on the session's runner.
	OnUpdate func(ctx context.Context, sessionID string, res Result)

	Logger zerolog.Logger

	// Clock replaces time.Now for sessions and events.
	Clock func() time.Time
}

// Info describes a managed session.
type Info struct {
	ID              string               `json:"id"`
	Origin          geo.Coordinate       `json:"origin"`
	Destination     geo.Coordinate       `json:"destination"`
	Profile         routing.RouteProfile `json:"profile"`
	Summary         string               `json:"summary,omitempty"`
	DistanceMeters  float64              `json:"distanceMeters"`
	DurationSeconds float64              `json:"durationSeconds"`
	CreatedAt       time.Time            `json:"createdAt"`
	Snapshot        Snapshot             `json:"snapshot"`
}

type managed struct {
	id        string
	session   *Session
	runner    *Runner
	createdAt time.Time

	mu      sync.Mutex
	request routing.DirectionsRequest
	summary string
	lastFix *geo.Coordinate
}

// Manager owns the live navigation sessions of this process.
type Manager struct {
	directions  Directions
	announcer   audio.Announcer
	publisher   events.Publisher
	queueSize   int
	maxSessions int
	onUpdate    func(ctx context.Context, sessionID string, res Result)
	logger      zerolog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*managed
	closed   bool

	events chan events.Event
	done   chan struct{}
}

// NewManager validates the session tuning and starts the event publisher.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Directions == nil {
		return nil, errors.New("navigation manager requires a directions service")
	}
	if err := validateSessionConfig(cfg.Session); err != nil {
		return nil, err
	}

	m := &Manager{
		directions:  cfg.Directions,
		announcer:   cfg.Announcer,
		publisher:   cfg.Publisher,
		queueSize:   cfg.QueueSize,
		maxSessions: cfg.MaxSessions,
		onUpdate:    cfg.OnUpdate,
		logger:      cfg.Logger,
		now:         cfg.Clock,
		cfg:         cfg.Session,
		sessions:    make(map[string]*managed),
		events:      make(chan events.Event, defaultEventBacklog),
		done:        make(chan struct{}),
	}
	if m.announcer == nil {
		m.announcer = audio.NewLogAnnouncer(cfg.Logger)
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.maxSessions <= 0 {
		m.maxSessions = defaultMaxSessions
	}
	if m.now == nil {
		m.now = time.Now
	}

	go m.publishLoop()
	return m, nil
}

func validateSessionConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := alert.NewThresholds(cfg.Thresholds); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// SetConfig replaces the tuning for sessions created afterwards. Live
// sessions keep the tuning they were created with.
func (m *Manager) SetConfig(cfg Config) error {
	if err := validateSessionConfig(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Per-process resources stay with the manager's original config.
	cfg.Metrics = m.cfg.Metrics
	cfg.Logger = m.cfg.Logger
	if cfg.Tone == nil {
		cfg.Tone = m.cfg.Tone
	}
	m.cfg = cfg
	m.logger.Info().
		Str("policy", string(cfg.withDefaults().AlertPolicy)).
		Msg("navigation config reloaded")
	return nil
}

// Create fetches a route and registers an inactive session for it.
func (m *Manager) Create(ctx context.Context, req routing.DirectionsRequest) (Info, error) {
	if req.Profile == "" {
		req.Profile = routing.ProfileWalk
	}
	r, summary, err := m.fetch(ctx, req)
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Info{}, ErrManagerClosed
	}
	if len(m.sessions) >= m.maxSessions {
		return Info{}, ErrTooManySessions
	}

	id := uuid.NewString()
	logger := m.logger.With().Str("session_id", id).Logger()
	session, err := NewSession(m.cfg, m.announcer, WithLogger(logger), WithClock(m.now))
	if err != nil {
		return Info{}, err
	}
	if err := session.Attach(r); err != nil {
		return Info{}, err
	}

	ms := &managed{
		id:        id,
		session:   session,
		createdAt: m.now().UTC(),
		request:   req,
		summary:   summary,
	}
	ms.runner = NewRunner(session, RunnerConfig{
		QueueSize: m.queueSize,
		Logger:    logger,
		OnResult: func(ctx context.Context, fix position.Fix, res Result) {
			m.handleResult(ctx, ms, fix, res)
		},
	})
	m.sessions[id] = ms

	logger.Info().
		Int("step_count", r.Len()).
		Float64("distance_m", r.TotalDistance()).
		Str("profile", string(req.Profile)).
		Msg("navigation session created")
	return ms.info(), nil
}

func (m *Manager) fetch(ctx context.Context, req routing.DirectionsRequest) (*route.Route, string, error) {
	resp, err := m.directions.GetDirections(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching directions: %w", err)
	}
	primary, err := resp.Primary()
	if err != nil {
		return nil, "", err
	}
	r, err := primary.Navigable()
	if err != nil {
		return nil, "", fmt.Errorf("loading route: %w", err)
	}
	return r, primary.Summary, nil
}

func (m *Manager) lookup(id string) (*managed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

// Get returns the session's description and current snapshot.
func (m *Manager) Get(id string) (Info, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return ms.info(), nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*managed, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(all))
	for _, ms := range all {
		infos = append(infos, ms.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Start begins navigation for the session.
func (m *Manager) Start(ctx context.Context, id string) (Info, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	if err := ms.session.Start(ctx); err != nil {
		return Info{}, err
	}

	info := ms.info()
	e := m.event(events.TypeStarted, ms, info.Snapshot)
	e.Instruction = info.Snapshot.Instruction
	m.emit(e)
	return info, nil
}

// Stop ends navigation for the session. Stopping an inactive session is a no-op.
func (m *Manager) Stop(_ context.Context, id string) (Info, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}

	prev := ms.session.Stop()

	info := ms.info()
	if prev == StateActive {
		m.emit(m.event(events.TypeStopped, ms, info.Snapshot))
	}
	return info, nil
}

// Refresh fetches a new route from the last known position (or the original
// origin) and attaches it. The session is left inactive and must be started
// again. If the fetch fails the session is unchanged.
func (m *Manager) Refresh(ctx context.Context, id string) (Info, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}

	ms.mu.Lock()
	req := ms.request
	if ms.lastFix != nil {
		req.Origin = *ms.lastFix
	}
	ms.mu.Unlock()

	r, summary, err := m.fetch(ctx, req)
	if err != nil {
		return Info{}, err
	}

	ms.session.Refresh(r)
	ms.mu.Lock()
	ms.request = req
	ms.summary = summary
	ms.mu.Unlock()

	info := ms.info()
	m.emit(m.event(events.TypeRefreshed, ms, info.Snapshot))
	return info, nil
}

// Fix applies one fix through the session's runner and waits for the result.
func (m *Manager) Fix(ctx context.Context, id string, fix position.Fix) (Result, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Result{}, err
	}
	return ms.runner.Submit(ctx, fix)
}

// Enqueue queues a fix without waiting, for streaming sources.
func (m *Manager) Enqueue(id string, fix position.Fix) error {
	ms, err := m.lookup(id)
	if err != nil {
		return err
	}
	return ms.runner.Enqueue(fix)
}

// Delete stops the session and releases it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.Stop(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		ms.runner.Close()
	}
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every session and flushes pending events.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*managed)
	m.mu.Unlock()

	for _, ms := range sessions {
		ms.session.Stop()
		ms.runner.Close()
	}

	close(m.events)
	<-m.done
}

func (m *Manager) handleResult(ctx context.Context, ms *managed, fix position.Fix, res Result) {
	loc := fix.Coordinate()
	ms.mu.Lock()
	ms.lastFix = &loc
	ms.mu.Unlock()

	switch {
	case res.DestinationReached:
		e := m.event(events.TypeArrived, ms, res.Snapshot)
		e.Lat, e.Lon = fix.Lat, fix.Lon
		m.emit(e)
	case res.StepCompleted:
		e := m.event(events.TypeStepCompleted, ms, res.Snapshot)
		e.Instruction = res.NewInstruction
		e.Lat, e.Lon = fix.Lat, fix.Lon
		m.emit(e)
	}

	if m.onUpdate != nil {
		m.onUpdate(ctx, ms.id, res)
	}
}

func (m *Manager) event(t events.Type, ms *managed, snap Snapshot) events.Event {
	e := events.New(t, ms.id, m.now())
	e.StepIndex = snap.StepIndex
	e.StepCount = snap.StepCount
	return e
}

// emit queues e for the publisher goroutine, dropping it if the backlog is full.
func (m *Manager) emit(e events.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.events <- e:
	default:
		m.logger.Warn().
			Str("session_id", e.SessionID).
			Str("event_type", string(e.Type)).
			Msg("event backlog full, dropping event")
	}
}

func (m *Manager) publishLoop() {
	defer close(m.done)
	for e := range m.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.publisher.Publish(ctx, e); err != nil {
			m.logger.Warn().Err(err).
				Str("session_id", e.SessionID).
				Str("event_type", string(e.Type)).
				Msg("event publish failed")
		}
		cancel()
	}
}

func (ms *managed) info() Info {
	ms.mu.Lock()
	req := ms.request
	summary := ms.summary
	ms.mu.Unlock()

	r := ms.session.Route()
	return Info{
		ID:              ms.id,
		Origin:          req.Origin,
		Destination:     req.Destination,
		Profile:         req.Profile,
		Summary:         summary,
		DistanceMeters:  r.TotalDistance(),
		DurationSeconds: r.TotalDuration(),
		CreatedAt:       ms.createdAt,
		Snapshot:        ms.session.Snapshot(),
	}
}
