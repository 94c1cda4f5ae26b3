package navigation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/alert"
	"github.com/breatheroute/wayfinder/internal/audio"
	"github.com/breatheroute/wayfinder/internal/geo"
	"github.com/breatheroute/wayfinder/internal/position"
	"github.com/breatheroute/wayfinder/internal/route"
)

// Sentinel errors for sessions.
var (
	ErrRouteNotReady = errors.New("route not ready")
	ErrSessionActive = errors.New("session is active")
)

// ArrivalText is spoken when the last step completes.
const ArrivalText = "You have arrived at your destination"

// State is the navigation state of a session.
type State int

const (
	StateInactive State = iota
	StateActive
	// StateArrived is reported after the last step completes. It is not
	// active: further fixes are ignored until Start or Stop.
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateArrived:
		return "arrived"
	default:
		return "inactive"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inactive":
		*s = StateInactive
	case "active":
		*s = StateActive
	case "arrived":
		*s = StateArrived
	default:
		return fmt.Errorf("unknown navigation state %q", text)
	}
	return nil
}

// Snapshot is the presentation view of a session.
type Snapshot struct {
	State          State          `json:"state"`
	StepIndex      int            `json:"stepIndex"`
	StepCount      int            `json:"stepCount"`
	Progress       string         `json:"progress"`
	Instruction    string         `json:"instruction,omitempty"`
	Maneuver       route.Maneuver `json:"maneuver,omitempty"`
	DistanceMeters float64        `json:"distanceMeters"`
	DistanceFeet   float64        `json:"distanceFeet"`
	Compass        geo.Compass    `json:"compass"`
	IsTurn         bool           `json:"isTurn"`
	UpdatedAt      time.Time      `json:"updatedAt,omitempty"`
}

// Result is the outcome of one Update.
type Result struct {
	Snapshot
	StepCompleted      bool `json:"stepCompleted"`
	DestinationReached bool `json:"destinationReached"`
	// NewInstruction is the instruction of the step just advanced onto.
	NewInstruction string `json:"newInstruction,omitempty"`
	// Fired lists the threshold alerts spoken on this update.
	Fired []alert.Kind `json:"fired,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now, used for tone cadence and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithLogger sets the session logger, overriding Config.Logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is one traveler's navigation state. All methods are safe for
// concurrent use; Update calls are serialized by the session mutex.
type Session struct {
	mu sync.Mutex

	cfg        Config
	thresholds alert.Thresholds
	announcer  audio.Announcer
	logger     zerolog.Logger
	now        func() time.Time

	route     *route.Route
	tracker   *alert.Tracker
	proximity *proximity

	state     State
	index     int
	distance  float64
	compass   geo.Compass
	updatedAt time.Time
}

// NewSession creates an inactive session without a route.
func NewSession(cfg Config, announcer audio.Announcer, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	thresholds, err := alert.NewThresholds(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if announcer == nil {
		announcer = audio.NewLogAnnouncer(cfg.Logger)
	}

	s := &Session{
		cfg:        cfg,
		thresholds: thresholds,
		announcer:  announcer,
		logger:     cfg.Logger,
		now:        time.Now,
		route:      route.New(nil),
		tracker:    alert.NewTracker(0, thresholds),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.proximity = &proximity{
		cfg:        cfg,
		thresholds: thresholds,
		announcer:  announcer,
		logger:     s.logger,
		metrics:    cfg.Metrics,
	}
	return s, nil
}

// Attach replaces the route and every alert record. The session must not be
// active. A nil or empty route is accepted; Start will then fail.
func (s *Session) Attach(r *route.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		return ErrSessionActive
	}
	s.attachLocked(r)
	return nil
}

func (s *Session) attachLocked(r *route.Route) {
	if r == nil {
		r = route.New(nil)
	}
	s.route = r
	s.tracker = alert.NewTracker(r.Len(), s.thresholds)
	s.state = StateInactive
	s.index = 0
	s.distance = 0
	s.compass = geo.North
	s.proximity.reset()
}

// Route returns the attached route.
func (s *Session) Route() *route.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Start begins navigation at the first step and announces the route summary
// and first instruction. It fails with ErrRouteNotReady on an empty route.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.route.IsReady() {
		return ErrRouteNotReady
	}
	if s.state == StateActive {
		return ErrSessionActive
	}

	s.index = 0
	if err := s.tracker.Reset(0); err != nil {
		return err
	}
	s.proximity.reset()
	s.state = StateActive
	s.distance = 0
	s.updatedAt = s.now()
	s.cfg.Metrics.recordActive(ctx, 1)

	first, _ := s.route.Step(0)
	s.logger.Info().
		Int("step_count", s.route.Len()).
		Float64("distance_m", s.route.TotalDistance()).
		Msg("navigation started")
	s.proximity.speak(StartText(s.route, first), s.cfg.Voice)
	s.proximity.flush(ctx)
	return nil
}

// Update processes one fix. Invalid fixes fail with geo.ErrInvalidCoordinate
// and leave the session unchanged; fixes on an inactive session are ignored.
// At most one step completes per call.
func (s *Session) Update(ctx context.Context, fix position.Fix) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := fix.Coordinate()
	if err := geo.Validate(loc); err != nil {
		return Result{Snapshot: s.snapshotLocked()}, err
	}
	if s.state != StateActive {
		return Result{Snapshot: s.snapshotLocked()}, nil
	}

	s.cfg.Metrics.recordFix(ctx)
	now := s.now()
	step, err := s.route.Step(s.index)
	if err != nil {
		return Result{Snapshot: s.snapshotLocked()}, err
	}

	d, _ := geo.Distance(loc, step.End)
	s.observeLocked(loc, step.End, d, now)

	var res Result
	res.Fired = s.proximity.evaluate(ctx, s.tracker, s.index, step, d, now)

	if d <= s.cfg.ArrivalThresholdMeters {
		s.completeStepLocked(ctx, loc, now, &res)
	}
	s.proximity.flush(ctx)

	res.Snapshot = s.snapshotLocked()
	return res, nil
}

// completeStepLocked advances past the current step or arrives.
func (s *Session) completeStepLocked(ctx context.Context, loc geo.Coordinate, now time.Time, res *Result) {
	completed := s.index
	s.cfg.Metrics.recordStep(ctx)

	if s.index == s.route.Len()-1 {
		s.index = s.route.Len()
		s.state = StateArrived
		res.DestinationReached = true
		s.cfg.Metrics.recordArrival(ctx)
		s.cfg.Metrics.recordActive(ctx, -1)
		s.logger.Info().Int("step_index", completed).Msg("destination reached")
		s.proximity.speak(ArrivalText, s.cfg.Voice)
		return
	}

	s.index++
	if err := s.tracker.Reset(s.index); err != nil {
		s.logger.Error().Err(err).Int("step_index", s.index).Msg("alert reset failed")
	}
	s.proximity.stepChanged()

	next, _ := s.route.Step(s.index)
	d, _ := geo.Distance(loc, next.End)
	s.observeLocked(loc, next.End, d, now)

	res.StepCompleted = true
	res.NewInstruction = next.Instruction
	s.logger.Info().
		Int("step_index", s.index).
		Str("instruction", next.Instruction).
		Msg("step completed")
	s.proximity.speak(instructionText(next), s.cfg.Voice)
}

func (s *Session) observeLocked(from, to geo.Coordinate, d float64, now time.Time) {
	bearing, _ := geo.Bearing(from, to)
	s.distance = d
	s.compass = geo.CompassFor(bearing)
	s.updatedAt = now
}

// Stop returns the session to Inactive and reports the state it left.
// Already dispatched announcements are not aborted. Stop is idempotent.
func (s *Session) Stop() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev == StateActive {
		s.cfg.Metrics.recordActive(context.Background(), -1)
		s.logger.Info().Int("step_index", s.index).Msg("navigation stopped")
	}
	s.state = StateInactive
	return prev
}

// Refresh stops the session and attaches a new route. Start must be called again.
func (s *Session) Refresh(r *route.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		s.cfg.Metrics.recordActive(context.Background(), -1)
	}
	s.attachLocked(r)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current presentation view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	n := s.route.Len()
	snap := Snapshot{
		State:          s.state,
		StepIndex:      s.index,
		StepCount:      n,
		DistanceMeters: s.distance,
		DistanceFeet:   geo.MetersToFeet(s.distance),
		Compass:        s.compass,
		UpdatedAt:      s.updatedAt,
	}

	switch {
	case n == 0:
		snap.Progress = "No route"
	case s.index >= n:
		snap.Progress = fmt.Sprintf("Step %d/%d", n, n)
		snap.Instruction = ArrivalText
	default:
		step, _ := s.route.Step(s.index)
		snap.Progress = fmt.Sprintf("Step %d/%d", s.index+1, n)
		snap.Instruction = step.Instruction
		snap.Maneuver = step.Maneuver
		snap.IsTurn = step.IsTurn()
	}
	return snap
}

// StartText is the announcement spoken by Start.
func StartText(r *route.Route, first route.Step) string {
	return fmt.Sprintf("Starting navigation. Total distance %s, estimated time %s. %s",
		spokenDistance(r.TotalDistance()), spokenDuration(r.TotalDuration()), instructionText(first))
}

func instructionText(step route.Step) string {
	if step.Instruction != "" {
		return step.Instruction
	}
	return step.Maneuver.Spoken()
}

func spokenDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f kilometers", meters/1000)
}

func spokenDuration(seconds float64) string {
	minutes := int(math.Ceil(seconds / 60))
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
