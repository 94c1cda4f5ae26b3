package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/wayfinder/internal/events"
	"github.com/breatheroute/wayfinder/internal/position"
	"github.com/breatheroute/wayfinder/internal/route"
	"github.com/breatheroute/wayfinder/internal/routing"
)

type fakeDirections struct {
	mu       sync.Mutex
	requests []routing.DirectionsRequest
	codes    []string
	err      error
}

func (f *fakeDirections) GetDirections(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	records := make([]route.StepRecord, len(f.codes))
	for i, code := range f.codes {
		records[i] = route.StepRecord{
			DistanceMeters:  100,
			DurationSeconds: 72,
			Start:           at(float64(i) * 100),
			End:             at(float64(i+1) * 100),
			InstructionHTML: "Head <b>north</b>",
			ManeuverCode:    code,
		}
	}
	return &routing.DirectionsResponse{
		Routes:   []routing.Route{{DistanceMeters: 100 * float64(len(records)), Summary: "via Damrak", Steps: records}},
		Provider: "fake",
	}, nil
}

func (f *fakeDirections) last() routing.DirectionsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]events.Type, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}

func newTestManager(t *testing.T, dirs *fakeDirections) (*Manager, *eventLog, *recorder) {
	t.Helper()
	log := &eventLog{}
	rec := &recorder{}
	clock := newFakeClock()
	m, err := NewManager(ManagerConfig{
		Directions: dirs,
		Announcer:  rec,
		Publisher:  log,
		Logger:     zerolog.Nop(),
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, log, rec
}

func request() routing.DirectionsRequest {
	return routing.DirectionsRequest{Origin: at(0), Destination: at(200)}
}

func TestManager_Lifecycle(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left", "turn-right"}}
	m, log, rec := newTestManager(t, dirs)
	ctx := context.Background()

	info, err := m.Create(ctx, request())
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, routing.ProfileWalk, info.Profile)
	assert.Equal(t, "via Damrak", info.Summary)
	assert.Equal(t, 200.0, info.DistanceMeters)
	assert.Equal(t, StateInactive, info.Snapshot.State)
	assert.Equal(t, 1, m.Count())

	info, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, info.Snapshot.State)
	assert.Equal(t, "Head north", info.Snapshot.Instruction)
	assert.Equal(t, route.ManeuverLeft, info.Snapshot.Maneuver)

	for _, meters := range []float64{50, 98, 150, 198} {
		_, err := m.Fix(ctx, info.ID, position.Fix{Lat: at(meters).Lat, Lon: at(meters).Lon})
		require.NoError(t, err)
	}

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateArrived, got.Snapshot.State)

	m.Close()
	assert.Equal(t, []events.Type{
		events.TypeStarted,
		events.TypeStepCompleted,
		events.TypeArrived,
	}, log.types())
	spoken := rec.spoken()
	require.NotEmpty(t, spoken)
	assert.Equal(t, "In 20 feet, turn right. "+ArrivalText, spoken[len(spoken)-1])

	log.mu.Lock()
	arrived := log.events[2]
	log.mu.Unlock()
	assert.Equal(t, info.ID, arrived.SessionID)
	assert.Equal(t, 2, arrived.StepIndex)
	assert.InDelta(t, at(198).Lat, arrived.Lat, 1e-12)
}

func TestManager_StopPublishesOnlyWhenActive(t *testing.T) {
	m, log, _ := newTestManager(t, &fakeDirections{codes: []string{"turn-left"}})
	ctx := context.Background()

	info, err := m.Create(ctx, request())
	require.NoError(t, err)

	_, err = m.Stop(ctx, info.ID)
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	stopped, err := m.Stop(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateInactive, stopped.Snapshot.State)

	m.Close()
	assert.Equal(t, []events.Type{events.TypeStarted, events.TypeStopped}, log.types())
}

func TestManager_StopAfterArrivalPublishesNothing(t *testing.T) {
	m, log, _ := newTestManager(t, &fakeDirections{codes: []string{"turn-left"}})
	ctx := context.Background()

	info, err := m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	_, err = m.Fix(ctx, info.ID, position.Fix{Lat: at(99).Lat, Lon: at(99).Lon})
	require.NoError(t, err)

	stopped, err := m.Stop(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateInactive, stopped.Snapshot.State)

	m.Close()
	assert.Equal(t, []events.Type{events.TypeStarted, events.TypeArrived}, log.types())
}

func TestManager_RefreshFromLastFix(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left", "turn-right"}}
	m, log, _ := newTestManager(t, dirs)
	ctx := context.Background()

	info, err := m.Create(ctx, routing.DirectionsRequest{Origin: at(0), Destination: at(200), Profile: routing.ProfileBike})
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	_, err = m.Fix(ctx, info.ID, position.Fix{Lat: at(40).Lat, Lon: at(40).Lon})
	require.NoError(t, err)

	dirs.codes = []string{"uturn"}
	refreshed, err := m.Refresh(ctx, info.ID)
	require.NoError(t, err)

	assert.Equal(t, StateInactive, refreshed.Snapshot.State)
	assert.Equal(t, 1, refreshed.Snapshot.StepCount)
	assert.Equal(t, route.ManeuverUTurn, refreshed.Snapshot.Maneuver)
	assert.Equal(t, at(40), dirs.last().Origin)
	assert.Equal(t, routing.ProfileBike, dirs.last().Profile)
	assert.Equal(t, at(40), refreshed.Origin)

	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)

	m.Close()
	assert.Equal(t, []events.Type{events.TypeStarted, events.TypeRefreshed, events.TypeStarted}, log.types())
}

func TestManager_RefreshFailureKeepsSession(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left"}}
	m, _, _ := newTestManager(t, dirs)
	ctx := context.Background()

	info, err := m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)

	dirs.err = routing.ErrProviderUnavailable
	_, err = m.Refresh(ctx, info.ID)
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.Snapshot.State)
}

func TestManager_CreateErrors(t *testing.T) {
	ctx := context.Background()

	m, _, _ := newTestManager(t, &fakeDirections{err: &routing.Error{Code: "NO_ROUTE", Err: routing.ErrNoRouteFound}})
	_, err := m.Create(ctx, request())
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.Equal(t, 0, m.Count())

	empty, _, _ := newTestManager(t, &fakeDirections{})
	info, err := empty.Create(ctx, request())
	require.NoError(t, err, "an empty route is accepted but cannot start")
	_, err = empty.Start(ctx, info.ID)
	assert.ErrorIs(t, err, ErrRouteNotReady)
}

func TestManager_UnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeDirections{codes: []string{"turn-left"}})
	ctx := context.Background()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Fix(ctx, "missing", position.Fix{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Enqueue("missing", position.Fix{}), ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "missing"), ErrSessionNotFound)
}

func TestManager_DeleteAndLimits(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left"}}
	m, err := NewManager(ManagerConfig{Directions: dirs, MaxSessions: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	a, err := m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Create(ctx, request())
	assert.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, m.Delete(ctx, a.ID))
	assert.Equal(t, 1, m.Count())
	assert.Len(t, m.List(), 1)
}

func TestManager_SetConfigAppliesToNewSessions(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left"}}
	m, _, rec := newTestManager(t, dirs)
	ctx := context.Background()

	assert.ErrorIs(t, m.SetConfig(Config{AlertPolicy: "loud"}), ErrInvalidConfig)
	require.NoError(t, m.SetConfig(Config{AlertPolicy: PolicyPeriodic}))

	info, err := m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	rec.reset()

	res, err := m.Fix(ctx, info.ID, position.Fix{Lat: at(80).Lat, Lon: at(80).Lon})
	require.NoError(t, err)
	assert.Empty(t, res.Fired)
	assert.Equal(t, []string{"In 66 feet, turn left"}, rec.spoken())
}

func TestManager_OnUpdate(t *testing.T) {
	dirs := &fakeDirections{codes: []string{"turn-left"}}
	updates := make(chan string, 4)
	m, err := NewManager(ManagerConfig{
		Directions: dirs,
		OnUpdate: func(_ context.Context, id string, _ Result) {
			updates <- id
		},
	})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	info, err := m.Create(ctx, request())
	require.NoError(t, err)
	_, err = m.Start(ctx, info.ID)
	require.NoError(t, err)
	require.NoError(t, m.Enqueue(info.ID, position.Fix{Lat: at(10).Lat, Lon: at(10).Lon}))

	select {
	case id := <-updates:
		assert.Equal(t, info.ID, id)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestManager_RequiresDirections(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Directions: &fakeDirections{}, Session: Config{AlertPolicy: "x"}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
