// Package session owns the background tracking session: its lifecycle, the
// sampling loop that feeds its history, and its persisted snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/consensus"
	"github.com/ent0n29/mcctrack/internal/location"
	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/persistence"
	"github.com/ent0n29/mcctrack/internal/policy"
	"github.com/ent0n29/mcctrack/internal/prediction"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

const persistTimeout = 2 * time.Second

// Deps are the collaborators a Manager drives. Store, Engine, Clock and
// Metrics are optional.
type Deps struct {
	Provider location.Provider
	Client   *prediction.Client
	Store    persistence.Store
	Engine   *consensus.Engine
	Clock    clock.Clock
	Metrics  *observability.Metrics
}

type loopHandle struct {
	gen    uint64
	cancel context.CancelFunc
}

// Manager runs at most one tracking session per process.
//
// opMu serialises every mutation: ticks, Start, Stop, Extend, Restore and
// arming. mu guards the fields read by Status and CurrentSession so those
// never wait behind a tick's network calls.
type Manager struct {
	provider location.Provider
	client   *prediction.Client
	store    persistence.Store
	engine   *consensus.Engine
	clock    clock.Clock
	metrics  *observability.Metrics

	opMu         sync.Mutex
	filter       tracking.UpdateFilter
	loop         *loopHandle
	gen          uint64
	loops        sync.WaitGroup
	backgrounded bool

	mu       sync.RWMutex
	session  *tracking.Session
	tracking bool

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Engine == nil {
		deps.Engine = consensus.NewEngine(deps.Clock)
	}
	return &Manager{
		provider:    deps.Provider,
		client:      deps.Client,
		store:       deps.Store,
		engine:      deps.Engine,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		subscribers: make(map[int]chan Event),
	}
}

// Start stops any running session, creates a new one for userID and takes
// the first sample before arming the loop. A permission failure on that
// first sample ends the session and is returned.
func (m *Manager) Start(ctx context.Context, userID string, cfg tracking.Config) (*tracking.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.session != nil && m.session.IsActive {
		m.endLocked(ctx, EventStopped, "replaced")
	}

	now := m.clock.Now()
	s := &tracking.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		StartedAt:     now,
		LastUpdatedAt: now,
		ExpiresAt:     now.Add(cfg.SessionDuration),
		IsActive:      true,
		Config:        cfg,
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	m.filter = tracking.UpdateFilter{MinDistanceMeters: cfg.MinDistanceMeters}
	if m.client != nil {
		m.client.SetRetryCapacity(cfg.RetryCapacity())
	}

	m.persistLocked(ctx)
	m.metrics.SessionEvent("started")
	m.metrics.SetActiveSessions(1)
	m.publish(Event{Type: EventStarted, SessionID: s.ID, ExpiresAt: timePtr(s.ExpiresAt)})
	observability.Logf("tracking session started session=%s user=%s expires_at=%s", s.ID, policy.ForLog(userID), s.ExpiresAt.Format(time.RFC3339))

	if _, err := m.tickLocked(ctx); err != nil {
		return nil, err
	}
	m.armLocked()
	return m.snapshot(), nil
}

// Stop ends the active session and removes its snapshot. The ended session
// stays readable through CurrentSession until the next Start.
func (m *Manager) Stop(ctx context.Context) (*tracking.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.session == nil || !m.session.IsActive {
		return nil, ErrNoActiveSession
	}
	m.endLocked(ctx, EventStopped, "stopped")
	return m.snapshot(), nil
}

// Extend replaces the session expiry with now+minutes. Repeated calls do not
// accumulate.
func (m *Manager) Extend(ctx context.Context, minutes int) (*tracking.Session, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("%w: extend minutes must be positive", tracking.ErrInvalidConfig)
	}
	if time.Duration(minutes) > tracking.MaxSessionDuration/time.Minute {
		return nil, fmt.Errorf("%w: extend minutes must be <= %d", tracking.ErrInvalidConfig, tracking.MaxSessionDuration/time.Minute)
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	now := m.clock.Now()
	if !m.session.ActiveAt(now) {
		return nil, ErrNoActiveSession
	}
	expires := now.Add(time.Duration(minutes) * time.Minute)
	m.mu.Lock()
	m.session.ExpiresAt = expires
	m.mu.Unlock()

	m.persistLocked(ctx)
	m.metrics.SessionEvent("extended")
	m.publish(Event{Type: EventExtended, SessionID: m.session.ID, ExpiresAt: timePtr(expires)})
	return m.snapshot(), nil
}

// Restore loads the persisted snapshot. An active unexpired session resumes
// and its loop is armed unless the app is backgrounded and the session only
// samples in the foreground. An inactive or expired snapshot, left behind
// by a crash, is deleted and nil is returned.
func (m *Manager) Restore(ctx context.Context) (*tracking.Session, error) {
	if m.store == nil {
		return nil, nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.session != nil && m.session.IsActive {
		return nil, ErrSessionActive
	}

	data, err := m.store.Load(ctx, SnapshotKey)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.metrics.PersistenceError("load")
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	s, err := tracking.UnmarshalSnapshot(data)
	if err != nil {
		observability.Logf("discarding unreadable session snapshot: %v", err)
		m.deleteSnapshotLocked(ctx)
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	if !s.ActiveAt(m.clock.Now()) {
		observability.Logf("reaping finished session snapshot session=%s active=%t expires_at=%s", s.ID, s.IsActive, s.ExpiresAt.Format(time.RFC3339))
		m.deleteSnapshotLocked(ctx)
		m.metrics.SessionEvent("reaped")
		return nil, nil
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	m.filter = tracking.UpdateFilter{MinDistanceMeters: s.Config.MinDistanceMeters}
	if m.client != nil {
		m.client.SetRetryCapacity(s.Config.RetryCapacity())
	}
	m.armLocked()
	m.metrics.SessionEvent("restored")
	m.metrics.SetActiveSessions(1)
	m.publish(Event{Type: EventRestored, SessionID: s.ID, ExpiresAt: timePtr(s.ExpiresAt)})
	observability.Logf("tracking session restored session=%s history=%d", s.ID, len(s.History))
	return m.snapshot(), nil
}

// Status never errors and never blocks on a running tick.
func (m *Manager) Status() Status {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{IsTracking: m.tracking}
	if m.session == nil {
		return st
	}
	st.HasActiveSession = m.session.ActiveAt(now)
	st.SessionID = m.session.ID
	st.HistoryCount = len(m.session.History)
	st.LastUpdatedAt = timePtr(m.session.LastUpdatedAt)
	return st
}

// CurrentSession returns a copy of the current session, active or not, or
// nil when none has been started.
func (m *Manager) CurrentSession() *tracking.Session {
	return m.snapshot()
}

// BestCategoryForCurrentPosition samples the device and runs consensus over
// the session history.
func (m *Manager) BestCategoryForCurrentPosition(ctx context.Context) (consensus.Result, bool, error) {
	s := m.snapshot()
	if s == nil {
		return consensus.Result{}, false, nil
	}
	pos, err := m.provider.CurrentPosition(ctx)
	if err != nil {
		return consensus.Result{}, false, err
	}
	res, ok := m.engine.BestCategory(s, pos)
	return res, ok, nil
}

// BestCategoryAt runs consensus for an explicit position.
func (m *Manager) BestCategoryAt(pos tracking.Position) (consensus.Result, bool) {
	return m.engine.BestCategory(m.snapshot(), pos)
}

// Arm starts the sampling loop if a session is active and no loop runs.
func (m *Manager) Arm() bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if !m.session.ActiveAt(m.clock.Now()) {
		return false
	}
	return m.armLocked()
}

// Disarm cancels the sampling loop. The session stays active.
func (m *Manager) Disarm() bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.disarmLocked()
}

// SetBackgrounded records the app lifecycle state. While backgrounded the
// loop only arms for sessions that track in the background, so Start and
// Restore respect the state too.
func (m *Manager) SetBackgrounded(background bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.backgrounded = background
}

// TrackInBackground reports whether the current session samples while the
// app is backgrounded.
func (m *Manager) TrackInBackground() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return true
	}
	return m.session.Config.TrackWhenBackgrounded
}

// Close cancels the loop and waits for it to exit. The session snapshot is
// left as is so Restore can resume it.
func (m *Manager) Close() {
	m.Disarm()
	m.loops.Wait()
}

func (m *Manager) armLocked() bool {
	if m.loop != nil || m.session == nil || !m.session.IsActive {
		return false
	}
	if m.backgrounded && !m.session.Config.TrackWhenBackgrounded {
		return false
	}
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.loop = &loopHandle{gen: m.gen, cancel: cancel}
	m.setTracking(true)

	m.loops.Add(1)
	go m.runLoop(ctx, m.gen, m.session.Config.UpdateInterval)
	return true
}

func (m *Manager) disarmLocked() bool {
	if m.loop == nil {
		return false
	}
	m.loop.cancel()
	m.loop = nil
	m.setTracking(false)
	return true
}

// runLoop re-arms its timer only after a tick returns, so ticks never
// overlap.
func (m *Manager) runLoop(ctx context.Context, gen uint64, interval time.Duration) {
	defer m.loops.Done()
	timer := m.clock.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
		}
		if !m.scheduledTick(ctx, gen) {
			return
		}
		timer.Reset(interval)
	}
}

func (m *Manager) scheduledTick(ctx context.Context, gen uint64) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if ctx.Err() != nil || m.loop == nil || m.loop.gen != gen {
		return false
	}
	keep, _ := m.tickLocked(ctx)
	return keep
}

// tickLocked takes one sample. It reports whether the loop should keep
// running and returns the fatal error that ended the session, if any.
func (m *Manager) tickLocked(ctx context.Context) (bool, error) {
	s := m.session
	if s == nil || !s.IsActive {
		return false, nil
	}
	started := m.clock.Now()
	if !s.ActiveAt(started) {
		m.metrics.TickOutcome(observability.OutcomeExpired)
		m.endLocked(ctx, EventExpired, "expired")
		return false, nil
	}

	pos, err := m.provider.CurrentPosition(ctx)
	m.metrics.ObserveTickStage(observability.StageLocate, m.clock.Now().Sub(started))
	if err != nil {
		if location.IsFatal(err) {
			observability.Logf("location permission lost session=%s: %v", s.ID, err)
			m.metrics.TickOutcome(observability.OutcomeFatal)
			m.publish(Event{Type: EventError, SessionID: s.ID, Error: err.Error(), Fatal: true})
			m.endLocked(ctx, EventStopped, "permission_denied")
			return false, err
		}
		observability.Logf("skipping sample session=%s: %v", s.ID, err)
		m.metrics.TickOutcome(observability.OutcomeSkipped)
		m.publish(Event{Type: EventError, SessionID: s.ID, Error: err.Error()})
		return true, nil
	}

	var last *tracking.Position
	if e := s.LastEntry(); e != nil {
		last = &e.Position
	}
	if !m.filter.Accept(pos, last) {
		m.metrics.TickOutcome(observability.OutcomeRejected)
		m.publish(Event{Type: EventPositionRejected, SessionID: s.ID, Position: &pos})
		return true, nil
	}

	var pred *tracking.PredictionRecord
	if m.client != nil {
		stage := m.clock.Now()
		pred = m.client.RequestPrediction(ctx, s.ID, s.UserID, pos)
		m.metrics.ObserveTickStage(observability.StagePredict, m.clock.Now().Sub(stage))
	}

	now := m.clock.Now()
	m.mu.Lock()
	s.Append(tracking.HistoryEntry{
		Position:       pos,
		Prediction:     pred,
		RecordedAt:     now,
		AccuracyMeters: pos.AccuracyMeters,
	}, s.Config.MaxHistorySize)
	s.LastUpdatedAt = now
	m.mu.Unlock()

	stage := m.clock.Now()
	m.persistLocked(ctx)
	m.metrics.ObserveTickStage(observability.StagePersist, m.clock.Now().Sub(stage))

	m.publish(Event{Type: EventPositionAccepted, SessionID: s.ID, Position: &pos})
	if pred != nil {
		m.publish(Event{Type: EventPrediction, SessionID: s.ID, Position: &pos, Prediction: pred})
	}

	if m.client != nil {
		stage = m.clock.Now()
		m.client.PushTelemetry(ctx, prediction.Telemetry{
			SessionID:  s.ID,
			UserID:     s.UserID,
			Position:   pos,
			Prediction: pred,
			Timestamp:  now,
		})
		m.client.DrainRetries(ctx)
		m.metrics.ObserveTickStage(observability.StagePush, m.clock.Now().Sub(stage))
	}

	m.metrics.TickOutcome(observability.OutcomeAccepted)
	m.metrics.ObserveTickStage(observability.StageTickTotal, m.clock.Now().Sub(started))
	return true, nil
}

// endLocked is the shared terminal transition for stop, expiry and fatal
// location errors.
func (m *Manager) endLocked(ctx context.Context, evt EventType, reason string) {
	m.disarmLocked()
	m.mu.Lock()
	m.session.IsActive = false
	id := m.session.ID
	m.mu.Unlock()

	// A finished session is not resumable; its snapshot goes away with it.
	m.deleteSnapshotLocked(ctx)
	m.metrics.SessionEvent(reason)
	m.metrics.SetActiveSessions(0)
	m.publish(Event{Type: evt, SessionID: id})
	observability.Logf("tracking session ended session=%s reason=%s", id, reason)
}

// persistLocked saves the snapshot. Failures are logged and counted; the
// in-memory session stays authoritative.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil || m.session == nil {
		return
	}
	data, err := tracking.MarshalSnapshot(m.session)
	if err != nil {
		observability.Logf("encode session snapshot session=%s: %v", m.session.ID, err)
		m.metrics.PersistenceError("encode")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, SnapshotKey, data); err != nil {
		observability.Logf("persist session snapshot session=%s: %v", m.session.ID, err)
		m.metrics.PersistenceError("save")
	}
}

func (m *Manager) deleteSnapshotLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, SnapshotKey); err != nil {
		observability.Logf("delete session snapshot: %v", err)
		m.metrics.PersistenceError("delete")
	}
}

func (m *Manager) setTracking(v bool) {
	m.mu.Lock()
	m.tracking = v
	m.mu.Unlock()
}

func (m *Manager) snapshot() *tracking.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
