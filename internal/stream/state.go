package stream

import (
	"sync"

	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/pkg/utils"
)

// Phase is the connection lifecycle phase.
type Phase string

const (
	PhaseDisconnected Phase = "Disconnected"
	PhaseConnecting   Phase = "Connecting"
	PhaseConnected    Phase = "Connected"
	PhaseBackoff      Phase = "Backoff"
)

// Diagnostics is the read-only projection of connection health.
type Diagnostics struct {
	ConnectionState   string `json:"connection_state"`
	ShouldRun         bool   `json:"should_run"`
	LastConnectedAt   *int64 `json:"last_connected_at,omitempty"`
	LastStreamEventAt *int64 `json:"last_stream_event_at,omitempty"`
	LastMessageAt     *int64 `json:"last_message_at,omitempty"`
	LastMessageID     *int64 `json:"last_message_id,omitempty"`
	StaleForSeconds   *int64 `json:"stale_for_seconds,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	BackoffSeconds    uint64 `json:"backoff_seconds"`
	ReconnectAttempts uint64 `json:"reconnect_attempts"`
}

// State is the shared session record mutated by the supervisor and session
// and read by the diagnostics projection. The epoch counter distinguishes
// successive session tasks: only the task whose captured epoch still
// matches may clear terminal state on exit, so a stale draining task never
// clobbers a newer one.
type State struct {
	bus *event.Bus

	mu                sync.Mutex
	phase             Phase
	epoch             uint64
	stop              chan struct{}
	shouldRun         bool
	lastConnectedAt   int64
	lastEventAt       int64
	lastMessageAt     int64
	lastMessageID     int64
	lastError         string
	backoffSeconds    uint64
	reconnectAttempts uint64
}

// NewState creates session state in the Disconnected phase.
func NewState(bus *event.Bus) *State {
	return &State{bus: bus, phase: PhaseDisconnected}
}

// TryStart registers a new session task. It returns false when a task is
// already active (the stop handle is present); otherwise it installs a
// fresh stop channel, bumps the epoch and resets transient failure state.
func (s *State) TryStart() (stop chan struct{}, epoch uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil, 0, false
	}

	s.stop = make(chan struct{})
	s.epoch++
	s.shouldRun = true
	s.lastError = ""
	s.backoffSeconds = 0
	s.reconnectAttempts = 0
	return s.stop, s.epoch, true
}

// Stop signals the running session task, if any, and clears operator
// intent. Safe to call when nothing is running.
func (s *State) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.shouldRun = false
	s.backoffSeconds = 0
	s.mu.Unlock()

	s.SetPhase(PhaseDisconnected)
}

// FinishTask is the exit cleanup of a session task. It only clears state
// when the task's captured epoch is still current; a superseded task must
// not reset fields owned by its replacement.
func (s *State) FinishTask(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	s.stop = nil
	s.shouldRun = false
	s.backoffSeconds = 0
}

// SetPhase updates the connection phase and notifies observers.
func (s *State) SetPhase(phase Phase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()

	s.bus.Emit(event.ConnectionState, string(phase))
	s.EmitDiagnostics()
}

// Phase returns the current connection phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ShouldRun reports the operator intent.
func (s *State) ShouldRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldRun
}

// MarkConnected records a successful connection.
func (s *State) MarkConnected(now int64) {
	s.mu.Lock()
	s.lastConnectedAt = now
	s.lastEventAt = now
	s.lastError = ""
	s.backoffSeconds = 0
	s.mu.Unlock()
}

// MarkActivity records stream activity of any kind.
func (s *State) MarkActivity(now int64) {
	s.mu.Lock()
	s.lastEventAt = now
	s.mu.Unlock()

	s.EmitDiagnostics()
}

// MarkMessage records a received message.
func (s *State) MarkMessage(now, id int64) {
	s.mu.Lock()
	s.lastMessageAt = now
	s.lastMessageID = id
	s.lastEventAt = now
	s.mu.Unlock()
}

// RecordFailure stores the last session error and current backoff, and
// counts the reconnect attempt.
func (s *State) RecordFailure(errMsg string, backoffSeconds uint64) {
	s.mu.Lock()
	s.lastError = errMsg
	s.backoffSeconds = backoffSeconds
	s.reconnectAttempts++
	s.mu.Unlock()
}

// Diagnostics returns a point-in-time health projection. Safe to call at
// any time, including during an active session.
func (s *State) Diagnostics() Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Diagnostics{
		ConnectionState:   string(s.phase),
		ShouldRun:         s.shouldRun,
		LastError:         s.lastError,
		BackoffSeconds:    s.backoffSeconds,
		ReconnectAttempts: s.reconnectAttempts,
	}
	if s.lastConnectedAt > 0 {
		v := s.lastConnectedAt
		d.LastConnectedAt = &v
	}
	if s.lastEventAt > 0 {
		v := s.lastEventAt
		d.LastStreamEventAt = &v
		stale := utils.UnixNow() - s.lastEventAt
		d.StaleForSeconds = &stale
	}
	if s.lastMessageAt > 0 {
		v := s.lastMessageAt
		d.LastMessageAt = &v
		id := s.lastMessageID
		d.LastMessageID = &id
	}
	return d
}

// EmitDiagnostics publishes the current projection to observers.
func (s *State) EmitDiagnostics() {
	s.bus.Emit(event.RuntimeDiagnostics, s.Diagnostics())
}
