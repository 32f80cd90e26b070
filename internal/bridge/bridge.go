package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabscribe/internal/ipc"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("bridge")

// ErrBusy is returned by Start while a session is already in progress.
var ErrBusy = errors.New("bridge: capture session already active")

// State is the controller-side view of a capture session.
type State int

const (
	Idle State = iota
	AwaitingPermission
	Recording
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPermission:
		return "awaiting_permission"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a snapshot of the current capture session.
type Session struct {
	ID        string    `json:"sessionId,omitempty"`
	State     State     `json:"-"`
	StateName string    `json:"state"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// Failure describes a capture that ended without an asset.
type Failure struct {
	SessionID string
	Kind      string
	Reason    string
}

// Handlers receive the outcomes of a session. They are called from the
// event dispatcher and must not block; long work belongs on a worker pool.
type Handlers struct {
	OnAsset   func(sessionID string, asset *model.RawMediaAsset)
	OnFailure func(Failure)
	OnChange  func(Session)
}

// Bridge drives the capture state machine from the unprivileged side. All
// transitions happen in response to calls or events; nothing is polled.
type Bridge struct {
	control  *ipc.Channel
	handlers Handlers

	mu        sync.Mutex
	state     State
	sessionID string
	startedAt time.Time
}

// New creates a bridge that sends control messages on control and consumes
// lifecycle events from events.
func New(control, events *ipc.Channel, h Handlers) *Bridge {
	b := &Bridge{control: control, handlers: h}
	ipc.Handle(events, b.onReady)
	ipc.Handle(events, b.onStarted)
	ipc.Handle(events, b.onCompleted)
	ipc.Handle(events, b.onError)
	return b
}

// Session returns the current session snapshot.
func (b *Bridge) Session() Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// State returns the current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start opens a new session and asks the privileged side for a capture
// handle. It returns ErrBusy without side effects unless the bridge is Idle.
func (b *Bridge) Start() (string, error) {
	b.mu.Lock()
	if b.state != Idle {
		b.mu.Unlock()
		return "", ErrBusy
	}
	id := uuid.NewString()
	if err := ipc.Post(b.control, ipc.SourceController, ipc.StartCapture{SessionID: id}); err != nil {
		b.mu.Unlock()
		return "", fmt.Errorf("bridge: send start: %w", err)
	}
	b.sessionID = id
	b.startedAt = time.Time{}
	b.state = AwaitingPermission
	snap := b.snapshotLocked()
	b.mu.Unlock()

	logging.WithSession(log, id).Info("capture requested")
	b.changed(snap)
	return id, nil
}

// Stop asks the privileged side to finalize the recording. It is a no-op
// unless the bridge is Recording.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.state != Recording {
		state := b.state
		b.mu.Unlock()
		log.WithField("state", state.String()).Debug("stop ignored")
		return nil
	}
	if err := ipc.Post(b.control, ipc.SourceController, ipc.StopCapture{SessionID: b.sessionID}); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("bridge: send stop: %w", err)
	}
	b.state = Stopping
	snap := b.snapshotLocked()
	b.mu.Unlock()

	logging.WithSession(log, snap.ID).Info("capture stopping")
	b.changed(snap)
	return nil
}

func (b *Bridge) onReady(msg ipc.Ready) {
	b.mu.Lock()
	if !b.currentLocked(msg.SessionID, msg.Action()) {
		b.mu.Unlock()
		return
	}
	switch b.state {
	case AwaitingPermission:
		b.state = Recording
	case Recording:
		// Duplicate Ready.
		b.mu.Unlock()
		return
	default:
		b.dropLocked(msg.Action())
		b.mu.Unlock()
		return
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	logging.WithSession(log, snap.ID).Info("capture granted")
	b.changed(snap)
}

func (b *Bridge) onStarted(msg ipc.Started) {
	b.mu.Lock()
	if !b.currentLocked(msg.SessionID, msg.Action()) {
		b.mu.Unlock()
		return
	}
	switch b.state {
	case AwaitingPermission, Recording:
		// Started implies the handle was granted even if Ready is still queued.
		b.state = Recording
		if b.startedAt.IsZero() {
			b.startedAt = msg.StartedAt
		}
	default:
		b.dropLocked(msg.Action())
		b.mu.Unlock()
		return
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.changed(snap)
}

func (b *Bridge) onCompleted(msg ipc.Completed) {
	b.mu.Lock()
	if !b.currentLocked(msg.SessionID, msg.Action()) || (b.state != Stopping && b.state != Recording) {
		if b.sessionID == msg.SessionID {
			b.dropLocked(msg.Action())
		}
		b.mu.Unlock()
		if msg.Asset != nil {
			msg.Asset.Release()
		}
		return
	}
	id := b.sessionID
	b.resetLocked()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	sessLog := logging.WithSession(log, id)
	if msg.Asset == nil {
		sessLog.Warn("completion without asset")
		b.changed(snap)
		return
	}
	sessLog.WithField("bytes", msg.Asset.Size).Info("capture completed")
	b.changed(snap)
	if b.handlers.OnAsset != nil {
		b.handlers.OnAsset(id, msg.Asset)
	}
}

func (b *Bridge) onError(msg ipc.Error) {
	b.mu.Lock()
	if !b.currentLocked(msg.SessionID, msg.Action()) {
		b.mu.Unlock()
		return
	}

	if msg.Finalizing {
		switch b.state {
		case Recording:
			b.state = Stopping
			snap := b.snapshotLocked()
			b.mu.Unlock()
			logging.WithSession(log, snap.ID).WithField("reason", msg.Reason).Info("capture ended, finalizing")
			b.changed(snap)
		default:
			b.dropLocked(msg.Action())
			b.mu.Unlock()
		}
		return
	}

	switch b.state {
	case AwaitingPermission, Recording, Stopping:
	default:
		b.dropLocked(msg.Action())
		b.mu.Unlock()
		return
	}

	id := b.sessionID
	b.state = Failed
	failed := b.snapshotLocked()
	b.resetLocked()
	idle := b.snapshotLocked()
	b.mu.Unlock()

	logging.WithSession(log, id).WithField("kind", msg.Kind).WithField("reason", msg.Reason).Warn("capture failed")
	b.changed(failed)
	if b.handlers.OnFailure != nil {
		b.handlers.OnFailure(Failure{SessionID: id, Kind: msg.Kind, Reason: msg.Reason})
	}
	b.changed(idle)
}

// currentLocked reports whether an event belongs to the active session.
func (b *Bridge) currentLocked(sessionID, action string) bool {
	if b.sessionID == "" || sessionID != b.sessionID {
		log.WithField(logging.KeySessionID, sessionID).WithField("action", action).Debug("event for inactive session dropped")
		return false
	}
	return true
}

func (b *Bridge) dropLocked(action string) {
	logging.WithSession(log, b.sessionID).WithField("action", action).WithField("state", b.state.String()).Debug("event does not apply to current state, dropped")
}

func (b *Bridge) resetLocked() {
	b.state = Idle
	b.sessionID = ""
	b.startedAt = time.Time{}
}

func (b *Bridge) snapshotLocked() Session {
	return Session{ID: b.sessionID, State: b.state, StateName: b.state.String(), StartedAt: b.startedAt}
}

func (b *Bridge) changed(s Session) {
	if b.handlers.OnChange != nil {
		b.handlers.OnChange(s)
	}
}
