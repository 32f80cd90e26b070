package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"tabscribe/internal/ipc"
	"tabscribe/internal/logging"
)

// Host runs the module on the privileged side of the boundary. It consumes
// control messages from the controller and answers with lifecycle events.
type Host struct {
	module *Module
	events *ipc.Channel

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sessionID string
}

// NewHost wires module to control (inbound, from the controller) and events
// (outbound, towards the controller).
func NewHost(module *Module, control, events *ipc.Channel) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		module: module,
		events: events,
		ctx:    ctx,
		cancel: cancel,
	}
	ipc.Handle(control, h.onStart)
	ipc.Handle(control, h.onStop)
	module.OnEnded(h.onEnded)
	return h
}

// Close abandons any pending permission request and releases an active
// handle without emitting an asset.
func (h *Host) Close() {
	h.cancel()
	if _, err := h.module.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		log.WithError(err).Debug("release on close")
	}
}

func (h *Host) onStart(msg ipc.StartCapture) {
	h.mu.Lock()
	if h.sessionID != "" {
		h.mu.Unlock()
		h.emit(ipc.Error{SessionID: msg.SessionID, Kind: string(KindDeviceUnavailable), Reason: ErrAlreadyRecording.Error()})
		return
	}
	h.sessionID = msg.SessionID
	h.mu.Unlock()

	// Start may wait on a permission prompt; keep the dispatcher free.
	go func() {
		sessLog := logging.WithSession(log, msg.SessionID)
		if err := h.module.Start(h.ctx); err != nil {
			h.clearSession(msg.SessionID)
			ce := Classify(err)
			sessLog.WithError(err).Warn("capture could not start")
			h.emit(ipc.Error{SessionID: msg.SessionID, Kind: string(ce.Kind), Reason: ce.Error()})
			return
		}
		h.emit(ipc.Ready{SessionID: msg.SessionID})
		h.emit(ipc.Started{SessionID: msg.SessionID, StartedAt: time.Now()})
	}()
}

func (h *Host) onStop(msg ipc.StopCapture) {
	h.mu.Lock()
	active := h.sessionID
	h.mu.Unlock()
	if active == "" || active != msg.SessionID {
		log.WithField(logging.KeySessionID, msg.SessionID).Debug("stop for inactive session ignored")
		return
	}
	go h.finish(msg.SessionID, false)
}

func (h *Host) onEnded() {
	h.mu.Lock()
	active := h.sessionID
	h.mu.Unlock()
	if active == "" {
		return
	}
	h.finish(active, true)
}

// finish turns the active recording into a Completed event. When the stream
// ended on its own the controller is told first, so it can move to Stopping.
func (h *Host) finish(sessionID string, external bool) {
	if external {
		h.emit(ipc.Error{SessionID: sessionID, Kind: "TrackEnded", Reason: "capture stream ended", Finalizing: true})
	}

	asset, err := h.module.Stop()
	if errors.Is(err, ErrNotRecording) {
		// A concurrent stop already produced the asset.
		return
	}
	h.clearSession(sessionID)
	if err != nil {
		ce := Classify(err)
		h.emit(ipc.Error{SessionID: sessionID, Kind: string(ce.Kind), Reason: ce.Error()})
		return
	}
	h.emit(ipc.Completed{SessionID: sessionID, Asset: asset})
}

func (h *Host) clearSession(sessionID string) {
	h.mu.Lock()
	if h.sessionID == sessionID {
		h.sessionID = ""
	}
	h.mu.Unlock()
}

func (h *Host) emit(msg ipc.Message) {
	if err := ipc.Post(h.events, ipc.SourceCapture, msg); err != nil {
		log.WithError(err).WithField("action", msg.Action()).Warn("event not delivered")
	}
}
