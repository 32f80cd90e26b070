package ipc

import (
	"encoding/json"
	"time"

	"tabscribe/internal/model"
)

// Source identifies which side of the privilege boundary sent an envelope.
const (
	SourceController = "controller"
	SourceCapture    = "capture"
)

// Action names carried in Envelope.Action.
const (
	ActionStartCapture = "start-capture"
	ActionStopCapture  = "stop-capture"

	ActionReady     = "capture-ready"
	ActionStarted   = "capture-started"
	ActionCompleted = "capture-completed"
	ActionError     = "capture-error"
)

// Envelope is the untyped wire format shared by both sides of the boundary.
type Envelope struct {
	Action string          `json:"action"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Message is implemented by every typed payload. The action name ties a
// payload type to its envelope; handlers are registered per type.
type Message interface {
	Action() string
}

// StartCapture asks the privileged side to acquire a capture handle.
type StartCapture struct {
	SessionID string `json:"sessionId"`
}

// StopCapture asks the privileged side to finalize the recording.
type StopCapture struct {
	SessionID string `json:"sessionId"`
}

// Ready reports that the capture handle was granted.
type Ready struct {
	SessionID string `json:"sessionId"`
}

// Started reports that the recorder is producing chunks.
type Started struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

// Completed carries the single encoded asset of a session.
type Completed struct {
	SessionID string               `json:"sessionId"`
	Asset     *model.RawMediaAsset `json:"asset"`
}

// Error reports a capture failure. Finalizing is set when the recording
// ended unexpectedly but an asset is still being produced.
type Error struct {
	SessionID  string `json:"sessionId"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Finalizing bool   `json:"finalizing,omitempty"`
}

func (StartCapture) Action() string { return ActionStartCapture }
func (StopCapture) Action() string  { return ActionStopCapture }
func (Ready) Action() string        { return ActionReady }
func (Started) Action() string      { return ActionStarted }
func (Completed) Action() string    { return ActionCompleted }
func (Error) Action() string        { return ActionError }
