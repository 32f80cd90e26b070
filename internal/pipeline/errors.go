package pipeline

import "fmt"

// Stage names a pipeline step.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StagePersist    Stage = "persist"
)

// Kind classifies a stage failure.
type Kind string

const (
	TranscriptionFailed Kind = "TranscriptionFailed"
	AnalysisFailed      Kind = "AnalysisFailed"
	PersistenceFailed   Kind = "PersistenceFailed"
)

// StageError reports which stage failed and, when known, the upstream HTTP
// status. Retrying means running the whole pipeline again.
type StageError struct {
	Stage  Stage
	Kind   Kind
	Status int
	Err    error
}

func (e *StageError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s stage failed (status %d): %v", e.Kind, e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s stage failed: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
