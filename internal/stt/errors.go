package stt

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetTooLarge is returned before any upstream call when the asset
	// exceeds the size ceiling.
	ErrAssetTooLarge = errors.New("stt: audio exceeds size limit")
	// ErrUnsupportedType is returned before any upstream call when the
	// asset's encoding is not accepted.
	ErrUnsupportedType = errors.New("stt: unsupported audio type")
	// ErrNoSpeech is returned when the provider recognised nothing.
	ErrNoSpeech = errors.New("stt: no speech detected in audio")
)

// UpstreamError is a rejection reported by the transcription service.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s transcription failed with status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s transcription failed: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}
