package stt

import "tabscribe/internal/model"

// Result represents the result of a speech-to-text transcription
type Result struct {
	Transcript  model.Transcript
	Confidence  float64 // 0.0-1.0, zero if the provider does not report one
	Provider    string
	RawResponse string // kept for debug logging
}
