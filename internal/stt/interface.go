package stt

import (
	"context"

	"tabscribe/internal/model"
)

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Transcribe converts one encoded audio asset into a transcript
	Transcribe(ctx context.Context, asset *model.RawMediaAsset) (*Result, error)

	// Name returns the name of the provider (e.g., "openai", "google")
	Name() string
}
