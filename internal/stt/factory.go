package stt

import (
	"context"
	"fmt"

	"tabscribe/internal/config"
)

// NewProvider creates the configured STT provider, wrapped with the size and
// type checks that run before any upload.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.STTProvider {
	case "", "openai":
		p = NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel)
		log.WithField("model", cfg.TranscriptionModel).Info("using OpenAI transcription")
	case "google":
		if !IsGoogleAPIKey(cfg.GoogleKey) && cfg.GoogleProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_STT_PROJECT_ID is required when using a service account")
		}
		p, err = NewGoogleProvider(ctx, cfg.GoogleProjectID, cfg.GoogleKey, cfg.GoogleLanguage)
		if err != nil {
			return nil, fmt.Errorf("google STT: %w", err)
		}
		log.WithField("project", cfg.GoogleProjectID).Info("using Google transcription")
	default:
		return nil, fmt.Errorf("unsupported STT provider: %s. Supported: openai, google", cfg.STTProvider)
	}
	return WithLimits(p, cfg.MaxAssetBytes), nil
}
