package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("stt")

// OpenAIProvider implements STT using the OpenAI audio transcription API
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. baseURL may be empty for the
// public endpoint.
func NewOpenAIProvider(apiKey, baseURL, modelName string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = openai.Whisper1
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: modelName}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transcribe uploads the asset and requests segment-level timestamps.
func (p *OpenAIProvider) Transcribe(ctx context.Context, asset *model.RawMediaAsset) (*Result, error) {
	startTime := time.Now()

	ext, _ := Extension(asset.MimeType)
	name := asset.Filename
	if name == "" || !strings.Contains(name, ".") {
		name = "audio" + ext
	}
	log.WithField("bytes", asset.Size).WithField("file", name).Debug("calling transcription API")

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: name,
		Reader:   bytes.NewReader(asset.Data),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, p.upstreamError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	segments := make([]model.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, model.TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	duration := resp.Duration
	if duration == 0 && len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	log.WithField("chars", len(text)).
		WithField("segments", len(segments)).
		WithField("language", resp.Language).
		WithField(logging.KeyDurationMs, time.Since(startTime).Milliseconds()).
		Info("transcription successful")

	return &Result{
		Transcript: model.Transcript{
			Text:     text,
			Duration: duration,
			Language: resp.Language,
			Segments: segments,
		},
		Provider: p.Name(),
	}, nil
}

func (p *OpenAIProvider) upstreamError(err error) error {
	ue := &UpstreamError{Provider: p.Name(), Message: err.Error(), Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ue.Status = apiErr.HTTPStatusCode
		ue.Message = apiErr.Message
	case errors.As(err, &reqErr):
		ue.Status = reqErr.HTTPStatusCode
	}
	log.WithField("status", ue.Status).WithError(err).Warn("transcription API error")
	return fmt.Errorf("openai transcription: %w", ue)
}
