package stt

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"tabscribe/internal/model"
)

// DefaultMaxBytes is the upstream request ceiling for a single asset.
const DefaultMaxBytes = 25 * 1024 * 1024

var supportedTypes = map[string]string{
	"audio/webm":   ".webm",
	"video/webm":   ".webm",
	"audio/ogg":    ".ogg",
	"audio/opus":   ".ogg",
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/mp4":    ".m4a",
	"audio/m4a":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"video/mp4":    ".mp4",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
}

// MediaType strips parameters (e.g. codecs) from a mime descriptor.
func MediaType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

// Extension returns the file extension the upstream services expect for a
// supported mime type.
func Extension(mimeType string) (string, bool) {
	ext, ok := supportedTypes[MediaType(mimeType)]
	return ext, ok
}

// Validate rejects assets the transcription service would refuse.
func Validate(asset *model.RawMediaAsset, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if asset.Size > maxBytes || int64(len(asset.Data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrAssetTooLarge, asset.Size, maxBytes)
	}
	if _, ok := Extension(asset.MimeType); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, asset.MimeType)
	}
	return nil
}

type limited struct {
	Provider
	maxBytes int64
}

// WithLimits wraps p so that oversize or unsupported assets are rejected
// before the provider is called.
func WithLimits(p Provider, maxBytes int64) Provider {
	return &limited{Provider: p, maxBytes: maxBytes}
}

func (l *limited) Transcribe(ctx context.Context, asset *model.RawMediaAsset) (*Result, error) {
	if err := Validate(asset, l.maxBytes); err != nil {
		log.WithField("provider", l.Name()).WithError(err).Warn("audio rejected before upload")
		return nil, err
	}
	return l.Provider.Transcribe(ctx, asset)
}
