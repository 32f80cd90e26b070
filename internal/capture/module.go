package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("capture")

// handle owns one granted stream from acquisition to release.
type handle struct {
	stream    Stream
	startedAt time.Time

	buf       bytes.Buffer
	collected chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

func acquire(ctx context.Context, src Source) (*handle, error) {
	stream, err := src.Acquire(ctx)
	if err != nil {
		return nil, Classify(err)
	}

	audio := 0
	for _, tr := range stream.Tracks() {
		switch tr.Kind() {
		case TrackAudio:
			audio++
		default:
			// Video is never needed; drop it as soon as it is granted.
			tr.Stop()
		}
	}
	if audio == 0 {
		_ = stream.Close()
		return nil, &Error{Kind: KindDeviceUnavailable, Err: errors.New("stream has no audio track")}
	}

	h := &handle{
		stream:    stream,
		startedAt: time.Now(),
		collected: make(chan struct{}),
	}
	go h.collect()
	return h, nil
}

func (h *handle) collect() {
	defer close(h.collected)
	for chunk := range h.stream.Chunks() {
		h.buf.Write(chunk)
	}
}

// release stops every track and closes the stream. Only the first call has
// any effect.
func (h *handle) release() error {
	h.releaseOnce.Do(func() {
		for _, tr := range h.stream.Tracks() {
			if tr.Kind() == TrackAudio {
				tr.Stop()
			}
		}
		h.releaseErr = h.stream.Close()
	})
	return h.releaseErr
}

// finalize releases the handle and assembles the buffered chunks.
func (h *handle) finalize() (*model.RawMediaAsset, error) {
	if err := h.release(); err != nil {
		log.WithError(err).Warn("closing capture stream")
	}
	<-h.collected

	if h.buf.Len() == 0 {
		return nil, &Error{Kind: KindDeviceUnavailable, Err: errors.New("no audio data captured")}
	}

	data := make([]byte, h.buf.Len())
	copy(data, h.buf.Bytes())
	name := fmt.Sprintf("session-%s%s", h.startedAt.UTC().Format("20060102-150405"), extensionFor(h.stream.MimeType()))
	return model.NewRawMediaAsset(data, h.stream.MimeType(), name), nil
}

// Module is the privileged capture endpoint. It holds at most one capture
// handle and turns it into exactly one encoded asset.
type Module struct {
	src Source

	mu       sync.Mutex
	h        *handle
	starting bool
	onEnded  func()
}

// NewModule creates a module backed by src.
func NewModule(src Source) *Module {
	return &Module{src: src}
}

// OnEnded registers fn to run when the active stream ends without Stop
// being called (for example the shared tab was closed).
func (m *Module) OnEnded(fn func()) {
	m.mu.Lock()
	m.onEnded = fn
	m.mu.Unlock()
}

// Recording reports whether a handle is currently held.
func (m *Module) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h != nil
}

// Start requests an audio-only capture handle.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.h != nil || m.starting {
		m.mu.Unlock()
		return ErrAlreadyRecording
	}
	m.starting = true
	m.mu.Unlock()

	h, err := acquire(ctx, m.src)

	m.mu.Lock()
	m.starting = false
	if err == nil {
		m.h = h
	}
	m.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("capture start failed")
		return err
	}

	go m.watch(h)
	log.WithField("mime", h.stream.MimeType()).Info("capture started")
	return nil
}

// Stop finalizes the active recording into one asset and releases the
// handle. Calling Stop without an active handle returns ErrNotRecording.
func (m *Module) Stop() (*model.RawMediaAsset, error) {
	m.mu.Lock()
	h := m.h
	m.h = nil
	m.mu.Unlock()

	if h == nil {
		return nil, ErrNotRecording
	}

	asset, err := h.finalize()
	if err != nil {
		return nil, err
	}
	log.WithField("bytes", asset.Size).WithField(logging.KeyDurationMs, time.Since(h.startedAt).Milliseconds()).Info("capture finalized")
	return asset, nil
}

func (m *Module) watch(h *handle) {
	<-h.stream.Ended()

	m.mu.Lock()
	current := m.h == h
	fn := m.onEnded
	m.mu.Unlock()

	if !current {
		return
	}
	log.Info("capture stream ended externally")
	if fn != nil {
		fn()
	}
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return ".wav"
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	default:
		return ".webm"
	}
}
