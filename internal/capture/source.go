package capture

import "context"

// TrackKind distinguishes audio from video tracks in a granted stream.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one media track of a granted stream.
type Track interface {
	Kind() TrackKind
	Stop()
}

// Stream is a granted, recording media stream.
type Stream interface {
	Tracks() []Track
	// Chunks yields encoded data and is closed after the final chunk has
	// been flushed, which happens once the stream is closed or ends.
	Chunks() <-chan []byte
	// Ended is closed when the stream stops producing, for any reason.
	Ended() <-chan struct{}
	MimeType() string
	// Close stops recording and releases the underlying devices.
	Close() error
}

// Source grants capture streams, typically after asking the user.
type Source interface {
	Acquire(ctx context.Context) (Stream, error)
}
