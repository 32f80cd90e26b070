package model

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAssetConsumed is returned when an asset is handed to a second consumer.
var ErrAssetConsumed = errors.New("media asset already consumed")

// RawMediaAsset is one encoded audio recording. It is produced once when a
// capture stops (or an upload arrives) and consumed exactly once.
type RawMediaAsset struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Filename string `json:"filename,omitempty"`

	claimed     atomic.Bool
	releaseOnce sync.Once
}

// NewRawMediaAsset wraps encoded bytes.
func NewRawMediaAsset(data []byte, mimeType, filename string) *RawMediaAsset {
	return &RawMediaAsset{
		Data:     data,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Filename: filename,
	}
}

// Claim marks the asset as taken by a consumer. Only the first call succeeds.
func (a *RawMediaAsset) Claim() error {
	if !a.claimed.CompareAndSwap(false, true) {
		return ErrAssetConsumed
	}
	return nil
}

// Release drops the encoded bytes. Safe to call more than once.
func (a *RawMediaAsset) Release() {
	a.releaseOnce.Do(func() {
		a.Data = nil
	})
}
