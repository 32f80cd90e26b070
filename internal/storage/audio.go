package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"tabscribe/internal/model"
	"tabscribe/internal/stt"
)

// AssetFromUpload reads an uploaded file into a media asset. Files larger
// than maxBytes are rejected without reading them fully.
func AssetFromUpload(file *multipart.FileHeader, maxBytes int64) (*model.RawMediaAsset, error) {
	if maxBytes <= 0 {
		maxBytes = stt.DefaultMaxBytes
	}
	if file.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", stt.ErrAssetTooLarge, file.Size, maxBytes)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return ReadAsset(src, file.Filename, file.Header.Get("Content-Type"), maxBytes)
}

// ReadAsset reads at most maxBytes from r. The mime type is taken from
// contentType, then the file extension, then the content itself.
func ReadAsset(r io.Reader, filename, contentType string, maxBytes int64) (*model.RawMediaAsset, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", stt.ErrAssetTooLarge, maxBytes)
	}
	return model.NewRawMediaAsset(data, DetectMimeType(filename, contentType, data), filepath.Base(filename)), nil
}

var audioExtensions = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

// DetectMimeType picks the most specific audio type available.
func DetectMimeType(filename, contentType string, data []byte) string {
	if ct := stt.MediaType(contentType); ct != "" && ct != "application/octet-stream" {
		if _, ok := stt.Extension(ct); ok {
			return ct
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if mt, ok := audioExtensions[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return stt.MediaType(mt)
	}
	if len(data) > 0 {
		return stt.MediaType(http.DetectContentType(data))
	}
	return "application/octet-stream"
}
