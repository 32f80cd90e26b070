package model

import (
	"time"

	"github.com/google/uuid"
)

// Source values for Record.Source.
const (
	SourceCapture = "capture"
	SourceUpload  = "upload"
)

// Record is a completed, persisted session: transcript plus analysis.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Source     string         `json:"source"`
	MimeType   string         `json:"mimeType,omitempty"`
	SizeBytes  int64          `json:"sizeBytes,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Transcript Transcript     `json:"transcript"`
	Analysis   AnalysisRecord `json:"analysis"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// NormalizedExportRecord is an analysis plus transcript in which every text
// field is printable ASCII. Only the normalizer produces it.
type NormalizedExportRecord struct {
	RecordID   string         `json:"recordId,omitempty" yaml:"recordId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt" yaml:"createdAt"`
	Language   string         `json:"language" yaml:"language"`
	Translated bool           `json:"translated" yaml:"translated"`
	Analysis   AnalysisRecord `json:"analysis" yaml:"analysis"`
	Transcript Transcript     `json:"transcript" yaml:"transcript"`
}
