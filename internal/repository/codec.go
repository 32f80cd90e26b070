package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

// Row is the stored form of a record. Analysis is the opaque blob; the
// three duplicated columns stay independently filterable.
type Row struct {
	ID           uuid.UUID
	Source       string
	MimeType     string
	SizeBytes    int64
	Provider     string
	Language     string
	Duration     float64
	Transcript   []byte
	Analysis     []byte
	Participants []byte
	ActionItems  []byte
	Decisions    []byte
	Metadata     []byte
	CreatedAt    time.Time
}

// EncodeRecord serializes rec for storage.
func EncodeRecord(rec *model.Record) (Row, error) {
	analysis := rec.Analysis.Clone()
	analysis.Fill()

	blob, err := model.MarshalAnalysis(analysis)
	if err != nil {
		return Row{}, err
	}

	transcript := rec.Transcript
	if transcript.Segments == nil {
		transcript.Segments = []model.TranscriptSegment{}
	}

	row := Row{
		ID:        rec.ID,
		Source:    rec.Source,
		MimeType:  rec.MimeType,
		SizeBytes: rec.SizeBytes,
		Provider:  rec.Provider,
		Language:  rec.Transcript.Language,
		Duration:  rec.Transcript.Duration,
		Analysis:  blob,
		CreatedAt: rec.CreatedAt,
	}
	fields := []struct {
		dst *[]byte
		v   any
	}{
		{&row.Transcript, transcript},
		{&row.Participants, analysis.Participants},
		{&row.ActionItems, analysis.ActionItems},
		{&row.Decisions, analysis.Decisions},
		{&row.Metadata, metadataOrEmpty(rec.Metadata)},
	}
	for _, f := range fields {
		if *f.dst, err = json.Marshal(f.v); err != nil {
			return Row{}, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}
	return row, nil
}

// DecodeRecord rebuilds a record from storage. It never fails: unreadable
// columns decode to empty values so that old rows stay readable.
func DecodeRecord(row Row) model.Record {
	dup := Duplicated{
		Participants: model.DecodeStrings(row.Participants),
		ActionItems:  model.DecodeActionItems(row.ActionItems),
		Decisions:    model.DecodeStrings(row.Decisions),
	}

	shape := probeShape(row.Analysis)
	if _, legacy := shape.(LegacyShape); legacy {
		logging.WithRecord(log, row.ID.String()).Debug("reading legacy analysis shape")
	}

	rec := model.Record{
		ID:         row.ID,
		Source:     row.Source,
		MimeType:   row.MimeType,
		SizeBytes:  row.SizeBytes,
		Provider:   row.Provider,
		Transcript: decodeTranscript(row.Transcript),
		Analysis:   Reconcile(shape, dup),
		Metadata:   map[string]any{},
		CreatedAt:  row.CreatedAt,
	}
	if rec.Transcript.Language == "" {
		rec.Transcript.Language = row.Language
	}
	if rec.Transcript.Duration == 0 {
		rec.Transcript.Duration = row.Duration
	}
	if len(row.Metadata) > 0 {
		var md map[string]any
		if json.Unmarshal(row.Metadata, &md) == nil && md != nil {
			rec.Metadata = md
		}
	}
	return rec
}

func decodeTranscript(raw []byte) model.Transcript {
	t := model.Transcript{Segments: []model.TranscriptSegment{}}
	if len(raw) == 0 {
		return t
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		// Old rows stored the transcript as plain text.
		var s string
		if json.Unmarshal(raw, &s) == nil {
			t.Text = s
		} else {
			t.Text = string(raw)
		}
		return t
	}
	_ = json.Unmarshal(fields["text"], &t.Text)
	_ = json.Unmarshal(fields["duration"], &t.Duration)
	_ = json.Unmarshal(fields["language"], &t.Language)

	var segs []json.RawMessage
	if json.Unmarshal(fields["segments"], &segs) == nil {
		for _, s := range segs {
			var seg model.TranscriptSegment
			if json.Unmarshal(s, &seg) == nil {
				t.Segments = append(t.Segments, seg)
			}
		}
	}
	return t
}

func metadataOrEmpty(md map[string]any) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	return md
}
