package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tabscribe/internal/ai"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/stt"
)

var log = logging.L("pipeline")

// Analyzer turns transcript text into an analysis record.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (model.AnalysisRecord, error)
}

// Store persists completed records.
type Store interface {
	Create(ctx context.Context, rec *model.Record) error
}

// Meta describes where an asset came from. It is stored with the record.
type Meta struct {
	Source    string
	SessionID string
	Extra     map[string]any
}

// Result is the outcome of a run. Record is complete even when Persisted is
// false; RecordID is empty in that case.
type Result struct {
	RecordID  string
	Persisted bool
	Record    model.Record
}

// Orchestrator runs transcribe, analyze and persist in sequence.
type Orchestrator struct {
	transcriber stt.Provider
	analyzer    Analyzer
	store       Store
	now         func() time.Time
}

// New creates an orchestrator. store may be nil, in which case results are
// never persisted.
func New(transcriber stt.Provider, analyzer Analyzer, store Store) *Orchestrator {
	return &Orchestrator{
		transcriber: transcriber,
		analyzer:    analyzer,
		store:       store,
		now:         time.Now,
	}
}

// Run processes one asset. The asset is claimed for the duration of the run
// and released afterwards; a second Run on it returns model.ErrAssetConsumed.
//
// ctx is checked before the transcribe and analyze stages start. A stage
// that has started always runs to completion, and once an analysis exists
// it is always handed to the store.
func (o *Orchestrator) Run(ctx context.Context, asset *model.RawMediaAsset, meta Meta) (*Result, error) {
	if err := asset.Claim(); err != nil {
		return nil, err
	}
	defer asset.Release()

	runLog := log.WithField("source", meta.Source).WithField("bytes", asset.Size)
	if meta.SessionID != "" {
		runLog = logging.WithSession(runLog, meta.SessionID)
	}
	stageCtx := context.WithoutCancel(ctx)
	started := o.now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled before %s: %w", StageTranscribe, err)
	}
	t0 := o.now()
	tr, err := o.transcriber.Transcribe(stageCtx, asset)
	if err != nil {
		se := &StageError{Stage: StageTranscribe, Kind: TranscriptionFailed, Status: stt.StatusOf(err), Err: err}
		stageLog(runLog, StageTranscribe, t0, o.now()).WithError(err).Error("transcription failed")
		return nil, se
	}
	stageLog(runLog, StageTranscribe, t0, o.now()).
		WithField("segments", len(tr.Transcript.Segments)).
		WithField("duration", tr.Transcript.Duration).
		Info("transcription complete")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled before %s: %w", StageAnalyze, err)
	}
	t0 = o.now()
	analysis, err := o.analyzer.Analyze(stageCtx, tr.Transcript.Text)
	if err != nil {
		se := &StageError{Stage: StageAnalyze, Kind: AnalysisFailed, Status: ai.StatusOf(err), Err: err}
		stageLog(runLog, StageAnalyze, t0, o.now()).WithError(err).Error("analysis failed")
		return nil, se
	}
	analysis.Fill()
	stageLog(runLog, StageAnalyze, t0, o.now()).Info("analysis complete")

	transcript := tr.Transcript
	if transcript.Segments == nil {
		transcript.Segments = []model.TranscriptSegment{}
	}
	rec := model.Record{
		ID:         uuid.New(),
		Source:     meta.Source,
		MimeType:   asset.MimeType,
		SizeBytes:  asset.Size,
		Provider:   tr.Provider,
		Transcript: transcript,
		Analysis:   analysis,
		Metadata:   recordMetadata(meta, asset),
		CreatedAt:  o.now().UTC(),
	}
	res := &Result{Record: rec}

	if o.store == nil {
		runLog.Debug("no store configured, result not persisted")
		return res, nil
	}
	t0 = o.now()
	if err := o.store.Create(stageCtx, &rec); err != nil {
		se := &StageError{Stage: StagePersist, Kind: PersistenceFailed, Err: err}
		stageLog(logging.WithRecord(runLog, rec.ID.String()), StagePersist, t0, o.now()).
			WithError(se).Error("persisting result failed, returning in-memory result")
		return res, nil
	}
	res.RecordID = rec.ID.String()
	res.Persisted = true

	logging.WithRecord(runLog, res.RecordID).
		WithField(logging.KeyDurationMs, o.now().Sub(started).Milliseconds()).
		Info("pipeline complete")
	return res, nil
}

func stageLog(e *logrus.Entry, stage Stage, from, to time.Time) *logrus.Entry {
	return e.WithField(logging.KeyStage, string(stage)).WithField(logging.KeyDurationMs, to.Sub(from).Milliseconds())
}

func recordMetadata(meta Meta, asset *model.RawMediaAsset) map[string]any {
	md := make(map[string]any, len(meta.Extra)+2)
	for k, v := range meta.Extra {
		md[k] = v
	}
	if meta.SessionID != "" {
		md["sessionId"] = meta.SessionID
	}
	if asset.Filename != "" {
		md["filename"] = asset.Filename
	}
	return md
}
