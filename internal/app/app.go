// Package app wires configuration, services and the capture boundary into
// a runnable server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tabscribe/internal/ai"
	"tabscribe/internal/api"
	"tabscribe/internal/bridge"
	"tabscribe/internal/capture"
	"tabscribe/internal/config"
	"tabscribe/internal/db"
	"tabscribe/internal/export"
	"tabscribe/internal/ipc"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/normalize"
	"tabscribe/internal/pipeline"
	"tabscribe/internal/repository"
	"tabscribe/internal/storage"
	"tabscribe/internal/stt"
	"tabscribe/internal/workerpool"
)

var log = logging.L("app")

// ErrRemoteAttached is returned when a second capture page tries to connect.
var ErrRemoteAttached = errors.New("a capture page is already connected")

// ErrNoCapturePage is returned by Start in remote mode while no capture page
// is connected.
var ErrNoCapturePage = errors.New("no capture page connected")

// Version is set at build time.
var Version = "dev"

// App owns every long-lived component.
type App struct {
	cfg *config.Config
	db  *sql.DB

	Records    repository.RecordRepository
	Local      *storage.Local
	Pool       *workerpool.Pool
	Pipeline   *pipeline.Orchestrator
	Analyst    *ai.Client
	Normalizer *normalize.Normalizer
	Uploader   *export.S3Uploader
	Bridge     *bridge.Bridge

	control *ipc.Channel
	events  *ipc.Channel
	host    *capture.Host
	remote  atomic.Bool

	mu          sync.Mutex
	lastFailure *bridge.Failure
}

// New builds the application. A database that cannot be reached is logged
// and replaced by the in-memory repository.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	transcriber, err := stt.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create STT provider: %w", err)
	}

	local, err := storage.NewLocal(cfg.LocalStoreDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		Local:   local,
		Analyst: ai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.AnalysisModel),
	}
	a.Records = a.openRepository(ctx)

	if cfg.ExportS3Bucket != "" {
		a.Uploader, err = export.NewS3Uploader(ctx, export.S3Options{
			Bucket:          cfg.ExportS3Bucket,
			Region:          cfg.ExportS3Region,
			AccessKeyID:     cfg.ExportS3AccessKey,
			SecretAccessKey: cfg.ExportS3SecretKey,
			SessionToken:    cfg.ExportS3Token,
		})
		if err != nil {
			a.closeDB()
			return nil, err
		}
		log.WithField("bucket", cfg.ExportS3Bucket).Info("export upload enabled")
	}

	a.Pipeline = pipeline.New(transcriber, a.Analyst, a.Records)
	a.Normalizer = normalize.New(a.Analyst, cfg.TargetLanguage, cfg.ASCIIPlaceholder)
	a.Pool = workerpool.New(cfg.Workers, cfg.QueueSize)

	a.control = ipc.NewChannel("control", ipc.SourceController, ipc.DefaultQueueSize)
	a.events = ipc.NewChannel("events", ipc.SourceCapture, ipc.DefaultQueueSize)
	a.Bridge = bridge.New(a.control, a.events, bridge.Handlers{
		OnAsset:   a.onAsset,
		OnFailure: a.onFailure,
		OnChange: func(s bridge.Session) {
			logging.WithSession(log, s.ID).WithField("state", s.StateName).Debug("capture state changed")
		},
	})

	if cfg.CaptureMode == "local" {
		src := capture.NewFFmpegSource(cfg.FFmpegPath, cfg.CaptureDevice)
		a.host = capture.NewHost(capture.NewModule(src), a.control, a.events)
		log.WithField("device", cfg.CaptureDevice).Info("in-process capture enabled")
	} else {
		log.Info("waiting for a remote capture page on /api/v1/capture/ws")
	}
	return a, nil
}

func (a *App) openRepository(ctx context.Context) repository.RecordRepository {
	if a.cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, records are kept in memory")
		return repository.NewMemoryRepository()
	}
	conn, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err == nil {
		err = repository.Migrate(ctx, conn)
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		log.WithError(err).Warn("failed to initialize database, continuing with in-memory records")
		return repository.NewMemoryRepository()
	}
	a.db = conn
	return repository.NewPostgresRepository(conn)
}

// Process runs the pipeline for one asset and publishes the result to the
// local store.
func (a *App) Process(ctx context.Context, asset *model.RawMediaAsset, meta pipeline.Meta) (*pipeline.Result, error) {
	res, err := a.Pipeline.Run(ctx, asset, meta)
	if err != nil {
		return nil, err
	}
	a.publish(res.Record)
	return res, nil
}

func (a *App) publish(rec model.Record) {
	recLog := logging.WithRecord(log, rec.ID.String())
	if err := a.Local.SaveLatest(rec); err != nil {
		recLog.WithError(err).Warn("failed to save latest record")
	}
	if err := a.Local.PutHandoff(rec); err != nil {
		recLog.WithError(err).Warn("failed to store handoff")
	}
}

// onAsset runs on the event dispatcher, so processing goes to the pool.
func (a *App) onAsset(sessionID string, asset *model.RawMediaAsset) {
	meta := pipeline.Meta{Source: model.SourceCapture, SessionID: sessionID}
	ok := a.Pool.Submit(func(ctx context.Context) {
		if _, err := a.Process(ctx, asset, meta); err != nil {
			logging.WithSession(log, sessionID).WithError(err).Error("processing captured session failed")
		}
	})
	if !ok {
		asset.Release()
		logging.WithSession(log, sessionID).Error("processing queue full, captured session dropped")
	}
}

func (a *App) onFailure(f bridge.Failure) {
	a.mu.Lock()
	a.lastFailure = &f
	a.mu.Unlock()
}

// Start opens a capture session.
func (a *App) Start() (string, error) {
	if a.host == nil && !a.remote.Load() {
		return "", ErrNoCapturePage
	}
	return a.Bridge.Start()
}

// Stop ends the capture session.
func (a *App) Stop() error { return a.Bridge.Stop() }

// Session returns the capture session snapshot.
func (a *App) Session() bridge.Session { return a.Bridge.Session() }

// LastFailure returns the most recent capture failure.
func (a *App) LastFailure() (bridge.Failure, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastFailure == nil {
		return bridge.Failure{}, false
	}
	return *a.lastFailure, true
}

// Attach relays the boundary channels over conn until it closes. Only one
// capture page may be attached at a time.
func (a *App) Attach(ctx context.Context, conn *websocket.Conn) error {
	if !a.remote.CompareAndSwap(false, true) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrRemoteAttached.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return ErrRemoteAttached
	}
	defer a.remote.Store(false)

	err := ipc.NewLink(conn, a.events, a.control).Run(ctx)
	a.pageGone()
	return err
}

// pageGone fails the active session once its capture page is gone. The
// error is queued behind anything the page delivered before closing, so a
// Completed that made it through still wins.
func (a *App) pageGone() {
	s := a.Bridge.Session()
	if s.ID == "" {
		return
	}
	err := ipc.Post(a.events, ipc.SourceCapture, ipc.Error{
		SessionID: s.ID,
		Kind:      string(capture.KindDeviceUnavailable),
		Reason:    "capture page disconnected",
	})
	if err != nil {
		logging.WithSession(log, s.ID).WithError(err).Error("failed to end session of disconnected capture page")
	}
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	d := api.Deps{
		Processor:     a,
		Pool:          a.Pool,
		Capture:       a,
		Records:       a.Records,
		Local:         a.Local,
		Normalizer:    a.Normalizer,
		Asker:         a.Analyst,
		MaxAssetBytes: a.cfg.MaxAssetBytes,
		Version:       Version,

		CaptureOrigins: a.cfg.CaptureOrigins,
	}
	if a.host == nil {
		d.Remote = a
	}
	if a.Uploader != nil {
		d.Uploader = a.Uploader
	}
	return api.NewRouter(api.NewHandler(d))
}

// Close stops capture, drains queued work and closes the database.
func (a *App) Close(ctx context.Context) {
	if a.host != nil {
		a.host.Close()
	}
	a.Pool.Shutdown(ctx)
	a.control.Close()
	a.events.Close()
	a.closeDB()
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("closing database")
	}
	a.db = nil
}
