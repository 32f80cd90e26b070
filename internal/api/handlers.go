package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tabscribe/internal/ai"
	"tabscribe/internal/bridge"
	"tabscribe/internal/export"
	"tabscribe/internal/ipc"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/normalize"
	"tabscribe/internal/pipeline"
	"tabscribe/internal/repository"
	"tabscribe/internal/storage"
	"tabscribe/internal/stt"
	"tabscribe/internal/utils"
	"tabscribe/internal/workerpool"
)

var log = logging.L("api")

// Processor runs the transcription pipeline for one asset.
type Processor interface {
	Process(ctx context.Context, asset *model.RawMediaAsset, meta pipeline.Meta) (*pipeline.Result, error)
}

// Submitter queues background work.
type Submitter interface {
	Submit(task workerpool.Task) bool
}

// Capture controls the live capture session.
type Capture interface {
	Start() (string, error)
	Stop() error
	Session() bridge.Session
	LastFailure() (bridge.Failure, bool)
}

// RemoteAttacher connects a remote privileged capture page.
type RemoteAttacher interface {
	Attach(ctx context.Context, conn *websocket.Conn) error
}

// Uploader stores a rendered export and returns its location.
type Uploader interface {
	Upload(ctx context.Context, recordID string, doc *export.Document) (string, error)
}

// Asker answers questions over stored records.
type Asker interface {
	Ask(ctx context.Context, question string, records []model.Record) (string, error)
}

// Deps are the collaborators behind the HTTP surface. Remote and Uploader
// may be nil.
type Deps struct {
	Processor     Processor
	Pool          Submitter
	Capture       Capture
	Remote        RemoteAttacher
	Records       repository.RecordRepository
	Local         *storage.Local
	Normalizer    *normalize.Normalizer
	Uploader      Uploader
	Asker         Asker
	MaxAssetBytes int64
	Version       string

	// CaptureOrigins are the browser origins allowed on the capture socket.
	CaptureOrigins []string
}

// Handler serves the HTTP API.
type Handler struct {
	deps     Deps
	upgrader *websocket.Upgrader
}

// NewHandler creates a handler.
func NewHandler(d Deps) *Handler {
	if d.MaxAssetBytes <= 0 {
		d.MaxAssetBytes = stt.DefaultMaxBytes
	}
	return &Handler{deps: d, upgrader: ipc.NewUpgrader(d.CaptureOrigins)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", h.healthCheck)

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.POST("/recordings", h.uploadRecording)

		v1.POST("/capture/start", h.startCapture)
		v1.POST("/capture/stop", h.stopCapture)
		v1.GET("/capture/status", h.captureStatus)
		v1.GET("/capture/ws", h.captureLink)

		v1.GET("/records", h.listRecords)
		v1.GET("/records/:record_id", h.getRecord)
		v1.GET("/records/:record_id/export", h.exportRecord)
		v1.POST("/records/:record_id/export/upload", h.uploadExport)

		v1.GET("/latest", h.latestRecord)
		v1.GET("/handoff", h.takeHandoff)

		v1.POST("/ai/ask", h.askAnything)
	}
}

// healthCheck returns server health status
func (h *Handler) healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "tabscribe",
		"version": h.deps.Version,
	})
}

// failPipeline maps a pipeline error to an HTTP status and error kind.
func failPipeline(c *gin.Context, err error) {
	details := gin.H{}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		details["kind"] = string(se.Kind)
		details["stage"] = string(se.Stage)
		if se.Status > 0 {
			details["upstream_status"] = se.Status
		}
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, stt.ErrAssetTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, stt.ErrUnsupportedType):
		code = http.StatusUnsupportedMediaType
	case errors.Is(err, stt.ErrNoSpeech):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrAssetConsumed):
		code = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrUnauthorized):
		code = http.StatusBadGateway
	case se != nil:
		code = http.StatusBadGateway
	}
	utils.ErrorWithDetails(c, code, err.Error(), details)
}
