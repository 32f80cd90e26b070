package api

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tabscribe/internal/ai"
	"tabscribe/internal/model"
	"tabscribe/internal/pipeline"
	"tabscribe/internal/repository"
	"tabscribe/internal/storage"
	"tabscribe/internal/stt"
	"tabscribe/internal/utils"
)

// uploadFields are tried in order; clients disagree on the field name.
var uploadFields = []string{"audio_file", "audio", "file"}

// uploadRecording runs an uploaded audio file through the pipeline.
// With ?async=true the run is queued and 202 is returned immediately.
func (h *Handler) uploadRecording(c *gin.Context) {
	// Multipart overhead on top of the asset ceiling.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.MaxAssetBytes+1<<20)

	file, err := formFile(c)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			utils.Error(c, http.StatusRequestEntityTooLarge, stt.ErrAssetTooLarge.Error())
			return
		}
		utils.Error(c, http.StatusBadRequest, "audio_file is required. Error: "+err.Error())
		return
	}

	asset, err := storage.AssetFromUpload(file, h.deps.MaxAssetBytes)
	if err != nil {
		if errors.Is(err, stt.ErrAssetTooLarge) {
			utils.Error(c, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		log.WithError(err).Warn("reading upload failed")
		utils.Error(c, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if err := stt.Validate(asset, h.deps.MaxAssetBytes); err != nil {
		asset.Release()
		failPipeline(c, err)
		return
	}

	meta := pipeline.Meta{Source: model.SourceUpload}
	reqLog := log.WithField("filename", asset.Filename).WithField("bytes", asset.Size).WithField("mimeType", asset.MimeType)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		ok := h.deps.Pool.Submit(func(ctx context.Context) {
			if _, err := h.deps.Processor.Process(ctx, asset, meta); err != nil {
				reqLog.WithError(err).Error("queued upload failed")
			}
		})
		if !ok {
			asset.Release()
			utils.Error(c, http.StatusServiceUnavailable, "processing queue is full, try again later")
			return
		}
		reqLog.Info("upload queued")
		utils.Respond(c, http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	reqLog.Info("processing upload")
	res, err := h.deps.Processor.Process(c.Request.Context(), asset, meta)
	if err != nil {
		failPipeline(c, err)
		return
	}
	utils.Success(c, gin.H{
		"record_id": res.RecordID,
		"persisted": res.Persisted,
		"record":    res.Record,
	})
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	var err error
	for _, field := range uploadFields {
		var fh *multipart.FileHeader
		if fh, err = c.FormFile(field); err == nil {
			return fh, nil
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
	}
	return nil, err
}

// AskRequest represents the ask anything request
type AskRequest struct {
	Question    string `json:"question" binding:"required"`
	Participant string `json:"participant"`
	Limit       int    `json:"limit" binding:"omitempty,gte=1,lte=100"`
}

// askAnything answers a question using the most recent records as context.
func (h *Handler) askAnything(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "question is required")
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	records, err := h.deps.Records.List(c.Request.Context(), repository.ListFilter{Participant: req.Participant, Limit: req.Limit})
	if err != nil {
		log.WithError(err).Error("listing records for ask failed")
		utils.Error(c, http.StatusInternalServerError, "failed to load records")
		return
	}

	answer, err := h.deps.Asker.Ask(c.Request.Context(), req.Question, records)
	switch {
	case errors.Is(err, ai.ErrNoRecords):
		utils.Error(c, http.StatusBadRequest, "no analysis data available. Please record or upload a session first")
		return
	case err != nil:
		log.WithError(err).Error("ask failed")
		utils.Error(c, http.StatusBadGateway, "failed to get answer: "+err.Error())
		return
	}

	utils.Success(c, gin.H{
		"question": req.Question,
		"answer":   answer,
		"records":  len(records),
	})
}
