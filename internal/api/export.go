package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tabscribe/internal/export"
	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/utils"
)

// exportRecord renders a record as markdown, json or yaml. The analysis is
// normalized to the target language and ASCII first.
func (h *Handler) exportRecord(c *gin.Context) {
	doc, rec, ok := h.render(c)
	if !ok {
		return
	}
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", `attachment; filename="`+rec.ID.String()+doc.Extension+`"`)
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// uploadExport renders a record and stores it in the export bucket.
func (h *Handler) uploadExport(c *gin.Context) {
	if h.deps.Uploader == nil {
		utils.Error(c, http.StatusNotImplemented, export.ErrUploadDisabled.Error())
		return
	}
	doc, rec, ok := h.render(c)
	if !ok {
		return
	}
	location, err := h.deps.Uploader.Upload(c.Request.Context(), rec.ID.String(), doc)
	if err != nil {
		log.WithError(err).Error("export upload failed")
		utils.Error(c, http.StatusBadGateway, "failed to upload export")
		return
	}
	utils.Success(c, gin.H{
		"record_id": rec.ID.String(),
		"location":  location,
	})
}

func (h *Handler) render(c *gin.Context) (*export.Document, *model.Record, bool) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	rec, ok := h.loadRecord(c)
	if !ok {
		return nil, nil, false
	}

	n := h.deps.Normalizer
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" && lang != n.Target() {
		if n, err = n.WithTarget(lang); err != nil {
			utils.Error(c, http.StatusBadRequest, err.Error())
			return nil, nil, false
		}
	}
	normalized := n.Normalize(c.Request.Context(), rec.Analysis, rec.Transcript, rec.Transcript.Language)
	normalized.RecordID = rec.ID.String()
	normalized.CreatedAt = rec.CreatedAt

	doc, err := export.Render(normalized, format)
	if err != nil {
		if errors.Is(err, export.ErrNonASCII) {
			logging.WithRecord(log, rec.ID.String()).WithError(err).Error("normalized export is not ASCII")
		}
		utils.Error(c, http.StatusInternalServerError, "failed to render export")
		return nil, nil, false
	}
	return doc, rec, true
}
