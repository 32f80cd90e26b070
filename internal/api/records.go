package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
	"tabscribe/internal/repository"
	"tabscribe/internal/utils"
)

// getRecord handles GET /api/v1/records/:record_id
func (h *Handler) getRecord(c *gin.Context) {
	rec, ok := h.loadRecord(c)
	if !ok {
		return
	}
	utils.Success(c, gin.H{"record": rec})
}

// listRecords handles GET /api/v1/records
func (h *Handler) listRecords(c *gin.Context) {
	// Parse pagination parameters
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100 // Max limit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	filter := repository.ListFilter{
		Participant: c.Query("participant"),
		Limit:       limit,
		Offset:      offset,
	}
	records, err := h.deps.Records.List(c.Request.Context(), filter)
	if err != nil {
		log.WithError(err).Error("listing records failed")
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve records")
		return
	}

	// Format response
	items := make([]gin.H, 0, len(records))
	for _, rec := range records {
		items = append(items, gin.H{
			"id":           rec.ID.String(),
			"created_at":   rec.CreatedAt,
			"source":       rec.Source,
			"duration":     rec.Transcript.Duration,
			"language":     rec.Transcript.Language,
			"overview":     rec.Analysis.Summary.Overview,
			"participants": rec.Analysis.Participants,
		})
	}

	utils.Success(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

// latestRecord returns the most recently completed session.
func (h *Handler) latestRecord(c *gin.Context) {
	rec, ok := h.deps.Local.Latest()
	if !ok {
		utils.Error(c, http.StatusNotFound, "no completed session yet")
		return
	}
	utils.Success(c, gin.H{"record": rec})
}

// takeHandoff returns the pending handoff once and clears it.
func (h *Handler) takeHandoff(c *gin.Context) {
	rec, ok := h.deps.Local.TakeHandoff()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	utils.Success(c, gin.H{"record": rec})
}

// loadRecord resolves :record_id and writes the error response itself.
func (h *Handler) loadRecord(c *gin.Context) (*model.Record, bool) {
	id, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid record_id format")
		return nil, false
	}
	rec, err := h.deps.Records.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(c, http.StatusNotFound, "record not found")
			return nil, false
		}
		logging.WithRecord(log, id.String()).WithError(err).Error("loading record failed")
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve record")
		return nil, false
	}
	return rec, true
}
