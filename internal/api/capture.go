package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tabscribe/internal/bridge"
	"tabscribe/internal/ipc"
	"tabscribe/internal/utils"
)

func (h *Handler) startCapture(c *gin.Context) {
	id, err := h.deps.Capture.Start()
	if err != nil {
		if errors.Is(err, bridge.ErrBusy) {
			utils.Error(c, http.StatusConflict, err.Error())
			return
		}
		log.WithError(err).Error("capture start failed")
		utils.Error(c, http.StatusServiceUnavailable, "failed to start capture: "+err.Error())
		return
	}
	utils.Respond(c, http.StatusAccepted, sessionView(h.deps.Capture.Session(), id))
}

func (h *Handler) stopCapture(c *gin.Context) {
	before := h.deps.Capture.Session()
	if err := h.deps.Capture.Stop(); err != nil {
		log.WithError(err).Error("capture stop failed")
		utils.Error(c, http.StatusServiceUnavailable, "failed to stop capture: "+err.Error())
		return
	}
	resp := sessionView(h.deps.Capture.Session(), before.ID)
	resp["stopped"] = before.State == bridge.Recording
	utils.Success(c, resp)
}

func (h *Handler) captureStatus(c *gin.Context) {
	s := h.deps.Capture.Session()
	resp := sessionView(s, s.ID)
	if f, ok := h.deps.Capture.LastFailure(); ok {
		resp["last_failure"] = gin.H{
			"session_id": f.SessionID,
			"kind":       f.Kind,
			"reason":     f.Reason,
		}
	}
	utils.Success(c, resp)
}

// captureLink upgrades to a websocket for a remote privileged capture page.
func (h *Handler) captureLink(c *gin.Context) {
	if h.deps.Remote == nil {
		utils.Error(c, http.StatusConflict, "capture runs in-process; remote capture pages are disabled")
		return
	}
	if !ipc.OriginAllowed(c.Request, h.deps.CaptureOrigins) {
		log.WithField("origin", c.GetHeader("Origin")).Warn("capture page from unlisted origin refused")
		utils.Error(c, http.StatusForbidden, "origin not allowed to attach a capture page")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	log.WithField("remote", c.Request.RemoteAddr).Info("capture page connected")
	if err := h.deps.Remote.Attach(c.Request.Context(), conn); err != nil {
		log.WithError(err).Warn("capture page link closed with error")
		return
	}
	log.WithField("remote", c.Request.RemoteAddr).Info("capture page disconnected")
}

func sessionView(s bridge.Session, id string) gin.H {
	resp := gin.H{
		"session_id": id,
		"state":      s.StateName,
	}
	if !s.StartedAt.IsZero() {
		resp["started_at"] = s.StartedAt
	}
	return resp
}
