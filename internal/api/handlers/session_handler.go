package handlers

import (
	"net/http"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/services"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc  services.SessionService
	live services.LiveService
}

func NewSessionHandler(svc services.SessionService, live services.LiveService) *SessionHandler {
	return &SessionHandler{svc: svc, live: live}
}

type StartSessionRequest struct {
	Workflow string                 `json:"workflow" binding:"required"` // podcast|webinar|livestream
	Metadata models.SessionMetadata `json:"metadata"`
	// Optional: where the ingest side buffers this session's source media.
	// Can also be set later via PUT /session/:session_id/recording.
	RecordingPath string `json:"recording_path"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Workflow  string `json:"workflow"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !bindJSON(c, "SessionHandler.Start", &req) {
		return
	}

	sess, err := h.svc.Start(c.Request.Context(), userID, req.Workflow, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	if req.RecordingPath != "" {
		if err := h.svc.SetRecordingPath(c.Request.Context(), sess.SessionID, req.RecordingPath); err != nil {
			writeError(c, err)
			return
		}
	}

	if err := h.live.StartPipeline(c.Request.Context(), sess.SessionID); err != nil {
		// Session exists but no pipeline; caller can retry via ws or end it.
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartSessionResponse{
		SessionID: sess.SessionID,
		Workflow:  sess.Workflow,
		Status:    sess.Status,
		StartedAt: sess.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.Get", "forbidden", nil))
		return
	}

	c.JSON(http.StatusOK, sess)
}

type SetRecordingRequest struct {
	RecordingPath string `json:"recording_path" binding:"required"`
}

// SetRecording points a live session at its buffered source media. Clip
// jobs fail until this is set, so ingest calls it as soon as the buffer
// file exists.
func (h *SessionHandler) SetRecording(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SetRecordingRequest
	if !bindJSON(c, "SessionHandler.SetRecording", &req) {
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.SetRecording", "forbidden", nil))
		return
	}

	if err := h.svc.SetRecordingPath(c.Request.Context(), sessionID, req.RecordingPath); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "recording_path": req.RecordingPath})
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.End", "forbidden", nil))
		return
	}

	// Tear down realtime first so no more events flow into an ended session.
	if err := h.live.EndPipeline(sessionID); err != nil && !utils.IsCode(err, utils.CodeNotFound) {
		writeError(c, err)
		return
	}

	ended, err := h.svc.End(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ended)
}

func (h *SessionHandler) Transcript(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.Transcript", "forbidden", nil))
		return
	}

	docs, err := h.svc.Transcript(c.Request.Context(), sessionID, 0)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "segments": docs})
}
