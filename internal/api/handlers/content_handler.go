package handlers

import (
	"net/http"
	"strconv"

	"github.com/clipwise/clipwise/internal/services"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/gin-gonic/gin"
)

// ContentHandler serves finished clips and agent drafts.
type ContentHandler struct {
	clips    services.ClipService
	drafts   services.DraftService
	sessions services.SessionService
}

func NewContentHandler(clips services.ClipService, drafts services.DraftService, sessions services.SessionService) *ContentHandler {
	return &ContentHandler{clips: clips, drafts: drafts, sessions: sessions}
}

func (h *ContentHandler) authorizeSession(c *gin.Context, op string) (string, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return "", false
	}

	sessionID := c.Param("session_id")
	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return "", false
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return "", false
	}
	return sessionID, true
}

func (h *ContentHandler) ListClips(c *gin.Context) {
	sessionID, ok := h.authorizeSession(c, "ContentHandler.ListClips")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	out, err := h.clips.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "clips": out})
}

func (h *ContentHandler) GetClip(c *gin.Context) {
	clip, err := h.clips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, clip)
}

func (h *ContentHandler) ListDrafts(c *gin.Context) {
	sessionID, ok := h.authorizeSession(c, "ContentHandler.ListDrafts")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	out, err := h.drafts.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "drafts": out})
}

func (h *ContentHandler) GetDraft(c *gin.Context) {
	d, err := h.drafts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *ContentHandler) RelatedDrafts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	out, err := h.drafts.Related(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": out})
}
