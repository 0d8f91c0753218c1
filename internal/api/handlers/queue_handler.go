package handlers

import (
	"net/http"
	"strconv"

	"github.com/clipwise/clipwise/internal/clips"
	"github.com/clipwise/clipwise/internal/events"
	"github.com/clipwise/clipwise/internal/services"
	"github.com/clipwise/clipwise/internal/utils"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	queue     services.QueueService
	sessions  services.SessionService
	processor *clips.Processor
	pub       events.Publisher
}

func NewQueueHandler(queue services.QueueService, sessions services.SessionService, processor *clips.Processor, pub events.Publisher) *QueueHandler {
	return &QueueHandler{queue: queue, sessions: sessions, processor: processor, pub: pub}
}

func (h *QueueHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "QueueHandler.List", "forbidden", nil))
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	items, err := h.queue.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "items": items})
}

func (h *QueueHandler) Get(c *gin.Context) {
	item, err := h.queue.Get(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Process forces an immediate claim of a specific item, bypassing the poll.
func (h *QueueHandler) Process(c *gin.Context) {
	itemID := c.Param("item_id")
	if err := h.processor.ProcessByID(c.Request.Context(), itemID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"item_id": itemID, "status": "processing"})
}

type MarkerRequest struct {
	Label string   `json:"label"`
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
}

// Marker enqueues an operator-placed clip marker for a session.
func (h *QueueHandler) Marker(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "QueueHandler.Marker", "forbidden", nil))
		return
	}

	var req MarkerRequest
	if !bindJSON(c, "QueueHandler.Marker", &req) {
		return
	}

	item, err := h.queue.EnqueueManual(c.Request.Context(), sessionID, req.Label, req.Start, req.End)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.pub != nil {
		_ = h.pub.Publish(c.Request.Context(), events.New(sessionID, events.TypeQueueUpdated, item))
	}
	c.JSON(http.StatusOK, item)
}
