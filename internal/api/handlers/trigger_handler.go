package handlers

import (
	"net/http"

	"github.com/clipwise/clipwise/internal/services"
	"github.com/gin-gonic/gin"
)

type TriggerHandler struct {
	svc services.TriggerService
}

func NewTriggerHandler(svc services.TriggerService) *TriggerHandler {
	return &TriggerHandler{svc: svc}
}

type TriggerRequest struct {
	Workflow      string `json:"workflow"`
	Phrase        string `json:"phrase" binding:"required"`
	CaseSensitive bool   `json:"case_sensitive"`
}

func (h *TriggerHandler) Create(c *gin.Context) {
	var req TriggerRequest
	if !bindJSON(c, "TriggerHandler.Create", &req) {
		return
	}

	t, err := h.svc.Create(c.Request.Context(), req.Workflow, req.Phrase, req.CaseSensitive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TriggerHandler) Update(c *gin.Context) {
	var req TriggerRequest
	if !bindJSON(c, "TriggerHandler.Update", &req) {
		return
	}

	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), req.Phrase, req.CaseSensitive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TriggerHandler) Get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TriggerHandler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context(), c.Query("workflow"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *TriggerHandler) SetEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if !bindJSON(c, "TriggerHandler.SetEnabled", &req) {
		return
	}

	if err := h.svc.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "enabled": *req.Enabled})
}
