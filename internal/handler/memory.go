package handler

import (
	"errors"
	"net/http"

	"crypto-summary-bot/internal/domain"

	"github.com/gin-gonic/gin"
)

type valueRequest struct {
	Value string `json:"value" binding:"required"`
}

type templateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) ListMemory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-memory")
	defer span.End()

	entries, err := h.memory.ListMemory(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) UpsertMemory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.upsert-memory")
	defer span.End()

	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.memory.UpsertMemory(ctx, c.Param("key"), req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) RemoveMemory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.remove-memory")
	defer span.End()

	if err := h.memory.RemoveMemory(ctx, c.Param("key")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-template")
	defer span.End()

	role, ok := parseRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown template role"})
		return
	}
	tpl, err := h.memory.GetTemplate(ctx, role)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) SetTemplate(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.set-template")
	defer span.End()

	role, ok := parseRole(c.Param("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown template role"})
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.memory.SetTemplate(ctx, role, req.Text); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "role": string(role)})
}

func parseRole(raw string) (domain.TemplateRole, bool) {
	switch domain.TemplateRole(raw) {
	case domain.TemplateSystem:
		return domain.TemplateSystem, true
	case domain.TemplateSummaryFormat:
		return domain.TemplateSummaryFormat, true
	default:
		return "", false
	}
}
