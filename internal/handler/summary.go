package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const manualRunTimeout = 10 * time.Minute

func (h *Handler) GetLatestSummary(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-summary")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	span.SetAttributes(attribute.String("symbol", symbol))

	sum, err := h.summaries.Latest(ctx, symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) GetSummaryHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-summary-history")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	summaries, err := h.archive.Recent(ctx, symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "summaries": summaries})
}

// TriggerRun starts a manual pipeline run in the background and
// returns immediately. The run detaches from the request context so a
// closed connection cannot abort it.
func (h *Handler) TriggerRun(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.trigger-run")
	defer span.End()

	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline unavailable"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), manualRunTimeout)
		defer cancel()
		if _, err := h.runner.Run(ctx, "manual"); err != nil {
			log.Printf("Manual pipeline run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "trigger": "manual"})
}
