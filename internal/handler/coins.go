package handler

import (
	"net/http"
	"strings"

	"crypto-summary-bot/internal/domain"

	"github.com/gin-gonic/gin"
)

type coinRequest struct {
	Symbol         string   `json:"symbol" binding:"required"`
	Name           string   `json:"name"`
	CMCID          string   `json:"cmc_id"`
	ChainID        string   `json:"chain_id"`
	TokenAddress   string   `json:"token_address"`
	DexSearchQuery string   `json:"dex_search_query"`
	FeedQueries    []string `json:"feed_queries"`
}

func (h *Handler) ListCoins(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-coins")
	defer span.End()

	coins, err := h.coins.ListAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

func (h *Handler) UpsertCoin(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.upsert-coin")
	defer span.End()

	var req coinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coin := domain.Coin{
		Symbol:         req.Symbol,
		CMCID:          req.CMCID,
		Name:           req.Name,
		ChainID:        req.ChainID,
		TokenAddress:   req.TokenAddress,
		DexSearchQuery: req.DexSearchQuery,
		FeedQueries:    req.FeedQueries,
	}
	if err := h.coins.Upsert(ctx, coin); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "symbol": strings.ToUpper(strings.TrimSpace(req.Symbol))})
}

func (h *Handler) RemoveCoin(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.remove-coin")
	defer span.End()

	symbol := c.Param("symbol")
	if c.Query("deactivate") == "true" {
		if err := h.coins.SetActive(ctx, symbol, false); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
		return
	}

	if err := h.coins.Remove(ctx, symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
