package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dnsflatd/internal/adminapi/models"
)

// History godoc
// @Summary Durable snapshot history
// @Description Returns the most recent durable upstream health/metrics snapshots written by the state store's periodic writer. Empty when the state store is disabled.
// @Tags system
// @Produce json
// @Param limit query int false "max rows, default 100"
// @Security ApiKeyAuth
// @Success 200 {object} models.HistoryResponse
// @Router /stats/history [get]
func (h *Handler) History(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	if h.store == nil {
		c.JSON(http.StatusOK, models.HistoryResponse{})
		return
	}

	snaps, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(c.Request.Context(), "stats history query failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "history unavailable"})
		return
	}

	entries := make([]models.HistoryEntry, 0, len(snaps))
	for _, s := range snaps {
		entries = append(entries, models.HistoryEntry{
			CapturedAt:    s.CapturedAt,
			UpstreamName:  s.UpstreamName,
			State:         s.State,
			Samples:       s.Samples,
			SuccessRate:   s.SuccessRate,
			MeanLatencyMs: s.MeanLatencyMs,
			InFlight:      s.InFlight,
		})
	}
	c.JSON(http.StatusOK, models.HistoryResponse{Entries: entries})
}
