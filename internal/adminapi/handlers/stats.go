package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"dnsflatd/internal/adminapi/models"
)

// Stats godoc
// @Summary Live per-upstream health and metrics
// @Description Returns process uptime, system CPU/memory usage, cache counters, and one entry per configured upstream with its current health state and rolling metrics window.
// @Tags system
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} models.StatsResponse
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	resp := models.StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		Upstreams:     h.upstreamStats(),
	}

	if h.cache != nil {
		cs := h.cache.Stats()
		resp.CacheSize = cs.Size
		resp.CacheHits = cs.Hits
		resp.CacheMisses = cs.Misses
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) upstreamStats() []models.UpstreamStat {
	if h.registry == nil {
		return nil
	}
	out := make([]models.UpstreamStat, 0, h.registry.Len())
	for _, t := range h.registry.All() {
		snap := t.Metrics.Snapshot()
		out = append(out, models.UpstreamStat{
			Name:          t.Entry.Name,
			State:         h.monitor.StateOf(t.Entry.Name).String(),
			Samples:       snap.SampleCount,
			SuccessRate:   snap.SuccessRate,
			MeanLatencyMs: snap.MeanLatencyMs,
			InFlight:      t.InFlight(),
		})
	}
	return out
}
