// Package models defines request and response types for the admin API.
package models

import "time"

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// UpstreamStat is one upstream's live health state and rolling metrics.
type UpstreamStat struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	Samples       int     `json:"samples"`
	SuccessRate   float64 `json:"success_rate"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	InFlight      int64   `json:"in_flight"`
}

// StatsResponse is the /stats payload.
type StatsResponse struct {
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     time.Time      `json:"start_time"`
	CPU           CPUStats       `json:"cpu"`
	Memory        MemoryStats    `json:"memory"`
	CacheSize     int            `json:"cache_size"`
	CacheHits     uint64         `json:"cache_hits"`
	CacheMisses   uint64         `json:"cache_misses"`
	Upstreams     []UpstreamStat `json:"upstreams"`
}

// HistoryEntry is one durable snapshot row.
type HistoryEntry struct {
	CapturedAt    time.Time `json:"captured_at"`
	UpstreamName  string    `json:"upstream_name"`
	State         string    `json:"state"`
	Samples       int       `json:"samples"`
	SuccessRate   float64   `json:"success_rate"`
	MeanLatencyMs float64   `json:"mean_latency_ms"`
	InFlight      int64     `json:"in_flight"`
}

// HistoryResponse is the /stats/history payload.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}
