package handler

import (
	"encoding/json"
	"net/http"
	"runtime"

	"peercourt/internal/metrics"
)

// StatusHandler serves the read-only server status dump.
type StatusHandler struct {
	metrics     *metrics.Metrics
	activeConns func() int
	activeRooms func() int
}

// NewStatusHandler creates the handler. The callbacks read live gauges from
// the hub and registry.
func NewStatusHandler(m *metrics.Metrics, activeConns, activeRooms func() int) *StatusHandler {
	return &StatusHandler{
		metrics:     m,
		activeConns: activeConns,
		activeRooms: activeRooms,
	}
}

type memoryStatus struct {
	Alloc uint64  `json:"alloc"`
	Sys   uint64  `json:"sys"`
	Usage float64 `json:"usage"`
}

type statusMetrics struct {
	Connections       int64        `json:"connections"`
	ActiveConnections int          `json:"activeConnections"`
	ActiveRooms       int          `json:"activeRooms"`
	Messages          int64        `json:"messages"`
	Errors            int64        `json:"errors"`
	RateLimit         rateLimit    `json:"rateLimit"`
	Memory            memoryStatus `json:"memory"`
}

type rateLimit struct {
	Hits   int64 `json:"hits"`
	Blocks int64 `json:"blocks"`
}

type statusResponse struct {
	Status  string        `json:"status"`
	Uptime  int64         `json:"uptime"`
	Metrics statusMetrics `json:"metrics"`
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage := 0.0
	if mem.Sys > 0 {
		usage = float64(mem.Alloc) / float64(mem.Sys)
	}

	resp := statusResponse{
		Status: "ok",
		Uptime: snap.UptimeSeconds,
		Metrics: statusMetrics{
			Connections:       snap.Connections,
			ActiveConnections: h.activeConns(),
			ActiveRooms:       h.activeRooms(),
			Messages:          snap.Messages,
			Errors:            snap.Errors,
			RateLimit: rateLimit{
				Hits:   snap.RateLimitHits,
				Blocks: snap.RateLimitBlocks,
			},
			Memory: memoryStatus{
				Alloc: mem.Alloc,
				Sys:   mem.Sys,
				Usage: usage,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
