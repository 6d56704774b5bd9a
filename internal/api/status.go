package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Relay         RelayStatus    `json:"relay"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
}

// RelayStatus summarises the relay engine.
type RelayStatus struct {
	Connected     bool     `json:"connected"`
	Mode          string   `json:"mode"`
	Commands      int      `json:"commands"`
	Duplicates    int      `json:"duplicates"`
	Pending       int      `json:"pending"`
	Subscriptions []string `json:"subscriptions"`
	StartedAt     string   `json:"started_at,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleHealth reports ok when every registered check passes and the
// relay is connected to the broker.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks)+1)
	healthy := true

	if s.relay.Status().Connected {
		checks["mqtt"] = "ok"
	} else {
		checks["mqtt"] = "disconnected"
		healthy = false
	}

	for name, checker := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleStatus returns the relay state plus runtime statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.relay.Status()
	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Relay: RelayStatus{
			Connected:     st.Connected,
			Mode:          string(st.Mode),
			Commands:      st.Commands,
			Duplicates:    s.duplicates.Total(),
			Pending:       st.Pending,
			Subscriptions: st.Subscriptions,
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}
	if resp.Relay.Subscriptions == nil {
		resp.Relay.Subscriptions = []string{}
	}
	if !st.StartedAt.IsZero() {
		resp.Relay.StartedAt = st.StartedAt.UTC().Format(time.RFC3339)
	}
	if s.hub != nil {
		resp.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
