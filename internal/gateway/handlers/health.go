package handlers

import (
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time. Called from Server.Start.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	// Clients is the number of open WebSocket connections.
	Clients int `json:"clients"`
}

// HealthHandler returns a health check handler. clients may be nil.
func HealthHandler(version string, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Version: version}
		if !startTime.IsZero() {
			resp.Uptime = int64(time.Since(startTime).Seconds())
		}
		if clients != nil {
			resp.Clients = clients()
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
