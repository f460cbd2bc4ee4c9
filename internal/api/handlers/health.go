package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/aegis-strategy/internal/api/response"
	"github.com/wonny/aegis-strategy/internal/infra/database/postgres"
	"github.com/wonny/aegis-strategy/internal/service/signalfeed"
)

// DBHealthChecker reports database health. Nil when the ledger runs on CSV.
type DBHealthChecker interface {
	Health(ctx context.Context) *postgres.HealthStatus
}

// SchedulerChecker reports whether the scheduler loop is running
type SchedulerChecker interface {
	IsRunning() bool
}

// SignalFeedStats reports signal stream fan-out counters
type SignalFeedStats interface {
	GetStats() signalfeed.BrokerStats
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        DBHealthChecker
	scheduler SchedulerChecker
	feed      SignalFeedStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. Any checker may be nil.
func NewHealthHandler(db DBHealthChecker, scheduler SchedulerChecker, feed SignalFeedStats, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		scheduler: scheduler,
		feed:      feed,
		startTime: time.Now(),
		version:   version,
	}
}

// SimpleHealthResponse represents a simple health check response
type SimpleHealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DetailedHealthResponse represents detailed health information
type DetailedHealthResponse struct {
	Status           string                  `json:"status"`
	Version          string                  `json:"version"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	Timestamp        time.Time               `json:"timestamp"`
	SchedulerRunning bool                    `json:"scheduler_running"`
	Database         *postgres.HealthStatus  `json:"database,omitempty"`
	SignalFeed       *signalfeed.BrokerStats `json:"signal_feed,omitempty"`
}

// Health returns simple liveness check
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, SimpleHealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// Detailed returns component health
// GET /health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	resp := DetailedHealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now(),
	}
	if h.scheduler != nil {
		resp.SchedulerRunning = h.scheduler.IsRunning()
	}
	if h.feed != nil {
		stats := h.feed.GetStats()
		resp.SignalFeed = &stats
	}

	status := http.StatusOK
	if h.db != nil {
		resp.Database = h.db.Health(r.Context())
		switch resp.Database.Status {
		case "unhealthy":
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		case "degraded":
			resp.Status = "degraded"
		}
	}

	response.JSON(w, status, resp)
}
