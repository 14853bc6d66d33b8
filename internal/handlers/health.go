package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"soarify/internal/config"
	"soarify/internal/metrics"
	"soarify/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	config *config.Config
	db     *gorm.DB
	logger *logrus.Logger
}

func NewHealthHandler(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{config: cfg, db: db, logger: logger}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SystemInfo struct {
	Uptime    time.Duration `json:"uptime"`
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
}

var startTime = time.Now()

const version = "1.0.0"

// Health reports overall health plus per-dependency detail.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime),
			Version:   version,
			GoVersion: runtime.Version(),
		},
	}

	allHealthy := true
	if h.config.Monitoring.HealthChecks.Database {
		h.checkDatabase(ctx, &response, &allHealthy)
	}

	statusCode := http.StatusOK
	if !allHealthy {
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Ready reports whether the service can take traffic. The database is the
// only hard dependency; notification channels degrade per-delivery.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]string)

	if err := h.pingDatabase(ctx); err != nil {
		checks["database"] = "not_ready"
		ready = false
	} else {
		checks["database"] = "ready"
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"ready":     ready,
		"timestamp": time.Now(),
		"services":  checks,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context, response *HealthResponse, allHealthy *bool) {
	start := time.Now()

	serviceInfo := ServiceInfo{
		Latency: time.Since(start).String(),
		Details: map[string]interface{}{
			"driver": h.db.Dialector.Name(),
			"host":   h.config.Database.Host,
			"port":   h.config.Database.Port,
		},
	}

	if err := h.pingDatabase(ctx); err != nil {
		serviceInfo.Status = "unhealthy"
		serviceInfo.Error = err.Error()
		*allHealthy = false
		h.logger.WithError(err).Warn("health check: database unreachable")
	} else {
		serviceInfo.Status = "healthy"
		serviceInfo.Latency = time.Since(start).String()
	}

	response.Services["database"] = serviceInfo
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// MetricsHandler renders process counters in Prometheus exposition format.
type MetricsHandler struct {
	hub       *services.EventHub
	startedAt time.Time
}

func NewMetricsHandler(hub *services.EventHub) *MetricsHandler {
	return &MetricsHandler{hub: hub, startedAt: time.Now()}
}

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain")

	uptime := time.Since(h.startedAt).Seconds()
	wsClients := 0
	if h.hub != nil {
		wsClients = h.hub.ClientCount()
	}

	execTotal, execBy := metrics.ExecutionsSnapshot()
	delTotal, delBy := metrics.DeliveriesSnapshot()
	rlTotal, _ := metrics.RateLimitSnapshot()

	b := &strings.Builder{}
	fmt.Fprintf(b, "# HELP soarify_info Information about the Soarify instance\n")
	fmt.Fprintf(b, "# TYPE soarify_info gauge\n")
	fmt.Fprintf(b, "soarify_info{version=%q} 1\n\n", version)

	fmt.Fprintf(b, "# HELP soarify_uptime_seconds Total uptime of the Soarify instance in seconds\n")
	fmt.Fprintf(b, "# TYPE soarify_uptime_seconds counter\n")
	fmt.Fprintf(b, "soarify_uptime_seconds %.0f\n\n", uptime)

	fmt.Fprintf(b, "# HELP soarify_websocket_active_connections Active execution feed subscribers\n")
	fmt.Fprintf(b, "# TYPE soarify_websocket_active_connections gauge\n")
	fmt.Fprintf(b, "soarify_websocket_active_connections %d\n\n", wsClients)

	fmt.Fprintf(b, "# HELP soarify_executions_total Playbook executions reaching a terminal status\n")
	fmt.Fprintf(b, "# TYPE soarify_executions_total counter\n")
	fmt.Fprintf(b, "soarify_executions_total %d\n", execTotal)
	for status, n := range execBy {
		fmt.Fprintf(b, "soarify_executions_total{status=%q} %d\n", strings.ToLower(status), n)
	}
	fmt.Fprintf(b, "\n")

	fmt.Fprintf(b, "# HELP soarify_deliveries_total Notification delivery attempts by outcome\n")
	fmt.Fprintf(b, "# TYPE soarify_deliveries_total counter\n")
	fmt.Fprintf(b, "soarify_deliveries_total %d\n", delTotal)
	for status, n := range delBy {
		fmt.Fprintf(b, "soarify_deliveries_total{status=%q} %d\n", strings.ToLower(status), n)
	}
	fmt.Fprintf(b, "\n")

	fmt.Fprintf(b, "# HELP soarify_ratelimit_dropped_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(b, "# TYPE soarify_ratelimit_dropped_total counter\n")
	fmt.Fprintf(b, "soarify_ratelimit_dropped_total %d\n", rlTotal)

	c.String(http.StatusOK, b.String())
}
