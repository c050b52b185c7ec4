package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherbot/internal/bot"
	"github.com/kjstillabower/weatherbot/internal/degraded"
	"github.com/kjstillabower/weatherbot/internal/lifecycle"
)

// StatusProvider exposes the poll loop state (bot.Bot).
type StatusProvider interface {
	Status() bot.Status
}

// HealthConfig holds the degraded thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	PollInterval     time.Duration
	Version          string
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler serves the status endpoints.
type Handler struct {
	status           StatusProvider
	healthConfig     *HealthConfig
	logger           *zap.Logger
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(status StatusProvider, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		status:       status,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status      string
	statusCode  int
	reason      string
	lastSuccess time.Time
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()
	logger := LoggerFromContext(r.Context(), h.logger)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	version := h.healthConfig.Version
	if version == "" {
		version = "dev"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weatherbot",
		"version":   version,
		"checks":    checks,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	if !result.lastSuccess.IsZero() {
		resp["lastSuccess"] = result.lastSuccess.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down, then degraded, then healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: "signal"}
	}
	st := degraded.Evaluate(degraded.Policy{
		Window:       h.healthConfig.DegradedWindow,
		ErrorPct:     h.healthConfig.DegradedErrorPct,
		PollInterval: h.healthConfig.PollInterval,
		StartedAt:    lifecycle.StartedAt(),
	}, h.now())
	if st.Degraded {
		return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: st.Reason, lastSuccess: st.LastSuccess}
	}
	return healthResult{status: "healthy", statusCode: http.StatusOK, lastSuccess: st.LastSuccess}
}

// GetStatus handles GET /status: the last observation, trend and poll counters.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		LoggerFromContext(r.Context(), h.logger).Warn("status requested with no poll loop")
		writeError(w, r, http.StatusServiceUnavailable, "NOT_RUNNING", "poll loop not started")
		return
	}
	writeJSON(w, http.StatusOK, h.status.Status())
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": CorrelationIDFromContext(r.Context()),
		},
	})
}
