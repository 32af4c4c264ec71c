package api

import (
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridkeep/internal/logging"
)

// Metrics with bounded cardinality (no per-participant labels to prevent DoS)
var (
	// Session core metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "room_tick_duration_seconds",
		Help:    "Time spent draining and applying one command tick",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	commandsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "room_commands_applied_total",
		Help: "Commands applied by tick processors",
	})

	sessionEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_evictions_total",
		Help: "Older connections evicted by a duplicate identity",
	})

	sessionExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_expirations_total",
		Help: "Sessions force-closed by the liveness sweep",
	})

	roomCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "room_count",
		Help: "Rooms currently registered",
	})

	participantCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "room_participant_count",
		Help: "Participants across all rooms (online and offline)",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "auth"

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "Outbound messages dropped on a full send queue",
	})
)

// GameMetrics adapts the Prometheus collectors to the room telemetry hooks.
type GameMetrics struct{}

func (GameMetrics) ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }
func (GameMetrics) AddCommands(n int)           { commandsApplied.Add(float64(n)) }
func (GameMetrics) IncEvictions()               { sessionEvictions.Inc() }
func (GameMetrics) IncExpirations()             { sessionExpirations.Inc() }

// UpdateRoomGauges refreshes the room-level gauges. Called from the listing
// handler and the gateway on connection churn.
func UpdateRoomGauges(rooms, participants int) {
	roomCount.Set(float64(rooms))
	participantCount.Set(float64(participants))
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_total_limit",
// "ws_ip_limit", "auth"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSDropped counts an outbound message dropped on backpressure.
func IncrementWSDropped() {
	wsMessagesDropped.Inc()
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		logging.L().Infof("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			logging.L().Warnf("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Optional basic auth wrapper
	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		logging.L().Infof("📊 Debug server starting on %s", cfg.ListenAddr)
		logging.L().Infof("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		logging.L().Infof("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			logging.L().Warnf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
