package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-session labels).
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "world_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	sessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_sessions_active",
		Help: "Currently connected sessions",
	})

	wispCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_wisps_active",
		Help: "Currently alive wisps",
	})

	inboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_inbound_frames_total",
		Help: "Inbound WebSocket frames by disposition",
	}, []string{"disposition"}) // Bounded: "handled", "throttled", "malformed"

	outboundFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_outbound_frames_total",
		Help: "Outbound WebSocket frames written",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ip_limit", "identity", "realm", "capacity"

	actionsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "world_actions_total",
		Help: "Accepted player actions by kind",
	}, []string{"kind"}) // Bounded: the fixed set of inbound action kinds

	storeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_write_failures_total",
		Help: "Persistence writes that returned an error",
	})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
)

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // must stay on localhost in production
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer starts the internal observability server. It binds to
// localhost only unless external binding is explicitly enabled, since pprof
// must never face the public network.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// RecordTick observes one simulation tick. The signature matches the
// world's tick observer hook.
func RecordTick(d time.Duration, sessions, wisps int) {
	tickDuration.Observe(d.Seconds())
	sessionCount.Set(float64(sessions))
	wispCount.Set(float64(wisps))
}

// RecordInboundFrame counts an inbound frame by disposition.
// disposition must be one of: "handled", "throttled", "malformed".
func RecordInboundFrame(disposition string) {
	inboundFrames.WithLabelValues(disposition).Inc()
}

// RecordOutboundFrame counts a frame written to a client.
func RecordOutboundFrame() {
	outboundFrames.Inc()
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ip_limit", "identity",
// "realm", "capacity".
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordAction counts an accepted action. The signature matches the
// world's action observer hook.
func RecordAction(kind string) {
	actionsScored.WithLabelValues(kind).Inc()
}

// RecordStoreFailure counts a failed persistence write. The signature
// matches the store's error hook.
func RecordStoreFailure() {
	storeFailures.Inc()
}

// RecordRequest records HTTP request latency.
func RecordRequest(method, endpoint string, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
