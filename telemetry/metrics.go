// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived      prometheus.Counter
	MessagesBroadcast     prometheus.Counter
	MessagesDropped       prometheus.Counter
	HistoryReplayed       prometheus.Counter
	HistoryReplayFailures prometheus.Counter
	SlowClientsEvicted    prometheus.Counter
	UpstreamFailures      *prometheus.CounterVec

	// Histograms (seconds)
	UpstreamDuration *prometheus.HistogramVec

	// Gauges
	ClientsConnected prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_received_total", Help: "Chat events received from clients"})
		MessagesBroadcast = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_broadcast_total", Help: "Stored messages fanned out to connected clients"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_dropped_total", Help: "Chat events dropped because the store rejected them"})
		HistoryReplayed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_history_replayed_total", Help: "History messages replayed to new connections"})
		HistoryReplayFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_history_replay_failures_total", Help: "History replays that failed to load from the store"})
		SlowClientsEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_slow_clients_evicted_total", Help: "Clients disconnected because their send queue was full"})
		UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "signchat_upstream_failures_total", Help: "Failed calls to the translation microservice"}, []string{"op", "kind"})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "signchat_upstream_duration_seconds", Help: "Translation microservice call duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_clients_connected", Help: "Currently connected realtime clients"})
	})
}

// Inc increments c if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetClientsConnected records the current number of registered clients.
func SetClientsConnected(n int) {
	if ClientsConnected != nil {
		ClientsConnected.Set(float64(n))
	}
}

// UpstreamObserver returns the latency observer for op, or nil before Init.
func UpstreamObserver(op string) prometheus.Observer {
	if UpstreamDuration == nil {
		return nil
	}
	return UpstreamDuration.WithLabelValues(op)
}

// CountUpstreamFailure counts a failed upstream call by kind (status, network).
func CountUpstreamFailure(op, kind string) {
	if UpstreamFailures != nil {
		UpstreamFailures.WithLabelValues(op, kind).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
