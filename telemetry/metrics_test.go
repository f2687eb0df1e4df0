package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCountersInitialized(t *testing.T) {
	Init()

	counters := map[string]prometheus.Counter{
		"received":       MessagesReceived,
		"broadcast":      MessagesBroadcast,
		"dropped":        MessagesDropped,
		"replayed":       HistoryReplayed,
		"replay_failure": HistoryReplayFailures,
		"evicted":        SlowClientsEvicted,
	}
	for name, c := range counters {
		if c == nil {
			t.Errorf("%s counter not initialized", name)
		}
	}
	if UpstreamFailures == nil || UpstreamDuration == nil || ClientsConnected == nil {
		t.Error("vector metrics or gauge not initialized")
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesReceived
	Init()
	if MessagesReceived != first {
		t.Error("Init re-created metrics on second call")
	}
}

func TestIncAndGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(MessagesDropped)
	Inc(MessagesDropped)
	if got := testutil.ToFloat64(MessagesDropped); got != before+1 {
		t.Errorf("dropped = %v, want %v", got, before+1)
	}

	Inc(nil) // must not panic

	SetClientsConnected(3)
	if got := testutil.ToFloat64(ClientsConnected); got != 3 {
		t.Errorf("clients gauge = %v, want 3", got)
	}
}

func TestUpstreamObserver(t *testing.T) {
	Init()

	before := testutil.ToFloat64(UpstreamFailures.WithLabelValues("keyboard", "status"))
	TimeFunc(UpstreamObserver("keyboard"), func() {})
	CountUpstreamFailure("keyboard", "status")

	if got := testutil.ToFloat64(UpstreamFailures.WithLabelValues("keyboard", "status")); got != before+1 {
		t.Errorf("failures = %v, want %v", got, before+1)
	}
	if n := testutil.CollectAndCount(UpstreamDuration, "signchat_upstream_duration_seconds"); n == 0 {
		t.Error("expected duration series to be collected")
	}
}

func TestTimeFuncWithoutObserver(t *testing.T) {
	executed := false
	TimeFunc(nil, func() { executed = true })
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
