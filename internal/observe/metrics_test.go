package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestFailoverCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFailover(ctx, "stt")
	m.RecordFailover(ctx, "stt")
	m.RecordFailover(ctx, "tts")

	rm := collect(t, reader)
	md := findMetric(rm, "rehearse.failovers")
	if md == nil {
		t.Fatal("rehearse.failovers not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Fatalf("failover total = %d, want 3", total)
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (one per kind)", len(sum.DataPoints))
	}
}

func TestSubmissionCounterAndHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSubmission(ctx, "abc", "ok")
	m.RecordSubmission(ctx, "abc", "error")
	m.SubmitDuration.Record(ctx, 0.42)

	rm := collect(t, reader)

	if md := findMetric(rm, "rehearse.submissions"); md == nil {
		t.Fatal("rehearse.submissions not found")
	}
	md := findMetric(rm, "rehearse.submit.duration")
	if md == nil {
		t.Fatal("rehearse.submit.duration not found")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("histogram data points = %+v", hist.DataPoints)
	}
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	md := findMetric(rm, "rehearse.active_sessions")
	if md == nil {
		t.Fatal("rehearse.active_sessions not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("active sessions = %+v, want 1", sum.DataPoints)
	}
}
