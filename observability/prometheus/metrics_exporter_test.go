package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-async-queue/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("asyncqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("queue-a", 1, 250*time.Millisecond)
	exporter.RecordTaskPanic("queue-a", "panic")
	exporter.RecordQueueDepth("queue-a", 7)
	exporter.RecordTaskOutcome("queue-a", core.OutcomeTimeout)
	exporter.RecordTaskOutcome("queue-a", core.OutcomeTimeout)

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("queue-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("queue-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	timedOut := testutil.ToFloat64(exporter.taskOutcomeTotal.WithLabelValues("queue-a", "timeout"))
	if timedOut != 2 {
		t.Fatalf("timeout outcome total = %v, want 2", timedOut)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("queue-a", "1"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("asyncqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("asyncqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("queue-a", nil)
	second.RecordTaskPanic("queue-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("queue-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestPriorityLabel(t *testing.T) {
	cases := map[int]string{
		0:   "0",
		-3:  "-3",
		10:  "10",
		11:  "high",
		-11: "low",
	}
	for priority, want := range cases {
		if got := priorityLabel(priority); got != want {
			t.Errorf("priorityLabel(%d) = %q, want %q", priority, got, want)
		}
	}
}

// TestMetricsExporter_WiredIntoQueue verifies the exporter receives the
// queue's duration and outcome reports.
// Given: a queue using the exporter as its Metrics
// When: one task succeeds and one fails
// Then: the outcome counters and the duration histogram reflect both
func TestMetricsExporter_WiredIntoQueue(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	opts := core.DefaultOptions()
	opts.Name = "wired"
	opts.Metrics = exporter
	q, err := core.NewQueue(opts)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	// Act
	ok := q.Add(t.Context(), func(ctx context.Context) (any, error) { return 1, nil })
	bad := q.Add(t.Context(), func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	if _, err := ok.Wait(t.Context()); err != nil {
		t.Fatalf("ok task failed: %v", err)
	}
	if _, err := bad.Wait(t.Context()); err == nil {
		t.Fatal("bad task should fail")
	}
	if err := q.WaitUntilIdle(t.Context()); err != nil {
		t.Fatalf("WaitUntilIdle failed: %v", err)
	}

	// Assert
	if got := testutil.ToFloat64(exporter.taskOutcomeTotal.WithLabelValues("wired", "completed")); got != 1 {
		t.Errorf("completed total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskOutcomeTotal.WithLabelValues("wired", "failed")); got != 1 {
		t.Errorf("failed total = %v, want 1", got)
	}
	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("wired", "0"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 2 {
		t.Errorf("duration sample count = %d, want 2", histCount)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
