package observability

import (
	"testing"
	"time"
)

func TestReplyStageWindowSnapshot(t *testing.T) {
	w := newReplyStageWindow(8)
	w.Observe(StageInference, 500)
	w.Observe(StageInference, 700)
	w.Observe(StageInference, 900)
	w.Observe("", 100)
	w.Observe(StageLoadContext, -1)
	w.ObserveIndicator("memory_written")
	w.ObserveIndicator("memory_written")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageInference {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageInference)
	}
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("stats = %+v, want 3 samples, last 900, p50 700", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want memory_written x2", snap.Indicators)
	}
}

func TestReplyStageWindowWrapsRing(t *testing.T) {
	w := newReplyStageWindow(3)
	for _, v := range []float64{1, 2, 3, 100, 200} {
		w.Observe(StageMemoryWrite, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.AvgMS != 101 {
		t.Fatalf("AvgMS = %.2f, want 101", s.AvgMS)
	}

	w.Reset()
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after reset = %d, want 0", got)
	}
}

func TestMetricsObserveReplyLatencyFeedsWindow(t *testing.T) {
	m := NewMetrics("observability_test_latency")
	m.ObserveReplyLatency(1500 * time.Millisecond)
	m.ObserveStage(StageInference, 1200*time.Millisecond)

	snap := m.ReplyStages()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[1].Stage != StageReplyTotal || snap.Stages[1].LastMS != 1500 {
		t.Fatalf("Stages[1] = %+v, want reply_total 1500ms", snap.Stages[1])
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveStage(StageInference, time.Second)
	nilMetrics.ObserveIndicator("x")
}
