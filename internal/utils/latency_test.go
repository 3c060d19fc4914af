package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, d := range []time.Duration{50, 10, 40, 20, 30} {
		tracker.Observe(d * time.Millisecond)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected 5 samples, got %d", tracker.Count())
	}
	if p := tracker.Percentile(95); p < 40*time.Millisecond {
		t.Fatalf("expected p95 >= 40ms, got %v", p)
	}
	if p := tracker.Percentile(0); p != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", p)
	}
	if p := tracker.Percentile(100); p != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", p)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
	if p := tracker.Percentile(0); p != 8*time.Millisecond {
		t.Fatalf("expected oldest retained sample 8ms, got %v", p)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if p := NewLatencyTracker(0).Percentile(50); p != 0 {
		t.Fatalf("expected zero percentile, got %v", p)
	}
}
