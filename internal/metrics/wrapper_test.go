package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewTracker(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	if tracker == nil {
		t.Fatal("NewTracker returned nil")
	}
	if tracker.m != metrics {
		t.Error("Tracker does not contain correct metrics instance")
	}
}

func TestTracker_ExtractionCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	if v := testutil.ToFloat64(metrics.Extractions); v != 0 {
		t.Errorf("Expected initial extraction count 0, got %f", v)
	}

	tracker.ExtractionsInc()
	tracker.ExtractionsInc()
	if v := testutil.ToFloat64(metrics.Extractions); v != 2 {
		t.Errorf("Expected extraction count 2, got %f", v)
	}

	tracker.ExtractionCacheHitsInc()
	if v := testutil.ToFloat64(metrics.ExtractionCacheHits); v != 1 {
		t.Errorf("Expected 1 cache hit, got %f", v)
	}

	// Should not panic; histogram internals are not asserted.
	tracker.ExtractionDurationObserve(3 * time.Millisecond)
}

func TestMetrics_ErrorsTotal(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)

	metrics.ErrorsTotal.Inc()
	metrics.ErrorsTotal.Inc()
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 2 {
		t.Errorf("Expected 2 errors, got %f", v)
	}
}

func TestTracker_PredictionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	tracker.PredictionsInc()
	tracker.PredictionsInc()
	tracker.PredictionsInc()
	if v := testutil.ToFloat64(metrics.Predictions); v != 3 {
		t.Errorf("Expected 3 predictions, got %f", v)
	}

	// Should not panic; histogram internals are not asserted.
	tracker.PredictionScoreObserve(0.75)
	tracker.TrainingDuration(1500 * time.Millisecond)
}

func TestTracker_RecordLoad(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	tracker.RecordLoad(9, 1, 4096)

	if v := testutil.ToFloat64(metrics.SamplesLoaded); v != 9 {
		t.Errorf("Expected 9 samples loaded, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.LoadWarnings); v != 1 {
		t.Errorf("Expected 1 load warning, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.BytesLoaded); v != 4096 {
		t.Errorf("Expected 4096 bytes loaded, got %f", v)
	}
}

func TestTracker_RecordTrainingOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	tracker.RecordTrainingOutcome(0.93, 2)

	if v := testutil.ToFloat64(metrics.ModelAccuracy); v != 0.93 {
		t.Errorf("Expected model accuracy 0.93, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ModelAge); v != 0 {
		t.Errorf("Expected model age reset to 0, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.CandidateFailures); v != 2 {
		t.Errorf("Expected 2 candidate failures, got %f", v)
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	tracker := NewTracker(metrics)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				tracker.PredictionsInc()
				tracker.PredictionScoreObserve(0.5)
				tracker.ExtractionsInc()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0 // 10 goroutines * 100 increments
	if v := testutil.ToFloat64(metrics.Predictions); v != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, v)
	}
	if v := testutil.ToFloat64(metrics.Extractions); v != expected {
		t.Errorf("Expected %f extractions after concurrent access, got %f", expected, v)
	}
}

func BenchmarkTracker_PredictionsInc(b *testing.B) {
	registry := prometheus.NewRegistry()
	tracker := NewTracker(NewWithRegistry(registry))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.PredictionsInc()
	}
}
