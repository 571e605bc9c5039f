package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"binsift/internal/features"
	"binsift/internal/loader"
	"binsift/internal/ml"
)

// maliciousSample builds a high-entropy MZ-prefixed blob, the shape a
// packed executable presents.
func maliciousSample(seed int64) loader.Sample {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, 4096)
	rng.Read(data)
	copy(data, []byte{'M', 'Z'})
	return labeledSample(data, fmt.Sprintf("mal-%d.bin", seed), loader.LabelMalicious)
}

// benignSample builds low-entropy printable content.
func benignSample(seed int64) loader.Sample {
	line := fmt.Sprintf("configuration entry %d: enabled=true\n", seed)
	data := []byte(strings.Repeat(line, 120))
	return labeledSample(data, fmt.Sprintf("ben-%d.txt", seed), loader.LabelBenign)
}

func labeledSample(data []byte, source string, label int) loader.Sample {
	sum := sha256.Sum256(data)
	return loader.Sample{
		Data:   data,
		Source: source,
		SHA256: hex.EncodeToString(sum[:]),
		Label:  label,
	}
}

func trainingBatch(n int) []loader.Sample {
	samples := make([]loader.Sample, 0, 2*n)
	for i := 0; i < n; i++ {
		samples = append(samples, maliciousSample(int64(i)))
		samples = append(samples, benignSample(int64(i)))
	}
	return samples
}

// fastTrainer keeps end-to-end tests quick with a two-model panel.
func fastTrainer() ml.Config {
	panel, err := ml.PanelSubset([]string{"LogisticRegression", "SVM"})
	if err != nil {
		panic(err)
	}
	return ml.Config{Panel: panel}
}

func TestTrainEndToEnd(t *testing.T) {
	o, err := New(Options{Trainer: fastTrainer()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tp, diags, err := o.Train(context.Background(), trainingBatch(20))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
	if tp.ID == "" || tp.ModelName == "" || tp.Model == nil || tp.Transform == nil {
		t.Fatalf("incomplete trained pipeline: %+v", tp)
	}
	if tp.SchemaVersion != features.SchemaVersion {
		t.Errorf("schema version = %d, want %d", tp.SchemaVersion, features.SchemaVersion)
	}
	if got, want := len(tp.FeatureNames), len(features.Names()); got != want {
		t.Errorf("feature names = %d, want %d", got, want)
	}
	if tp.Eval.Accuracy < 0.9 {
		t.Errorf("held-out accuracy = %.3f on separable corpus, want >= 0.9", tp.Eval.Accuracy)
	}
	if len(tp.Ranking) != 2 {
		t.Errorf("ranking has %d entries, want 2", len(tp.Ranking))
	}
	if tp.Ranking[0].Name != tp.ModelName {
		t.Errorf("ranking head %q does not match selected model %q", tp.Ranking[0].Name, tp.ModelName)
	}
	if tp.TrainSamples != 40 {
		t.Errorf("TrainSamples = %d, want 40", tp.TrainSamples)
	}
}

func TestPredictMatchesLabelsOnSeparableData(t *testing.T) {
	o, err := New(Options{Trainer: fastTrainer()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tp, _, err := o.Train(context.Background(), trainingBatch(20))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	// Fresh samples the trainer never saw.
	var fresh []loader.Sample
	for i := 100; i < 110; i++ {
		fresh = append(fresh, maliciousSample(int64(i)), benignSample(int64(i)))
	}
	predictions, _, err := o.Predict(context.Background(), tp, fresh)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(predictions) != len(fresh) {
		t.Fatalf("got %d predictions for %d samples", len(predictions), len(fresh))
	}
	correct := 0
	for i, p := range predictions {
		if p.Source != fresh[i].Source {
			t.Fatalf("prediction %d is for %q, want %q", i, p.Source, fresh[i].Source)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("%s: confidence %.3f out of range", p.Source, p.Confidence)
		}
		if p.Label == fresh[i].Label {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(fresh)); acc < 0.9 {
		t.Errorf("fresh-sample accuracy = %.3f, want >= 0.9", acc)
	}
}

func TestTrainRejectsEmptyBatch(t *testing.T) {
	o, _ := New(Options{Trainer: fastTrainer()})
	if _, _, err := o.Train(context.Background(), nil); err == nil {
		t.Fatal("Train accepted an empty batch")
	}
}

func TestTrainRejectsUnlabeledSample(t *testing.T) {
	o, _ := New(Options{Trainer: fastTrainer()})
	samples := trainingBatch(3)
	samples[2].Label = loader.LabelUnknown
	_, _, err := o.Train(context.Background(), samples)
	if err == nil {
		t.Fatal("Train accepted an unlabeled sample")
	}
	if !strings.Contains(err.Error(), samples[2].Source) {
		t.Errorf("error %q does not name the unlabeled sample", err)
	}
}

func TestPredictSchemaMismatch(t *testing.T) {
	o, _ := New(Options{Trainer: fastTrainer()})
	tp, _, err := o.Train(context.Background(), trainingBatch(10))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	probe := []loader.Sample{benignSample(999)}

	stale := *tp
	stale.SchemaVersion = tp.SchemaVersion + 1
	if _, _, err := o.Predict(context.Background(), &stale, probe); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("version drift: err = %v, want ErrSchemaMismatch", err)
	}

	renamed := *tp
	renamed.FeatureNames = append([]string(nil), tp.FeatureNames...)
	renamed.FeatureNames[0] = "retired_feature"
	if _, _, err := o.Predict(context.Background(), &renamed, probe); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("renamed feature: err = %v, want ErrSchemaMismatch", err)
	}

	narrower := *tp
	narrower.FeatureNames = tp.FeatureNames[:len(tp.FeatureNames)-1]
	if _, _, err := o.Predict(context.Background(), &narrower, probe); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("missing feature: err = %v, want ErrSchemaMismatch", err)
	}
}

func TestPredictRejectsIncompletePipeline(t *testing.T) {
	o, _ := New(Options{Trainer: fastTrainer()})
	if _, _, err := o.Predict(context.Background(), nil, nil); err == nil {
		t.Fatal("Predict accepted a nil pipeline")
	}
	if _, _, err := o.Predict(context.Background(), &TrainedPipeline{}, nil); err == nil {
		t.Fatal("Predict accepted a pipeline without a model")
	}
}

type countingMetrics struct {
	mu          sync.Mutex
	extractions int
	cacheHits   int
	durations   int
	predictions int
}

func (m *countingMetrics) ExtractionsInc() {
	m.mu.Lock()
	m.extractions++
	m.mu.Unlock()
}

func (m *countingMetrics) ExtractionCacheHitsInc() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *countingMetrics) ExtractionDurationObserve(time.Duration) {
	m.mu.Lock()
	m.durations++
	m.mu.Unlock()
}

func (m *countingMetrics) TrainingDuration(time.Duration) {}
func (m *countingMetrics) PredictionsInc()                { m.mu.Lock(); m.predictions++; m.mu.Unlock() }
func (m *countingMetrics) PredictionScoreObserve(float64) {}

func TestExtractBatchDeduplicatesByContent(t *testing.T) {
	metrics := &countingMetrics{}
	// Single worker makes hit accounting deterministic.
	o, err := New(Options{Workers: 1, Metrics: metrics, Trainer: fastTrainer()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	base := benignSample(1)
	dup := base
	dup.Source = "copy-of-" + base.Source
	other := maliciousSample(1)
	records, _, err := o.extractBatch(context.Background(), []loader.Sample{base, dup, other, dup})
	if err != nil {
		t.Fatalf("extractBatch: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	if metrics.extractions != 2 {
		t.Errorf("extractions = %d, want 2 (one per distinct content)", metrics.extractions)
	}
	if metrics.cacheHits != 2 {
		t.Errorf("cache hits = %d, want 2", metrics.cacheHits)
	}
	if metrics.durations != 2 {
		t.Errorf("duration observations = %d, want one per real extraction", metrics.durations)
	}
	// Duplicates carry identical feature vectors.
	for name, v := range records[1].Values {
		if records[3].Values[name] != v {
			t.Errorf("duplicate content diverges on %s: %v vs %v", name, v, records[3].Values[name])
		}
	}
}

func TestTrainHonorsCancellation(t *testing.T) {
	o, _ := New(Options{Trainer: fastTrainer()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := o.Train(ctx, trainingBatch(10)); err == nil {
		t.Fatal("Train ignored a canceled context")
	}
}

func TestDiagnosticsFromWarnings(t *testing.T) {
	if got := DiagnosticsFromWarnings(nil); got != nil {
		t.Errorf("nil warnings produced %v", got)
	}
	warnings := []loader.Warning{{Path: "/corpus/a.bin", Err: errors.New("permission denied")}}
	diags := DiagnosticsFromWarnings(warnings)
	if len(diags) != 1 || diags[0].Source != "/corpus/a.bin" || diags[0].Detail != "permission denied" {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
}
