// Package pipeline composes loading, feature extraction, preprocessing and
// auto-training into the two call shapes external collaborators use:
// train a pipeline from labeled samples, and predict with a trained one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"binsift/internal/features"
	"binsift/internal/loader"
	"binsift/internal/ml"
	"binsift/internal/preprocess"
)

// ErrSchemaMismatch is returned when inference-time features diverge from
// the schema captured at training time. Prediction fails explicitly
// instead of silently reindexing.
var ErrSchemaMismatch = errors.New("pipeline: feature schema mismatch")

// MetricsTracker receives pipeline observability events. A nil tracker is
// allowed and ignored.
type MetricsTracker interface {
	ExtractionsInc()
	ExtractionCacheHitsInc()
	ExtractionDurationObserve(time.Duration)
	TrainingDuration(time.Duration)
	PredictionsInc()
	PredictionScoreObserve(float64)
}

// CandidateSummary is the reportable slice of one candidate's outcome.
type CandidateSummary struct {
	Name       string        `json:"name"`
	Accuracy   float64       `json:"accuracy"`
	Precision  float64       `json:"precision"`
	Recall     float64       `json:"recall"`
	F1         float64       `json:"f1"`
	TrainTime  time.Duration `json:"train_time"`
	Failed     bool          `json:"failed,omitempty"`
	FailReason string        `json:"fail_reason,omitempty"`
}

// TrainedPipeline bundles everything inference needs: the selected fitted
// model, the fitted transform and the feature schema, plus the training
// report. Read-only after creation; a new training run supersedes it.
type TrainedPipeline struct {
	ID                string
	ModelName         string
	Model             ml.Classifier
	Transform         *preprocess.FittedTransform
	FeatureNames      []string
	SchemaVersion     int
	Eval              ml.Evaluation
	Ranking           []CandidateSummary
	StructuralCapable bool
	TrainSamples      int
	CreatedAt         time.Time
}

// Prediction is the verdict for one sample.
type Prediction struct {
	Source     string
	SHA256     string
	Label      int
	Confidence float64
	Record     features.Record
}

// Diagnostic records one isolated per-sample problem in a batch.
type Diagnostic struct {
	Source string
	Detail string
}

// DiagnosticsFromWarnings converts loader warnings into diagnostics so a
// run report carries load and extraction problems in one list.
func DiagnosticsFromWarnings(warnings []loader.Warning) []Diagnostic {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(warnings))
	for i, w := range warnings {
		out[i] = Diagnostic{Source: w.Path, Detail: w.Err.Error()}
	}
	return out
}

// Options configures an Orchestrator.
type Options struct {
	// Extractor overrides the default feature extractor.
	Extractor *features.Extractor
	// Workers sets the extraction pool size (default 4).
	Workers int
	// CacheSize bounds the content-hash feature cache (default 1024).
	CacheSize int
	// Trainer configures the auto-trainer.
	Trainer ml.Config
	// Metrics receives observability events; may be nil.
	Metrics MetricsTracker
}

// Orchestrator is the only entry point external collaborators call.
type Orchestrator struct {
	extractor *features.Extractor
	workers   int
	trainer   ml.Config
	cache     *lru.Cache[string, features.Record]
	metrics   MetricsTracker
}

// New builds an orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Extractor == nil {
		opts.Extractor = features.NewExtractor(features.Options{})
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	cache, err := lru.New[string, features.Record](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: feature cache: %w", err)
	}
	return &Orchestrator{
		extractor: opts.Extractor,
		workers:   opts.Workers,
		trainer:   opts.Trainer,
		cache:     cache,
		metrics:   opts.Metrics,
	}, nil
}

// Train runs load→extract→preprocess-fit→train→select-best over labeled
// samples and returns the winning pipeline. Per-sample problems come back
// as diagnostics; only whole-batch conditions (no samples, unlabeled
// samples, no viable model) fail the run.
func (o *Orchestrator) Train(ctx context.Context, samples []loader.Sample) (*TrainedPipeline, []Diagnostic, error) {
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("pipeline: no samples to train on")
	}
	for _, s := range samples {
		if s.Label == loader.LabelUnknown {
			return nil, nil, fmt.Errorf("pipeline: sample %s has no ground-truth label", s.Source)
		}
	}

	records, diags, err := o.extractBatch(ctx, samples)
	if err != nil {
		return nil, diags, err
	}

	labels := make([]int, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
	}

	transform, err := preprocess.Fit(records, labels)
	if err != nil {
		return nil, diags, fmt.Errorf("pipeline: preprocess fit: %w", err)
	}
	matrix, err := transform.Transform(records)
	if err != nil {
		return nil, diags, fmt.Errorf("pipeline: preprocess transform: %w", err)
	}

	start := time.Now()
	ranked, err := ml.NewAutoTrainer(o.trainer).Train(matrix, labels)
	if err != nil {
		return nil, diags, err
	}
	if o.metrics != nil {
		o.metrics.TrainingDuration(time.Since(start))
	}

	best := ranked[0]
	tp := &TrainedPipeline{
		ID:                uuid.NewString(),
		ModelName:         best.Name,
		Model:             best.Model,
		Transform:         transform,
		FeatureNames:      features.Names(),
		SchemaVersion:     features.SchemaVersion,
		Eval:              best.Eval,
		Ranking:           summarize(ranked),
		StructuralCapable: o.extractor.StructuralCapable(),
		TrainSamples:      len(samples),
		CreatedAt:         time.Now().UTC(),
	}

	log.Info().Str("pipeline_id", tp.ID).Str("model", tp.ModelName).
		Int("samples", len(samples)).Float64("accuracy", tp.Eval.Accuracy).
		Dur("elapsed", time.Since(start)).Msg("pipeline trained")
	return tp, diags, nil
}

// Predict applies a trained pipeline to new samples, reusing the exact
// fitted transform and schema captured at training time.
func (o *Orchestrator) Predict(ctx context.Context, tp *TrainedPipeline, samples []loader.Sample) ([]Prediction, []Diagnostic, error) {
	if tp == nil || tp.Model == nil || tp.Transform == nil {
		return nil, nil, fmt.Errorf("pipeline: incomplete trained pipeline")
	}
	if err := checkSchema(tp); err != nil {
		return nil, nil, err
	}

	records, diags, err := o.extractBatch(ctx, samples)
	if err != nil {
		return nil, diags, err
	}

	matrix, err := tp.Transform.Transform(records)
	if err != nil {
		return nil, diags, fmt.Errorf("pipeline: preprocess transform: %w", err)
	}

	predictions := make([]Prediction, len(samples))
	for i, row := range matrix {
		label, confidence, err := ml.Predict(tp.Model, row)
		if err != nil {
			return nil, diags, fmt.Errorf("pipeline: predict %s: %w", samples[i].Source, err)
		}
		predictions[i] = Prediction{
			Source:     samples[i].Source,
			SHA256:     samples[i].SHA256,
			Label:      label,
			Confidence: confidence,
			Record:     records[i],
		}
		if o.metrics != nil {
			o.metrics.PredictionsInc()
			o.metrics.PredictionScoreObserve(confidence)
		}
	}
	return predictions, diags, nil
}

// checkSchema verifies the persisted schema against the one this build
// extracts. Any divergence is a SchemaMismatch naming both sides.
func checkSchema(tp *TrainedPipeline) error {
	if tp.SchemaVersion != features.SchemaVersion {
		return fmt.Errorf("%w: pipeline %s has schema version %d, extractor produces %d",
			ErrSchemaMismatch, tp.ID, tp.SchemaVersion, features.SchemaVersion)
	}
	current := features.Names()
	if len(tp.FeatureNames) != len(current) {
		return fmt.Errorf("%w: pipeline %s expects %d features, extractor produces %d",
			ErrSchemaMismatch, tp.ID, len(tp.FeatureNames), len(current))
	}
	for i, name := range current {
		if tp.FeatureNames[i] != name {
			return fmt.Errorf("%w: pipeline %s expects feature %q at position %d, extractor produces %q",
				ErrSchemaMismatch, tp.ID, tp.FeatureNames[i], i, name)
		}
	}
	return nil
}

// extractBatch runs feature extraction over samples on a worker pool.
// Results are written by input index, never by completion order, and
// identical content (by SHA-256) is extracted once via the cache.
func (o *Orchestrator) extractBatch(ctx context.Context, samples []loader.Sample) ([]features.Record, []Diagnostic, error) {
	records := make([]features.Record, len(samples))
	var diags []Diagnostic

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s := samples[i]
				if cached, ok := o.cache.Get(s.SHA256); ok {
					records[i] = cached
					if o.metrics != nil {
						o.metrics.ExtractionCacheHitsInc()
					}
					continue
				}
				start := time.Now()
				r := o.extractor.ExtractAll(s.Data)
				o.cache.Add(s.SHA256, r)
				records[i] = r
				if o.metrics != nil {
					o.metrics.ExtractionsInc()
					o.metrics.ExtractionDurationObserve(time.Since(start))
				}
			}
		}()
	}

feed:
	for i := range samples {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, diags, fmt.Errorf("pipeline: extraction canceled: %w", err)
	}
	return records, diags, nil
}

func summarize(ranked []ml.Candidate) []CandidateSummary {
	out := make([]CandidateSummary, len(ranked))
	for i, c := range ranked {
		out[i] = CandidateSummary{
			Name:       c.Name,
			Accuracy:   c.Eval.Accuracy,
			Precision:  c.Eval.Precision,
			Recall:     c.Eval.Recall,
			F1:         c.Eval.F1,
			TrainTime:  c.TrainTime,
			Failed:     c.Failed,
			FailReason: c.FailReason,
		}
	}
	return out
}
