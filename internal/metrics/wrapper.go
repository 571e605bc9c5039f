package metrics

import "time"

// Tracker adapts Metrics to the narrow observer interfaces the pipeline
// and loader packages accept, avoiding circular imports.
type Tracker struct {
	m *Metrics
}

func NewTracker(m *Metrics) *Tracker {
	return &Tracker{m: m}
}

func (t *Tracker) ExtractionsInc() {
	t.m.Extractions.Inc()
}

func (t *Tracker) ExtractionCacheHitsInc() {
	t.m.ExtractionCacheHits.Inc()
}

func (t *Tracker) ExtractionDurationObserve(d time.Duration) {
	t.m.ExtractionDuration.Observe(d.Seconds())
}

func (t *Tracker) TrainingDuration(d time.Duration) {
	t.m.TrainingDuration.Observe(d.Seconds())
}

func (t *Tracker) PredictionsInc() {
	t.m.Predictions.Inc()
}

func (t *Tracker) PredictionScoreObserve(score float64) {
	t.m.PredictionScores.Observe(score)
}

// RecordLoad tallies one completed corpus load.
func (t *Tracker) RecordLoad(samples, warnings, bytes int) {
	t.m.SamplesLoaded.Add(float64(samples))
	t.m.LoadWarnings.Add(float64(warnings))
	t.m.BytesLoaded.Add(float64(bytes))
}

// RecordTrainingOutcome publishes the selected model's held-out quality and
// resets the model age.
func (t *Tracker) RecordTrainingOutcome(accuracy float64, failures int) {
	t.m.ModelAccuracy.Set(accuracy)
	t.m.ModelAge.Set(0)
	t.m.CandidateFailures.Add(float64(failures))
}
