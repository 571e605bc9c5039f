package ml

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Spec declares one panel member: a name and a constructor. The panel is
// explicit configuration passed into the trainer, not ambient state, so
// tests can substitute panels freely.
type Spec struct {
	Name string
	New  func(seed int64) Classifier
}

// DefaultPanel returns the standard five-candidate panel: tree ensemble,
// linear, boosting, neighbour-based and margin-based classifiers.
func DefaultPanel() []Spec {
	return []Spec{
		{Name: "RandomForest", New: func(seed int64) Classifier { return NewRandomForest(seed) }},
		{Name: "LogisticRegression", New: func(int64) Classifier { return NewLogisticRegression() }},
		{Name: "GradientBoosting", New: func(int64) Classifier { return NewGradientBoosting() }},
		{Name: "KNN", New: func(int64) Classifier { return NewKNN() }},
		{Name: "SVM", New: func(int64) Classifier { return NewLinearSVM() }},
	}
}

// PanelSubset filters DefaultPanel down to the named members, preserving
// declaration order. Unknown names are reported rather than ignored.
func PanelSubset(names []string) ([]Spec, error) {
	if len(names) == 0 {
		return DefaultPanel(), nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var panel []Spec
	for _, spec := range DefaultPanel() {
		if wanted[spec.Name] {
			panel = append(panel, spec)
			delete(wanted, spec.Name)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for n := range wanted {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("ml: unknown panel members: %s", strings.Join(unknown, ", "))
	}
	return panel, nil
}

// TaskClassification is the only task type the panel currently supports.
// Regression panels are a plausible extension but none of the models here
// implement one.
const TaskClassification = "classification"

// Config controls one training run.
type Config struct {
	TaskType        string  // default classification; anything else is rejected
	Panel           []Spec
	HeldOutFraction float64 // evaluation split fraction, default 0.2
	PrimaryMetric   string  // ranking metric, default accuracy
	Seed            int64   // split and model seed, default 42
}

func (c Config) withDefaults() Config {
	if c.TaskType == "" {
		c.TaskType = TaskClassification
	}
	if c.Panel == nil {
		c.Panel = DefaultPanel()
	}
	if c.HeldOutFraction <= 0 || c.HeldOutFraction >= 1 {
		c.HeldOutFraction = 0.2
	}
	if c.PrimaryMetric == "" {
		c.PrimaryMetric = "accuracy"
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	return c
}

// Candidate is one panel member's outcome: its fitted model and held-out
// evaluation, or a failure record. Failed candidates are excluded from
// ranking but still reported.
type Candidate struct {
	Name       string
	Model      Classifier
	Eval       Evaluation
	TrainTime  time.Duration
	Failed     bool
	FailReason string
}

// AutoTrainer fits the configured panel and ranks the candidates.
type AutoTrainer struct {
	cfg Config
}

// NewAutoTrainer builds a trainer from cfg, applying defaults.
func NewAutoTrainer(cfg Config) *AutoTrainer {
	return &AutoTrainer{cfg: cfg.withDefaults()}
}

// Train fits every panel candidate against an internal held-out split of
// (X, y) and returns the candidates ranked best-first. Candidates fit
// concurrently; one candidate's failure (including a panic) never aborts
// the others. When every candidate fails the run fails with
// ErrNoViableModel.
func (t *AutoTrainer) Train(X [][]float64, y []int) ([]Candidate, error) {
	if t.cfg.TaskType != TaskClassification {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTask, t.cfg.TaskType)
	}
	if err := validateTrainingData(X, y); err != nil {
		return nil, fmt.Errorf("ml: train: %w", err)
	}

	trainX, trainY, testX, testY := split(X, y, t.cfg.HeldOutFraction, t.cfg.Seed)
	log.Info().Int("train", len(trainX)).Int("held_out", len(testX)).
		Int("panel", len(t.cfg.Panel)).Str("primary_metric", t.cfg.PrimaryMetric).
		Msg("training panel")

	candidates := make([]Candidate, len(t.cfg.Panel))
	var wg sync.WaitGroup
	for i, spec := range t.cfg.Panel {
		wg.Add(1)
		go func(i int, spec Spec) {
			defer wg.Done()
			candidates[i] = t.fitCandidate(spec, trainX, trainY, testX, testY)
		}(i, spec)
	}
	wg.Wait()

	ranked := rank(candidates, t.cfg.PrimaryMetric)
	if ranked[0].Failed {
		reasons := make([]string, 0, len(ranked))
		for _, c := range ranked {
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.Name, c.FailReason))
		}
		return nil, fmt.Errorf("%w: %s", ErrNoViableModel, strings.Join(reasons, "; "))
	}

	best := ranked[0]
	log.Info().Str("model", best.Name).
		Float64("accuracy", best.Eval.Accuracy).Float64("f1", best.Eval.F1).
		Msg("panel ranked")
	return ranked, nil
}

// fitCandidate trains and evaluates one panel member, converting errors
// and panics into a failure record.
func (t *AutoTrainer) fitCandidate(spec Spec, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (c Candidate) {
	c = Candidate{Name: spec.Name}
	defer func() {
		if r := recover(); r != nil {
			c.Failed = true
			c.FailReason = fmt.Sprintf("panic: %v", r)
			log.Error().Str("candidate", spec.Name).Interface("panic", r).Msg("candidate panicked")
		}
	}()

	model := spec.New(t.cfg.Seed)
	start := time.Now()
	if err := model.Fit(trainX, trainY); err != nil {
		c.Failed = true
		c.FailReason = err.Error()
		log.Warn().Err(err).Str("candidate", spec.Name).Msg("candidate failed to fit")
		return c
	}
	c.TrainTime = time.Since(start)

	eval, err := Evaluate(model, testX, testY)
	if err != nil {
		c.Failed = true
		c.FailReason = fmt.Sprintf("evaluate: %v", err)
		return c
	}

	c.Model = model
	c.Eval = eval
	log.Debug().Str("candidate", spec.Name).Float64("accuracy", eval.Accuracy).
		Float64("f1", eval.F1).Dur("train_time", c.TrainTime).Msg("candidate evaluated")
	return c
}

// rank orders candidates by the primary metric descending, breaking ties
// by F1 and then by panel declaration order, so the winner is
// deterministic for identical input and configuration. Failed candidates
// sort last.
func rank(candidates []Candidate, primaryMetric string) []Candidate {
	type indexed struct {
		c     Candidate
		order int
	}
	idx := make([]indexed, len(candidates))
	for i, c := range candidates {
		idx[i] = indexed{c: c, order: i}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := idx[a].c, idx[b].c
		if ca.Failed != cb.Failed {
			return !ca.Failed
		}
		if ca.Failed {
			return idx[a].order < idx[b].order
		}
		pa, pb := ca.Eval.MetricValue(primaryMetric), cb.Eval.MetricValue(primaryMetric)
		if pa != pb {
			return pa > pb
		}
		if ca.Eval.F1 != cb.Eval.F1 {
			return ca.Eval.F1 > cb.Eval.F1
		}
		return idx[a].order < idx[b].order
	})

	out := make([]Candidate, len(idx))
	for i, v := range idx {
		out[i] = v.c
	}
	return out
}

// split shuffles indices with the configured seed and carves off the
// held-out fraction. At least one sample lands on each side.
func split(X [][]float64, y []int, fraction float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	n := len(X)
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	testN := int(float64(n) * fraction)
	if testN < 1 {
		testN = 1
	}
	if testN >= n {
		testN = n - 1
	}

	for i, p := range perm {
		if i < testN {
			testX = append(testX, X[p])
			testY = append(testY, y[p])
		} else {
			trainX = append(trainX, X[p])
			trainY = append(trainY, y[p])
		}
	}
	return trainX, trainY, testX, testY
}
