package ml

import (
	"math/rand"
	"testing"
)

// separableData builds two well-separated Gaussian-ish clusters: class 0
// near the origin, class 1 offset by 5 in every dimension.
func separableData(n, dims int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		row := make([]float64, dims)
		label := i % 2
		for j := range row {
			row[j] = rng.NormFloat64()*0.5 + float64(label)*5
		}
		X[i] = row
		y[i] = label
	}
	return X, y
}

func fitAndScore(t *testing.T, c Classifier, X [][]float64, y []int) float64 {
	t.Helper()
	if err := c.Fit(X, y); err != nil {
		t.Fatalf("%s: Fit: %v", c.Name(), err)
	}
	ev, err := Evaluate(c, X, y)
	if err != nil {
		t.Fatalf("%s: Evaluate: %v", c.Name(), err)
	}
	return ev.Accuracy
}

func TestPanelModels_SeparableData(t *testing.T) {
	t.Parallel()

	X, y := separableData(120, 4, 1)
	models := []Classifier{
		NewRandomForest(42),
		NewLogisticRegression(),
		NewGradientBoosting(),
		NewKNN(),
		NewLinearSVM(),
		NewDecisionTree(),
	}
	for _, m := range models {
		if acc := fitAndScore(t, m, X, y); acc < 0.95 {
			t.Errorf("%s: accuracy %f on separable data, want >= 0.95", m.Name(), acc)
		}
	}
}

func TestPanelModels_NotFitted(t *testing.T) {
	t.Parallel()

	models := []Classifier{
		NewRandomForest(42),
		NewLogisticRegression(),
		NewGradientBoosting(),
		NewKNN(),
		NewLinearSVM(),
		NewDecisionTree(),
	}
	x := []float64{1, 2, 3, 4}
	for _, m := range models {
		if _, err := m.PredictProba(x); err == nil {
			t.Errorf("%s: expected not-fitted error", m.Name())
		}
	}
}

func TestPanelModels_SingleClassFails(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	y := []int{1, 1, 1}
	models := []Classifier{
		NewRandomForest(42),
		NewLogisticRegression(),
		NewGradientBoosting(),
		NewKNN(),
		NewLinearSVM(),
	}
	for _, m := range models {
		if err := m.Fit(X, y); err == nil {
			t.Errorf("%s: expected error fitting single-class data", m.Name())
		}
	}
}

func TestPanelModels_ProbabilitiesSumToOne(t *testing.T) {
	t.Parallel()

	X, y := separableData(80, 3, 2)
	models := []Classifier{
		NewRandomForest(7),
		NewLogisticRegression(),
		NewGradientBoosting(),
		NewKNN(),
		NewLinearSVM(),
	}
	probe := []float64{2.5, 2.5, 2.5}
	for _, m := range models {
		if err := m.Fit(X, y); err != nil {
			t.Fatalf("%s: %v", m.Name(), err)
		}
		p, err := m.PredictProba(probe)
		if err != nil {
			t.Fatalf("%s: %v", m.Name(), err)
		}
		if len(p) != 2 {
			t.Fatalf("%s: %d probabilities, want 2", m.Name(), len(p))
		}
		sum := p[0] + p[1]
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("%s: probabilities sum to %f", m.Name(), sum)
		}
	}
}

func TestRandomForest_Deterministic(t *testing.T) {
	t.Parallel()

	X, y := separableData(60, 4, 3)
	probe := []float64{1, 1, 1, 1}

	a := NewRandomForest(99)
	b := NewRandomForest(99)
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	pa, _ := a.PredictProba(probe)
	pb, _ := b.PredictProba(probe)
	if pa[1] != pb[1] {
		t.Errorf("same seed produced different forests: %f vs %f", pa[1], pb[1])
	}
}

func TestKNN_DimensionMismatch(t *testing.T) {
	t.Parallel()

	X, y := separableData(20, 3, 4)
	m := NewKNN()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if _, err := m.PredictProba([]float64{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestValidateTrainingData(t *testing.T) {
	t.Parallel()

	if err := validateTrainingData(nil, nil); err == nil {
		t.Error("empty data should fail")
	}
	if err := validateTrainingData([][]float64{{1}}, []int{0, 1}); err == nil {
		t.Error("misaligned labels should fail")
	}
	if err := validateTrainingData([][]float64{{1}, {2}}, []int{0, 2}); err == nil {
		t.Error("out-of-range label should fail")
	}
	if err := validateTrainingData([][]float64{{1}, {2, 3}}, []int{0, 1}); err == nil {
		t.Error("ragged rows should fail")
	}
	if err := validateTrainingData([][]float64{{1}, {2}}, []int{0, 1}); err != nil {
		t.Errorf("valid data rejected: %v", err)
	}
}
