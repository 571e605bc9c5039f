package ml

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is a binary logistic classifier fit by full-batch
// gradient descent with L2 regularization. Deterministic: no sampling.
type LogisticRegression struct {
	Weights   []float64
	Bias      float64
	LearnRate float64
	Epochs    int
	L2        float64
}

// NewLogisticRegression returns a logistic model with the defaults used by
// the standard panel.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{LearnRate: 0.1, Epochs: 500, L2: 1e-4}
}

// Name implements Classifier.
func (m *LogisticRegression) Name() string { return "LogisticRegression" }

// Fit implements Classifier.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("logistic regression: %w", err)
	}

	n := len(X)
	d := len(X[0])
	m.Weights = make([]float64, d)
	m.Bias = 0

	grad := make([]float64, d)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		var biasGrad float64
		for i, row := range X {
			p := sigmoid(floats.Dot(m.Weights, row) + m.Bias)
			residual := p - float64(y[i])
			floats.AddScaled(grad, residual, row)
			biasGrad += residual
		}
		scale := m.LearnRate / float64(n)
		floats.AddScaled(m.Weights, -m.LearnRate*m.L2, m.Weights)
		floats.AddScaled(m.Weights, -scale, grad)
		m.Bias -= scale * biasGrad
	}
	return nil
}

// PredictProba implements Classifier.
func (m *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, fmt.Errorf("logistic regression: not fitted")
	}
	if len(x) != len(m.Weights) {
		return nil, fmt.Errorf("logistic regression: %d features, model expects %d", len(x), len(m.Weights))
	}
	p := sigmoid(floats.Dot(m.Weights, x) + m.Bias)
	return []float64{1 - p, p}, nil
}

// LinearSVM is a margin-based classifier fit by subgradient descent on the
// hinge loss. Probabilities come from a fixed sigmoid calibration of the
// margin.
type LinearSVM struct {
	Weights   []float64
	Bias      float64
	Lambda    float64
	Epochs    int
	LearnRate float64
}

// NewLinearSVM returns an SVM with the defaults used by the standard panel.
func NewLinearSVM() *LinearSVM {
	return &LinearSVM{Lambda: 1e-3, Epochs: 300, LearnRate: 0.05}
}

// Name implements Classifier.
func (m *LinearSVM) Name() string { return "SVM" }

// Fit implements Classifier.
func (m *LinearSVM) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("svm: %w", err)
	}

	d := len(X[0])
	m.Weights = make([]float64, d)
	m.Bias = 0

	for epoch := 0; epoch < m.Epochs; epoch++ {
		// Step size decays per epoch; samples visited in fixed order so
		// fitting stays deterministic.
		lr := m.LearnRate / (1 + m.Lambda*float64(epoch))
		for i, row := range X {
			target := float64(2*y[i] - 1) // {-1, +1}
			margin := target * (floats.Dot(m.Weights, row) + m.Bias)
			floats.AddScaled(m.Weights, -lr*m.Lambda, m.Weights)
			if margin < 1 {
				floats.AddScaled(m.Weights, lr*target, row)
				m.Bias += lr * target
			}
		}
	}
	return nil
}

// PredictProba implements Classifier.
func (m *LinearSVM) PredictProba(x []float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, fmt.Errorf("svm: not fitted")
	}
	if len(x) != len(m.Weights) {
		return nil, fmt.Errorf("svm: %d features, model expects %d", len(x), len(m.Weights))
	}
	p := sigmoid(floats.Dot(m.Weights, x) + m.Bias)
	return []float64{1 - p, p}, nil
}
