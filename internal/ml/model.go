// Package ml implements the classifier panel and the automated
// multi-candidate trainer. Every model is a native implementation with
// gob-encodable state, deterministic for a fixed seed, exposing the same
// Fit / PredictProba contract so the trainer can treat the panel uniformly.
package ml

import (
	"errors"
	"fmt"
	"math"
)

// Class indices used throughout the package: 0 benign, 1 malicious.
const numClasses = 2

// ErrNoViableModel is returned by the trainer when every panel candidate
// failed to fit: the caller gets an explicit signal, never an empty
// ranking.
var ErrNoViableModel = errors.New("ml: no viable model")

// ErrUnsupportedTask is returned by the trainer when Config.TaskType names
// a task the panel has no models for.
var ErrUnsupportedTask = errors.New("ml: unsupported task type")

// Classifier is the common contract for all panel models.
type Classifier interface {
	// Name identifies the classifier type.
	Name() string
	// Fit trains on X (rows = samples) with binary labels y in {0, 1}.
	Fit(X [][]float64, y []int) error
	// PredictProba returns the class probability distribution for one
	// sample: index 0 benign, index 1 malicious.
	PredictProba(x []float64) ([]float64, error)
}

// Predict returns the argmax class and its probability.
func Predict(c Classifier, x []float64) (label int, confidence float64, err error) {
	proba, err := c.PredictProba(x)
	if err != nil {
		return 0, 0, err
	}
	for i, p := range proba {
		if p > confidence {
			confidence = p
			label = i
		}
	}
	return label, confidence, nil
}

// validateTrainingData enforces the shared preconditions: non-empty data,
// aligned labels, binary label values, and both classes present (a
// single-class set cannot fit a discriminative binary classifier).
func validateTrainingData(X [][]float64, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("%d samples but %d labels", len(X), len(y))
	}
	var seen [numClasses]bool
	for i, label := range y {
		if label < 0 || label >= numClasses {
			return fmt.Errorf("sample %d: label %d outside {0, 1}", i, label)
		}
		seen[label] = true
	}
	if !seen[0] || !seen[1] {
		return fmt.Errorf("training data contains a single class")
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("sample %d: %d columns, want %d", i, len(row), width)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
