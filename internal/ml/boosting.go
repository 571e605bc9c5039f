package ml

import (
	"fmt"
	"math"
	"sort"
)

// Stump is a one-split regression tree used as the gradient-boosting weak
// learner.
type Stump struct {
	Feature   int
	Threshold float64
	LeftVal   float64
	RightVal  float64
}

func (s Stump) predict(x []float64) float64 {
	if x[s.Feature] <= s.Threshold {
		return s.LeftVal
	}
	return s.RightVal
}

// GradientBoosting fits additive regression stumps on the logistic loss.
// Fully deterministic: thresholds are scanned in feature order.
type GradientBoosting struct {
	Stumps    []Stump
	InitScore float64
	Rounds    int
	LearnRate float64
}

// NewGradientBoosting returns a booster with the defaults used by the
// standard panel.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{Rounds: 50, LearnRate: 0.1}
}

// Name implements Classifier.
func (m *GradientBoosting) Name() string { return "GradientBoosting" }

// Fit implements Classifier.
func (m *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("gradient boosting: %w", err)
	}

	n := len(X)
	pos := 0
	for _, label := range y {
		pos += label
	}
	// Initial score is the log-odds of the positive class.
	m.InitScore = math.Log(float64(pos) / float64(n-pos))
	m.Stumps = make([]Stump, 0, m.Rounds)

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = m.InitScore
	}

	residuals := make([]float64, n)
	for round := 0; round < m.Rounds; round++ {
		for i := range residuals {
			residuals[i] = float64(y[i]) - sigmoid(scores[i])
		}

		stump, ok := fitStump(X, residuals)
		if !ok {
			break
		}
		m.Stumps = append(m.Stumps, stump)
		for i, row := range X {
			scores[i] += m.LearnRate * stump.predict(row)
		}
	}
	return nil
}

// PredictProba implements Classifier.
func (m *GradientBoosting) PredictProba(x []float64) ([]float64, error) {
	if m.Stumps == nil {
		return nil, fmt.Errorf("gradient boosting: not fitted")
	}
	score := m.InitScore
	for _, s := range m.Stumps {
		score += m.LearnRate * s.predict(x)
	}
	p := sigmoid(score)
	return []float64{1 - p, p}, nil
}

// fitStump finds the single split minimizing the squared error against the
// residuals. Returns ok=false when no split separates the data.
func fitStump(X [][]float64, residuals []float64) (Stump, bool) {
	n := len(X)
	d := len(X[0])

	bestSSE := math.Inf(1)
	var best Stump
	found := false

	values := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := range X {
			values[i] = X[i][j]
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		for k := 1; k < n; k++ {
			if sorted[k] == sorted[k-1] {
				continue
			}
			threshold := (sorted[k] + sorted[k-1]) / 2

			var lSum, rSum float64
			var lN, rN int
			for i := range X {
				if X[i][j] <= threshold {
					lSum += residuals[i]
					lN++
				} else {
					rSum += residuals[i]
					rN++
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			lMean := lSum / float64(lN)
			rMean := rSum / float64(rN)

			var sse float64
			for i := range X {
				var pred float64
				if X[i][j] <= threshold {
					pred = lMean
				} else {
					pred = rMean
				}
				diff := residuals[i] - pred
				sse += diff * diff
			}
			if sse < bestSSE {
				bestSSE = sse
				best = Stump{Feature: j, Threshold: threshold, LeftVal: lMean, RightVal: rMean}
				found = true
			}
		}
	}
	return best, found
}
