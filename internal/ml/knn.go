package ml

import (
	"fmt"
	"math"
	"sort"
)

// KNN is a k-nearest-neighbour classifier with Euclidean distance and
// uniform votes. Ties in distance are broken by training index so
// prediction is deterministic.
type KNN struct {
	K      int
	TrainX [][]float64
	TrainY []int
}

// NewKNN returns a neighbour model with the panel default k=5.
func NewKNN() *KNN {
	return &KNN{K: 5}
}

// Name implements Classifier.
func (m *KNN) Name() string { return "KNN" }

// Fit implements Classifier. KNN is a lazy learner: fitting stores the
// training set after validation.
func (m *KNN) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	m.TrainX = X
	m.TrainY = y
	return nil
}

// PredictProba implements Classifier.
func (m *KNN) PredictProba(x []float64) ([]float64, error) {
	if len(m.TrainX) == 0 {
		return nil, fmt.Errorf("knn: not fitted")
	}
	if len(x) != len(m.TrainX[0]) {
		return nil, fmt.Errorf("knn: %d features, model expects %d", len(x), len(m.TrainX[0]))
	}

	type neighbour struct {
		dist  float64
		index int
	}
	neighbours := make([]neighbour, len(m.TrainX))
	for i, row := range m.TrainX {
		var d float64
		for j := range row {
			diff := row[j] - x[j]
			d += diff * diff
		}
		neighbours[i] = neighbour{dist: math.Sqrt(d), index: i}
	}
	sort.Slice(neighbours, func(a, b int) bool {
		if neighbours[a].dist != neighbours[b].dist {
			return neighbours[a].dist < neighbours[b].dist
		}
		return neighbours[a].index < neighbours[b].index
	})

	k := m.K
	if k > len(neighbours) {
		k = len(neighbours)
	}
	var votes [numClasses]int
	for _, nb := range neighbours[:k] {
		votes[m.TrainY[nb.index]]++
	}
	total := float64(k)
	return []float64{float64(votes[0]) / total, float64(votes[1]) / total}, nil
}
