package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// RandomForest is a bagged ensemble of decorrelated CART trees.
// Deterministic for a fixed Seed: bootstrap draws and per-tree feature
// subsets come from one seeded source.
type RandomForest struct {
	Trees    []*DecisionTree
	NTrees   int
	MaxDepth int
	Seed     int64
}

// NewRandomForest returns a forest with the defaults used by the standard
// panel (100 trees, like the reference configuration).
func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{NTrees: 100, MaxDepth: 10, Seed: seed}
}

// Name implements Classifier.
func (m *RandomForest) Name() string { return "RandomForest" }

// Fit implements Classifier.
func (m *RandomForest) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("random forest: %w", err)
	}

	n := len(X)
	maxFeatures := int(math.Sqrt(float64(len(X[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rng := rand.New(rand.NewSource(m.Seed))
	m.Trees = make([]*DecisionTree, 0, m.NTrees)

	bx := make([][]float64, n)
	by := make([]int, n)
	for t := 0; t < m.NTrees; t++ {
		for i := 0; i < n; i++ {
			k := rng.Intn(n)
			bx[i] = X[k]
			by[i] = y[k]
		}

		tree := &DecisionTree{
			MaxDepth:    m.MaxDepth,
			MinSamples:  2,
			MaxFeatures: maxFeatures,
			Seed:        rng.Int63(),
		}
		// A bootstrap draw can come out single-class; such trees are
		// skipped rather than failing the whole ensemble.
		if err := tree.Fit(bx, by); err != nil {
			continue
		}
		m.Trees = append(m.Trees, tree)
	}

	if len(m.Trees) == 0 {
		return fmt.Errorf("random forest: no tree could be fitted")
	}
	return nil
}

// PredictProba implements Classifier. The forest probability is the mean
// of the member trees' leaf distributions.
func (m *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("random forest: not fitted")
	}
	sum := make([]float64, numClasses)
	for _, tree := range m.Trees {
		p, err := tree.PredictProba(x)
		if err != nil {
			return nil, err
		}
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(m.Trees))
	return []float64{sum[0] / n, sum[1] / n}, nil
}
