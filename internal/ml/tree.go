package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a CART decision tree. Exported fields keep the
// tree gob-encodable inside persisted pipelines.
type TreeNode struct {
	Leaf      bool
	Proba     [numClasses]float64
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
}

// DecisionTree is a binary CART classifier splitting on information gain.
type DecisionTree struct {
	Root        *TreeNode
	MaxDepth    int
	MinSamples  int
	MaxFeatures int // features considered per split; 0 = all
	Seed        int64
}

// NewDecisionTree returns a tree with the defaults used by the standard
// panel.
func NewDecisionTree() *DecisionTree {
	return &DecisionTree{MaxDepth: 10, MinSamples: 2}
}

// Name implements Classifier.
func (m *DecisionTree) Name() string { return "DecisionTree" }

// Fit implements Classifier.
func (m *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := validateTrainingData(X, y); err != nil {
		return fmt.Errorf("decision tree: %w", err)
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(m.Seed))
	m.Root = m.grow(X, y, idx, 0, rng)
	return nil
}

// PredictProba implements Classifier.
func (m *DecisionTree) PredictProba(x []float64) ([]float64, error) {
	if m.Root == nil {
		return nil, fmt.Errorf("decision tree: not fitted")
	}
	node := m.Root
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return []float64{node.Proba[0], node.Proba[1]}, nil
}

func (m *DecisionTree) grow(X [][]float64, y []int, idx []int, depth int, rng *rand.Rand) *TreeNode {
	var counts [numClasses]int
	for _, i := range idx {
		counts[y[i]]++
	}

	node := &TreeNode{}
	total := float64(len(idx))
	node.Proba[0] = float64(counts[0]) / total
	node.Proba[1] = float64(counts[1]) / total

	pure := counts[0] == 0 || counts[1] == 0
	if pure || depth >= m.MaxDepth || len(idx) < m.MinSamples {
		node.Leaf = true
		return node
	}

	feature, threshold, gain := m.bestSplit(X, y, idx, rng)
	if gain <= 0 {
		node.Leaf = true
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		node.Leaf = true
		return node
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = m.grow(X, y, left, depth+1, rng)
	node.Right = m.grow(X, y, right, depth+1, rng)
	return node
}

// bestSplit scans candidate features for the threshold with the highest
// information gain. When MaxFeatures is set, a random subset of features
// is considered, which is what makes forest trees decorrelated.
func (m *DecisionTree) bestSplit(X [][]float64, y []int, idx []int, rng *rand.Rand) (int, float64, float64) {
	d := len(X[0])
	candidates := make([]int, d)
	for j := range candidates {
		candidates[j] = j
	}
	if m.MaxFeatures > 0 && m.MaxFeatures < d {
		rng.Shuffle(d, func(a, b int) { candidates[a], candidates[b] = candidates[b], candidates[a] })
		candidates = candidates[:m.MaxFeatures]
		sort.Ints(candidates) // deterministic scan order for a given draw
	}

	parent := labelEntropy(y, idx)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	values := make([]float64, 0, len(idx))
	for _, j := range candidates {
		values = values[:0]
		for _, i := range idx {
			values = append(values, X[i][j])
		}
		sort.Float64s(values)

		for k := 1; k < len(values); k++ {
			if values[k] == values[k-1] {
				continue
			}
			threshold := (values[k] + values[k-1]) / 2

			var lc, rc [numClasses]int
			for _, i := range idx {
				if X[i][j] <= threshold {
					lc[y[i]]++
				} else {
					rc[y[i]]++
				}
			}
			ln := float64(lc[0] + lc[1])
			rn := float64(rc[0] + rc[1])
			total := ln + rn
			child := (ln/total)*countEntropy(lc) + (rn/total)*countEntropy(rc)
			if gain := parent - child; gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func labelEntropy(y []int, idx []int) float64 {
	var counts [numClasses]int
	for _, i := range idx {
		counts[y[i]]++
	}
	return countEntropy(counts)
}

func countEntropy(counts [numClasses]int) float64 {
	total := float64(counts[0] + counts[1])
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}
