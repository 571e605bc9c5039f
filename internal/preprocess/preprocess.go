// Package preprocess turns feature records into model-ready numeric
// matrices. Fitting captures per-column imputation means, the categorical
// format vocabulary and scaling parameters; transforming applies exactly
// those fit-time statistics to any record set, so held-out and
// inference-time data never leak into the transform.
package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"binsift/internal/features"
)

// unknownCode is the reserved encoding for categories unseen at fit time.
const unknownCode = 0

// FittedTransform is the frozen set of statistics learned by Fit. It is
// immutable after fitting; re-fitting produces a new value. All fields are
// exported for gob serialization inside pipeline artifacts.
type FittedTransform struct {
	FeatureNames  []string
	SchemaVersion int
	Means         []float64      // imputation value per numeric column
	Scales        []float64      // z-score divisor per column (never 0)
	Offsets       []float64      // z-score mean per column
	FormatVocab   map[string]int // category -> code, codes start at 1
}

// Columns returns the total matrix width: numeric features plus the
// encoded format column.
func (ft *FittedTransform) Columns() int {
	return len(ft.FeatureNames) + 1
}

// Fit learns imputation, encoding and scaling statistics from records.
// Labels are accepted only so callers keep records and labels aligned;
// they never influence the transform. Returns an error on empty input or
// misaligned labels.
func Fit(records []features.Record, labels []int) (*FittedTransform, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("preprocess: fit requires at least one record")
	}
	if labels != nil && len(labels) != len(records) {
		return nil, fmt.Errorf("preprocess: %d records but %d labels", len(records), len(labels))
	}

	names := features.Names()
	ft := &FittedTransform{
		FeatureNames:  names,
		SchemaVersion: features.SchemaVersion,
		FormatVocab:   make(map[string]int),
	}

	// Categorical vocabulary, first-seen order. Code 0 is reserved for
	// categories unseen at fit time.
	for _, r := range records {
		if _, ok := ft.FormatVocab[r.Format]; !ok {
			ft.FormatVocab[r.Format] = len(ft.FormatVocab) + 1
		}
	}

	cols := ft.Columns()
	ft.Means = make([]float64, cols)
	ft.Offsets = make([]float64, cols)
	ft.Scales = make([]float64, cols)

	column := make([]float64, 0, len(records))
	for j := 0; j < cols; j++ {
		column = column[:0]
		for _, r := range records {
			v := rawValue(ft, r, j)
			if isFinite(v) {
				column = append(column, v)
			}
		}
		if len(column) > 0 {
			ft.Means[j] = stat.Mean(column, nil)
			ft.Offsets[j] = ft.Means[j]
			ft.Scales[j] = stat.StdDev(column, nil)
		}
		if !isFinite(ft.Scales[j]) || ft.Scales[j] == 0 {
			ft.Scales[j] = 1
		}
	}

	return ft, nil
}

// Transform applies the fit-time statistics to records and returns the
// numeric matrix, rows aligned 1:1 with the input. It is a pure function
// of the transform and the records.
func (ft *FittedTransform) Transform(records []features.Record) ([][]float64, error) {
	if ft == nil {
		return nil, fmt.Errorf("preprocess: nil transform")
	}

	cols := ft.Columns()
	matrix := make([][]float64, len(records))
	for i, r := range records {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			v := rawValue(ft, r, j)
			if !isFinite(v) {
				v = ft.Means[j] // fit-time imputation
			}
			row[j] = (v - ft.Offsets[j]) / ft.Scales[j]
		}
		matrix[i] = row
	}
	return matrix, nil
}

// rawValue reads column j of a record: schema-ordered numeric features
// first, then the encoded format. Identifiers (hashes, paths, labels)
// never enter the matrix because records carry none of them.
func rawValue(ft *FittedTransform, r features.Record, j int) float64 {
	if j < len(ft.FeatureNames) {
		return r.Values[ft.FeatureNames[j]]
	}
	if code, ok := ft.FormatVocab[r.Format]; ok {
		return float64(code)
	}
	return unknownCode
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
