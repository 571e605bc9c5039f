package ml

// Evaluation holds the held-out metrics of one candidate. The confusion
// matrix is indexed [actual][predicted] with class 1 (malicious) as the
// positive class.
type Evaluation struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	Confusion [numClasses][numClasses]int
	Samples   int
}

// Evaluate scores a fitted classifier on the held-out split. F1 is always
// derived from the computed precision and recall, never reported as a
// placeholder.
func Evaluate(c Classifier, X [][]float64, y []int) (Evaluation, error) {
	var ev Evaluation
	ev.Samples = len(X)

	correct := 0
	for i, row := range X {
		label, _, err := Predict(c, row)
		if err != nil {
			return Evaluation{}, err
		}
		ev.Confusion[y[i]][label]++
		if label == y[i] {
			correct++
		}
	}

	if ev.Samples > 0 {
		ev.Accuracy = float64(correct) / float64(ev.Samples)
	}

	tp := float64(ev.Confusion[1][1])
	fp := float64(ev.Confusion[0][1])
	fn := float64(ev.Confusion[1][0])
	if tp+fp > 0 {
		ev.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		ev.Recall = tp / (tp + fn)
	}
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}
	return ev, nil
}

// MetricValue reads one named metric from the evaluation. Unknown names
// fall back to accuracy, the default primary metric.
func (ev Evaluation) MetricValue(name string) float64 {
	switch name {
	case "f1":
		return ev.F1
	case "precision":
		return ev.Precision
	case "recall":
		return ev.Recall
	default:
		return ev.Accuracy
	}
}
