package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ScoreFunc compares predicted labels against true labels and returns a
// value in [0, 1], higher is better.
type ScoreFunc func(yTrue, yPred []int) float64

// Accuracy is the fraction of exactly matching labels.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// F1Macro is the unweighted mean of per-class F1 scores. Classes absent
// from both yTrue and yPred contribute nothing.
func F1Macro(yTrue, yPred []int) float64 {
	tp := make(map[int]float64)
	fp := make(map[int]float64)
	fn := make(map[int]float64)
	seen := make(map[int]bool)
	for i := range yTrue {
		seen[yTrue[i]] = true
		seen[yPred[i]] = true
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	var sum float64
	for label := range seen {
		denom := 2*tp[label] + fp[label] + fn[label]
		if denom > 0 {
			sum += 2 * tp[label] / denom
		}
	}
	return sum / float64(len(seen))
}

// ScorerByName resolves a scoring metric name. An empty name selects
// accuracy, matching the pipeline default.
func ScorerByName(name string) (ScoreFunc, error) {
	switch name {
	case "", "accuracy":
		return Accuracy, nil
	case "f1":
		return F1Macro, nil
	default:
		return nil, fmt.Errorf("unrecognized scoring method %q", name)
	}
}

// Score fits nothing; it predicts with an already fitted estimator and
// returns the accuracy against y.
func Score(e Estimator, X *mat.Dense, y []int) (float64, error) {
	pred, err := e.Predict(X)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred), nil
}
