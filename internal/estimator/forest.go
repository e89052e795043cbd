package estimator

import (
	"fmt"

	randomforest "github.com/malaschitz/randomForest"
	"gonum.org/v1/gonum/mat"
)

// Forest is the ERF preset: an ensemble of randomized decision trees,
// trained and voted by the randomForest library.
type Forest struct {
	Trees  int
	forest *randomforest.Forest
	ci     *classIndex
}

func NewForest(trees int) *Forest {
	if trees <= 0 {
		trees = 100
	}
	return &Forest{Trees: trees}
}

// SetParams accepts "trees".
func (f *Forest) SetParams(params map[string]float64) error {
	for k, v := range params {
		switch k {
		case "trees":
			if v < 1 {
				return fmt.Errorf("forest: trees must be >= 1, got %v", v)
			}
			f.Trees = int(v)
		default:
			return fmt.Errorf("forest: unknown parameter %q", k)
		}
	}
	return nil
}

func (f *Forest) Fit(X *mat.Dense, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	f.ci = newClassIndex(y)
	classes := make([]int, len(y))
	for i, label := range y {
		classes[i] = f.ci.of(label)
	}

	forest := randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: matRows(X), Class: classes}
	forest.Train(f.Trees)
	f.forest = &forest
	return nil
}

func (f *Forest) Predict(X *mat.Dense) ([]int, error) {
	if f.forest == nil {
		return nil, fmt.Errorf("forest estimator is not fitted")
	}
	rows := matRows(X)
	out := make([]int, len(rows))
	for i, row := range rows {
		votes := f.forest.Vote(row)
		best := 0
		for j, v := range votes {
			if v > votes[best] {
				best = j
			}
		}
		out[i] = f.ci.label(best)
	}
	return out, nil
}
