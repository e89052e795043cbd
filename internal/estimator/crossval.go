package estimator

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Fold is one train/test partition of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter generates cross-validation folds from a label vector.
type Splitter interface {
	Split(y []int) ([]Fold, error)
}

// StratifiedKFold splits rows into K folds preserving per-class
// proportions. A non-zero Seed shuffles rows within each class before
// assignment; Seed zero keeps the input order, which makes folds
// deterministic for tests.
type StratifiedKFold struct {
	K    int
	Seed int64
}

func (s StratifiedKFold) Split(y []int) ([]Fold, error) {
	if s.K < 2 {
		return nil, fmt.Errorf("stratified k-fold requires k >= 2, got %d", s.K)
	}
	if len(y) < s.K {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", len(y), s.K)
	}

	byClass := make(map[int][]int)
	var order []int
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			order = append(order, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	for _, idx := range byClass {
		if len(idx) < s.K {
			return nil, fmt.Errorf("class with %d samples cannot be split into %d folds", len(idx), s.K)
		}
	}

	if s.Seed != 0 {
		rng := rand.New(rand.NewSource(s.Seed))
		for _, label := range order {
			idx := byClass[label]
			rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		}
	}

	// Deal each class's rows round-robin across folds.
	test := make([][]int, s.K)
	for _, label := range order {
		for j, row := range byClass[label] {
			f := j % s.K
			test[f] = append(test[f], row)
		}
	}

	folds := make([]Fold, s.K)
	for f := 0; f < s.K; f++ {
		inTest := make(map[int]bool, len(test[f]))
		for _, row := range test[f] {
			inTest[row] = true
		}
		var train []int
		for i := range y {
			if !inTest[i] {
				train = append(train, i)
			}
		}
		folds[f] = Fold{Train: train, Test: test[f]}
	}
	return folds, nil
}

// CrossValScores fits the estimator once per fold and scores it on the
// held-out rows. The estimator is left in whatever state the last fold's
// fit produced; callers wanting a usable model must refit on the full data.
func CrossValScores(e Estimator, X *mat.Dense, y []int, split Splitter, score ScoreFunc) ([]float64, error) {
	if err := checkFitInput(X, y); err != nil {
		return nil, err
	}
	folds, err := split.Split(y)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	for i, fold := range folds {
		trainX := SubsetRows(X, fold.Train)
		trainY := subsetInts(y, fold.Train)
		if err := e.Fit(trainX, trainY); err != nil {
			return nil, fmt.Errorf("fold %d fit: %w", i, err)
		}
		pred, err := e.Predict(SubsetRows(X, fold.Test))
		if err != nil {
			return nil, fmt.Errorf("fold %d predict: %w", i, err)
		}
		scores[i] = score(subsetInts(y, fold.Test), pred)
	}
	return scores, nil
}

// Mean of a score slice; zero for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// SubsetRows copies the given rows of X into a new matrix, in index order.
func SubsetRows(X *mat.Dense, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, mat.Row(nil, r, X))
	}
	return out
}

func subsetInts(y []int, rows []int) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = y[r]
	}
	return out
}
