package estimator

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// GridSearch wraps an estimator factory in an exhaustive hyperparameter
// search. Every parameter combination is scored by cross-validation and the
// best one is refit on the full data, so after Fit the wrapper predicts
// with the winning configuration.
//
// Combinations are evaluated in parallel across all CPUs when the factory
// produces independent instances; Sequential forces one-at-a-time
// evaluation for factories that hand out a shared estimator.
type GridSearch struct {
	Factory    func() (Estimator, error)
	Grid       map[string][]float64
	Splitter   Splitter
	Scoring    ScoreFunc
	Sequential bool

	BestScore  float64
	BestParams map[string]float64

	best Estimator
}

func NewGridSearch(factory func() (Estimator, error), grid map[string][]float64) *GridSearch {
	return &GridSearch{
		Factory:  factory,
		Grid:     grid,
		Splitter: StratifiedKFold{K: 4},
		Scoring:  Accuracy,
	}
}

// SetFolds installs the fold generator and scoring metric used to rank
// parameter combinations.
func (g *GridSearch) SetFolds(split Splitter, score ScoreFunc) {
	g.Splitter = split
	g.Scoring = score
}

// Fitted reports whether a winning estimator has been trained.
func (g *GridSearch) Fitted() bool { return g.best != nil }

func (g *GridSearch) Fit(X *mat.Dense, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	combos := enumerateGrid(g.Grid)
	if len(combos) == 0 {
		return fmt.Errorf("grid search: empty parameter grid")
	}

	type outcome struct {
		params map[string]float64
		score  float64
		err    error
	}
	results := make([]outcome, len(combos))

	workers := runtime.NumCPU()
	if g.Sequential || workers > len(combos) {
		if g.Sequential {
			workers = 1
		} else {
			workers = len(combos)
		}
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = outcome{params: combos[i]}
				est, err := g.Factory()
				if err == nil {
					err = applyParams(est, combos[i])
				}
				if err != nil {
					results[i].err = err
					continue
				}
				scores, err := CrossValScores(est, X, y, g.Splitter, g.Scoring)
				if err != nil {
					results[i].err = err
					continue
				}
				results[i].score = Mean(scores)
			}
		}()
	}
	for i := range combos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	bestIdx := -1
	for i, res := range results {
		if res.err != nil {
			return fmt.Errorf("grid search: params %v: %w", res.params, res.err)
		}
		if bestIdx < 0 || res.score > results[bestIdx].score {
			bestIdx = i
		}
	}

	g.BestScore = results[bestIdx].score
	g.BestParams = results[bestIdx].params

	est, err := g.Factory()
	if err != nil {
		return err
	}
	if err := applyParams(est, g.BestParams); err != nil {
		return err
	}
	if err := est.Fit(X, y); err != nil {
		return fmt.Errorf("grid search: refit best params %v: %w", g.BestParams, err)
	}
	g.best = est
	return nil
}

func (g *GridSearch) Predict(X *mat.Dense) ([]int, error) {
	if g.best == nil {
		return nil, fmt.Errorf("grid search is not fitted")
	}
	return g.best.Predict(X)
}

func applyParams(e Estimator, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	setter, ok := e.(ParamSetter)
	if !ok {
		return fmt.Errorf("estimator %T does not accept hyperparameters", e)
	}
	return setter.SetParams(params)
}

// enumerateGrid expands a name -> candidate-values map into the cartesian
// product of parameter assignments, in deterministic key order.
func enumerateGrid(grid map[string][]float64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]float64{{}}
	for _, k := range keys {
		var next []map[string]float64
		for _, combo := range combos {
			for _, v := range grid[k] {
				c := make(map[string]float64, len(combo)+1)
				for ck, cv := range combo {
					c[ck] = cv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}
