package estimator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// thresholdEstimator classifies by comparing the first feature against a
// tunable cut. Only the right cut separates the test data, which lets the
// tests verify that grid search actually ranks combinations.
type thresholdEstimator struct {
	Cut    float64
	fitted bool
}

func (e *thresholdEstimator) SetParams(params map[string]float64) error {
	for k, v := range params {
		if k != "cut" {
			return fmt.Errorf("unknown parameter %q", k)
		}
		e.Cut = v
	}
	return nil
}

func (e *thresholdEstimator) Fit(X *mat.Dense, y []int) error {
	e.fitted = true
	return nil
}

func (e *thresholdEstimator) Predict(X *mat.Dense) ([]int, error) {
	if !e.fitted {
		return nil, fmt.Errorf("not fitted")
	}
	r, _ := X.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		if X.At(i, 0) > e.Cut {
			out[i] = 1
		}
	}
	return out, nil
}

func TestGridSearch_PicksSeparatingCut(t *testing.T) {
	t.Parallel()

	X, y := separable(10) // class 1 sits above 10 on feature 0
	g := NewGridSearch(
		func() (Estimator, error) { return &thresholdEstimator{}, nil },
		map[string][]float64{"cut": {-100, 5, 100}},
	)
	g.SetFolds(StratifiedKFold{K: 2}, Accuracy)

	require.NoError(t, g.Fit(X, y))
	assert.True(t, g.Fitted())
	assert.Equal(t, 5.0, g.BestParams["cut"])
	assert.InDelta(t, 1.0, g.BestScore, 1e-12)

	pred, err := g.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 1.0, Accuracy(y, pred))
}

func TestGridSearch_EmptyGridValueFails(t *testing.T) {
	t.Parallel()

	X, y := separable(5)
	g := NewGridSearch(
		func() (Estimator, error) { return &thresholdEstimator{}, nil },
		map[string][]float64{"cut": {}},
	)
	require.Error(t, g.Fit(X, y))
}

func TestGridSearch_RejectsNonTunableEstimator(t *testing.T) {
	t.Parallel()

	X, y := separable(5)
	g := NewGridSearch(
		func() (Estimator, error) { return NewDummy(), nil },
		map[string][]float64{"cut": {1}},
	)
	g.SetFolds(StratifiedKFold{K: 2}, Accuracy)
	err := g.Fit(X, y)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not accept hyperparameters")
}

func TestGridSearch_PredictBeforeFitFails(t *testing.T) {
	t.Parallel()

	g := NewGridSearch(func() (Estimator, error) { return &thresholdEstimator{}, nil }, nil)
	_, err := g.Predict(mat.NewDense(1, 1, []float64{0}))
	require.Error(t, err)
}

func TestEnumerateGrid_CartesianProduct(t *testing.T) {
	t.Parallel()

	combos := enumerateGrid(map[string][]float64{
		"a": {1, 2},
		"b": {10, 20, 30},
	})
	require.Len(t, combos, 6)
	seen := make(map[string]bool)
	for _, c := range combos {
		seen[fmt.Sprintf("%v-%v", c["a"], c["b"])] = true
	}
	assert.Len(t, seen, 6)
}
