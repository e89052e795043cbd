package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// separable builds a two-class set with well-separated clusters: class 0
// near the origin, class 1 shifted by 10 in both dimensions.
func separable(nPerClass int) (*mat.Dense, []int) {
	n := 2 * nPerClass
	data := make([]float64, n*2)
	y := make([]int, n)
	for i := 0; i < nPerClass; i++ {
		data[2*i] = float64(i%5) * 0.1
		data[2*i+1] = float64(i%7) * 0.1
		y[i] = 0
	}
	for i := nPerClass; i < n; i++ {
		data[2*i] = 10 + float64(i%5)*0.1
		data[2*i+1] = 10 + float64(i%7)*0.1
		y[i] = 1
	}
	return mat.NewDense(n, 2, data), y
}

func TestByName_UnknownMethod(t *testing.T) {
	t.Parallel()

	_, err := ByName("XYZ", "auto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized classification method")
}

func TestByName_Presets(t *testing.T) {
	t.Parallel()

	for _, method := range []string{MethodSVM, MethodERF, MethodGBC, MethodDummy} {
		est, err := ByName(method, "auto")
		require.NoError(t, err, method)
		require.NotNil(t, est, method)
	}
}

func TestDummy_FitPredict(t *testing.T) {
	t.Parallel()

	X, y := separable(10)
	d := NewDummy()
	d.Reseed(42)
	require.NoError(t, d.Fit(X, y))

	pred, err := d.Predict(X)
	require.NoError(t, err)
	require.Len(t, pred, 20)
	for _, p := range pred {
		assert.Contains(t, []int{0, 1}, p)
	}

	score := Accuracy(y, pred)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestDummy_PredictBeforeFitFails(t *testing.T) {
	t.Parallel()

	d := NewDummy()
	_, err := d.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	require.Error(t, err)
}

func TestBoost_SeparableData(t *testing.T) {
	t.Parallel()

	X, y := separable(15)
	b := NewBoost(20)
	require.NoError(t, b.Fit(X, y))

	pred, err := b.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 1.0, Accuracy(y, pred))
}

func TestBoost_SetParams(t *testing.T) {
	t.Parallel()

	b := NewBoost(100)
	require.NoError(t, b.SetParams(map[string]float64{"estimators": 10, "learning_rate": 0.5}))
	assert.Equal(t, 10, b.Estimators)
	assert.Equal(t, 0.5, b.LearningRate)

	require.Error(t, b.SetParams(map[string]float64{"depth": 3}))
	require.Error(t, b.SetParams(map[string]float64{"estimators": 0}))
}

func TestBoost_LabelMismatchFails(t *testing.T) {
	t.Parallel()

	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	err := NewBoost(5).Fit(X, []int{0, 1})
	require.Error(t, err)
}

func TestForest_SeparableData(t *testing.T) {
	t.Parallel()

	X, y := separable(20)
	f := NewForest(50)
	require.NoError(t, f.Fit(X, y))

	pred, err := f.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, Accuracy(y, pred), 0.8)
}

func TestSVM_SeparableData(t *testing.T) {
	t.Parallel()

	X, y := separable(15)
	s := NewSVM("auto")
	require.NoError(t, s.Fit(X, y))

	pred, err := s.Predict(X)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, Accuracy(y, pred), 0.8)
}

func TestSVM_SetParams(t *testing.T) {
	t.Parallel()

	s := NewSVM("")
	require.NoError(t, s.SetParams(map[string]float64{"C": 10, "gamma": 0.1}))
	assert.Equal(t, 10.0, s.C)
	assert.Equal(t, 0.1, s.Gamma)

	require.Error(t, s.SetParams(map[string]float64{"C": -1}))
	require.Error(t, s.SetParams(map[string]float64{"kernel": 1}))
}

func TestSVM_PredictDimensionMismatch(t *testing.T) {
	t.Parallel()

	X, y := separable(15)
	s := NewSVM("")
	require.NoError(t, s.Fit(X, y))

	_, err := s.Predict(mat.NewDense(1, 3, []float64{1, 2, 3}))
	require.Error(t, err)
}

func TestScorerByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "accuracy", "f1"} {
		fn, err := ScorerByName(name)
		require.NoError(t, err, name)
		require.NotNil(t, fn, name)
	}

	_, err := ScorerByName("auc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized scoring method")
}

func TestAccuracy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Accuracy([]int{0, 1, 1}, []int{0, 1, 1}))
	assert.Equal(t, 0.0, Accuracy([]int{0, 0}, []int{1, 1}))
	assert.InDelta(t, 0.5, Accuracy([]int{0, 1}, []int{0, 0}), 1e-12)
}

func TestF1Macro_PerfectAndDegenerate(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, F1Macro([]int{0, 1, 0, 1}, []int{0, 1, 0, 1}), 1e-12)
	assert.Less(t, F1Macro([]int{0, 1, 0, 1}, []int{1, 0, 1, 0}), 0.5)
}
