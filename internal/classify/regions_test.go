package classify

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"neurodecode/internal/voxel"
)

// mockDataset serves canned per-mask id groups and a deterministic feature
// matrix keyed by study id.
type mockDataset struct {
	groups   [][]string // consumed by IDsByMask in call order
	calls    int
	features []string
	rows     map[string][]float64
}

func newMockDataset(groups [][]string) *mockDataset {
	m := &mockDataset{
		groups:   groups,
		features: []string{"emotion", "memory", "language"},
		rows:     make(map[string][]float64),
	}
	seen := make(map[string]bool)
	i := 0.0
	for _, g := range groups {
		for _, id := range g {
			if !seen[id] {
				seen[id] = true
				m.rows[id] = []float64{i + 1, 2 * (i + 1), 3 * (i + 1)}
				i++
			}
		}
	}
	return m
}

func (m *mockDataset) IDsByMask(_ *voxel.Volume, _ float64) ([]string, error) {
	g := m.groups[m.calls]
	m.calls++
	return g, nil
}

func (m *mockDataset) FeatureData(ids []string, features []string) (*mat.Dense, error) {
	cols := features
	if len(cols) == 0 {
		cols = m.features
	}
	for _, name := range cols {
		found := false
		for _, known := range m.features {
			if known == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("feature %q not in dataset vocabulary", name)
		}
	}
	X := mat.NewDense(len(ids), len(cols), nil)
	for i, id := range ids {
		row, ok := m.rows[id]
		if !ok {
			return nil, fmt.Errorf("unknown study id %q", id)
		}
		X.SetRow(i, row[:len(cols)])
	}
	return X, nil
}

func (m *mockDataset) VoxelData(ids []string) (*mat.Dense, error) {
	return m.FeatureData(ids, nil)
}

func (m *mockDataset) FeatureNames() []string { return m.features }

func (m *mockDataset) StudyIDs() []string {
	var ids []string
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids
}

func TestFilterOverlap_RemovesAmbiguousIDs(t *testing.T) {
	t.Parallel()

	groups := [][]string{
		{"1", "2", "3"},
		{"3", "4", "5"},
		{"5", "6"},
	}
	got := FilterOverlap(groups, true)

	assert.Equal(t, [][]string{{"1", "2"}, {"4"}, {"6"}}, got)

	// Output groups are pairwise disjoint.
	seen := make(map[string]int)
	for _, g := range got {
		for _, id := range g {
			seen[id]++
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s appears in more than one output group", id)
	}
}

func TestFilterOverlap_Disabled(t *testing.T) {
	t.Parallel()

	groups := [][]string{{"1", "2"}, {"2", "3"}}
	got := FilterOverlap(groups, false)
	assert.Equal(t, groups, got)
}

func TestFilterOverlap_DuplicateWithinOneGroupKept(t *testing.T) {
	t.Parallel()

	// An id repeated inside a single group is not ambiguous across groups.
	groups := [][]string{{"1", "1", "2"}, {"3"}}
	got := FilterOverlap(groups, true)
	assert.Equal(t, [][]string{{"1", "1", "2"}, {"3"}}, got)
}

func TestAssembleLabels(t *testing.T) {
	t.Parallel()

	groups := [][]string{{"10", "11"}, {"20"}, {"30", "31", "32"}}
	ids, y := AssembleLabels(groups)

	require.Len(t, y, len(ids))
	assert.Equal(t, []string{"10", "11", "20", "30", "31", "32"}, ids)
	assert.Equal(t, []int{0, 0, 1, 2, 2, 2}, y)
}

func TestNormalizeIDs(t *testing.T) {
	t.Parallel()

	got, ok := NormalizeIDs([]string{"3", "14", "159"})
	require.True(t, ok)
	assert.Equal(t, []int{3, 14, 159}, got)

	_, ok = NormalizeIDs([]string{"3", "study-14"})
	assert.False(t, ok)
}

func TestRegularize_ScaleIsIdempotent(t *testing.T) {
	t.Parallel()

	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 40,
		4, 80,
	})
	once, err := Regularize(X, "scale")
	require.NoError(t, err)
	twice, err := Regularize(once, "scale")
	require.NoError(t, err)

	r, c := once.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, once.At(i, j), twice.At(i, j), 1e-9)
		}
	}

	// Every column of the scaled matrix has unit variance.
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, once)
		var sum float64
		for _, v := range col {
			sum += v
		}
		mean := sum / float64(r)
		var ss float64
		for _, v := range col {
			ss += (v - mean) * (v - mean)
		}
		assert.InDelta(t, 1.0, ss/float64(r), 1e-9)
	}
}

func TestRegularize_ConstantColumnUnchanged(t *testing.T) {
	t.Parallel()

	X := mat.NewDense(3, 1, []float64{5, 5, 5})
	got, err := Regularize(X, "scale")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 5.0, got.At(i, 0))
	}
}

func TestRegularize_UnknownMethodFails(t *testing.T) {
	t.Parallel()

	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	_, err := Regularize(X, "lasso")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized regularization method")

	got, err := Regularize(X, "")
	require.NoError(t, err)
	assert.True(t, mat.Equal(X, got))
}

func TestStudiesByMasks_UnreadableMaskFails(t *testing.T) {
	t.Parallel()

	ds := newMockDataset([][]string{{"1"}})
	_, err := StudiesByMasks(ds, []string{"/nonexistent/mask.nii.gz"}, 0.1)
	require.Error(t, err)
}

func TestStudiesByMasks_ThresholdRange(t *testing.T) {
	t.Parallel()

	ds := newMockDataset([][]string{{"1"}})
	_, err := StudiesByMasks(ds, nil, 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

// The two-mask scenario: {1,2,3} vs {3,4,5}. With overlap removal, study 3
// is dropped from both groups and the labels split two-and-two.
func TestTwoMaskScenario(t *testing.T) {
	t.Parallel()

	groups := FilterOverlap([][]string{{"1", "2", "3"}, {"3", "4", "5"}}, true)
	ids, y := AssembleLabels(groups)

	assert.ElementsMatch(t, []string{"1", "2", "4", "5"}, ids)
	assert.Equal(t, []int{0, 0, 1, 1}, y)
}

func TestClassify_UnknownMethodFails(t *testing.T) {
	t.Parallel()

	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := []int{0, 0, 1, 1}
	opts := Options{Method: "XYZ"}.WithoutCrossVal()

	_, err := Classify(X, y, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized classification method")
}

func TestClassify_DummySummary(t *testing.T) {
	t.Parallel()

	// Enough rows per class for the default estimator to behave.
	n := 20
	data := make([]float64, n*2)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		data[2*i] = float64(i)
		data[2*i+1] = float64(i * i)
		y[i] = i % 2
	}
	X := mat.NewDense(n, 2, data)

	opts := Options{Method: "Dummy", Output: OutputSummary}.WithoutCrossVal()
	res, err := Classify(X, y, opts)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.False(t, math.IsNaN(res.Score))
	assert.Equal(t, map[int]int{0: 10, 1: 10}, res.N)
	assert.Nil(t, res.Clf)
}

func TestClassify_ClfOutputUnfitAfterCrossVal(t *testing.T) {
	t.Parallel()

	n := 24
	data := make([]float64, n*2)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		data[2*i] = float64(i)
		data[2*i+1] = float64(n - i)
		y[i] = i % 2
	}
	X := mat.NewDense(n, 2, data)

	opts := Options{
		Method:   "Dummy",
		CrossVal: CrossVal{Name: "4-Fold"},
		Output:   OutputClf,
	}
	res, err := Classify(X, y, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Clf)

	// Cross-validation without a param grid never trains a full-data model.
	assert.False(t, res.Clf.IsFitted())
	assert.Len(t, res.Clf.FoldScores, 4)
}

func TestClassifyRegions_EndToEnd_MockResolver(t *testing.T) {
	t.Parallel()

	// Exercise everything below the mask loader: filter, labels, matrix,
	// regularization, classification.
	ds := newMockDataset([][]string{{"1", "2", "3", "7", "8"}, {"3", "4", "5", "9", "10"}})
	groups, err := ds.IDsByMask(nil, 0.08)
	require.NoError(t, err)
	groups2, err := ds.IDsByMask(nil, 0.08)
	require.NoError(t, err)

	filtered := FilterOverlap([][]string{groups, groups2}, true)
	ids, y := AssembleLabels(filtered)
	require.Len(t, ids, 8)

	X, err := ds.FeatureData(ids, nil)
	require.NoError(t, err)
	X, err = Regularize(X, "scale")
	require.NoError(t, err)

	opts := Options{Method: "Dummy", Output: OutputSummaryClf}.WithoutCrossVal()
	res, err := Classify(X, y, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Clf)
	assert.True(t, res.Clf.IsFitted())
	assert.Equal(t, map[int]int{0: 4, 1: 4}, res.N)
}

func TestClassify_ZeroValueOptionsDefaultToSummary(t *testing.T) {
	t.Parallel()

	n := 20
	data := make([]float64, n*2)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		data[2*i] = float64(i)
		data[2*i+1] = float64(i + 1)
		y[i] = i % 2
	}
	X := mat.NewDense(n, 2, data)

	// No Output set: the summary shape is the default.
	opts := Options{Method: "Dummy"}.WithoutCrossVal()
	res, err := Classify(X, y, opts)
	require.NoError(t, err)

	require.NotNil(t, res.N)
	assert.Equal(t, map[int]int{0: 10, 1: 10}, res.N)
	assert.Nil(t, res.Clf)
}

func TestClassify_WithoutOutputKeepsScoreOnly(t *testing.T) {
	t.Parallel()

	n := 20
	data := make([]float64, n*2)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		data[2*i] = float64(i)
		data[2*i+1] = float64(i + 1)
		y[i] = i % 2
	}
	X := mat.NewDense(n, 2, data)

	opts := Options{Method: "Dummy"}.WithoutCrossVal().WithoutOutput()
	res, err := Classify(X, y, opts)
	require.NoError(t, err)

	assert.Nil(t, res.N)
	assert.Nil(t, res.Clf)
}

func TestOptions_WithDefaults(t *testing.T) {
	t.Parallel()

	opts := Options{}.withDefaults()
	assert.Equal(t, OutputSummary, opts.Output)
	assert.Equal(t, 0.08, opts.Threshold)

	// Explicit zero threshold survives the defaulting pass.
	opts = Options{}.WithoutThreshold().withDefaults()
	assert.Equal(t, 0.0, opts.Threshold)

	opts = Options{}.WithoutOutput().withDefaults()
	assert.Equal(t, OutputNone, opts.Output)
}

func TestClassifyRegions_UnknownFeatureFails(t *testing.T) {
	t.Parallel()

	ds := newMockDataset([][]string{{"1", "2"}})
	_, err := ds.FeatureData([]string{"1"}, []string{"no-such-feature"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in dataset vocabulary")
}
