// Package estimator holds the statistical learning layer: the Estimator
// interface every classifier implements, the named presets used by the
// classification pipeline, stratified cross-validation, and grid search.
//
// The actual learning is delegated to external libraries (libsvm-go for
// kernel SVMs, randomForest for tree ensembles); this package only adapts
// them to a common gonum-matrix interface.
package estimator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Estimator is a trainable classifier over a dense design matrix.
// Fit retrains from scratch on every call.
type Estimator interface {
	Fit(X *mat.Dense, y []int) error
	Predict(X *mat.Dense) ([]int, error)
}

// ParamSetter is implemented by estimators whose hyperparameters can be
// adjusted between fits, which grid search requires.
type ParamSetter interface {
	SetParams(params map[string]float64) error
}

// Reseeder is implemented by estimators with internal randomness.
// Externally supplied estimators that implement it are re-randomized when
// handed to a classifier wrapper, so repeated runs do not share a seed.
type Reseeder interface {
	Reseed(seed int64)
}

// Preset names accepted by ByName.
const (
	MethodSVM   = "SVM"
	MethodERF   = "ERF"
	MethodGBC   = "GBC"
	MethodDummy = "Dummy"
)

// ByName constructs one of the fixed estimator presets. classWeight is
// honored by the SVM preset ("auto"/"balanced" reweights classes inversely
// to their frequency) and ignored by the others.
func ByName(method, classWeight string) (Estimator, error) {
	switch method {
	case MethodSVM:
		return NewSVM(classWeight), nil
	case MethodERF:
		return NewForest(100), nil
	case MethodGBC:
		return NewBoost(100), nil
	case MethodDummy:
		return NewDummy(), nil
	default:
		return nil, fmt.Errorf("unrecognized classification method %q", method)
	}
}

// classIndex maps arbitrary integer labels onto 0..k-1 and back.
// Index order follows first appearance in y.
type classIndex struct {
	classes []int
	index   map[int]int
}

func newClassIndex(y []int) *classIndex {
	ci := &classIndex{index: make(map[int]int)}
	for _, label := range y {
		if _, ok := ci.index[label]; !ok {
			ci.index[label] = len(ci.classes)
			ci.classes = append(ci.classes, label)
		}
	}
	return ci
}

func (ci *classIndex) of(label int) int  { return ci.index[label] }
func (ci *classIndex) label(idx int) int { return ci.classes[idx] }
func (ci *classIndex) n() int            { return len(ci.classes) }

// matRows converts X into per-row float64 slices.
func matRows(X *mat.Dense) [][]float64 {
	r, c := X.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		mat.Row(row, i, X)
		rows[i] = row
	}
	return rows
}

func checkFitInput(X *mat.Dense, y []int) error {
	r, _ := X.Dims()
	if r == 0 {
		return fmt.Errorf("empty design matrix")
	}
	if r != len(y) {
		return fmt.Errorf("design matrix has %d rows but label vector has %d entries", r, len(y))
	}
	return nil
}
