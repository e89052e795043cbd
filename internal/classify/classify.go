// Package classify implements the region-based classification pipeline:
// resolving spatial masks into study groups, assembling design matrices and
// label vectors, regularizing, and fitting or cross-validating a wrapped
// estimator over them.
package classify

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"neurodecode/internal/estimator"
	"neurodecode/internal/voxel"
)

// Dataset is the collaborator the pipeline queries for study data. It is
// never mutated by this package.
type Dataset interface {
	IDsByMask(mask *voxel.Volume, threshold float64) ([]string, error)
	FeatureData(ids []string, features []string) (*mat.Dense, error)
	VoxelData(ids []string) (*mat.Dense, error)
	FeatureNames() []string
	StudyIDs() []string
}

// MetricsSink receives pipeline events. A nil sink disables reporting.
type MetricsSink interface {
	ClassificationsInc()
	ClassificationFailuresInc()
	FitLatencyObserve(float64)
}

// CrossVal selects how cross-validation folds are generated: either a
// named preset or a caller-supplied fold generator. A non-nil Splitter
// takes precedence over Name.
type CrossVal struct {
	Name     string
	Splitter estimator.Splitter
}

func (cv CrossVal) enabled() bool { return cv.Name != "" || cv.Splitter != nil }

// resolve maps the named presets onto stratified k-fold splitting.
func (cv CrossVal) resolve() (estimator.Splitter, error) {
	if cv.Splitter != nil {
		return cv.Splitter, nil
	}
	switch cv.Name {
	case "4-Fold":
		return estimator.StratifiedKFold{K: 4}, nil
	case "3-Fold":
		return estimator.StratifiedKFold{K: 3}, nil
	default:
		return nil, fmt.Errorf("unrecognized cross validation method %q", cv.Name)
	}
}

// Classifier wraps a statistical estimator, possibly grid-search
// optimized, together with the last-fit data and fold scores. It is
// created per classification call and must not be fit concurrently.
type Classifier struct {
	Method string

	est  estimator.Estimator
	grid *estimator.GridSearch

	X          *mat.Dense
	Y          []int
	FoldScores []float64

	fitted bool
}

// NewClassifier builds a classifier wrapper. A supplied estimator is used
// directly (re-randomized if it carries internal randomness); otherwise one
// of the named presets is constructed. A non-nil paramGrid wraps the
// estimator in a grid-search optimizer.
func NewClassifier(method string, est estimator.Estimator, classWeight string, paramGrid map[string][]float64) (*Classifier, error) {
	c := &Classifier{Method: method}

	if est != nil {
		if r, ok := est.(estimator.Reseeder); ok {
			r.Reseed(rand.Int63())
		}
		c.est = est
	} else {
		built, err := estimator.ByName(method, classWeight)
		if err != nil {
			return nil, err
		}
		c.est = built
	}

	if paramGrid != nil {
		var factory func() (estimator.Estimator, error)
		sequential := false
		if est != nil {
			// A supplied estimator cannot be re-instantiated, so combos
			// share it and must run one at a time.
			factory = func() (estimator.Estimator, error) { return est, nil }
			sequential = true
		} else {
			factory = func() (estimator.Estimator, error) {
				return estimator.ByName(method, classWeight)
			}
		}
		c.grid = estimator.NewGridSearch(factory, paramGrid)
		c.grid.Sequential = sequential
		c.est = c.grid
	}

	return c, nil
}

// Estimator exposes the wrapped (possibly grid-searched) estimator.
func (c *Classifier) Estimator() estimator.Estimator { return c.est }

// IsFitted reports whether the wrapped estimator has been trained. It is
// false after a plain cross-validated fit: per-fold fitting leaves no model
// trained on the full data.
func (c *Classifier) IsFitted() bool { return c.fitted }

// Fit trains the wrapped estimator in place and records X and y.
func (c *Classifier) Fit(X *mat.Dense, y []int) (estimator.Estimator, error) {
	if err := c.est.Fit(X, y); err != nil {
		return nil, err
	}
	c.X, c.Y = X, y
	c.fitted = true
	return c.est, nil
}

// Score predicts on X with the fitted estimator and returns accuracy
// against y.
func (c *Classifier) Score(X *mat.Dense, y []int) (float64, error) {
	if !c.fitted {
		return 0, fmt.Errorf("classifier is not fitted")
	}
	return estimator.Score(c.est, X, y)
}

// CrossValFit evaluates the wrapped estimator by cross-validation and
// returns the mean score. For a grid-searched estimator the folds and
// scoring are installed into the optimizer and it is fit once, so the
// wrapper ends up fitted with the best parameters; for a plain estimator
// the per-fold scores are retained and the wrapper stays unfit.
func (c *Classifier) CrossValFit(X *mat.Dense, y []int, cv CrossVal, scoring string) (float64, error) {
	split, err := cv.resolve()
	if err != nil {
		return 0, err
	}
	score, err := estimator.ScorerByName(scoring)
	if err != nil {
		return 0, err
	}
	c.X, c.Y = X, y

	if c.grid != nil {
		c.grid.SetFolds(split, score)
		if err := c.grid.Fit(X, y); err != nil {
			return 0, err
		}
		c.fitted = true
		return c.grid.BestScore, nil
	}

	scores, err := estimator.CrossValScores(c.est, X, y, split, score)
	if err != nil {
		return 0, err
	}
	c.FoldScores = scores
	return estimator.Mean(scores), nil
}

// Feature table selectors accepted by FitDataset.
const (
	FeatureTypeFeatures = "features"
	FeatureTypeVoxels   = "voxels"
)

// FitDataset pulls a feature or voxel table for every study in the dataset
// and fits the wrapped estimator to it, bypassing the matrix builder.
// len(y) must equal the dataset's study count.
func (c *Classifier) FitDataset(ds Dataset, y []int, features []string, featureType string) error {
	ids := ds.StudyIDs()
	if len(ids) != len(y) {
		return fmt.Errorf("dataset has %d studies but label vector has %d entries", len(ids), len(y))
	}

	var X *mat.Dense
	var err error
	switch featureType {
	case FeatureTypeFeatures:
		X, err = ds.FeatureData(ids, features)
	case FeatureTypeVoxels:
		X, err = ds.VoxelData(ids)
	default:
		return fmt.Errorf("unrecognized feature type %q", featureType)
	}
	if err != nil {
		return err
	}

	_, err = c.Fit(X, y)
	return err
}
