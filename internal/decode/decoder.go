// Package decode turns novel activation images into implied semantic
// content: for each feature in the dataset vocabulary it learns a
// voxel-space representation and reports how strongly an input image
// expresses it.
package decode

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"neurodecode/internal/classify"
)

// Dataset is the slice of the study store the decoder needs.
type Dataset interface {
	FeatureNames() []string
	StudyIDs() []string
	IDsByFeature(name string, threshold float64) ([]string, error)
	VoxelData(ids []string) (*mat.Dense, error)
}

// Decoding methods.
const (
	MethodPearson        = "pearson"
	MethodClassification = "classification"
)

// featureThreshold is the minimum feature loading for a study to count as
// expressing that feature when building per-feature training sets.
const featureThreshold = 0.001

// Decoder decodes activation images against a trained per-feature model
// set. Construction trains everything up front; Decode is then read-only
// and cheap.
type Decoder struct {
	method   string
	features []string

	// pearson: one meta-analytic mean image per feature, in features order.
	maps *mat.Dense

	// classification: one binary classifier per feature.
	clfs map[string]*classify.Classifier
}

// New trains a decoder over the given features (the full vocabulary when
// empty). clfMethod selects the estimator preset used by the
// classification method and is ignored by pearson.
func New(ds Dataset, method string, features []string, clfMethod string) (*Decoder, error) {
	if len(features) == 0 {
		features = ds.FeatureNames()
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("dataset has no features to decode against")
	}

	d := &Decoder{method: method, features: features}
	switch method {
	case MethodPearson:
		if err := d.trainMaps(ds); err != nil {
			return nil, err
		}
	case MethodClassification:
		if err := d.trainClassifiers(ds, clfMethod); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized decoding method %q", method)
	}
	return d, nil
}

// Features returns the feature order used in decode results.
func (d *Decoder) Features() []string {
	return append([]string(nil), d.features...)
}

// trainMaps builds one meta-analytic image per feature: the voxel-wise mean
// activation of the studies loading on it.
func (d *Decoder) trainMaps(ds Dataset) error {
	for fi, name := range d.features {
		ids, err := ds.IDsByFeature(name, featureThreshold)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("feature %q has no studies above threshold", name)
		}
		X, err := ds.VoxelData(ids)
		if err != nil {
			return err
		}
		r, c := X.Dims()
		if d.maps == nil {
			d.maps = mat.NewDense(len(d.features), c, nil)
		}
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, X)
			var sum float64
			for _, v := range col {
				sum += v
			}
			d.maps.Set(fi, j, sum/float64(r))
		}
	}
	log.Info().Int("features", len(d.features)).Msg("pearson decoder trained")
	return nil
}

// trainClassifiers fits one binary classifier per feature over the voxel
// table: studies loading on the feature against the rest.
func (d *Decoder) trainClassifiers(ds Dataset, clfMethod string) error {
	if clfMethod == "" {
		clfMethod = "GBC"
	}
	ids := ds.StudyIDs()
	X, err := ds.VoxelData(ids)
	if err != nil {
		return err
	}

	d.clfs = make(map[string]*classify.Classifier, len(d.features))
	for _, name := range d.features {
		loaded, err := ds.IDsByFeature(name, featureThreshold)
		if err != nil {
			return err
		}
		inFeature := make(map[string]bool, len(loaded))
		for _, id := range loaded {
			inFeature[id] = true
		}
		y := make([]int, len(ids))
		positives := 0
		for i, id := range ids {
			if inFeature[id] {
				y[i] = 1
				positives++
			}
		}
		if positives == 0 || positives == len(ids) {
			return fmt.Errorf("feature %q does not split the studies into two classes", name)
		}

		clf, err := classify.NewClassifier(clfMethod, nil, "auto", nil)
		if err != nil {
			return err
		}
		if _, err := clf.Fit(X, y); err != nil {
			return fmt.Errorf("train classifier for feature %q: %w", name, err)
		}
		d.clfs[name] = clf
	}
	log.Info().Int("features", len(d.features)).Str("method", clfMethod).Msg("classification decoder trained")
	return nil
}

// Decode scores one image against every feature. For pearson the value is
// the correlation of the image with the feature's meta-analytic map; for
// classification it is the predicted class label.
func (d *Decoder) Decode(img []float64) (map[string]float64, error) {
	out := make(map[string]float64, len(d.features))
	switch d.method {
	case MethodPearson:
		_, c := d.maps.Dims()
		if len(img) != c {
			return nil, fmt.Errorf("image has %d voxels, decoder expects %d", len(img), c)
		}
		row := make([]float64, c)
		for fi, name := range d.features {
			mat.Row(row, fi, d.maps)
			out[name] = stat.Correlation(img, row, nil)
		}
	case MethodClassification:
		X := mat.NewDense(1, len(img), img)
		for _, name := range d.features {
			pred, err := d.clfs[name].Estimator().Predict(X)
			if err != nil {
				return nil, fmt.Errorf("decode feature %q: %w", name, err)
			}
			out[name] = float64(pred[0])
		}
	}
	return out, nil
}

// DecodeAll decodes a batch of images, one result map per image.
func (d *Decoder) DecodeAll(imgs [][]float64) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(imgs))
	for i, img := range imgs {
		res, err := d.Decode(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}
