// Package dataset provides persistent storage for study records: the
// text-derived feature vector and the voxel activation image of every study
// in a meta-analytic corpus. It uses BoltDB as the underlying storage
// engine, one bucket per table, and serves the query surface the
// classification pipeline needs: study ids by mask, feature sub-matrices,
// and voxel sub-matrices.
package dataset

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"gonum.org/v1/gonum/mat"

	"neurodecode/internal/voxel"
)

const (
	featuresBucket = "features" // study id -> feature name/value map
	imagesBucket   = "images"   // study id -> voxel activation vector
	metaBucket     = "meta"     // vocabulary and grid dimensions
)

const (
	featureNamesKey = "feature_names"
	dimsKey         = "dims"
)

// Store is a BoltDB-backed study dataset. The feature vocabulary and the
// study id list are cached in memory on open and kept in sync on writes;
// reads of matrices go to disk.
type Store struct {
	db    *bbolt.DB
	names []string
	ids   []string
	dims  [3]int
}

// Open opens (or creates) the dataset database under dataPath.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "neurodecode-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{featuresBucket, imagesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) loadMeta() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if data := meta.Get([]byte(featureNamesKey)); data != nil {
			if err := json.Unmarshal(data, &s.names); err != nil {
				return fmt.Errorf("decode feature vocabulary: %w", err)
			}
		}
		if data := meta.Get([]byte(dimsKey)); data != nil {
			if err := json.Unmarshal(data, &s.dims); err != nil {
				return fmt.Errorf("decode grid dimensions: %w", err)
			}
		}
		s.ids = s.ids[:0]
		return tx.Bucket([]byte(featuresBucket)).ForEach(func(k, _ []byte) error {
			s.ids = append(s.ids, string(k))
			return nil
		})
	})
}

// SetDims records the voxel grid dimensions all study images must share.
func (s *Store) SetDims(dims [3]int) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(dims)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(dimsKey), data)
	})
	if err != nil {
		return fmt.Errorf("store grid dimensions: %w", err)
	}
	s.dims = dims
	return nil
}

// Dims returns the voxel grid dimensions.
func (s *Store) Dims() [3]int { return s.dims }

// AddStudy stores one study's feature vector and activation image. New
// feature names extend the vocabulary in sorted order; the image length
// must match the configured grid.
func (s *Store) AddStudy(id string, features map[string]float64, image []float64) error {
	if id == "" {
		return fmt.Errorf("study id must not be empty")
	}
	n := s.dims[0] * s.dims[1] * s.dims[2]
	if n > 0 && len(image) != n {
		return fmt.Errorf("study %s: image has %d voxels, grid expects %d", id, len(image), n)
	}

	vocab := s.names
	known := make(map[string]bool, len(vocab))
	for _, name := range vocab {
		known[name] = true
	}
	grew := false
	for name := range features {
		if !known[name] {
			vocab = append(vocab, name)
			known[name] = true
			grew = true
		}
	}
	if grew {
		sort.Strings(vocab)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		featData, err := json.Marshal(features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		if err := tx.Bucket([]byte(featuresBucket)).Put([]byte(id), featData); err != nil {
			return err
		}

		imgData, err := json.Marshal(image)
		if err != nil {
			return fmt.Errorf("marshal image: %w", err)
		}
		if err := tx.Bucket([]byte(imagesBucket)).Put([]byte(id), imgData); err != nil {
			return err
		}

		if grew {
			vocabData, err := json.Marshal(vocab)
			if err != nil {
				return fmt.Errorf("marshal vocabulary: %w", err)
			}
			if err := tx.Bucket([]byte(metaBucket)).Put([]byte(featureNamesKey), vocabData); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store study %s: %w", id, err)
	}

	s.names = vocab
	found := false
	for _, existing := range s.ids {
		if existing == id {
			found = true
			break
		}
	}
	if !found {
		s.ids = append(s.ids, id)
		sort.Strings(s.ids)
	}
	return nil
}

// StudyIDs returns all study ids in sorted order.
func (s *Store) StudyIDs() []string {
	return append([]string(nil), s.ids...)
}

// FeatureNames returns the ordered feature vocabulary.
func (s *Store) FeatureNames() []string {
	return append([]string(nil), s.names...)
}

// FeatureData assembles the study-by-feature sub-matrix for the given ids.
// Row order matches ids exactly. When features is non-empty, columns are
// restricted to (and ordered by) those names; a name missing from the
// vocabulary is an error. Features a study does not carry read as zero.
func (s *Store) FeatureData(ids []string, features []string) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no study ids given")
	}
	cols := features
	if len(cols) == 0 {
		cols = s.names
	} else {
		for _, name := range cols {
			if _, err := s.featureIndex(name); err != nil {
				return nil, err
			}
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("dataset has no features")
	}

	X := mat.NewDense(len(ids), len(cols), nil)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(featuresBucket))
		for i, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("unknown study id %q", id)
			}
			var feats map[string]float64
			if err := json.Unmarshal(data, &feats); err != nil {
				return fmt.Errorf("decode study %s features: %w", id, err)
			}
			for j, name := range cols {
				X.Set(i, j, feats[name])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return X, nil
}

// VoxelData assembles the study-by-voxel sub-matrix for the given ids,
// row order matching ids exactly.
func (s *Store) VoxelData(ids []string) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no study ids given")
	}
	var X *mat.Dense
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(imagesBucket))
		for i, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("unknown study id %q", id)
			}
			var img []float64
			if err := json.Unmarshal(data, &img); err != nil {
				return fmt.Errorf("decode study %s image: %w", id, err)
			}
			if X == nil {
				X = mat.NewDense(len(ids), len(img), nil)
			}
			if len(img) != X.RawMatrix().Cols {
				return fmt.Errorf("study %s: image has %d voxels, expected %d", id, len(img), X.RawMatrix().Cols)
			}
			X.SetRow(i, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return X, nil
}

// IDsByMask returns the ids of studies whose fraction of active voxels
// inside the mask meets or exceeds threshold. The mask must be sampled on
// the same grid as the stored images.
func (s *Store) IDsByMask(mask *voxel.Volume, threshold float64) ([]string, error) {
	if mask == nil {
		return nil, fmt.Errorf("nil mask")
	}
	var maskIdx []int
	for i, v := range mask.Data {
		if v > 0 {
			maskIdx = append(maskIdx, i)
		}
	}
	if len(maskIdx) == 0 {
		return nil, fmt.Errorf("mask selects no voxels")
	}

	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(imagesBucket))
		for _, id := range s.ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var img []float64
			if err := json.Unmarshal(data, &img); err != nil {
				return fmt.Errorf("decode study %s image: %w", id, err)
			}
			if len(img) != mask.NVoxels() {
				return fmt.Errorf("study %s: image has %d voxels, mask grid has %d", id, len(img), mask.NVoxels())
			}
			active := 0
			for _, i := range maskIdx {
				if img[i] > 0 {
					active++
				}
			}
			if float64(active)/float64(len(maskIdx)) >= threshold {
				out = append(out, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IDsByFeature returns the ids of studies whose named feature value meets
// or exceeds threshold, in stored id order.
func (s *Store) IDsByFeature(name string, threshold float64) ([]string, error) {
	if _, err := s.featureIndex(name); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(featuresBucket))
		for _, id := range s.ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var feats map[string]float64
			if err := json.Unmarshal(data, &feats); err != nil {
				return fmt.Errorf("decode study %s features: %w", id, err)
			}
			if feats[name] >= threshold {
				out = append(out, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// featureIndex resolves a feature name to its first-match vocabulary index.
func (s *Store) featureIndex(name string) (int, error) {
	for i, n := range s.names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("feature %q not in dataset vocabulary", name)
}
