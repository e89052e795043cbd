package estimator

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Dummy is the stratified random baseline: it learns only the empirical
// class distribution and predicts by sampling from it. Useful as a chance
// floor when evaluating the real presets.
type Dummy struct {
	classes []int
	cumDist []float64
	rng     *rand.Rand
}

func NewDummy() *Dummy {
	return &Dummy{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Reseed replaces the sampling source, making predictions reproducible.
func (d *Dummy) Reseed(seed int64) {
	d.rng = rand.New(rand.NewSource(seed))
}

func (d *Dummy) Fit(X *mat.Dense, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	ci := newClassIndex(y)
	counts := make([]float64, ci.n())
	for _, label := range y {
		counts[ci.of(label)]++
	}
	d.classes = append([]int(nil), ci.classes...)
	d.cumDist = make([]float64, len(counts))
	var cum float64
	for i, c := range counts {
		cum += c / float64(len(y))
		d.cumDist[i] = cum
	}
	return nil
}

func (d *Dummy) Predict(X *mat.Dense) ([]int, error) {
	if d.classes == nil {
		return nil, fmt.Errorf("dummy estimator is not fitted")
	}
	r, _ := X.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		u := d.rng.Float64()
		k := len(d.classes) - 1
		for j, cum := range d.cumDist {
			if u <= cum {
				k = j
				break
			}
		}
		out[i] = d.classes[k]
	}
	return out, nil
}
