package estimator

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Boost is the GBC preset: a boosted ensemble of depth-1 trees (stumps)
// using the multiclass SAMME weight update. There is no Go library that
// trains boosted trees (the available ones only run inference on exported
// models), so the boosting loop lives here; it is deliberately the smallest
// member of the preset family.
type Boost struct {
	Estimators   int
	LearningRate float64
	stumps       []stump
	alphas       []float64
	ci           *classIndex
}

// stump is a single-feature threshold split with a constant class
// prediction on each side.
type stump struct {
	feature   int
	threshold float64
	left      int // class index predicted for values <= threshold
	right     int
}

func (s stump) predict(row []float64) int {
	if row[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

func NewBoost(estimators int) *Boost {
	if estimators <= 0 {
		estimators = 100
	}
	return &Boost{Estimators: estimators, LearningRate: 1}
}

// SetParams accepts "estimators" and "learning_rate".
func (b *Boost) SetParams(params map[string]float64) error {
	for k, v := range params {
		switch k {
		case "estimators":
			if v < 1 {
				return fmt.Errorf("boost: estimators must be >= 1, got %v", v)
			}
			b.Estimators = int(v)
		case "learning_rate":
			if v <= 0 {
				return fmt.Errorf("boost: learning rate must be positive, got %v", v)
			}
			b.LearningRate = v
		default:
			return fmt.Errorf("boost: unknown parameter %q", k)
		}
	}
	return nil
}

func (b *Boost) Fit(X *mat.Dense, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	b.ci = newClassIndex(y)
	k := b.ci.n()
	rows := matRows(X)
	classes := make([]int, len(y))
	for i, label := range y {
		classes[i] = b.ci.of(label)
	}

	n := len(rows)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}

	b.stumps = b.stumps[:0]
	b.alphas = b.alphas[:0]
	for m := 0; m < b.Estimators; m++ {
		s, err := fitStump(rows, classes, w, k)
		if err != nil {
			return err
		}

		var errSum float64
		miss := make([]bool, n)
		for i, row := range rows {
			if s.predict(row) != classes[i] {
				miss[i] = true
				errSum += w[i]
			}
		}
		if errSum <= 0 {
			// Perfect stump; give it a large fixed vote and stop.
			b.stumps = append(b.stumps, s)
			b.alphas = append(b.alphas, 10)
			break
		}
		// SAMME: stumps no better than chance end the ensemble.
		if errSum >= 1-1/float64(k) {
			break
		}

		alpha := b.LearningRate * (math.Log((1-errSum)/errSum) + math.Log(float64(k)-1))
		b.stumps = append(b.stumps, s)
		b.alphas = append(b.alphas, alpha)

		var total float64
		for i := range w {
			if miss[i] {
				w[i] *= math.Exp(alpha)
			}
			total += w[i]
		}
		for i := range w {
			w[i] /= total
		}
	}
	if len(b.stumps) == 0 {
		return fmt.Errorf("boost: no usable stump found")
	}
	return nil
}

func (b *Boost) Predict(X *mat.Dense) ([]int, error) {
	if len(b.stumps) == 0 {
		return nil, fmt.Errorf("boost estimator is not fitted")
	}
	rows := matRows(X)
	out := make([]int, len(rows))
	votes := make([]float64, b.ci.n())
	for i, row := range rows {
		for j := range votes {
			votes[j] = 0
		}
		for m, s := range b.stumps {
			votes[s.predict(row)] += b.alphas[m]
		}
		best := 0
		for j, v := range votes {
			if v > votes[best] {
				best = j
			}
		}
		out[i] = b.ci.label(best)
	}
	return out, nil
}

// fitStump finds the weighted-error-minimizing single-feature split.
// Each side predicts its weighted majority class.
func fitStump(rows [][]float64, classes []int, w []float64, k int) (stump, error) {
	if len(rows) == 0 {
		return stump{}, fmt.Errorf("boost: empty training set")
	}
	nFeat := len(rows[0])
	best := stump{feature: -1}
	bestErr := math.Inf(1)

	order := make([]int, len(rows))
	for j := 0; j < nFeat; j++ {
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return rows[order[a]][j] < rows[order[b]][j] })

		// Candidate thresholds: midpoints between distinct adjacent values,
		// plus a left-of-everything split so a constant side is possible.
		thresholds := []float64{rows[order[0]][j] - 1}
		for i := 1; i < len(order); i++ {
			lo, hi := rows[order[i-1]][j], rows[order[i]][j]
			if hi > lo {
				thresholds = append(thresholds, (lo+hi)/2)
			}
		}

		for _, t := range thresholds {
			leftW := make([]float64, k)
			rightW := make([]float64, k)
			for i, row := range rows {
				if row[j] <= t {
					leftW[classes[i]] += w[i]
				} else {
					rightW[classes[i]] += w[i]
				}
			}
			left, right := argmaxF(leftW), argmaxF(rightW)
			var errSum float64
			for i, row := range rows {
				pred := right
				if row[j] <= t {
					pred = left
				}
				if pred != classes[i] {
					errSum += w[i]
				}
			}
			if errSum < bestErr {
				bestErr = errSum
				best = stump{feature: j, threshold: t, left: left, right: right}
			}
		}
	}
	if best.feature < 0 {
		return stump{}, fmt.Errorf("boost: no usable stump found")
	}
	return best, nil
}

func argmaxF(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
