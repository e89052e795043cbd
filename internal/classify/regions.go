package classify

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"neurodecode/internal/estimator"
	"neurodecode/internal/voxel"
)

// Output selects the result shape produced by Classify.
type Output string

const (
	OutputSummary    Output = "summary"
	OutputSummaryClf Output = "summary_clf"
	OutputClf        Output = "clf"
	OutputNone       Output = ""
)

// Result is the outcome of a classification call. N maps class label to
// study count. Clf is set for the summary_clf and clf output shapes; after
// plain cross-validation it may be unfit (see Classifier.IsFitted).
type Result struct {
	Score float64
	N     map[int]int
	Clf   *Classifier
}

// Options configures the pipeline drivers. The zero value is completed by
// withDefaults: SVM method, auto class weighting, scale regularization,
// 4-fold cross-validation, accuracy scoring, summary output, overlap
// removal on, threshold 0.08.
type Options struct {
	Method         string
	Estimator      estimator.Estimator
	ClassWeight    string
	ParamGrid      map[string][]float64
	Features       []string
	Regularization string
	Threshold      float64
	RemoveOverlap  bool
	CrossVal       CrossVal
	Scoring        string
	Output         Output
	Metrics        MetricsSink

	noRegularization bool
	noRemoveOverlap  bool
	noCrossVal       bool
	noThreshold      bool
	noOutput         bool
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		Method:         "SVM",
		ClassWeight:    "auto",
		Regularization: "scale",
		Threshold:      0.08,
		RemoveOverlap:  true,
		CrossVal:       CrossVal{Name: "4-Fold"},
		Scoring:        "accuracy",
		Output:         OutputSummary,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Method == "" {
		o.Method = def.Method
	}
	if o.ClassWeight == "" {
		o.ClassWeight = def.ClassWeight
	}
	if o.Regularization == "" && !o.noRegularization {
		o.Regularization = def.Regularization
	}
	if o.Threshold == 0 && !o.noThreshold {
		o.Threshold = def.Threshold
	}
	if !o.RemoveOverlap && !o.noRemoveOverlap {
		o.RemoveOverlap = true
	}
	if !o.CrossVal.enabled() && !o.noCrossVal {
		o.CrossVal = def.CrossVal
	}
	if o.Scoring == "" {
		o.Scoring = def.Scoring
	}
	if o.Output == OutputNone && !o.noOutput {
		o.Output = def.Output
	}
	return o
}

// WithoutRegularization disables column scaling instead of falling back to
// the default method.
func (o Options) WithoutRegularization() Options {
	o.Regularization = ""
	o.noRegularization = true
	return o
}

// WithoutOverlapRemoval keeps ambiguous studies in every group they appear
// in; ids may then belong to more than one class.
func (o Options) WithoutOverlapRemoval() Options {
	o.RemoveOverlap = false
	o.noRemoveOverlap = true
	return o
}

// WithoutCrossVal fits once on the full data instead of cross-validating.
func (o Options) WithoutCrossVal() Options {
	o.CrossVal = CrossVal{}
	o.noCrossVal = true
	return o
}

// WithoutThreshold sets the mask threshold to zero, so every study joins
// every group, instead of falling back to the default cutoff.
func (o Options) WithoutThreshold() Options {
	o.Threshold = 0
	o.noThreshold = true
	return o
}

// WithoutOutput keeps the score-only result shape instead of falling back
// to the summary default.
func (o Options) WithoutOutput() Options {
	o.Output = OutputNone
	o.noOutput = true
	return o
}

// StudiesByMasks loads each mask and resolves it into the ordered group of
// study ids whose activation overlaps it at threshold. Output order matches
// the input masks. An unreadable mask aborts the call.
func StudiesByMasks(ds Dataset, maskPaths []string, threshold float64) ([][]string, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0,1], got %v", threshold)
	}
	groups := make([][]string, len(maskPaths))
	for i, path := range maskPaths {
		mask, err := voxel.LoadNIfTI(path)
		if err != nil {
			return nil, err
		}
		ids, err := ds.IDsByMask(mask, threshold)
		if err != nil {
			return nil, fmt.Errorf("resolve mask %s: %w", path, err)
		}
		groups[i] = ids
	}
	return groups, nil
}

// FilterOverlap removes every study id that appears in more than one group
// from all groups it appeared in, preserving per-group order of the
// remaining ids. With remove false the groups pass through unchanged.
func FilterOverlap(groups [][]string, remove bool) [][]string {
	if !remove {
		return groups
	}
	seen := make(map[string]int)
	for _, group := range groups {
		inGroup := make(map[string]bool)
		for _, id := range group {
			if !inGroup[id] {
				inGroup[id] = true
				seen[id]++
			}
		}
	}

	out := make([][]string, len(groups))
	for i, group := range groups {
		kept := make([]string, 0, len(group))
		for _, id := range group {
			if seen[id] < 2 {
				kept = append(kept, id)
			}
		}
		out[i] = kept
	}
	return out
}

// AssembleLabels flattens the groups into one study-id sequence (group 0
// first) and the parallel class-label vector.
func AssembleLabels(groups [][]string) ([]string, []int) {
	var ids []string
	var y []int
	for g, group := range groups {
		for _, id := range group {
			ids = append(ids, id)
			y = append(y, g)
		}
	}
	return ids, y
}

// NormalizeIDs converts the ids to integers when every id is purely
// numeric. It is a data-cleaning convenience, not a type contract: mixed
// or non-numeric ids return ok false and callers keep the strings.
func NormalizeIDs(ids []string) ([]int, bool) {
	out := make([]int, len(ids))
	for i, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// Regularize applies the named column transform to X. "scale" divides each
// column by its standard deviation so it has unit variance, without
// mean-centering; constant columns are left unchanged. An empty method is
// the identity. The transform is idempotent up to numerical tolerance.
func Regularize(X *mat.Dense, method string) (*mat.Dense, error) {
	switch method {
	case "":
		return X, nil
	case "scale":
		r, c := X.Dims()
		out := mat.NewDense(r, c, nil)
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, X)
			var sum float64
			for _, v := range col {
				sum += v
			}
			mean := sum / float64(r)
			var ss float64
			for _, v := range col {
				ss += (v - mean) * (v - mean)
			}
			std := math.Sqrt(ss / float64(r))
			for i, v := range col {
				if std > 0 {
					out.Set(i, j, v/std)
				} else {
					out.Set(i, j, v)
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unrecognized regularization method %q", method)
	}
}

// ClassifyRegions builds the (X, y) pair from the masks (resolve, filter
// overlap, assemble labels, fetch the feature matrix, regularize) and
// delegates to Classify.
func ClassifyRegions(ds Dataset, masks []string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	groups, err := StudiesByMasks(ds, masks, opts.Threshold)
	if err != nil {
		return nil, err
	}
	groups = FilterOverlap(groups, opts.RemoveOverlap)

	ids, y := AssembleLabels(groups)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no studies remain after overlap filtering")
	}

	X, err := ds.FeatureData(ids, opts.Features)
	if err != nil {
		return nil, err
	}
	X, err = Regularize(X, opts.Regularization)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("masks", len(masks)).
		Int("studies", len(ids)).
		Str("method", opts.Method).
		Msg("region design matrix assembled")

	return Classify(X, y, opts)
}

// Classify constructs a classifier wrapper over (X, y), fits or
// cross-validates it, and shapes the result according to opts.Output.
func Classify(X *mat.Dense, y []int, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	clf, err := NewClassifier(opts.Method, opts.Estimator, opts.ClassWeight, opts.ParamGrid)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var score float64
	if opts.CrossVal.enabled() {
		score, err = clf.CrossValFit(X, y, opts.CrossVal, opts.Scoring)
	} else {
		if _, err = clf.Fit(X, y); err == nil {
			score, err = clf.Score(X, y)
		}
	}
	if err != nil {
		if opts.Metrics != nil {
			opts.Metrics.ClassificationFailuresInc()
		}
		return nil, err
	}
	if opts.Metrics != nil {
		opts.Metrics.ClassificationsInc()
		opts.Metrics.FitLatencyObserve(time.Since(start).Seconds())
	}

	res := &Result{Score: score}
	switch opts.Output {
	case OutputSummary, OutputSummaryClf:
		res.N = make(map[int]int)
		for _, label := range y {
			res.N[label]++
		}
		if opts.Output == OutputSummaryClf {
			res.Clf = clf
		}
	case OutputClf:
		res.Clf = clf
	case OutputNone:
	default:
		return nil, fmt.Errorf("unrecognized output shape %q", opts.Output)
	}
	return res, nil
}
