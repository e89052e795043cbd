package metrics

// Wrapper adapts Metrics to the sink interfaces the pipeline packages
// declare, so they do not import Prometheus directly.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ClassificationsInc() {
	w.m.ClassificationsTotal.Inc()
}

func (w *Wrapper) ClassificationFailuresInc() {
	w.m.ClassificationFailures.Inc()
}

func (w *Wrapper) FitLatencyObserve(seconds float64) {
	w.m.FitLatency.Observe(seconds)
}

func (w *Wrapper) CrossValScoreObserve(score float64) {
	w.m.CrossValScores.Observe(score)
}

func (w *Wrapper) DecodesInc() {
	w.m.DecodesTotal.Inc()
}

func (w *Wrapper) DatasetStudiesSet(n int) {
	w.m.DatasetStudies.Set(float64(n))
}

func (w *Wrapper) FetchFailuresInc() {
	w.m.FetchFailures.Inc()
}
