package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the overlay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	scans          prometheus.Counter
	retries        prometheus.Counter
	dropped        prometheus.Counter
	elements       *prometheus.CounterVec
	classesLearned prometheus.Counter
	scanDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glyphwatch_scans_total",
			Help: "Full-document scans that found task widgets.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glyphwatch_scan_retries_total",
			Help: "Scans that found nothing and were retried after the retry delay.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glyphwatch_throttle_dropped_total",
			Help: "Change signals dropped by the scan throttle.",
		}),
		elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glyphwatch_elements_total",
			Help: "Task widgets processed, by outcome.",
		}, []string{"outcome"}),
		classesLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "glyphwatch_classes_learned_total",
			Help: "Generated classes mapped to a state.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "glyphwatch_scan_duration_seconds",
			Help:    "Duration of a scan pass including painting.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.retries, m.dropped, m.elements, m.classesLearned, m.scanDuration)
	}
	return m
}

func (m *Metrics) scanned(seconds float64) {
	if m == nil {
		return
	}
	m.scans.Inc()
	m.scanDuration.Observe(seconds)
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) throttled() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) element(o Outcome) {
	if m != nil {
		m.elements.WithLabelValues(o.String()).Inc()
	}
}

// ClassLearned counts a new class mapping. Pass it to classmap.WithOnLearn.
func (m *Metrics) ClassLearned() {
	if m != nil {
		m.classesLearned.Inc()
	}
}
