// Package metrics exposes Prometheus collectors for passage tagging.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ppiankov/epimap/internal/model"
)

// Metrics holds the tagging collectors.
//
// Metrics:
//   - epimap_submissions_total - passages accepted and appended
//   - epimap_tags_total{category} - tags emitted per category
//   - epimap_fallback_total - passages that only received the fallback tag
//   - epimap_graph_nodes - current node count
//   - epimap_detect_duration_seconds - classification latency
type Metrics struct {
	SubmissionsTotal prometheus.Counter
	TagsTotal        *prometheus.CounterVec
	FallbackTotal    prometheus.Counter
	GraphNodes       prometheus.Gauge
	DetectDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SubmissionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "epimap_submissions_total",
			Help: "Total number of passages tagged and appended to the graph",
		}),
		TagsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epimap_tags_total",
			Help: "Total number of tags emitted, by category",
		}, []string{"category"}),
		FallbackTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "epimap_fallback_total",
			Help: "Total number of passages that received only the fallback tag",
		}),
		GraphNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "epimap_graph_nodes",
			Help: "Current number of nodes in the graph",
		}),
		DetectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "epimap_detect_duration_seconds",
			Help:    "Duration of passage classification in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		}),
	}
}

// ObserveDetect records one classification
func (m *Metrics) ObserveDetect(d time.Duration) {
	if m == nil {
		return
	}
	m.DetectDuration.Observe(d.Seconds())
}

// OnAppend implements graph.Observer
func (m *Metrics) OnAppend(node model.Node, _ *model.Link) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
	m.GraphNodes.Inc()

	for _, t := range node.Tags {
		m.TagsTotal.WithLabelValues(t.Category.Label()).Inc()
	}
	if isFallback(node.Tags) {
		m.FallbackTotal.Inc()
	}
}

// SetGraphNodes sets the node gauge, e.g. after a journal replay
func (m *Metrics) SetGraphNodes(n int) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(n))
}

func isFallback(tags []model.Tag) bool {
	return len(tags) == 1 && tags[0].Category == model.FallbackCategory && len(tags[0].CueWords) == 0
}
