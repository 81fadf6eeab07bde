// Package metrics exposes detection counters for Prometheus.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

// Recorder counts scored points and anomalies per detector.
type Recorder struct {
	registry  *prometheus.Registry
	points    *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	bandWidth *prometheus.GaugeVec
}

// NewRecorder creates a Recorder on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		points: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tsanomaly",
				Name:      "points_total",
				Help:      "Total number of points scored.",
			},
			[]string{"detector"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tsanomaly",
				Name:      "anomalies_total",
				Help:      "Total number of points flagged as anomalous.",
			},
			[]string{"detector"},
		),
		bandWidth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tsanomaly",
				Name:      "band_width",
				Help:      "Width (upper - lower) of the most recent band.",
			},
			[]string{"detector"},
		),
	}
	r.registry.MustRegister(r.points, r.anomalies, r.bandWidth)
	return r
}

// Observe records one scored point. Records without a band (the first point
// of a batch) still count as points but do not move the gauge.
func (r *Recorder) Observe(detector string, rec detectors.Record) {
	r.points.WithLabelValues(detector).Inc()
	if rec.Anomaly {
		r.anomalies.WithLabelValues(detector).Inc()
	}
	if w := rec.Upper - rec.Lower; !math.IsNaN(w) {
		r.bandWidth.WithLabelValues(detector).Set(w)
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
