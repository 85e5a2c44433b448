package simdriver

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SimMetrics exposes the live sweep counters as Prometheus collectors,
// following the promauto registration style the teacher's own
// PrometheusMetrics struct uses for its noise-floor and decode gauges.
type SimMetrics struct {
	frames        *prometheus.GaugeVec
	frameErrors   *prometheus.GaugeVec
	ber           *prometheus.GaugeVec
	fer           *prometheus.GaugeVec
	avgIterations *prometheus.GaugeVec
	pointIndex    prometheus.Gauge
}

// NewSimMetrics registers a fresh set of collectors against reg, each
// carrying runID as a constant run_id label; collectors registered with
// distinct runID values on one registry don't collide.
func NewSimMetrics(reg prometheus.Registerer, runID string) *SimMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run_id": runID}

	return &SimMetrics{
		frames: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "frames_total",
			Help:        "Frames simulated at the current sweep point.",
			ConstLabels: labels,
		}, []string{"point"}),
		frameErrors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "frame_errors_total",
			Help:        "Frame errors observed at the current sweep point.",
			ConstLabels: labels,
		}, []string{"point"}),
		ber: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "bit_error_rate",
			Help:        "Bit error rate at the current sweep point.",
			ConstLabels: labels,
		}, []string{"point"}),
		fer: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "frame_error_rate",
			Help:        "Frame error rate at the current sweep point.",
			ConstLabels: labels,
		}, []string{"point"}),
		avgIterations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "avg_iterations",
			Help:        "Average belief-propagation iterations per frame at the current sweep point.",
			ConstLabels: labels,
		}, []string{"point"}),
		pointIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ldpcsim",
			Name:        "sweep_point_index",
			Help:        "Index of the sweep point currently being simulated.",
			ConstLabels: labels,
		}),
	}
}

// Observe records a results snapshot, keyed by the sweep point's channel
// parameter.
func (m *SimMetrics) Observe(s ResultsSnapshot) {
	point := formatPointLabel(s.Param)
	m.frames.WithLabelValues(point).Set(float64(s.Frames))
	m.frameErrors.WithLabelValues(point).Set(float64(s.FrameErrors))
	m.ber.WithLabelValues(point).Set(s.BER)
	m.fer.WithLabelValues(point).Set(s.FER)
	m.avgIterations.WithLabelValues(point).Set(s.AvgIterations)
	m.pointIndex.Set(float64(s.PointIndex))
}

// formatPointLabel renders a sweep parameter as a Prometheus label value
// with enough precision to distinguish adjacent sweep points.
func formatPointLabel(param float64) string {
	return strconv.FormatFloat(param, 'g', -1, 64)
}
